package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// TileSize is the web-mercator tile edge in pixels at zoom 0.
const TileSize = 256.0

// earthHalfCircumference is the spherical-mercator extent in meters.
const earthHalfCircumference = 20037508.342789244

// Viewport is the visible map window: a centre and a zoom level.
type Viewport struct {
	Center orb.Point
	Zoom   float64
}

// FitOptions controls FitBounds.
type FitOptions struct {
	Padding float64 // pixels kept free on every side
	MaxZoom float64
	MinZoom float64
}

// worldPixel projects a lon/lat point to pixel coordinates at the given zoom.
func worldPixel(p orb.Point, zoom float64) (float64, float64) {
	m := project.WGS84.ToMercator(p)
	scale := TileSize * math.Exp2(zoom)
	x := (m[0] + earthHalfCircumference) / (2 * earthHalfCircumference) * scale
	y := (earthHalfCircumference - m[1]) / (2 * earthHalfCircumference) * scale
	return x, y
}

// fromWorldPixel is the inverse of worldPixel.
func fromWorldPixel(x, y, zoom float64) orb.Point {
	scale := TileSize * math.Exp2(zoom)
	mx := x/scale*(2*earthHalfCircumference) - earthHalfCircumference
	my := earthHalfCircumference - y/scale*(2*earthHalfCircumference)
	return project.Mercator.ToWGS84(orb.Point{mx, my})
}

// FitBounds returns the viewport that shows b inside a width x height pixel
// surface with the given padding. The zoom is snapped down to an integer
// level and clamped to [MinZoom, MaxZoom].
func FitBounds(b orb.Bound, width, height int, opts FitOptions) Viewport {
	center := b.Center()
	w := float64(width) - 2*opts.Padding
	h := float64(height) - 2*opts.Padding
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	x0, y0 := worldPixel(b.Min, 0)
	x1, y1 := worldPixel(b.Max, 0)
	dx := math.Abs(x1 - x0)
	dy := math.Abs(y1 - y0)

	zoom := opts.MaxZoom
	if dx > 0 || dy > 0 {
		zx, zy := math.Inf(1), math.Inf(1)
		if dx > 0 {
			zx = math.Log2(w / dx)
		}
		if dy > 0 {
			zy = math.Log2(h / dy)
		}
		zoom = math.Floor(math.Min(zx, zy))
	}
	if opts.MaxZoom > 0 && zoom > opts.MaxZoom {
		zoom = opts.MaxZoom
	}
	if zoom < opts.MinZoom {
		zoom = opts.MinZoom
	}
	return Viewport{Center: center, Zoom: zoom}
}

// Projector maps lon/lat to a width x height pixel surface showing a viewport.
type Projector struct {
	vp     Viewport
	width  int
	height int
	cx, cy float64
}

// NewProjector returns a projector for a surface of the given size.
func NewProjector(vp Viewport, width, height int) Projector {
	cx, cy := worldPixel(vp.Center, vp.Zoom)
	return Projector{vp: vp, width: width, height: height, cx: cx, cy: cy}
}

// Viewport returns the projected viewport.
func (p Projector) Viewport() Viewport {
	return p.vp
}

// ToPixel projects a lon/lat point onto the surface.
func (p Projector) ToPixel(pt orb.Point) (float64, float64) {
	x, y := worldPixel(pt, p.vp.Zoom)
	return x - p.cx + float64(p.width)/2, y - p.cy + float64(p.height)/2
}

// ToLonLat returns the lon/lat under a surface pixel.
func (p Projector) ToLonLat(x, y float64) orb.Point {
	wx := x + p.cx - float64(p.width)/2
	wy := y + p.cy - float64(p.height)/2
	return fromWorldPixel(wx, wy, p.vp.Zoom)
}

// Pan moves the viewport centre by dx, dy surface pixels.
func (p Projector) Pan(dx, dy float64) Viewport {
	c := fromWorldPixel(p.cx+dx, p.cy+dy, p.vp.Zoom)
	return Viewport{Center: c, Zoom: p.vp.Zoom}
}

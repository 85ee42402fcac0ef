package ui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/paulmach/orb"

	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/metrics"
	"github.com/vanderheijden86/epimap/pkg/style"
)

// Size of one terminal cell on the web-mercator pixel surface. A braille
// dot covers dotPixels x dotPixels.
const (
	CellPixelsX = 8
	CellPixelsY = 16
	dotPixels   = 4
)

// Zoom limits of the interactive map.
const (
	MinZoom = 3
	MaxZoom = 19
)

type rasterKey struct {
	vp   geo.Viewport
	w, h int
	coll *geo.Collection
}

// rasterCache survives Model copies; rasterising is the expensive part of a
// frame and only depends on viewport, size and geometry.
type rasterCache struct {
	key rasterKey
	r   *raster
}

// MapView draws the choropleth of the active dataset as coloured braille
// cells.
type MapView struct {
	vp     geo.Viewport
	width  int // in cells
	height int
	base   int
	cache  *rasterCache
}

// NewMapView creates a map view centred on vp.
func NewMapView(vp geo.Viewport, baseMap string) MapView {
	return MapView{vp: vp, base: BaseMapIndex(baseMap), cache: &rasterCache{}}
}

// SetSize sets the map area in terminal cells.
func (m *MapView) SetSize(w, h int) {
	m.width, m.height = max(w, 0), max(h, 0)
}

// Size returns the map area in terminal cells.
func (m MapView) Size() (int, int) {
	return m.width, m.height
}

// PixelSize returns the map area on the pixel surface used for fitting.
func (m MapView) PixelSize() (int, int) {
	return m.width * CellPixelsX, m.height * CellPixelsY
}

// Viewport returns the current centre and zoom.
func (m MapView) Viewport() geo.Viewport {
	return m.vp
}

// SetViewport moves the map, clamping the zoom.
func (m *MapView) SetViewport(vp geo.Viewport) {
	vp.Zoom = math.Max(MinZoom, math.Min(MaxZoom, vp.Zoom))
	m.vp = vp
}

// Fit shows b with the given options.
func (m *MapView) Fit(b orb.Bound, opts geo.FitOptions) {
	w, h := m.PixelSize()
	if w == 0 || h == 0 {
		m.SetViewport(geo.Viewport{Center: b.Center(), Zoom: opts.MaxZoom})
		return
	}
	m.SetViewport(geo.FitBounds(b, w, h, opts))
}

// Projector returns the projection of the current viewport.
func (m MapView) Projector() geo.Projector {
	w, h := m.PixelSize()
	return geo.NewProjector(m.vp, w, h)
}

// PointAt returns the lon/lat at the centre of map cell (cx, cy).
func (m MapView) PointAt(cx, cy int) orb.Point {
	return m.Projector().ToLonLat(float64(cx*CellPixelsX+CellPixelsX/2), float64(cy*CellPixelsY+CellPixelsY/2))
}

// Pan moves the map by whole cells.
func (m *MapView) Pan(dcx, dcy int) {
	m.vp = m.Projector().Pan(float64(dcx*CellPixelsX), float64(dcy*CellPixelsY))
}

// ZoomBy changes the zoom level by delta.
func (m *MapView) ZoomBy(delta float64) {
	m.SetViewport(geo.Viewport{Center: m.vp.Center, Zoom: m.vp.Zoom + delta})
}

// Base returns the current base map.
func (m MapView) Base() BaseMap {
	return BaseMaps[m.base]
}

// CycleBase switches to the next base map.
func (m *MapView) CycleBase() BaseMap {
	m.base = (m.base + 1) % len(BaseMaps)
	return BaseMaps[m.base]
}

func (m MapView) rasterFor(coll *geo.Collection) *raster {
	key := rasterKey{vp: m.vp, w: m.width, h: m.height, coll: coll}
	if m.cache != nil && m.cache.r != nil && m.cache.key == key {
		return m.cache.r
	}

	r := &raster{dw: m.width * 2, dh: m.height * 4}
	r.idx = make([]int32, r.dw*r.dh)
	units := coll.Units()
	index := make(map[string]int32, len(units))
	for i, u := range units {
		index[u.Key] = int32(i)
	}
	proj := m.Projector()
	last := int32(-1)
	for dy := 0; dy < r.dh; dy++ {
		for dx := 0; dx < r.dw; dx++ {
			pt := proj.ToLonLat(float64(dx*dotPixels+dotPixels/2), float64(dy*dotPixels+dotPixels/2))
			found := int32(-1)
			if last >= 0 && units[last].Contains(pt) {
				found = last
			} else if u, ok := coll.Locate(pt); ok {
				found = index[u.Key]
			}
			r.idx[dy*r.dw+dx] = found
			last = found
		}
	}
	if m.cache != nil {
		m.cache.key, m.cache.r = key, r
	}
	return r
}

type cellStyleKey struct {
	fg, bg string
	bold   bool
}

// Render draws coll painted by res.
func (m MapView) Render(coll *geo.Collection, res *style.Resolver, theme Theme) string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	defer metrics.Timer(metrics.MapRender)()

	tint := m.Base().Tint
	units := coll.Units()
	styles := make([]style.Style, len(units))
	for i, u := range units {
		styles[i] = res.Style(u)
	}
	visible := func(i int32) bool { return i >= 0 && !styles[i].Hidden }

	r := m.rasterFor(coll)
	br := newBrailleBuf(m.width, m.height)
	highlightFg := theme.HighlightStroke.Dark
	if !theme.Renderer.HasDarkBackground() {
		highlightFg = theme.HighlightStroke.Light
	}

	cache := make(map[cellStyleKey]lipgloss.Style)
	var sb strings.Builder
	for cy := 0; cy < m.height; cy++ {
		var run strings.Builder
		var runKey cellStyleKey
		flush := func() {
			if run.Len() == 0 {
				return
			}
			st, ok := cache[runKey]
			if !ok {
				st = theme.Renderer.NewStyle().
					Foreground(lipgloss.Color(runKey.fg)).
					Background(lipgloss.Color(runKey.bg)).
					Bold(runKey.bold)
				cache[runKey] = st
			}
			sb.WriteString(st.Render(run.String()))
			run.Reset()
		}

		for cx := 0; cx < m.width; cx++ {
			var votes [8]int32
			n := 0
			highlighted := false
			for oy := 0; oy < 4; oy++ {
				for ox := 0; ox < 2; ox++ {
					dx, dy := cx*2+ox, cy*4+oy
					here := r.at(dx, dy)
					votes[n] = here
					n++
					if !r.edge(dx, dy) {
						continue
					}
					owner := here
					if !visible(owner) {
						owner = r.at(dx+1, dy)
						if !visible(owner) {
							owner = r.at(dx, dy+1)
						}
					}
					if !visible(owner) {
						continue
					}
					br.setDot(dx, dy)
					if styles[owner].Highlighted {
						highlighted = true
					}
				}
			}

			bg := tint
			if idx := majority(votes[:]); visible(idx) {
				st := styles[idx]
				bg = blend(st.Fill, tint, st.FillOpacity)
				if st.Highlighted {
					highlighted = true
				}
			}
			fg := style.NeutralStroke
			if highlighted {
				fg = highlightFg
			}
			key := cellStyleKey{fg: fg, bg: bg, bold: highlighted}
			if key != runKey {
				flush()
				runKey = key
			}
			run.WriteRune(br.glyph(cx, cy))
		}
		flush()
		if cy < m.height-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// majority returns the most frequent unit index, preferring units over
// background on ties.
func majority(v []int32) int32 {
	best, bestN := int32(-1), 0
	for i, a := range v {
		if a < 0 {
			continue
		}
		n := 0
		for _, b := range v[i:] {
			if a == b {
				n++
			}
		}
		if n > bestN {
			best, bestN = a, n
		}
	}
	return best
}

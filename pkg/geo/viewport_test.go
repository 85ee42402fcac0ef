package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestFitBounds_ClampsToMaxZoom(t *testing.T) {
	tiny := orb.Bound{Min: orb.Point{-77.0301, -12.0501}, Max: orb.Point{-77.0300, -12.0500}}
	vp := FitBounds(tiny, 800, 600, FitOptions{Padding: 50, MaxZoom: 14})
	if vp.Zoom != 14 {
		t.Errorf("expected zoom clamped to 14, got %v", vp.Zoom)
	}
	if math.Abs(vp.Center.Lon()+77.03005) > 1e-6 {
		t.Errorf("expected centre on the bound, got %v", vp.Center)
	}
}

func TestFitBounds_LargerBoundGivesLowerZoom(t *testing.T) {
	small := orb.Bound{Min: orb.Point{-77.05, -12.05}, Max: orb.Point{-77.00, -12.00}}
	large := orb.Bound{Min: orb.Point{-77.20, -12.20}, Max: orb.Point{-76.80, -11.80}}
	zs := FitBounds(small, 800, 600, FitOptions{Padding: 50, MaxZoom: 18}).Zoom
	zl := FitBounds(large, 800, 600, FitOptions{Padding: 50, MaxZoom: 18}).Zoom
	if zl >= zs {
		t.Errorf("expected larger bound to fit at lower zoom: small=%v large=%v", zs, zl)
	}
	if zs != math.Floor(zs) {
		t.Errorf("expected integer zoom, got %v", zs)
	}
}

func TestFitBounds_ContentFitsInsidePadding(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-77.10, -12.10}, Max: orb.Point{-76.95, -11.95}}
	vp := FitBounds(b, 640, 480, FitOptions{Padding: 50, MaxZoom: 18})
	p := NewProjector(vp, 640, 480)
	x0, y0 := p.ToPixel(orb.Point{b.Min.Lon(), b.Max.Lat()})
	x1, y1 := p.ToPixel(orb.Point{b.Max.Lon(), b.Min.Lat()})
	if x0 < 50-1 || y0 < 50-1 || x1 > 640-50+1 || y1 > 480-50+1 {
		t.Errorf("bound corners outside padded area: (%v,%v)-(%v,%v)", x0, y0, x1, y1)
	}
}

func TestProjector_RoundTrip(t *testing.T) {
	vp := Viewport{Center: orb.Point{-77.02, -12.00}, Zoom: 12}
	p := NewProjector(vp, 320, 200)
	x, y := p.ToPixel(vp.Center)
	if math.Abs(x-160) > 1e-6 || math.Abs(y-100) > 1e-6 {
		t.Errorf("expected centre at surface middle, got (%v,%v)", x, y)
	}
	pt := p.ToLonLat(10, 20)
	x2, y2 := p.ToPixel(pt)
	if math.Abs(x2-10) > 1e-6 || math.Abs(y2-20) > 1e-6 {
		t.Errorf("round trip mismatch: (%v,%v)", x2, y2)
	}
}

func TestProjector_Pan(t *testing.T) {
	vp := Viewport{Center: orb.Point{-77.02, -12.00}, Zoom: 12}
	moved := NewProjector(vp, 100, 100).Pan(50, 0)
	if moved.Center.Lon() <= vp.Center.Lon() {
		t.Errorf("panning right should move centre east: %v -> %v", vp.Center, moved.Center)
	}
	if math.Abs(moved.Center.Lat()-vp.Center.Lat()) > 1e-9 {
		t.Errorf("horizontal pan should keep latitude, got %v", moved.Center.Lat())
	}
}

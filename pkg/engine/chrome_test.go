package engine

import (
	"testing"

	"github.com/vanderheijden86/epimap/pkg/testutil"
)

func TestRect(t *testing.T) {
	r := Rect{X: 2, Y: 3, W: 4, H: 2}
	tests := []struct {
		x, y int
		want bool
	}{
		{2, 3, true},
		{5, 4, true},
		{6, 4, false},
		{5, 5, false},
		{1, 3, false},
	}
	for _, tt := range tests {
		if got := r.Contains(tt.x, tt.y); got != tt.want {
			t.Errorf("Contains(%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}
	if !(Rect{W: 0, H: 3}).Empty() || r.Empty() {
		t.Error("unexpected Empty result")
	}
}

func TestChrome_NewestRegionWins(t *testing.T) {
	var c Chrome
	c.Set("sidebar", Rect{X: 0, Y: 0, W: 20, H: 20})
	c.Set("popup", Rect{X: 10, Y: 10, W: 20, H: 5})

	if name, ok := c.Hit(15, 12); !ok || name != "popup" {
		t.Errorf("expected popup on top, got %q (ok=%v)", name, ok)
	}
	if name, _ := c.Hit(5, 5); name != "sidebar" {
		t.Errorf("expected sidebar, got %q", name)
	}
	if _, ok := c.Hit(40, 40); ok {
		t.Error("expected no region at 40,40")
	}

	c.Set("sidebar", Rect{X: 0, Y: 0, W: 5, H: 5})
	testutil.AssertKeys(t, c.Names(), "sidebar", "popup")
	if _, ok := c.Hit(8, 8); ok {
		t.Error("expected moved region to stop covering 8,8")
	}

	c.Remove("popup")
	c.Remove("legend")
	testutil.AssertKeys(t, c.Names(), "sidebar")

	c.Set("search", Rect{})
	testutil.AssertKeys(t, c.Names(), "sidebar")
}

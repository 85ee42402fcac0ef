package engine

// Rect is a screen region in terminal cells.
type Rect struct {
	X, Y, W, H int
}

// Contains reports whether the cell (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

// Empty reports whether r covers no cells.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

type region struct {
	name string
	rect Rect
}

// Chrome is the set of UI regions drawn over or beside the map. Clicks
// inside any of them never reach the map handlers.
type Chrome struct {
	regions []region
}

// Set registers or moves a named region. An empty rect removes it.
func (c *Chrome) Set(name string, r Rect) {
	for i := range c.regions {
		if c.regions[i].name == name {
			if r.Empty() {
				c.regions = append(c.regions[:i:i], c.regions[i+1:]...)
			} else {
				c.regions[i].rect = r
			}
			return
		}
	}
	if !r.Empty() {
		c.regions = append(c.regions, region{name: name, rect: r})
	}
}

// Remove drops a named region.
func (c *Chrome) Remove(name string) {
	c.Set(name, Rect{})
}

// Hit returns the most recently registered region containing (x, y).
func (c *Chrome) Hit(x, y int) (string, bool) {
	for i := len(c.regions) - 1; i >= 0; i-- {
		if c.regions[i].rect.Contains(x, y) {
			return c.regions[i].name, true
		}
	}
	return "", false
}

// Names returns the registered region names in registration order.
func (c *Chrome) Names() []string {
	out := make([]string, len(c.regions))
	for i, r := range c.regions {
		out[i] = r.name
	}
	return out
}

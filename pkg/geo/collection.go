package geo

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/metrics"
)

// ErrNoGeometry is returned when a document contains no usable polygon features.
var ErrNoGeometry = errors.New("no polygon features")

// Unit is a single named region.
type Unit struct {
	Name     string // as written in the source document
	Key      string // NormalizeUnit(Name)
	Dataset  Dataset
	Geometry orb.MultiPolygon
	Bound    orb.Bound
}

// Contains reports whether p lies inside the unit's polygons.
func (u Unit) Contains(p orb.Point) bool {
	if !u.Bound.Contains(p) {
		return false
	}
	return planar.MultiPolygonContains(u.Geometry, p)
}

// Collection is the read-only set of units of one dataset, in document order.
type Collection struct {
	dataset Dataset
	units   []Unit
	index   map[string]int
	bound   orb.Bound
}

// LoadFile reads a GeoJSON FeatureCollection from disk.
// nameProp is the feature property holding the unit name.
func LoadFile(path string, ds Dataset, nameProp string) (*Collection, error) {
	defer metrics.Timer(metrics.GeometryLoad)()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading geojson: %w", err)
	}
	c, err := Parse(data, ds, nameProp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a GeoJSON FeatureCollection. Features without a name or
// without polygonal geometry are skipped; repeated names keep the first.
func Parse(data []byte, ds Dataset, nameProp string) (*Collection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing geojson: %w", err)
	}
	return FromFeatures(fc, ds, nameProp)
}

// FromFeatures builds a collection from an already decoded FeatureCollection.
func FromFeatures(fc *geojson.FeatureCollection, ds Dataset, nameProp string) (*Collection, error) {
	c := &Collection{
		dataset: ds,
		index:   make(map[string]int, len(fc.Features)),
	}
	for i, f := range fc.Features {
		name := strings.TrimSpace(f.Properties.MustString(nameProp, ""))
		if name == "" {
			debug.Log("geo: %s feature %d has no %q property, skipped", ds, i, nameProp)
			continue
		}
		var mp orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.MultiPolygon:
			mp = g
		case orb.Polygon:
			mp = orb.MultiPolygon{g}
		default:
			debug.Log("geo: %s feature %q has geometry %T, skipped", ds, name, f.Geometry)
			continue
		}
		key := NormalizeUnit(name)
		if _, dup := c.index[key]; dup {
			debug.Log("geo: %s duplicate unit %q, keeping first", ds, name)
			continue
		}
		u := Unit{Name: name, Key: key, Dataset: ds, Geometry: mp, Bound: mp.Bound()}
		c.index[key] = len(c.units)
		c.units = append(c.units, u)
		if len(c.units) == 1 {
			c.bound = u.Bound
		} else {
			c.bound = c.bound.Union(u.Bound)
		}
	}
	if len(c.units) == 0 {
		return nil, ErrNoGeometry
	}
	return c, nil
}

// Dataset returns which dataset the collection holds.
func (c *Collection) Dataset() Dataset {
	return c.dataset
}

// Len returns the number of units.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.units)
}

// Units returns the units in document order. The slice must not be modified.
func (c *Collection) Units() []Unit {
	if c == nil {
		return nil
	}
	return c.units
}

// Names returns the unit names in document order.
func (c *Collection) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.units))
	for i, u := range c.units {
		names[i] = u.Name
	}
	return names
}

// Keys returns the normalized unit keys in document order.
func (c *Collection) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, len(c.units))
	for i, u := range c.units {
		keys[i] = u.Key
	}
	return keys
}

// Unit looks a unit up by name (any case).
func (c *Collection) Unit(name string) (Unit, bool) {
	if c == nil {
		return Unit{}, false
	}
	i, ok := c.index[NormalizeUnit(name)]
	if !ok {
		return Unit{}, false
	}
	return c.units[i], true
}

// Has reports whether the collection contains the unit.
func (c *Collection) Has(name string) bool {
	_, ok := c.Unit(name)
	return ok
}

// Bound returns the bounding box of every unit.
func (c *Collection) Bound() orb.Bound {
	if c == nil {
		return orb.Bound{}
	}
	return c.bound
}

// BoundOf returns the union of the bounds of the named units. ok is false
// when none of the names is present.
func (c *Collection) BoundOf(names []string) (b orb.Bound, ok bool) {
	for _, n := range names {
		u, found := c.Unit(n)
		if !found {
			continue
		}
		if !ok {
			b, ok = u.Bound, true
			continue
		}
		b = b.Union(u.Bound)
	}
	return b, ok
}

// Locate returns the unit containing p.
func (c *Collection) Locate(p orb.Point) (Unit, bool) {
	if c == nil || !c.bound.Contains(p) {
		return Unit{}, false
	}
	for _, u := range c.units {
		if u.Contains(p) {
			return u, true
		}
	}
	return Unit{}, false
}

// FindFirst returns the first unit, in document order, whose name contains
// query case-insensitively.
func (c *Collection) FindFirst(query string) (Unit, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if c == nil || q == "" {
		return Unit{}, false
	}
	for _, u := range c.units {
		if strings.Contains(strings.ToLower(u.Name), q) {
			return u, true
		}
	}
	return Unit{}, false
}

// Matches returns up to limit units whose names contain query, in document order.
// A non-positive limit means no limit.
func (c *Collection) Matches(query string, limit int) []Unit {
	q := strings.ToLower(strings.TrimSpace(query))
	if c == nil || q == "" {
		return nil
	}
	var out []Unit
	for _, u := range c.units {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, u)
		}
	}
	return out
}

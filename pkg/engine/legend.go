package engine

import (
	"github.com/vanderheijden86/epimap/pkg/style"
)

// LegendDiagnosis is one selected diagnosis in the legend.
type LegendDiagnosis struct {
	ID     string
	Name   string
	Active bool
}

// LegendUnit is one highlighted unit in the legend.
type LegendUnit struct {
	Key  string
	Name string
}

// Legend is everything the legend panel shows.
type Legend struct {
	Diagnoses []LegendDiagnosis
	ScaleName string
	Buckets   []style.Bucket
	Summary   style.Summary
	Loading   bool
	Units     []LegendUnit
}

// Empty reports whether there is nothing to show.
func (l Legend) Empty() bool {
	return len(l.Diagnoses) == 0 && len(l.Units) == 0
}

// Legend builds the legend from the current selection and cache.
func (c *Controller) Legend() Legend {
	var lg Legend
	tree := c.store.Tree()
	active := c.store.ActiveDiagnosis()
	for _, id := range c.store.Diagnoses() {
		lg.Diagnoses = append(lg.Diagnoses, LegendDiagnosis{
			ID:     id,
			Name:   tree.DisplayName(id),
			Active: id == active,
		})
	}

	if key := c.ActiveKey(); key.Dataset != "" {
		rate := style.IsRateDataset(key.Dataset)
		values := c.cache.Values(key, rate)
		scale := style.ScaleFor(key.Dataset, values)
		lg.ScaleName = scale.Name()
		lg.Buckets = scale.Buckets()
		lg.Summary = style.Summarize(values)
		lg.Loading = c.Busy() && !c.cache.Complete(key)
	}

	coll := c.geoms[c.store.Geography()]
	for _, k := range c.store.HighlightedUnits() {
		name := k
		if u, ok := coll.Unit(k); ok {
			name = u.Name
		}
		lg.Units = append(lg.Units, LegendUnit{Key: k, Name: name})
	}
	return lg
}

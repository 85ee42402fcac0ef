// Package casedata holds the case counts that color the map: the record
// type, the partitioned cache, the sources that produce records and the
// fan-out fetch that fills one cache partition per diagnosis.
package casedata

import (
	"fmt"

	"github.com/vanderheijden86/epimap/pkg/geo"
)

// Count is one line of a record's breakdown.
type Count struct {
	Label string `json:"tipo_dx"`
	Count int    `json:"cantidad"`
}

// Record is the case data of one unit for one dataset.
type Record struct {
	Total     int
	Rate      float64 // incidence per 100k, valid when HasRate
	HasRate   bool
	Breakdown []Count
}

// Value returns the number the choropleth colors by: the rate for rate
// datasets, the total otherwise. A rate dataset record without a rate is 0.
func (r Record) Value(rate bool) float64 {
	if rate {
		if r.HasRate {
			return r.Rate
		}
		return 0
	}
	return float64(r.Total)
}

// Key names one cache partition.
type Key struct {
	Dataset   string // diagnosis id or special dataset id
	Geography geo.Dataset
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s", k.Dataset, k.Geography)
}

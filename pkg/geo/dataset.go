// Package geo loads the geographic-unit geometries shown on the map and
// provides the projection, hit-testing and viewport math the dashboard needs.
//
// Two datasets exist, districts and health-facility catchments. They are
// mutually exclusive on screen; every unit belongs to exactly one of them.
package geo

import (
	"fmt"
	"strings"
)

// Dataset identifies one of the two geometry sets.
type Dataset int

const (
	District Dataset = iota
	Facility
)

// Datasets lists every dataset in display order.
var Datasets = []Dataset{District, Facility}

func (d Dataset) String() string {
	switch d {
	case District:
		return "district"
	case Facility:
		return "facility"
	default:
		return fmt.Sprintf("dataset(%d)", int(d))
	}
}

// Label is the human-facing name of the dataset.
func (d Dataset) Label() string {
	switch d {
	case Facility:
		return "Establecimientos"
	default:
		return "Distritos"
	}
}

// Other returns the opposite dataset.
func (d Dataset) Other() Dataset {
	if d == District {
		return Facility
	}
	return District
}

// ParseDataset parses "district" or "facility" (case-insensitive).
func ParseDataset(s string) (Dataset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "district", "districts", "distritos":
		return District, nil
	case "facility", "facilities", "establecimientos":
		return Facility, nil
	}
	return District, fmt.Errorf("unknown dataset %q (want district or facility)", s)
}

// NormalizeUnit returns the canonical key of a unit name: trimmed and upper-cased.
func NormalizeUnit(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

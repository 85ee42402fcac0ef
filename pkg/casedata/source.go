package casedata

import (
	"context"
	"errors"

	"github.com/vanderheijden86/epimap/pkg/geo"
)

var (
	// ErrHTTPStatus wraps non-success responses from the case backend.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
	// ErrNoBulk is returned by a BulkSource that has no bulk variant for a key.
	ErrNoBulk = errors.New("no bulk variant for dataset")
	// ErrNoPopulation is returned when the backend has no population for a unit.
	ErrNoPopulation = errors.New("no population data")
)

// Source produces case records one unit at a time.
type Source interface {
	// UnitRecord returns the record of one unit, named as in its geometry.
	UnitRecord(ctx context.Context, key Key, unit string) (Record, error)
	// Population returns the demographic breakdown of one unit.
	Population(ctx context.Context, ds geo.Dataset, unit string) (Population, error)
}

// BulkSource is implemented by sources that can return a whole partition in
// one call. Records are keyed by normalized unit name.
type BulkSource interface {
	BulkRecords(ctx context.Context, key Key) (map[string]Record, error)
}

// Population is the demographic breakdown shown in the detail popup.
type Population struct {
	Total      int `json:"POBLACION_TOTAL"`
	Male       int `json:"MASCULINO"`
	Female     int `json:"FEMENINO"`
	Child      int `json:"NIÑO"`
	Adolescent int `json:"Adolescente"`
	Youth      int `json:"Joven"`
	Adult      int `json:"Adulto"`
	OlderAdult int `json:"Adulto_Mayor"`
}

// AgeBands returns the age split in display order.
func (p Population) AgeBands() []Count {
	return []Count{
		{Label: "Niño", Count: p.Child},
		{Label: "Adolescente", Count: p.Adolescent},
		{Label: "Joven", Count: p.Youth},
		{Label: "Adulto", Count: p.Adult},
		{Label: "Adulto mayor", Count: p.OlderAdult},
	}
}

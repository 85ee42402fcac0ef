// Package style decides how each geographic unit is painted from the
// selection and the cached case data.
package style

import (
	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/metrics"
)

// Base colors.
const (
	NeutralFill   = "#E0E0E0"
	NeutralStroke = "#555555"
	HighlightFill = "#F7A52B"
	HighlightLine = "#000000"
)

// Style is the paint of one unit.
type Style struct {
	Hidden      bool
	Weight      int
	Stroke      string
	Fill        string
	FillOpacity float64
	Highlighted bool
	Value       float64
	HasData     bool // fill encodes a data value
}

// Selection is the read side of the selection store the resolver needs.
type Selection interface {
	ActiveDiagnosis() string
	Geography() geo.Dataset
	DatasetVisible() bool
	IsHighlighted(unitKey string) bool
}

// Cases is the read side of the case cache the resolver needs.
type Cases interface {
	Get(key casedata.Key, unit string) (casedata.Record, bool)
	Values(key casedata.Key, rate bool) []float64
}

// IsRateDataset reports whether a dataset is colored on the fixed rate scale.
func IsRateDataset(id string) bool {
	return casedata.IsRate(id)
}

// ScaleFor returns the scale of a dataset given its cached values.
func ScaleFor(dataset string, values []float64) Scale {
	if IsRateDataset(dataset) {
		return FixedScale{}
	}
	return NewDynamicScale(values)
}

// Resolver paints units for one render pass. The scale is computed once at
// construction, so build a new Resolver whenever the store or cache change.
type Resolver struct {
	sel    Selection
	cases  Cases
	active string
	key    casedata.Key
	rate   bool
	scale  Scale
}

// NewResolver snapshots the active diagnosis and its scale.
func NewResolver(sel Selection, cases Cases) *Resolver {
	defer metrics.Timer(metrics.StyleResolve)()

	r := &Resolver{sel: sel, cases: cases, active: sel.ActiveDiagnosis()}
	if r.active != "" {
		r.key = casedata.Key{Dataset: r.active, Geography: sel.Geography()}
		r.rate = IsRateDataset(r.active)
		r.scale = ScaleFor(r.active, cases.Values(r.key, r.rate))
	}
	return r
}

// Resolve paints a single unit. It is equivalent to NewResolver(...).Style(u).
func Resolve(u geo.Unit, sel Selection, cases Cases) Style {
	return NewResolver(sel, cases).Style(u)
}

// Active returns the diagnosis the resolver paints, or "".
func (r *Resolver) Active() string {
	return r.active
}

// Scale returns the active scale, or nil when no diagnosis is active.
func (r *Resolver) Scale() Scale {
	return r.scale
}

// Style returns the paint of u. Rules, first match wins: units outside the
// visible dataset are hidden; without a diagnosis highlight changes fill and
// stroke; with one, the fill comes from the scale and highlight only thickens
// the stroke.
func (r *Resolver) Style(u geo.Unit) Style {
	if u.Dataset != r.sel.Geography() || !r.sel.DatasetVisible() {
		return Style{Hidden: true}
	}
	highlighted := r.sel.IsHighlighted(u.Key)

	if r.active == "" {
		if highlighted {
			return Style{Weight: 3, Stroke: HighlightLine, Fill: HighlightFill, FillOpacity: 0.9, Highlighted: true}
		}
		return Style{Weight: 1, Stroke: NeutralStroke, Fill: NeutralFill, FillOpacity: 0.2}
	}

	rec, _ := r.cases.Get(r.key, u.Key)
	value := rec.Value(r.rate)
	fill, hasData := r.scale.Color(value)

	s := Style{
		Weight:      1,
		Stroke:      NeutralStroke,
		Fill:        fill,
		FillOpacity: 0.2,
		Value:       value,
		HasData:     hasData,
	}
	if value > 0 {
		s.FillOpacity = 0.8
	}
	if highlighted {
		s.Weight, s.Stroke, s.Highlighted = 3, HighlightLine, true
	}
	return s
}

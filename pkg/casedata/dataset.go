package casedata

import "strings"

// Kind selects how a diagnosis is fetched from the backend.
type Kind int

const (
	KindGeneric  Kind = iota // per-unit casos_enfermedad
	KindEDAS                 // per-unit /api/edas, DAA/DIS breakdown
	KindIRAS                 // per-unit /api/iras, four-way breakdown
	KindFebriles             // per-unit febriles_distrito
	KindTBTIA                // bulk incidence-rate table
)

func (k Kind) String() string {
	switch k {
	case KindEDAS:
		return "edas"
	case KindIRAS:
		return "iras"
	case KindFebriles:
		return "febriles"
	case KindTBTIA:
		return "tb-tia"
	default:
		return "generic"
	}
}

// RateMarker is the normalized id fragment that identifies rate datasets.
const RateMarker = "tbtia"

// NormalizeID lower-cases an id and strips hyphens, underscores and spaces,
// so "diagnostico-TB_TIA" and "diagnostico-tbtia" compare equal.
func NormalizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.ToLower(id) {
		switch r {
		case '-', '_', ' ':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsRate reports whether a dataset is colored by incidence rate rather than
// by raw count.
func IsRate(dataset string) bool {
	return strings.Contains(NormalizeID(dataset), RateMarker)
}

// Classify returns the fetch kind of a diagnosis id.
func Classify(dataset string) Kind {
	n := NormalizeID(dataset)
	switch {
	case strings.Contains(n, RateMarker):
		return KindTBTIA
	case n == "diagnosticoedas":
		return KindEDAS
	case n == "diagnosticoiras":
		return KindIRAS
	case n == "diagnosticofebriles":
		return KindFebriles
	}
	return KindGeneric
}

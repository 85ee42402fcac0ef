package style

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Palette, darkest first.
const (
	ColorDarkest = "#800026"
	ColorDark    = "#E31A1C"
	ColorMedium  = "#FD8D3C"
	ColorLight   = "#FEB24C"
	ColorZero    = "#FFEDA0"
)

// Bucket is one legend row of a scale.
type Bucket struct {
	Label string
	Color string
}

// Scale maps a value to a fill color.
type Scale interface {
	// Color returns the fill color of v and whether v is a real data value
	// (false means the neutral no-data color was returned).
	Color(v float64) (string, bool)
	Buckets() []Bucket
	Name() string
}

// FixedScale is the rate scale with literal breakpoints 75, 50, 25 and 0.
// Comparisons are strict and checked from the largest threshold down, so a
// value of exactly 75 lands in the 50-75 bucket.
type FixedScale struct{}

var fixedThresholds = []struct {
	above float64
	color string
}{
	{75, ColorDarkest},
	{50, ColorDark},
	{25, ColorMedium},
	{0, ColorLight},
}

func (FixedScale) Color(v float64) (string, bool) {
	if math.IsNaN(v) {
		return NeutralFill, false
	}
	for _, t := range fixedThresholds {
		if v > t.above {
			return t.color, true
		}
	}
	return ColorZero, true
}

func (FixedScale) Buckets() []Bucket {
	return []Bucket{
		{Label: "> 75", Color: ColorDarkest},
		{Label: "50 – 75", Color: ColorDark},
		{Label: "25 – 50", Color: ColorMedium},
		{Label: "0 – 25", Color: ColorLight},
		{Label: "0", Color: ColorZero},
	}
}

func (FixedScale) Name() string { return "TIA x 100k" }

// DynamicScale splits [Min, Max] into four equal buckets.
type DynamicScale struct {
	Min, Max float64
}

var quartileColors = []string{ColorLight, ColorMedium, ColorDark, ColorDarkest}

// NewDynamicScale spans the finite values given. NaN and infinities are
// ignored; no values gives a degenerate scale.
func NewDynamicScale(values []float64) DynamicScale {
	finite := finiteValues(values)
	if len(finite) == 0 {
		return DynamicScale{}
	}
	return DynamicScale{Min: floats.Min(finite), Max: floats.Max(finite)}
}

// Degenerate reports whether every value is equal, in which case every unit
// gets the neutral color.
func (s DynamicScale) Degenerate() bool {
	return !(s.Max > s.Min)
}

func (s DynamicScale) Color(v float64) (string, bool) {
	if s.Degenerate() || math.IsNaN(v) {
		return NeutralFill, false
	}
	t := (v - s.Min) / (s.Max - s.Min)
	idx := int(t * 4)
	if idx < 0 {
		idx = 0
	}
	if idx > 3 {
		idx = 3
	}
	return quartileColors[idx], true
}

func (s DynamicScale) Buckets() []Bucket {
	if s.Degenerate() {
		return []Bucket{{Label: "sin variación", Color: NeutralFill}}
	}
	step := (s.Max - s.Min) / 4
	out := make([]Bucket, 4)
	for i := 0; i < 4; i++ {
		lo := s.Min + float64(i)*step
		hi := lo + step
		out[3-i] = Bucket{Label: fmt.Sprintf("%s – %s", formatValue(lo), formatValue(hi)), Color: quartileColors[i]}
	}
	return out
}

func (DynamicScale) Name() string { return "casos" }

// Summary describes the distribution of a partition's values.
type Summary struct {
	N      int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	Sum    float64
}

// Summarize computes a Summary over the finite values.
func Summarize(values []float64) Summary {
	finite := finiteValues(values)
	if len(finite) == 0 {
		return Summary{}
	}
	sort.Float64s(finite)
	return Summary{
		N:      len(finite),
		Min:    finite[0],
		Max:    finite[len(finite)-1],
		Mean:   stat.Mean(finite, nil),
		Median: stat.Quantile(0.5, stat.Empirical, finite, nil),
		Sum:    floats.Sum(finite),
	}
}

func finiteValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func formatValue(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

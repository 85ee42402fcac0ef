package metrics

import (
	"io"

	json "github.com/goccy/go-json"
)

// Report is the JSON document written by --metrics.
type Report struct {
	Timings []TimingStats `json:"timings"`
	Caches  []CacheStats  `json:"caches"`
}

// Snapshot collects the current timing and cache statistics.
func Snapshot() Report {
	r := Report{Timings: AllTimingStats()}
	for _, c := range AllCacheMetrics() {
		r.Caches = append(r.Caches, c.Stats())
	}
	return r
}

// WriteJSON writes the current snapshot as indented JSON.
func WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Snapshot())
}

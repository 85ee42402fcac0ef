// Package metrics provides performance instrumentation for epimap.
//
// Timing metrics cover the hot paths of a dashboard session (case-data
// fan-out, style resolution, map rendering, geometry loading) and cache
// metrics track whether re-activating a diagnosis hit the case cache.
// Collection is on by default; EPIMAP_METRICS=0 turns it off.
//
//	defer metrics.Timer(metrics.FetchFanout)()
package metrics

import (
	"os"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// window is the number of recent samples kept for quantiles.
const window = 512

var enabled = os.Getenv("EPIMAP_METRICS") != "0"

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled
}

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) {
	enabled = e
}

// TimingMetric accumulates durations of one operation. Totals cover every
// sample; quantiles cover the most recent window.
type TimingMetric struct {
	name string

	mu       sync.Mutex
	count    int64
	total    time.Duration
	min, max time.Duration
	recent   []float64 // milliseconds, ring buffer
	next     int
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !enabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == 0 || d < m.min {
		m.min = d
	}
	m.max = max(m.max, d)
	m.count++
	m.total += d

	ms := float64(d) / float64(time.Millisecond)
	if len(m.recent) < window {
		m.recent = append(m.recent, ms)
		return
	}
	m.recent[m.next] = ms
	m.next = (m.next + 1) % window
}

// Name returns the metric name.
func (m *TimingMetric) Name() string {
	return m.name
}

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Stats returns a consistent snapshot.
func (m *TimingMetric) Stats() TimingStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := TimingStats{
		Name:    m.name,
		Count:   m.count,
		TotalMs: toMs(m.total),
		MaxMs:   toMs(m.max),
		MinMs:   toMs(m.min),
	}
	if m.count == 0 {
		return s
	}
	s.AvgMs = toMs(m.total / time.Duration(m.count))

	sorted := slices.Clone(m.recent)
	slices.Sort(sorted)
	s.P50Ms = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P95Ms = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return s
}

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count, m.total, m.min, m.max = 0, 0, 0, 0
	m.recent = m.recent[:0]
	m.next = 0
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// TimingStats is the JSON form of a timing metric.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	P50Ms   float64 `json:"p50_ms"`
	P95Ms   float64 `json:"p95_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer starts a measurement; call the result to record it.
func Timer(m *TimingMetric) func() {
	if !enabled || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// Dashboard timings.
var (
	FetchFanout    = newTimingMetric("fetch_fanout")
	DetailFetch    = newTimingMetric("detail_fetch")
	StyleResolve   = newTimingMetric("style_resolve")
	MapRender      = newTimingMetric("map_render")
	GeometryLoad   = newTimingMetric("geometry_load")
	TaxonomyLoad   = newTimingMetric("taxonomy_load")
	SnapshotExport = newTimingMetric("snapshot_export")
)

// AllTimingMetrics returns all registered timing metrics.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{
		FetchFanout,
		DetailFetch,
		StyleResolve,
		MapRender,
		GeometryLoad,
		TaxonomyLoad,
		SnapshotExport,
	}
}

// ResetAll resets all timing and cache metrics.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, m := range AllCacheMetrics() {
		m.Reset()
	}
}

// AllTimingStats returns stats for the metrics that recorded data.
func AllTimingStats() []TimingStats {
	var out []TimingStats
	for _, m := range AllTimingMetrics() {
		if m.Count() > 0 {
			out = append(out, m.Stats())
		}
	}
	return out
}

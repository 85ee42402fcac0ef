package metrics

import "sync/atomic"

// CacheMetric counts hits and misses for a named cache.
type CacheMetric struct {
	name   string
	hits   int64
	misses int64
}

func newCacheMetric(name string) *CacheMetric {
	return &CacheMetric{name: name}
}

// Hit records a cache hit.
func (c *CacheMetric) Hit() {
	if !enabled {
		return
	}
	atomic.AddInt64(&c.hits, 1)
}

// Miss records a cache miss.
func (c *CacheMetric) Miss() {
	if !enabled {
		return
	}
	atomic.AddInt64(&c.misses, 1)
}

// Name returns the metric name.
func (c *CacheMetric) Name() string {
	return c.name
}

// Hits returns the number of recorded hits.
func (c *CacheMetric) Hits() int64 {
	return atomic.LoadInt64(&c.hits)
}

// Misses returns the number of recorded misses.
func (c *CacheMetric) Misses() int64 {
	return atomic.LoadInt64(&c.misses)
}

// Reset clears the counters.
func (c *CacheMetric) Reset() {
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
}

// Stats returns a snapshot of the counters.
func (c *CacheMetric) Stats() CacheStats {
	hits := c.Hits()
	misses := c.Misses()
	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return CacheStats{Name: c.name, Hits: hits, Misses: misses, HitRatio: ratio}
}

// CacheStats holds a snapshot of cache counters.
type CacheStats struct {
	Name     string  `json:"name"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

// CaseCache tracks whether activating a diagnosis could reuse cached case data.
var CaseCache = newCacheMetric("case_cache")

// AllCacheMetrics returns all registered cache metrics.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{CaseCache}
}

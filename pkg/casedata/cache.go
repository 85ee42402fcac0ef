package casedata

import (
	"sort"

	"github.com/vanderheijden86/epimap/pkg/debug"
)

type partition struct {
	gen     uint64
	records map[string]Record
	failed  []string
}

// Cache stores committed fetch batches, one partition per Key. A partition
// is only ever replaced whole, so readers never see a half-filled map.
//
// Cache is owned by the UI event loop and is not safe for concurrent use.
type Cache struct {
	parts map[Key]*partition
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{parts: make(map[Key]*partition)}
}

// Commit stores a completed batch under its own key. Cancelled batches and
// batches older than the partition already stored are rejected.
func (c *Cache) Commit(b Batch) bool {
	if b.Err != nil {
		debug.Log("casedata: discarding cancelled batch %d for %s: %v", b.Gen, b.Key, b.Err)
		return false
	}
	if p, ok := c.parts[b.Key]; ok && p.gen > b.Gen {
		debug.Log("casedata: discarding batch %d for %s, partition holds %d", b.Gen, b.Key, p.gen)
		return false
	}
	records := make(map[string]Record, len(b.Records))
	for unit, r := range b.Records {
		records[unit] = r
	}
	c.parts[b.Key] = &partition{
		gen:     b.Gen,
		records: records,
		failed:  append([]string(nil), b.Failed...),
	}
	return true
}

// Complete reports whether a committed partition exists for key.
func (c *Cache) Complete(key Key) bool {
	_, ok := c.parts[key]
	return ok
}

// Get returns the record of a unit (normalized key) in a partition.
func (c *Cache) Get(key Key, unit string) (Record, bool) {
	p, ok := c.parts[key]
	if !ok {
		return Record{}, false
	}
	r, ok := p.records[unit]
	return r, ok
}

// Records returns a copy of a partition's records.
func (c *Cache) Records(key Key) map[string]Record {
	p, ok := c.parts[key]
	if !ok {
		return nil
	}
	out := make(map[string]Record, len(p.records))
	for k, v := range p.records {
		out[k] = v
	}
	return out
}

// Values returns the coloring values of every record in a partition, in
// unit-key order.
func (c *Cache) Values(key Key, rate bool) []float64 {
	p, ok := c.parts[key]
	if !ok {
		return nil
	}
	units := make([]string, 0, len(p.records))
	for u := range p.records {
		units = append(units, u)
	}
	sort.Strings(units)
	out := make([]float64, len(units))
	for i, u := range units {
		out[i] = p.records[u].Value(rate)
	}
	return out
}

// Failed returns the units that degraded to zero in the committed batch.
func (c *Cache) Failed(key Key) []string {
	p, ok := c.parts[key]
	if !ok {
		return nil
	}
	return append([]string(nil), p.failed...)
}

// Keys returns the committed partition keys, sorted.
func (c *Cache) Keys() []Key {
	keys := make([]Key, 0, len(c.parts))
	for k := range c.parts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Dataset != keys[j].Dataset {
			return keys[i].Dataset < keys[j].Dataset
		}
		return keys[i].Geography < keys[j].Geography
	})
	return keys
}

// Clear drops one partition.
func (c *Cache) Clear(key Key) {
	delete(c.parts, key)
}

// ClearAll drops every partition.
func (c *Cache) ClearAll() {
	c.parts = make(map[Key]*partition)
}

// Len returns the number of committed partitions.
func (c *Cache) Len() int {
	return len(c.parts)
}

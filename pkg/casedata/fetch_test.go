package casedata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/vanderheijden86/epimap/pkg/geo"
)

type scriptedSource struct {
	mu       sync.Mutex
	fail     map[string]bool
	calls    int
	inFlight atomic.Int32
	peak     atomic.Int32
	block    chan struct{}
}

func (s *scriptedSource) UnitRecord(ctx context.Context, key Key, unit string) (Record, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
	if s.fail[unit] {
		return Record{}, fmt.Errorf("boom: %w", ErrHTTPStatus)
	}
	return Record{Total: len(unit), Breakdown: []Count{{Label: "x", Count: len(unit)}}}, nil
}

func (s *scriptedSource) Population(ctx context.Context, ds geo.Dataset, unit string) (Population, error) {
	if s.fail[unit] {
		return Population{}, ErrNoPopulation
	}
	return Population{Total: 100, Male: 40, Female: 60}, nil
}

type bulkSource struct {
	scriptedSource
	bulk map[string]Record
	err  error
}

func (b *bulkSource) BulkRecords(ctx context.Context, key Key) (map[string]Record, error) {
	return b.bulk, b.err
}

func units(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Unit %02d", i)
	}
	return out
}

func TestFetchAll_OneFailureOutOfForty(t *testing.T) {
	names := units(40)
	src := &scriptedSource{fail: map[string]bool{names[17]: true}}
	plan := Plan{Gen: 1, Key: Key{Dataset: "diagnostico-dengue"}, Units: names}

	b := FetchAll(context.Background(), src, plan, 8)
	if b.Err != nil {
		t.Fatalf("unexpected batch error: %v", b.Err)
	}
	if len(b.Records) != 40 {
		t.Fatalf("expected 40 records, got %d", len(b.Records))
	}
	if len(b.Failed) != 1 || b.Failed[0] != names[17] {
		t.Errorf("expected only %q failed, got %v", names[17], b.Failed)
	}
	failed := b.Records[geo.NormalizeUnit(names[17])]
	if failed.Total != 0 || len(failed.Breakdown) != 0 {
		t.Errorf("failed unit must degrade to zero, got %+v", failed)
	}
	if r := b.Records[geo.NormalizeUnit(names[3])]; r.Total != len(names[3]) {
		t.Errorf("healthy unit record wrong: %+v", r)
	}
	if src.peak.Load() > 8 {
		t.Errorf("expected at most 8 requests in flight, saw %d", src.peak.Load())
	}
}

func TestFetchAll_CancelledBatchIsDiscarded(t *testing.T) {
	src := &scriptedSource{block: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Batch)
	go func() {
		done <- FetchAll(ctx, src, Plan{Gen: 3, Key: Key{Dataset: "d"}, Units: units(5)}, 2)
	}()
	cancel()
	b := <-done
	if !errors.Is(b.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", b.Err)
	}
	if b.Records != nil {
		t.Error("cancelled batch must carry no records")
	}
	if NewCache().Commit(b) {
		t.Error("cancelled batch must not commit")
	}
}

func TestFetchAll_UsesBulkVariant(t *testing.T) {
	src := &bulkSource{bulk: map[string]Record{
		"UNIT 00": {Total: 4, Rate: 80.5, HasRate: true},
	}}
	b := FetchAll(context.Background(), src, Plan{Gen: 1, Key: Key{Dataset: "diagnostico-tb-tia"}, Units: units(2)}, 0)
	if src.calls != 0 {
		t.Errorf("bulk path must not issue per-unit requests, got %d", src.calls)
	}
	if r := b.Records["UNIT 00"]; !r.HasRate || r.Rate != 80.5 {
		t.Errorf("unexpected bulk record %+v", r)
	}
	if r, ok := b.Records["UNIT 01"]; !ok || r.Total != 0 {
		t.Errorf("unit missing from the bulk table must be present as zero, got %+v %v", r, ok)
	}
	if len(b.Failed) != 0 {
		t.Errorf("absent units are not failures: %v", b.Failed)
	}
}

func TestFetchAll_BulkFailureDegradesAll(t *testing.T) {
	src := &bulkSource{err: ErrHTTPStatus}
	b := FetchAll(context.Background(), src, Plan{Gen: 1, Key: Key{Dataset: "diagnostico-tb-tia"}, Units: units(3)}, 0)
	if b.Err != nil {
		t.Fatalf("bulk failure is not a cancellation: %v", b.Err)
	}
	if len(b.Failed) != 3 || len(b.Records) != 3 {
		t.Errorf("expected all 3 units degraded, got failed=%v records=%d", b.Failed, len(b.Records))
	}
}

func TestFetchAll_NoBulkFallsBackToFanout(t *testing.T) {
	src := &bulkSource{err: ErrNoBulk}
	b := FetchAll(context.Background(), src, Plan{Gen: 1, Key: Key{Dataset: "diagnostico-dengue"}, Units: units(4)}, 0)
	if src.calls != 4 {
		t.Errorf("expected 4 per-unit calls, got %d", src.calls)
	}
	if len(b.Records) != 4 {
		t.Errorf("expected 4 records, got %d", len(b.Records))
	}
}

func TestFetchDetail(t *testing.T) {
	src := &scriptedSource{fail: map[string]bool{}}
	d := FetchDetail(context.Background(), src, DetailRequest{
		Gen: 7, Geography: geo.District, Unit: "Breña",
		Diagnoses: []string{"diagnostico-a", "diagnostico-b"},
	})
	if d.Gen != 7 || d.PopulationErr != nil || d.Population.Total != 100 {
		t.Fatalf("unexpected detail %+v", d)
	}
	if len(d.Diagnoses) != 2 || d.Diagnoses[1].Diagnosis != "diagnostico-b" {
		t.Errorf("diagnoses must keep request order: %+v", d.Diagnoses)
	}
}

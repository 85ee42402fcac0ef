package casedata

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/metrics"
)

// DefaultConcurrency bounds the per-unit fan-out when no limit is configured.
const DefaultConcurrency = 32

// Plan describes one fetch batch: every unit of a dataset for one key.
type Plan struct {
	Gen   uint64
	Key   Key
	Units []string // unit names as they appear in the geometry
}

// Batch is the outcome of a plan. Records is keyed by normalized unit name
// and holds an entry for every planned unit. Err is set only when the batch
// was cancelled, in which case Records is nil.
type Batch struct {
	Gen     uint64
	Key     Key
	Records map[string]Record
	Failed  []string
	Err     error
	Elapsed time.Duration
}

// FetchAll runs a plan against src. A bulk variant is used when src offers
// one; otherwise one request per unit runs with at most limit in flight.
// A unit whose request fails gets a zero record and is listed in Failed.
func FetchAll(ctx context.Context, src Source, plan Plan, limit int) Batch {
	defer metrics.Timer(metrics.FetchFanout)()
	start := time.Now()

	b := Batch{Gen: plan.Gen, Key: plan.Key}

	if bs, ok := src.(BulkSource); ok {
		all, err := bs.BulkRecords(ctx, plan.Key)
		switch {
		case err == nil:
			b.Records = make(map[string]Record, len(plan.Units))
			for _, u := range plan.Units {
				k := geo.NormalizeUnit(u)
				b.Records[k] = all[k]
			}
			return finish(ctx, b, start)
		case errors.Is(err, ErrNoBulk):
			// per-unit fan-out below
		case ctx.Err() != nil:
			return cancelled(ctx, b, start)
		default:
			debug.Log("casedata: bulk fetch for %s failed: %v", plan.Key, err)
			b.Records = make(map[string]Record, len(plan.Units))
			for _, u := range plan.Units {
				b.Records[geo.NormalizeUnit(u)] = Record{}
				b.Failed = append(b.Failed, u)
			}
			return finish(ctx, b, start)
		}
	}

	if limit <= 0 {
		limit = DefaultConcurrency
	}
	records := make([]Record, len(plan.Units))
	errs := make([]error, len(plan.Units))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, u := range plan.Units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			records[i], errs[i] = src.UnitRecord(ctx, plan.Key, u)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return cancelled(ctx, b, start)
	}

	b.Records = make(map[string]Record, len(plan.Units))
	for i, u := range plan.Units {
		k := geo.NormalizeUnit(u)
		if errs[i] != nil {
			debug.Log("casedata: %s unit %q degraded to zero: %v", plan.Key, u, errs[i])
			b.Records[k] = Record{}
			b.Failed = append(b.Failed, u)
			continue
		}
		b.Records[k] = records[i]
	}
	return finish(ctx, b, start)
}

func finish(ctx context.Context, b Batch, start time.Time) Batch {
	if ctx.Err() != nil {
		return cancelled(ctx, b, start)
	}
	b.Elapsed = time.Since(start)
	debug.LogTiming("casedata: batch "+b.Key.String(), b.Elapsed)
	return b
}

func cancelled(ctx context.Context, b Batch, start time.Time) Batch {
	b.Records, b.Failed = nil, nil
	b.Err = ctx.Err()
	b.Elapsed = time.Since(start)
	return b
}

// DetailRequest asks for the popup data of one clicked unit.
type DetailRequest struct {
	Gen       uint64
	Geography geo.Dataset
	Unit      string
	Diagnoses []string
}

// DiagnosisDetail is the case record of one selected diagnosis in a popup.
type DiagnosisDetail struct {
	Diagnosis string
	Record    Record
	Err       error
}

// Detail is the popup content of one unit.
type Detail struct {
	Gen           uint64
	Geography     geo.Dataset
	Unit          string
	Population    Population
	PopulationErr error
	Diagnoses     []DiagnosisDetail
}

// FetchDetail fetches population and the record of each requested
// diagnosis for a single unit, concurrently. Failures are reported per part.
func FetchDetail(ctx context.Context, src Source, req DetailRequest) Detail {
	defer metrics.Timer(metrics.DetailFetch)()

	d := Detail{
		Gen:       req.Gen,
		Geography: req.Geography,
		Unit:      req.Unit,
		Diagnoses: make([]DiagnosisDetail, len(req.Diagnoses)),
	}

	var g errgroup.Group
	g.SetLimit(DefaultConcurrency)
	g.Go(func() error {
		d.Population, d.PopulationErr = src.Population(ctx, req.Geography, req.Unit)
		return nil
	})
	for i, diag := range req.Diagnoses {
		g.Go(func() error {
			key := Key{Dataset: diag, Geography: req.Geography}
			rec, err := src.UnitRecord(ctx, key, req.Unit)
			d.Diagnoses[i] = DiagnosisDetail{Diagnosis: diag, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if d.PopulationErr != nil {
		debug.Log("casedata: population for %q: %v", req.Unit, d.PopulationErr)
	}
	return d
}

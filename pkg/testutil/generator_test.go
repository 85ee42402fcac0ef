package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
)

func TestGridCells(t *testing.T) {
	gen := NewDefault()

	tests := []struct {
		name  string
		count int
	}{
		{"single", 1},
		{"one_row", 4},
		{"wraps", 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			names := Names("Unit", tt.count)
			c, err := gen.Collection(geo.District, names)
			if err != nil {
				t.Fatalf("Collection: %v", err)
			}
			if c.Len() != tt.count {
				t.Fatalf("expected %d units, got %d", tt.count, c.Len())
			}
			for i, n := range names {
				u, ok := c.Locate(gen.Center(i))
				if !ok || u.Name != n {
					t.Errorf("centre of cell %d: expected %q, got %q (ok=%v)", i, n, u.Name, ok)
				}
			}
		})
	}
}

func TestCellsDoNotOverlap(t *testing.T) {
	gen := NewDefault()
	for i := 0; i < 12; i++ {
		for j := i + 1; j < 12; j++ {
			if gen.Cell(i).Contains(gen.Center(j)) {
				t.Errorf("cell %d contains centre of cell %d", i, j)
			}
		}
	}
}

func TestLimaWorld(t *testing.T) {
	w, err := NewDefault().LimaWorld()
	if err != nil {
		t.Fatalf("LimaWorld: %v", err)
	}
	if w.Geoms[geo.District].Len() != len(LimaDistricts) {
		t.Errorf("expected %d districts, got %d", len(LimaDistricts), w.Geoms[geo.District].Len())
	}
	if got := len(w.Tree.Units(geo.Facility)); got != len(LimaFacilities) {
		t.Errorf("expected %d facility nodes, got %d", len(LimaFacilities), got)
	}
	n, ok := w.Tree.Lookup(TBTIA)
	if !ok || n.Kind != layertree.KindDiagnosis {
		t.Errorf("expected %s to be a diagnosis node, got %+v", TBTIA, n)
	}
	if !casedata.IsRate(TBTIA) {
		t.Errorf("expected %s to be a rate dataset", TBTIA)
	}
}

func TestDeterminism(t *testing.T) {
	names := Names("D", 20)
	a := New(DefaultConfig()).Records(names)
	b := New(DefaultConfig()).Records(names)
	for _, n := range names {
		if a[n].Total != b[n].Total {
			t.Fatalf("same seed produced different totals for %s: %d vs %d", n, a[n].Total, b[n].Total)
		}
		if a[n].Total != a[n].Breakdown[0].Count+a[n].Breakdown[1].Count {
			t.Errorf("total of %s does not match its breakdown", n)
		}
	}
}

func TestScriptedSource(t *testing.T) {
	src := NewScriptedSource()
	key := casedata.Key{Dataset: Leptospirosis, Geography: geo.District}
	src.Set(key, map[string]casedata.Record{"Breña": {Total: 7}})
	src.Fail("Rimac")
	ctx := context.Background()

	if r, err := src.UnitRecord(ctx, key, "Breña"); err != nil || r.Total != 7 {
		t.Errorf("expected scripted record, got %+v, %v", r, err)
	}
	if r, err := src.UnitRecord(ctx, key, "Surco"); err != nil || r.Total != 0 {
		t.Errorf("expected zero record for unscripted unit, got %+v, %v", r, err)
	}
	if _, err := src.UnitRecord(ctx, key, "Rimac"); !errors.Is(err, casedata.ErrHTTPStatus) {
		t.Errorf("expected ErrHTTPStatus, got %v", err)
	}
	if src.Calls(key) != 3 {
		t.Errorf("expected 3 calls, got %d", src.Calls(key))
	}
	if _, err := src.Population(ctx, geo.Facility, "CS Alfa"); !errors.Is(err, casedata.ErrNoPopulation) {
		t.Errorf("expected ErrNoPopulation for facilities, got %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := src.UnitRecord(cctx, key, "Breña"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWriteGeometry(t *testing.T) {
	gen := NewDefault()
	d, f := gen.WriteGeometry(t, t.TempDir(), LimaDistricts, LimaFacilities)
	c, err := geo.LoadFile(d, geo.District, DistrictProp)
	if err != nil {
		t.Fatalf("LoadFile districts: %v", err)
	}
	AssertKeys(t, c.Names(), LimaDistricts...)
	if _, err := geo.LoadFile(f, geo.Facility, FacilityProp); err != nil {
		t.Fatalf("LoadFile facilities: %v", err)
	}
}

func BenchmarkWorld100(b *testing.B) {
	gen := NewDefault()
	names := Names("D", 100)
	for i := 0; i < b.N; i++ {
		if _, err := gen.World(names, names); err != nil {
			b.Fatal(err)
		}
	}
}

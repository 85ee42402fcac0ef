//go:build ignore

// generate_testdata.go writes a demo data directory: district and facility
// grids plus an offline case database covering every diagnosis.
// Usage: go run scripts/generate_testdata.go [dir]
//
// Creates:
//   testdata/demo/distritos.geojson
//   testdata/demo/establecimientos.geojson
//   testdata/demo/casos.db
//
// Then: EPIMAP_DATA_DIR=testdata/demo epimap --offline-db testdata/demo/casos.db
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/epimap/internal/datasource"
	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
	"github.com/vanderheijden86/epimap/pkg/testutil"
)

func main() {
	outputDir := filepath.Join("testdata", "demo")
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}
	if err := generate(outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "generate: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Demo data written to %s\n", outputDir)
}

func generate(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	gen := testutil.NewDefault()
	districts := testutil.Names("Distrito", 40)
	facilities := testutil.Names("Establecimiento", 25)

	files := map[string][]byte{
		"distritos.geojson":        gen.Grid(testutil.DistrictProp, districts),
		"establecimientos.geojson": gen.Grid(testutil.FacilityProp, facilities),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}

	dbPath := filepath.Join(dir, "casos.db")
	_ = os.Remove(dbPath)
	db, err := datasource.Create(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	tree, err := layertree.Build(layertree.DefaultTaxonomy(), map[geo.Dataset][]string{
		geo.District: districts,
		geo.Facility: facilities,
	})
	if err != nil {
		return err
	}
	for _, d := range tree.Diagnoses() {
		for ds, names := range map[geo.Dataset][]string{geo.District: districts, geo.Facility: facilities} {
			records := make(map[string]casedata.Record, len(names))
			for name, r := range gen.Records(names) {
				records[geo.NormalizeUnit(name)] = r
			}
			key := casedata.Key{Dataset: d.ID, Geography: ds}
			if err := datasource.WriteRecords(ctx, db, key, records); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	for i, name := range districts {
		if err := datasource.WritePopulation(ctx, db, geo.District, name, population(i)); err != nil {
			return err
		}
	}
	fmt.Printf("  %d diagnoses x %d units\n", len(tree.Diagnoses()), len(districts)+len(facilities))
	return nil
}

// population spreads a deterministic total over the census bands.
func population(i int) casedata.Population {
	total := 20000 + 3500*i
	return casedata.Population{
		Total:      total,
		Male:       total * 49 / 100,
		Female:     total - total*49/100,
		Child:      total * 17 / 100,
		Adolescent: total * 9 / 100,
		Youth:      total * 25 / 100,
		Adult:      total * 36 / 100,
		OlderAdult: total * 13 / 100,
	}
}

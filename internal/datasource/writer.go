package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/geo"
)

// Create opens (creating if needed) a writable case database at path.
func Create(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if err := CreateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// WriteRecords stores one cache partition, replacing earlier rows for key.
func WriteRecords(ctx context.Context, db *sql.DB, key casedata.Key, records map[string]casedata.Record) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	geoName := key.Geography.String()
	for _, q := range []string{
		`DELETE FROM case_counts WHERE dataset = ? AND geography = ?`,
		`DELETE FROM case_breakdown WHERE dataset = ? AND geography = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, key.Dataset, geoName); err != nil {
			return fmt.Errorf("clearing %s: %w", key, err)
		}
	}

	countStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO case_counts (dataset, geography, unit, total, rate) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer countStmt.Close()
	lineStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO case_breakdown (dataset, geography, unit, position, label, count) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer lineStmt.Close()

	units := make([]string, 0, len(records))
	for u := range records {
		units = append(units, u)
	}
	sort.Strings(units)

	for _, u := range units {
		rec := records[u]
		var rate sql.NullFloat64
		if rec.HasRate {
			rate = sql.NullFloat64{Float64: rec.Rate, Valid: true}
		}
		unit := geo.NormalizeUnit(u)
		if _, err := countStmt.ExecContext(ctx, key.Dataset, geoName, unit, rec.Total, rate); err != nil {
			return fmt.Errorf("insert %s %s: %w", key, unit, err)
		}
		for i, c := range rec.Breakdown {
			if _, err := lineStmt.ExecContext(ctx, key.Dataset, geoName, unit, i, c.Label, c.Count); err != nil {
				return fmt.Errorf("insert breakdown %s %s: %w", key, unit, err)
			}
		}
	}
	return tx.Commit()
}

// WritePopulation stores the population of one unit.
func WritePopulation(ctx context.Context, db *sql.DB, ds geo.Dataset, unit string, p casedata.Population) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO population
			(geography, unit, total, male, female, child, adolescent, youth, adult, older_adult)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.String(), geo.NormalizeUnit(unit),
		p.Total, p.Male, p.Female, p.Child, p.Adolescent, p.Youth, p.Adult, p.OlderAdult)
	if err != nil {
		return fmt.Errorf("insert population %s: %w", unit, err)
	}
	return nil
}

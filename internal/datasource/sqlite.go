package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/geo"
)

// ErrUnitNotFound is returned when the database has no row for a unit.
var ErrUnitNotFound = errors.New("unit not in offline database")

// SQLiteReader serves case data from an offline SQLite database. It
// implements casedata.Source and casedata.BulkSource.
type SQLiteReader struct {
	db   *sql.DB
	path string
}

// NewSQLiteReader opens a case database for reading.
func NewSQLiteReader(source DataSource) (*SQLiteReader, error) {
	// Read-only with a busy timeout so a concurrent export does not fail reads
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", source.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			debug.Log("datasource: %s: %v", pragma, err)
		}
	}

	return &SQLiteReader{db: db, path: source.Path}, nil
}

// Close closes the database connection.
func (r *SQLiteReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (r *SQLiteReader) Path() string {
	return r.path
}

// UnitRecord implements casedata.Source.
func (r *SQLiteReader) UnitRecord(ctx context.Context, key casedata.Key, unit string) (casedata.Record, error) {
	name := geo.NormalizeUnit(unit)
	var rec casedata.Record
	var rate sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT total, rate FROM case_counts WHERE dataset = ? AND geography = ? AND unit = ?`,
		key.Dataset, key.Geography.String(), name,
	).Scan(&rec.Total, &rate)
	if errors.Is(err, sql.ErrNoRows) {
		return casedata.Record{}, fmt.Errorf("%s %q: %w", key, unit, ErrUnitNotFound)
	}
	if err != nil {
		return casedata.Record{}, fmt.Errorf("query case_counts: %w", err)
	}
	if rate.Valid {
		rec.Rate, rec.HasRate = rate.Float64, true
	}

	breakdown, err := r.loadBreakdown(ctx, key, name)
	if err != nil {
		return casedata.Record{}, err
	}
	rec.Breakdown = breakdown[name]
	return rec, nil
}

// BulkRecords implements casedata.BulkSource: the whole partition is read
// with two queries regardless of dataset kind.
func (r *SQLiteReader) BulkRecords(ctx context.Context, key casedata.Key) (map[string]casedata.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT unit, total, rate FROM case_counts WHERE dataset = ? AND geography = ?`,
		key.Dataset, key.Geography.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query case_counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]casedata.Record)
	for rows.Next() {
		var unit string
		var rec casedata.Record
		var rate sql.NullFloat64
		if err := rows.Scan(&unit, &rec.Total, &rate); err != nil {
			return nil, fmt.Errorf("scan case_counts: %w", err)
		}
		if rate.Valid {
			rec.Rate, rec.HasRate = rate.Float64, true
		}
		out[geo.NormalizeUnit(unit)] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case_counts: %w", err)
	}

	breakdown, err := r.loadBreakdown(ctx, key, "")
	if err != nil {
		return nil, err
	}
	for unit, counts := range breakdown {
		if rec, ok := out[unit]; ok {
			rec.Breakdown = counts
			out[unit] = rec
		}
	}
	return out, nil
}

// loadBreakdown returns breakdown lines per unit, in position order. An
// empty unit loads the whole partition.
func (r *SQLiteReader) loadBreakdown(ctx context.Context, key casedata.Key, unit string) (map[string][]casedata.Count, error) {
	query := `SELECT unit, label, count FROM case_breakdown WHERE dataset = ? AND geography = ?`
	args := []any{key.Dataset, key.Geography.String()}
	if unit != "" {
		query += ` AND unit = ?`
		args = append(args, unit)
	}
	query += ` ORDER BY unit, position`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query case_breakdown: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]casedata.Count)
	for rows.Next() {
		var u string
		var c casedata.Count
		if err := rows.Scan(&u, &c.Label, &c.Count); err != nil {
			return nil, fmt.Errorf("scan case_breakdown: %w", err)
		}
		u = geo.NormalizeUnit(u)
		out[u] = append(out[u], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating case_breakdown: %w", err)
	}
	return out, nil
}

// Population implements casedata.Source.
func (r *SQLiteReader) Population(ctx context.Context, ds geo.Dataset, unit string) (casedata.Population, error) {
	var p casedata.Population
	err := r.db.QueryRowContext(ctx, `
		SELECT total, male, female, child, adolescent, youth, adult, older_adult
		FROM population WHERE geography = ? AND unit = ?`,
		ds.String(), geo.NormalizeUnit(unit),
	).Scan(&p.Total, &p.Male, &p.Female, &p.Child, &p.Adolescent, &p.Youth, &p.Adult, &p.OlderAdult)
	if errors.Is(err, sql.ErrNoRows) {
		return casedata.Population{}, fmt.Errorf("%s %q: %w", ds, unit, casedata.ErrNoPopulation)
	}
	if err != nil {
		return casedata.Population{}, fmt.Errorf("query population: %w", err)
	}
	return p, nil
}

// Datasets lists the dataset ids present in the database for a geography.
func (r *SQLiteReader) Datasets(ctx context.Context, ds geo.Dataset) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT dataset FROM case_counts WHERE geography = ? ORDER BY dataset`, ds.String())
	if err != nil {
		return nil, fmt.Errorf("query datasets: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan datasets: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountRows returns the number of case_counts rows.
func (r *SQLiteReader) CountRows() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM case_counts").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

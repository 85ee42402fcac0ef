// Package datasource opens offline case databases: SQLite files carrying the
// case counts, breakdowns and population that the HTTP backend would serve.
// A configured path may name a file or a directory of snapshots, in which
// case the freshest valid database is chosen.
package datasource

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/epimap/pkg/debug"
)

// ErrNoSource is returned when no valid database is found.
var ErrNoSource = errors.New("no valid offline database")

// DataSource is a candidate offline database.
type DataSource struct {
	Path            string    `json:"path"`
	ModTime         time.Time `json:"mod_time"`
	Size            int64     `json:"size"`
	Valid           bool      `json:"valid"`
	ValidationError string    `json:"validation_error,omitempty"`
	// Rows is the number of case_counts rows (set during validation)
	Rows int `json:"rows"`
}

// String returns a human-readable description of the source.
func (s DataSource) String() string {
	status := "valid"
	if !s.Valid {
		status = fmt.Sprintf("invalid: %s", s.ValidationError)
	}
	return fmt.Sprintf("%s (mod=%s, rows=%d, %s)",
		s.Path, s.ModTime.Format(time.RFC3339), s.Rows, status)
}

var dbExtensions = []string{".db", ".sqlite", ".sqlite3"}

func isDBFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range dbExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// DiscoverSources lists candidate databases at path: the file itself, or
// every database file directly inside a directory. Sources are validated
// and sorted newest first; invalid ones are kept with Valid=false.
func DiscoverSources(path string) ([]DataSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("offline source %s: %w", path, err)
	}

	var sources []DataSource
	if !info.IsDir() {
		sources = append(sources, DataSource{Path: path, ModTime: info.ModTime(), Size: info.Size()})
	} else {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read offline directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !isDBFile(e.Name()) {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			sources = append(sources, DataSource{
				Path:    filepath.Join(path, e.Name()),
				ModTime: fi.ModTime(),
				Size:    fi.Size(),
			})
		}
	}

	for i := range sources {
		if err := ValidateSource(&sources[i]); err != nil {
			debug.Log("datasource: %s rejected: %v", sources[i].Path, err)
		}
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].ModTime.After(sources[j].ModTime)
	})
	return sources, nil
}

// ValidateSource opens a candidate read-only and checks the schema.
func ValidateSource(s *DataSource) error {
	fail := func(err error) error {
		s.Valid = false
		s.ValidationError = err.Error()
		return err
	}
	if s.Size == 0 {
		return fail(errors.New("empty file"))
	}

	r, err := NewSQLiteReader(*s)
	if err != nil {
		return fail(err)
	}
	defer r.Close()

	var version int
	if err := r.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fail(fmt.Errorf("reading schema version: %w", err))
	}
	if version != SchemaVersion {
		return fail(fmt.Errorf("schema version %d, want %d", version, SchemaVersion))
	}
	for _, table := range []string{"case_counts", "case_breakdown", "population"} {
		var name string
		err := r.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fail(fmt.Errorf("missing table %s", table))
		}
		if err != nil {
			return fail(err)
		}
	}
	n, err := r.CountRows()
	if err != nil {
		return fail(err)
	}
	s.Rows = n
	s.Valid = true
	s.ValidationError = ""
	return nil
}

// SelectBestSource returns the newest valid source.
func SelectBestSource(sources []DataSource) (DataSource, error) {
	var best *DataSource
	for i := range sources {
		s := &sources[i]
		if !s.Valid {
			continue
		}
		if best == nil || s.ModTime.After(best.ModTime) {
			best = s
		}
	}
	if best == nil {
		return DataSource{}, ErrNoSource
	}
	return *best, nil
}

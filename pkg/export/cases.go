// Package export writes the data behind the map to files: the cases of a
// cache partition as a SQLite database or a markdown report, and static
// choropleth snapshots as SVG or PNG.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/vanderheijden86/epimap/internal/datasource"
	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/debug"
)

// Package-level compiled regex for slug creation (avoids recompilation per call)
var slugNonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)

// createSlug creates a file-name friendly slug.
func createSlug(text string) string {
	slug := strings.ToLower(text)
	slug = slugNonAlphanumericRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// CasesFileName returns the default export file name of a partition, e.g.
// "casos-diagnostico-edas-distritos-20261019-153000.db".
func CasesFileName(key casedata.Key, t time.Time) string {
	return fmt.Sprintf("casos-%s-%s-%s.db",
		createSlug(key.Dataset), createSlug(key.Geography.Label()), t.Format("20060102-150405"))
}

// WriteCasesDB writes one cache partition to a new SQLite database at path.
// The file can be opened again as an offline case source. It returns the
// number of units written.
func WriteCasesDB(ctx context.Context, path string, key casedata.Key, records map[string]casedata.Record) (int, error) {
	if key.Dataset == "" {
		return 0, fmt.Errorf("no dataset to export")
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("partition %s is empty", key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create parent dir: %w", err)
	}
	// Never append to an existing export.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return 0, fmt.Errorf("replace %s: %w", path, err)
	}

	db, err := datasource.Create(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	if err := datasource.WriteRecords(ctx, db, key, records); err != nil {
		return 0, err
	}
	debug.Log("export: wrote %d units of %s to %s", len(records), key, path)
	return len(records), nil
}

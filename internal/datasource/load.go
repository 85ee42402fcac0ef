package datasource

import (
	"fmt"

	"github.com/vanderheijden86/epimap/pkg/debug"
)

// Open discovers the databases at path (file or directory), selects the
// freshest valid one and opens it for reading.
func Open(path string) (*SQLiteReader, error) {
	sources, err := DiscoverSources(path)
	if err != nil {
		return nil, err
	}
	best, err := SelectBestSource(sources)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	debug.Log("datasource: using %s", best)

	reader, err := NewSQLiteReader(best)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite source %s: %w", best.Path, err)
	}
	return reader, nil
}

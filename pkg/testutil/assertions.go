package testutil

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/paulmach/orb"
)

// AssertKeys verifies a key list element by element.
func AssertKeys(t *testing.T, got []string, want ...string) {
	t.Helper()
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

// AssertSameKeys verifies two key lists hold the same keys in any order.
func AssertSameKeys(t *testing.T, got []string, want ...string) {
	t.Helper()
	g := slices.Clone(got)
	w := slices.Clone(want)
	slices.Sort(g)
	slices.Sort(w)
	if !slices.Equal(g, w) {
		t.Errorf("expected keys %v (any order), got %v", want, got)
	}
}

// AssertNoDuplicates verifies all ids are unique.
func AssertNoDuplicates(t *testing.T, ids []string) {
	t.Helper()
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id: %s", id)
		}
		seen[id] = true
	}
}

// AssertBoundCovers verifies that outer contains every corner of inner.
func AssertBoundCovers(t *testing.T, outer, inner orb.Bound) {
	t.Helper()
	for _, p := range []orb.Point{inner.Min, inner.Max, inner.LeftTop(), inner.RightBottom()} {
		if !outer.Contains(p) {
			t.Errorf("bound %v does not cover %v", outer, inner)
			return
		}
	}
}

// AssertJSONEqual compares two values after JSON encoding.
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}

// GoldenFile handles golden file comparisons.
type GoldenFile struct {
	t      *testing.T
	dir    string
	name   string
	update bool
}

// NewGoldenFile creates a golden file helper.
// If GENERATE_GOLDEN env var is set, golden files will be updated.
func NewGoldenFile(t *testing.T, dir, name string) *GoldenFile {
	t.Helper()
	return &GoldenFile{
		t:      t,
		dir:    dir,
		name:   name,
		update: os.Getenv("GENERATE_GOLDEN") != "",
	}
}

// Path returns the full path to the golden file.
func (g *GoldenFile) Path() string {
	return filepath.Join(g.dir, g.name)
}

// Assert compares actual content against the golden file, or rewrites the
// file when GENERATE_GOLDEN is set.
func (g *GoldenFile) Assert(actual string) {
	g.t.Helper()

	path := g.Path()
	if g.update {
		if err := os.MkdirAll(g.dir, 0o755); err != nil {
			g.t.Fatalf("failed to create golden dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(actual), 0o644); err != nil {
			g.t.Fatalf("failed to write golden file: %v", err)
		}
		g.t.Logf("updated golden file: %s", path)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			g.t.Skipf("golden file %s missing; run with GENERATE_GOLDEN=1 to create it", path)
		}
		g.t.Fatalf("failed to read golden file: %v", err)
	}
	if string(expected) == actual {
		return
	}

	expLines := strings.Split(string(expected), "\n")
	actLines := strings.Split(actual, "\n")
	for i := 0; i < len(expLines) || i < len(actLines); i++ {
		var exp, act string
		if i < len(expLines) {
			exp = expLines[i]
		}
		if i < len(actLines) {
			act = actLines[i]
		}
		if exp != act {
			g.t.Errorf("golden file %s mismatch at line %d:\nexpected: %s\nactual:   %s", g.name, i+1, exp, act)
			return
		}
	}
}

// WriteFile writes data under dir, creating parent directories, and returns
// the full path.
func WriteFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// WriteGeometry writes the generated grids of a world's names into dir as
// distritos.geojson and establecimientos.geojson and returns both paths.
func (g *Generator) WriteGeometry(t *testing.T, dir string, districts, facilities []string) (string, string) {
	t.Helper()
	d := WriteFile(t, dir, "distritos.geojson", g.Grid(DistrictProp, districts))
	f := WriteFile(t, dir, "establecimientos.geojson", g.Grid(FacilityProp, facilities))
	return d, f
}


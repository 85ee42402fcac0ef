// Package loader assembles the map world from disk: the district and
// facility GeoJSON documents plus the diagnosis taxonomy, merged into the
// layer tree.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
)

// DataDirEnvVar overrides the directory searched for geometry files.
const DataDirEnvVar = "EPIMAP_DATA_DIR"

// Preferred file names per dataset, in priority order.
var (
	PreferredDistrictNames = []string{"distritos.geojson", "districts.geojson", "distritos.json"}
	PreferredFacilityNames = []string{"establecimientos.geojson", "facilities.geojson", "establecimientos.json"}
)

// Sources names the files a World is built from. An empty Taxonomy uses the
// embedded catalog.
type Sources struct {
	Districts    string
	Facilities   string
	DistrictProp string
	FacilityProp string
	Taxonomy     string
}

// Paths returns the files worth watching for live reload.
func (s Sources) Paths() []string {
	out := []string{s.Districts, s.Facilities}
	if s.Taxonomy != "" {
		out = append(out, s.Taxonomy)
	}
	return out
}

// World is everything the engine needs besides case data.
type World struct {
	Tree  *layertree.Tree
	Geoms map[geo.Dataset]*geo.Collection
}

// DataDir returns the directory searched for geometry files, respecting
// EPIMAP_DATA_DIR. fallback is used when the variable is unset.
func DataDir(fallback string) string {
	if dir := strings.TrimSpace(os.Getenv(DataDirEnvVar)); dir != "" {
		return dir
	}
	return fallback
}

// FindGeometry locates the district and facility documents in dir. Backups
// and merge artifacts are skipped.
func FindGeometry(dir string) (districts, facilities string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to read data directory: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".geojson") && !strings.HasSuffix(name, ".json") {
			continue
		}
		if strings.Contains(name, ".backup") ||
			strings.Contains(name, ".orig") ||
			strings.Contains(name, ".merge") {
			continue
		}
		candidates = append(candidates, name)
	}

	districts = pick(dir, candidates, PreferredDistrictNames)
	facilities = pick(dir, candidates, PreferredFacilityNames)
	switch {
	case districts == "":
		return "", "", fmt.Errorf("no district geometry found in %s", dir)
	case facilities == "":
		return "", "", fmt.Errorf("no facility geometry found in %s", dir)
	}
	return districts, facilities, nil
}

// pick returns the first preferred, non-empty candidate.
func pick(dir string, candidates, preferred []string) string {
	for _, want := range preferred {
		for _, name := range candidates {
			if name != want {
				continue
			}
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && info.Size() > 0 {
				return path
			}
		}
	}
	return ""
}

// Load reads both collections concurrently, then merges their unit names
// into the taxonomy.
func Load(src Sources) (*World, error) {
	start := time.Now()

	var districts, facilities *geo.Collection
	var taxonomy layertree.TaxonomyNode

	var g errgroup.Group
	g.Go(func() error {
		c, err := geo.LoadFile(src.Districts, geo.District, src.DistrictProp)
		if err != nil {
			return fmt.Errorf("districts: %w", err)
		}
		districts = c
		return nil
	})
	g.Go(func() error {
		c, err := geo.LoadFile(src.Facilities, geo.Facility, src.FacilityProp)
		if err != nil {
			return fmt.Errorf("facilities: %w", err)
		}
		facilities = c
		return nil
	})
	g.Go(func() error {
		t, err := layertree.LoadTaxonomy(src.Taxonomy)
		if err != nil {
			return fmt.Errorf("taxonomy: %w", err)
		}
		taxonomy = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tree, err := layertree.Build(taxonomy, map[geo.Dataset][]string{
		geo.District: districts.Names(),
		geo.Facility: facilities.Names(),
	})
	if err != nil {
		return nil, err
	}

	debug.LogTiming("loader.Load", time.Since(start))
	debug.Log("loader: %d districts, %d facilities", districts.Len(), facilities.Len())

	return &World{
		Tree: tree,
		Geoms: map[geo.Dataset]*geo.Collection{
			geo.District: districts,
			geo.Facility: facilities,
		},
	}, nil
}

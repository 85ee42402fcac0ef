// Package testutil provides fixture generators for maps, layer trees and
// case sources. All generators produce deterministic output for
// reproducible tests.
package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
)

// Name properties used by the generated GeoJSON, matching the real files.
const (
	DistrictProp = "NM_DIST"
	FacilityProp = "NOMBRE"
)

// Diagnosis ids of SampleTaxonomy.
const (
	Leptospirosis = "diagnostico-leptospirosis"
	Ofidismo      = "diagnostico-ofidismo"
	EDAS          = "diagnostico-edas"
	TBTIA         = "diagnostico-tb-tia"
)

// Unit names with overlapping substrings, for search tests.
var (
	LimaDistricts  = []string{"Lima Cercado", "San Lima", "Breña", "Rimac", "Surco"}
	LimaFacilities = []string{"CS Alfa", "CS Beta", "Hospital Limeño"}
)

// SampleTaxonomy returns a small catalog: one category with two diagnoses,
// a special dataset and a rate dataset.
func SampleTaxonomy() layertree.TaxonomyNode {
	return layertree.TaxonomyNode{
		ID: "vigilancia", Name: "Vigilancia",
		Children: []layertree.TaxonomyNode{
			{ID: "zoonosis", Name: "Zoonosis", Children: []layertree.TaxonomyNode{
				{ID: Leptospirosis, Name: "Leptospirosis"},
				{ID: Ofidismo, Name: "Ofidismo"},
			}},
			{ID: EDAS, Name: "EDAS"},
			{ID: TBTIA, Name: "TB TIA"},
		},
	}
}

// GeneratorConfig controls fixture generation.
type GeneratorConfig struct {
	Seed     int64     // Random seed for determinism (0 = use current time)
	Origin   orb.Point // South-west corner of the first cell (default: -77.10, -12.10)
	CellSize float64   // Cell edge in degrees (default: 0.02)
	Columns  int       // Cells per grid row (default: 4)
	MaxCases int       // Upper bound for generated totals (default: 100)
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:     42, // Deterministic
		Origin:   orb.Point{-77.10, -12.10},
		CellSize: 0.02,
		Columns:  4,
		MaxCases: 100,
	}
}

// Generator creates test fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	def := DefaultConfig()
	if cfg.Origin == (orb.Point{}) {
		cfg.Origin = def.Origin
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = def.CellSize
	}
	if cfg.Columns <= 0 {
		cfg.Columns = def.Columns
	}
	if cfg.MaxCases <= 0 {
		cfg.MaxCases = def.MaxCases
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// Names returns n unit names "<prefix> 1" .. "<prefix> n".
func Names(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return out
}

// Cell returns the square of the i-th grid cell. Cells fill rows west to
// east, rows go north from the origin.
func (g *Generator) Cell(i int) orb.Bound {
	col := i % g.cfg.Columns
	row := i / g.cfg.Columns
	x0 := g.cfg.Origin[0] + g.cfg.CellSize*float64(col)
	y0 := g.cfg.Origin[1] + g.cfg.CellSize*float64(row)
	return orb.Bound{
		Min: orb.Point{x0, y0},
		Max: orb.Point{x0 + g.cfg.CellSize, y0 + g.cfg.CellSize},
	}
}

// Center returns the centre point of the i-th grid cell.
func (g *Generator) Center(i int) orb.Point {
	return g.Cell(i).Center()
}

// Grid returns a GeoJSON FeatureCollection with one square cell per name,
// the name stored under prop.
func (g *Generator) Grid(prop string, names []string) []byte {
	feats := make([]string, len(names))
	for i, n := range names {
		b := g.Cell(i)
		feats[i] = fmt.Sprintf(
			`{"type":"Feature","properties":{%q:%q},"geometry":{"type":"Polygon","coordinates":[[[%f,%f],[%f,%f],[%f,%f],[%f,%f],[%f,%f]]]}}`,
			prop, n,
			b.Min[0], b.Min[1], b.Max[0], b.Min[1], b.Max[0], b.Max[1], b.Min[0], b.Max[1], b.Min[0], b.Min[1])
	}
	return []byte(`{"type":"FeatureCollection","features":[` + strings.Join(feats, ",") + `]}`)
}

// Collection parses a grid of names into a dataset collection.
func (g *Generator) Collection(ds geo.Dataset, names []string) (*geo.Collection, error) {
	prop := DistrictProp
	if ds == geo.Facility {
		prop = FacilityProp
	}
	return geo.Parse(g.Grid(prop, names), ds, prop)
}

// World is a complete map fixture: geometry of both datasets and the layer
// tree built over them.
type World struct {
	Geoms map[geo.Dataset]*geo.Collection
	Tree  *layertree.Tree
}

// World builds grids for the given district and facility names and merges
// them with SampleTaxonomy.
func (g *Generator) World(districts, facilities []string) (*World, error) {
	w := &World{Geoms: make(map[geo.Dataset]*geo.Collection, 2)}
	names := make(map[geo.Dataset][]string, 2)
	for ds, list := range map[geo.Dataset][]string{geo.District: districts, geo.Facility: facilities} {
		c, err := g.Collection(ds, list)
		if err != nil {
			return nil, fmt.Errorf("%s grid: %w", ds, err)
		}
		w.Geoms[ds] = c
		names[ds] = c.Names()
	}
	tree, err := layertree.Build(SampleTaxonomy(), names)
	if err != nil {
		return nil, err
	}
	w.Tree = tree
	return w, nil
}

// LimaWorld is World over LimaDistricts and LimaFacilities.
func (g *Generator) LimaWorld() (*World, error) {
	return g.World(LimaDistricts, LimaFacilities)
}

// Records returns a random record per name.
func (g *Generator) Records(names []string) map[string]casedata.Record {
	out := make(map[string]casedata.Record, len(names))
	for _, n := range names {
		out[n] = g.Record()
	}
	return out
}

// Record returns one random record with a two-label breakdown.
func (g *Generator) Record() casedata.Record {
	a := g.rng.Intn(g.cfg.MaxCases + 1)
	b := g.rng.Intn(g.cfg.MaxCases + 1)
	return casedata.Record{
		Total:     a + b,
		Breakdown: []casedata.Count{{Label: "Masculino", Count: a}, {Label: "Femenino", Count: b}},
	}
}

// ScriptedSource is an in-memory casedata.Source. Unknown units get a zero
// record; units listed in Fail return an error. It is safe for concurrent
// use.
type ScriptedSource struct {
	mu      sync.Mutex
	records map[casedata.Key]map[string]casedata.Record
	fail    map[string]bool
	calls   map[casedata.Key]int
}

// NewScriptedSource creates an empty source.
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{
		records: make(map[casedata.Key]map[string]casedata.Record),
		fail:    make(map[string]bool),
		calls:   make(map[casedata.Key]int),
	}
}

// Set scripts the records of one partition.
func (s *ScriptedSource) Set(key casedata.Key, records map[string]casedata.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = records
}

// Fail makes every request for the named units fail.
func (s *ScriptedSource) Fail(units ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range units {
		s.fail[u] = true
	}
}

// Calls returns how many unit requests were made for a partition.
func (s *ScriptedSource) Calls(key casedata.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// UnitRecord implements casedata.Source.
func (s *ScriptedSource) UnitRecord(ctx context.Context, key casedata.Key, unit string) (casedata.Record, error) {
	if err := ctx.Err(); err != nil {
		return casedata.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[key]++
	if s.fail[unit] {
		return casedata.Record{}, fmt.Errorf("%s: %w", unit, casedata.ErrHTTPStatus)
	}
	return s.records[key][unit], nil
}

// Population implements casedata.Source. Facilities have no census data.
func (s *ScriptedSource) Population(ctx context.Context, ds geo.Dataset, unit string) (casedata.Population, error) {
	if err := ctx.Err(); err != nil {
		return casedata.Population{}, err
	}
	s.mu.Lock()
	failed := s.fail[unit]
	s.mu.Unlock()
	if ds == geo.Facility || failed {
		return casedata.Population{}, casedata.ErrNoPopulation
	}
	return casedata.Population{Total: 1000, Male: 480, Female: 520}, nil
}

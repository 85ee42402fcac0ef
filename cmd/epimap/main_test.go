package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/config"
	"github.com/vanderheijden86/epimap/pkg/export"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/loader"
	"github.com/vanderheijden86/epimap/pkg/testutil"
)

const edasID = "diagnostico-edas"

// fixture writes geometry for the Lima grid and an offline database holding
// EDAS counts for every district.
type fixture struct {
	dir        string
	districts  string
	facilities string
	db         string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	gen := testutil.NewDefault()
	f := fixture{
		dir:        dir,
		districts:  filepath.Join(dir, "distritos.geojson"),
		facilities: filepath.Join(dir, "establecimientos.geojson"),
		db:         filepath.Join(dir, "casos.db"),
	}
	if err := os.WriteFile(f.districts, gen.Grid(testutil.DistrictProp, testutil.LimaDistricts), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.facilities, gen.Grid(testutil.FacilityProp, testutil.LimaFacilities), 0o644); err != nil {
		t.Fatal(err)
	}

	records := make(map[string]casedata.Record)
	for name, r := range gen.Records(testutil.LimaDistricts) {
		records[geo.NormalizeUnit(name)] = r
	}
	key := casedata.Key{Dataset: edasID, Geography: geo.District}
	if _, err := export.WriteCasesDB(context.Background(), f.db, key, records); err != nil {
		t.Fatalf("WriteCasesDB: %v", err)
	}
	return f
}

// isolate keeps the user's config and environment out of the test.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvOfflineDB, "")
	t.Setenv(loader.DataDirEnvVar, "")
}

func TestParseFlags(t *testing.T) {
	o, err := parseFlags([]string{"--diagnosis", " edas, diagnostico-tb-tia ,", "--snapshot", "out.svg"}, io.Discard)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if len(o.diagnoses) != 2 || o.diagnoses[0] != "edas" || o.diagnoses[1] != "diagnostico-tb-tia" {
		t.Errorf("diagnoses = %q", o.diagnoses)
	}
	if !o.headless() {
		t.Error("snapshot run should be headless")
	}
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"headless without diagnosis", []string{"--export-db", "x.db"}},
		{"positional argument", []string{"extra"}},
		{"unknown flag", []string{"--nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseFlags(tt.args, io.Discard); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := parseFlags([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("expected flag.ErrHelp, got %v", err)
	}
}

func TestResolveConfig_Precedence(t *testing.T) {
	isolate(t)
	f := newFixture(t)

	path := filepath.Join(f.dir, "config.yaml")
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = "http://file.example.org"
	cfg.Geometry.Districts = f.districts
	cfg.Geometry.Facilities = f.facilities
	if err := config.SaveTo(cfg, path); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{config.EnvAPIURL: "http://env.example.org"}
	getenv := func(k string) string { return env[k] }

	got, err := resolveConfig(options{configPath: path}, getenv)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if got.API.BaseURL != "http://env.example.org" {
		t.Errorf("environment should beat the file, got %q", got.API.BaseURL)
	}

	got, err = resolveConfig(options{configPath: path, apiURL: "http://flag.example.org"}, getenv)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if got.API.BaseURL != "http://flag.example.org" {
		t.Errorf("flag should beat the environment, got %q", got.API.BaseURL)
	}
}

func TestResolveConfig_DiscoversGeometry(t *testing.T) {
	isolate(t)
	f := newFixture(t)
	t.Setenv(loader.DataDirEnvVar, f.dir)

	cfg, err := resolveConfig(options{configPath: filepath.Join(f.dir, "none.yaml")}, os.Getenv)
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if cfg.Geometry.Districts != f.districts || cfg.Geometry.Facilities != f.facilities {
		t.Errorf("geometry = %+v", cfg.Geometry)
	}
}

func TestResolveConfig_NoGeometry(t *testing.T) {
	isolate(t)
	if _, err := resolveConfig(options{configPath: filepath.Join(t.TempDir(), "none.yaml")}, os.Getenv); err == nil {
		t.Error("expected validation error without geometry")
	}
}

func TestResolveDiagnoses(t *testing.T) {
	w, err := testutil.NewDefault().LimaWorld()
	if err != nil {
		t.Fatal(err)
	}
	got, err := resolveDiagnoses(w.Tree, []string{testutil.EDAS, "leptospirosis", "edas"})
	if err != nil {
		t.Fatalf("resolveDiagnoses: %v", err)
	}
	want := []string{testutil.EDAS, testutil.Leptospirosis, testutil.EDAS}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := resolveDiagnoses(w.Tree, []string{"gripe aviar"}); err == nil {
		t.Error("expected error for unknown diagnosis")
	}
}

func TestEngineOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Map.CenterLat, cfg.Map.CenterLon, cfg.Map.Zoom = -13.5, -71.9, 10
	cfg.UI.AutocompleteLimit = 5

	opts := engineOptions(cfg)
	if opts.Home.Center.Lon() != -71.9 || opts.Home.Center.Lat() != -13.5 || opts.Home.Zoom != 10 {
		t.Errorf("home = %+v", opts.Home)
	}
	if opts.AutocompleteLimit != 5 || opts.FitPadding != 50 || opts.MaxZoom != 14 {
		t.Errorf("options = %+v", opts)
	}
}

func TestOpenSource(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.BulkCounts = true
	src, closer, err := openSource(cfg)
	if err != nil {
		t.Fatalf("openSource: %v", err)
	}
	defer closer()
	h, ok := src.(*casedata.HTTPSource)
	if !ok || !h.BulkCounts || h.BaseURL != "http://localhost:5000" {
		t.Errorf("expected bulk HTTP source, got %#v", src)
	}

	cfg.Offline.Database = filepath.Join(t.TempDir(), "missing.db")
	if _, _, err := openSource(cfg); err == nil {
		t.Error("expected error for missing offline database")
	}
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	if code := run([]string{"--version"}, &out, io.Discard); code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.HasPrefix(out.String(), "epimap v") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_Headless(t *testing.T) {
	isolate(t)
	f := newFixture(t)
	out := t.TempDir()
	snapshot := filepath.Join(out, "mapa.svg")
	report := filepath.Join(out, "informe.md")
	db := filepath.Join(out, "export.db")

	var stdout, stderr bytes.Buffer
	code := run([]string{
		"--config", filepath.Join(f.dir, "none.yaml"),
		"--districts", f.districts,
		"--facilities", f.facilities,
		"--offline-db", f.db,
		"--diagnosis", "edas",
		"--snapshot", snapshot,
		"--export-md", report,
		"--export-db", db,
		"--metrics",
	}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}

	svg, err := os.ReadFile(snapshot)
	if err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if !strings.Contains(string(svg), `data-unit="RIMAC"`) {
		t.Error("snapshot should draw the Rimac district")
	}

	md, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(md), "Enfermedades diarreicas agudas") {
		t.Errorf("report should name the diagnosis:\n%s", md)
	}

	if _, err := os.Stat(db); err != nil {
		t.Errorf("database not written: %v", err)
	}
	if !strings.Contains(stdout.String(), `"timings"`) {
		t.Errorf("--metrics should print JSON, got:\n%s", stdout.String())
	}
}

func TestRun_UnknownDiagnosis(t *testing.T) {
	isolate(t)
	f := newFixture(t)

	var stderr bytes.Buffer
	code := run([]string{
		"--config", filepath.Join(f.dir, "none.yaml"),
		"--districts", f.districts,
		"--facilities", f.facilities,
		"--offline-db", f.db,
		"--diagnosis", "gripe aviar",
		"--snapshot", filepath.Join(t.TempDir(), "x.svg"),
	}, io.Discard, &stderr)
	if code != 1 {
		t.Errorf("exit code %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unknown diagnosis") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestSetupValues(t *testing.T) {
	cfg := config.DefaultConfig()
	v := valuesOf(cfg)
	if v.Concurrency != "32" || v.BaseMap != "streets" {
		t.Errorf("values = %+v", v)
	}

	v.BaseURL = " https://salud.example.org "
	v.Concurrency = "8"
	v.BaseMap = "osm"
	if err := v.apply(&cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.API.BaseURL != "https://salud.example.org" || cfg.API.Concurrency != 8 || cfg.Map.BaseMap != "osm" {
		t.Errorf("config = %+v", cfg)
	}

	v.Concurrency = "muchos"
	if err := v.apply(&cfg); err == nil {
		t.Error("expected error for non-numeric concurrency")
	}
}

func TestSetupValidators(t *testing.T) {
	if validateURL("") != nil || validateURL("http://x.org") != nil {
		t.Error("valid URLs rejected")
	}
	if validateURL("localhost") == nil {
		t.Error("relative URL accepted")
	}
	if validateConcurrency("0") == nil || validateConcurrency("4") != nil {
		t.Error("concurrency validation wrong")
	}
	f := filepath.Join(t.TempDir(), "a.geojson")
	if err := os.WriteFile(f, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if validateFile(f) != nil || validateFile("") == nil || validateFile(f+".x") == nil {
		t.Error("file validation wrong")
	}
}

func TestRun_HeadlessHooks(t *testing.T) {
	isolate(t)
	f := newFixture(t)
	hooksDir := config.ConfigDir()
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(t.TempDir(), "hook.txt")
	content := "hooks:\n  post-export:\n    - command: echo \"$EPIMAP_EXPORT_FORMAT $EPIMAP_DATASET\" > " + marker + "\n"
	if err := os.WriteFile(filepath.Join(hooksDir, "hooks.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	args := []string{
		"--config", filepath.Join(f.dir, "none.yaml"),
		"--districts", f.districts,
		"--facilities", f.facilities,
		"--offline-db", f.db,
		"--diagnosis", "edas",
		"--export-md", filepath.Join(t.TempDir(), "informe.md"),
	}
	var stderr bytes.Buffer
	if code := run(args, io.Discard, &stderr); code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	got, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("post-export hook did not run: %v", err)
	}
	if strings.TrimSpace(string(got)) != "markdown "+edasID {
		t.Errorf("hook saw %q", got)
	}

	// A failing pre-export hook cancels the export unless hooks are off.
	content = "hooks:\n  pre-export:\n    - command: exit 1\n"
	if err := os.WriteFile(filepath.Join(hooksDir, "hooks.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	report := filepath.Join(t.TempDir(), "bloqueado.md")
	args[len(args)-1] = report
	if code := run(args, io.Discard, io.Discard); code != 1 {
		t.Errorf("exit code %d, want 1", code)
	}
	if _, err := os.Stat(report); !os.IsNotExist(err) {
		t.Error("report should not be written when a pre-export hook fails")
	}
	if code := run(append(args, "--no-hooks"), io.Discard, io.Discard); code != 0 {
		t.Errorf("--no-hooks exit code %d", code)
	}
	if _, err := os.Stat(report); err != nil {
		t.Errorf("report should be written with --no-hooks: %v", err)
	}
}

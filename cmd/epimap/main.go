package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/paulmach/orb"

	"github.com/vanderheijden86/epimap/internal/datasource"
	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/config"
	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/engine"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
	"github.com/vanderheijden86/epimap/pkg/loader"
	"github.com/vanderheijden86/epimap/pkg/metrics"
	"github.com/vanderheijden86/epimap/pkg/selection"
	"github.com/vanderheijden86/epimap/pkg/ui"
	"github.com/vanderheijden86/epimap/pkg/version"
	"github.com/vanderheijden86/epimap/pkg/watcher"
)

// options holds the parsed command line.
type options struct {
	configPath string
	setup      bool
	version    bool
	debug      bool
	metrics    bool

	apiURL     string
	offlineDB  string
	districts  string
	facilities string
	taxonomy   string

	diagnoses []string
	snapshot  string
	preset    string
	exportDB  string
	exportMD  string
	noHooks   bool
}

// headless reports whether the run produces files instead of the TUI.
func (o options) headless() bool {
	return o.snapshot != "" || o.exportDB != "" || o.exportMD != ""
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	var diagnoses string

	fs := flag.NewFlagSet("epimap", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/epimap/config.yaml)")
	fs.BoolVar(&o.setup, "setup", false, "Run the interactive configuration form and exit")
	fs.BoolVar(&o.version, "version", false, "Show version")
	fs.BoolVar(&o.debug, "debug", false, "Write debug logs to stderr")
	fs.BoolVar(&o.metrics, "metrics", false, "Print timing and cache metrics as JSON on exit")
	fs.StringVar(&o.apiURL, "api-url", "", "Case-data API base URL")
	fs.StringVar(&o.offlineDB, "offline-db", "", "Read case data from a SQLite file instead of the API")
	fs.StringVar(&o.districts, "districts", "", "District GeoJSON file")
	fs.StringVar(&o.facilities, "facilities", "", "Facility GeoJSON file")
	fs.StringVar(&o.taxonomy, "taxonomy", "", "Diagnosis taxonomy YAML replacing the built-in catalog")
	fs.StringVar(&diagnoses, "diagnosis", "", "Comma-separated diagnoses to select on start (id or name)")
	fs.StringVar(&o.snapshot, "snapshot", "", "Render the choropleth to an .svg or .png file and exit")
	fs.StringVar(&o.preset, "preset", "", "Snapshot size preset (compact, roomy)")
	fs.StringVar(&o.exportDB, "export-db", "", "Export the active partition to a SQLite file and exit")
	fs.StringVar(&o.exportMD, "export-md", "", "Write a markdown report of the active partition and exit")
	fs.BoolVar(&o.noHooks, "no-hooks", false, "Skip the export hooks in hooks.yaml")
	fs.Usage = func() {
		fmt.Fprintln(out, "Usage: epimap [options]")
		fmt.Fprintln(out, "\nEpidemiological surveillance map for the terminal.")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	for _, d := range strings.Split(diagnoses, ",") {
		if d = strings.TrimSpace(d); d != "" {
			o.diagnoses = append(o.diagnoses, d)
		}
	}
	if o.headless() && len(o.diagnoses) == 0 {
		return o, errors.New("--snapshot, --export-db and --export-md need --diagnosis")
	}
	return o, nil
}

// resolveConfig layers flags over the environment over the config file.
func resolveConfig(o options, getenv func(string) string) (config.Config, error) {
	var cfg config.Config
	var err error
	if o.configPath != "" {
		cfg, err = config.LoadFrom(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(getenv)

	if o.apiURL != "" {
		cfg.API.BaseURL = o.apiURL
	}
	if o.offlineDB != "" {
		cfg.Offline.Database = o.offlineDB
	}
	if o.districts != "" {
		cfg.Geometry.Districts = o.districts
	}
	if o.facilities != "" {
		cfg.Geometry.Facilities = o.facilities
	}
	if o.taxonomy != "" {
		cfg.Taxonomy.Path = o.taxonomy
	}

	// Fall back to the data directory for geometry that is still missing.
	if cfg.Geometry.Districts == "" || cfg.Geometry.Facilities == "" {
		if d, f, ferr := loader.FindGeometry(loader.DataDir(config.DataDir())); ferr == nil {
			if cfg.Geometry.Districts == "" {
				cfg.Geometry.Districts = d
			}
			if cfg.Geometry.Facilities == "" {
				cfg.Geometry.Facilities = f
			}
		} else {
			debug.Log("main: geometry discovery: %v", ferr)
		}
	}
	return cfg, cfg.Validate()
}

func sourcesOf(cfg config.Config) loader.Sources {
	return loader.Sources{
		Districts:    cfg.Geometry.Districts,
		Facilities:   cfg.Geometry.Facilities,
		DistrictProp: cfg.Geometry.DistrictProp,
		FacilityProp: cfg.Geometry.FacilityProp,
		Taxonomy:     cfg.Taxonomy.Path,
	}
}

// openSource returns the offline database when configured, the HTTP API
// otherwise. The closer is never nil.
func openSource(cfg config.Config) (casedata.Source, func() error, error) {
	if cfg.Offline.Database != "" {
		r, err := datasource.Open(cfg.Offline.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("offline database: %w", err)
		}
		debug.Log("main: reading cases from %s", r.Path())
		return r, r.Close, nil
	}
	src := casedata.NewHTTPSource(cfg.API.BaseURL, cfg.API.Timeout)
	src.BulkCounts = cfg.API.BulkCounts
	return src, func() error { return nil }, nil
}

func engineOptions(cfg config.Config) engine.Options {
	opts := engine.DefaultOptions()
	opts.FitPadding = cfg.Map.FitPadding
	opts.MaxZoom = cfg.Map.MaxFitZoom
	opts.AutocompleteLimit = cfg.UI.AutocompleteLimit
	opts.Home = geo.Viewport{
		Center: orb.Point{cfg.Map.CenterLon, cfg.Map.CenterLat},
		Zoom:   cfg.Map.Zoom,
	}
	return opts
}

// resolveDiagnoses maps ids or display names onto diagnosis ids.
func resolveDiagnoses(tree *layertree.Tree, wanted []string) ([]string, error) {
	diags := tree.Diagnoses()
	out := make([]string, 0, len(wanted))
	for _, w := range wanted {
		id := ""
		for _, n := range diags {
			if n.ID == w || n.ID == layertree.DiagnosisPrefix+strings.ToLower(w) || strings.EqualFold(n.Name, w) {
				id = n.ID
				break
			}
		}
		if id == "" {
			return nil, fmt.Errorf("unknown diagnosis %q", w)
		}
		out = append(out, id)
	}
	return out, nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if o.version {
		fmt.Fprintf(stdout, "epimap %s\n", version.Version)
		return 0
	}
	if o.debug {
		debug.SetEnabled(true)
		debug.SetOutput(stderr)
	}
	if o.metrics {
		metrics.SetEnabled(true)
		defer func() {
			if err := metrics.WriteJSON(stdout); err != nil {
				fmt.Fprintf(stderr, "Error writing metrics: %v\n", err)
			}
		}()
	}

	if o.setup {
		if err := runSetup(o.configPath); err != nil {
			fmt.Fprintf(stderr, "Setup failed: %v\n", err)
			return 1
		}
		return 0
	}

	cfg, err := resolveConfig(o, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintln(stderr, "Run 'epimap --setup' to configure the API and geometry files.")
		return 1
	}

	src := sourcesOf(cfg)
	world, err := loader.Load(src)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading map data: %v\n", err)
		return 1
	}
	diagnoses, err := resolveDiagnoses(world.Tree, o.diagnoses)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cases, closeSource, err := openSource(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closeSource()

	if o.headless() {
		job := headlessJob{
			Diagnoses: diagnoses,
			Snapshot:  o.snapshot,
			Preset:    o.preset,
			ExportDB:  o.exportDB,
			ExportMD:  o.exportMD,
		}
		if !o.noHooks {
			job.HooksDir = config.ConfigDir()
		}
		if err := runHeadless(context.Background(), cfg, world, cases, job, stdout); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if err := runTUI(cfg, src, world, cases, diagnoses); err != nil {
		fmt.Fprintf(stderr, "Error running epimap: %v\n", err)
		return 1
	}
	return 0
}

func runTUI(cfg config.Config, src loader.Sources, world *loader.World, cases casedata.Source, diagnoses []string) error {
	ctrl := engine.New(selection.NewStore(world.Tree), casedata.NewCache(), world.Geoms, engineOptions(cfg))
	defer ctrl.Close()

	opts := ui.Options{
		Source:           cases,
		Concurrency:      cfg.API.Concurrency,
		BaseMap:          cfg.Map.BaseMap,
		SidebarWidth:     cfg.UI.SidebarWidth,
		NoticeDuration:   cfg.UI.NoticeDuration,
		ShareURL:         cfg.API.ShareURL,
		ExportDir:        cfg.UI.ExportDir,
		StateDir:         config.StateDir(),
		InitialDiagnoses: diagnoses,
		Reload: func() (*layertree.Tree, map[geo.Dataset]*geo.Collection, error) {
			w, err := loader.Load(src)
			if err != nil {
				return nil, nil, err
			}
			return w.Tree, w.Geoms, nil
		},
	}

	// Live reload is best effort: the map still works without it.
	w, err := watcher.NewWatcher(src.Paths(), watcher.WithOnError(func(err error) {
		debug.Log("main: watcher: %v", err)
	}))
	if err == nil {
		if err = w.Start(); err == nil {
			defer w.Stop()
			opts.Changes = w.Changed()
		}
	}
	if err != nil {
		debug.Log("main: live reload disabled: %v", err)
	}

	m := ui.NewModel(ctrl, opts)
	defer m.Close()
	return runTUIProgram(m)
}

func runTUIProgram(m ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set EPIMAP_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("EPIMAP_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()
			}()
		}
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
		return nil
	}
	return err
}

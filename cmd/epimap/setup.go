package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/epimap/pkg/config"
)

// baseMaps are the labels offered by the setup form and cycled in the TUI.
var baseMaps = []string{"streets", "satellite", "terrain", "osm"}

// isTerminal checks if stdin is connected to a terminal
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// newForm creates a form with appropriate settings based on TTY detection
func newForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	if !isTerminal() {
		form = form.WithAccessible(true)
	}
	return form
}

// setupValues mirrors the editable settings as strings for the form.
type setupValues struct {
	BaseURL     string
	Offline     string
	Districts   string
	Facilities  string
	BaseMap     string
	Concurrency string
	BulkCounts  bool
}

func valuesOf(cfg config.Config) setupValues {
	return setupValues{
		BaseURL:     cfg.API.BaseURL,
		Offline:     cfg.Offline.Database,
		Districts:   cfg.Geometry.Districts,
		Facilities:  cfg.Geometry.Facilities,
		BaseMap:     cfg.Map.BaseMap,
		Concurrency: strconv.Itoa(cfg.API.Concurrency),
		BulkCounts:  cfg.API.BulkCounts,
	}
}

// apply copies the form values back into cfg.
func (v setupValues) apply(cfg *config.Config) error {
	n, err := strconv.Atoi(strings.TrimSpace(v.Concurrency))
	if err != nil {
		return fmt.Errorf("concurrency: %w", err)
	}
	cfg.API.BaseURL = strings.TrimSpace(v.BaseURL)
	cfg.API.Concurrency = n
	cfg.API.BulkCounts = v.BulkCounts
	cfg.Offline.Database = strings.TrimSpace(v.Offline)
	cfg.Geometry.Districts = strings.TrimSpace(v.Districts)
	cfg.Geometry.Facilities = strings.TrimSpace(v.Facilities)
	cfg.Map.BaseMap = v.BaseMap
	return nil
}

func validateURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter an absolute URL like http://localhost:5000")
	}
	return nil
}

func validateFile(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("required")
	}
	if _, err := os.Stat(s); err != nil {
		return fmt.Errorf("cannot read %s", s)
	}
	return nil
}

func validateConcurrency(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return fmt.Errorf("enter a whole number of at least 1")
	}
	return nil
}

// runSetup asks for the main settings and saves them to path, or to the
// XDG config file when path is empty.
func runSetup(path string) error {
	var cfg config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFrom(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	v := valuesOf(cfg)
	opts := make([]huh.Option[string], len(baseMaps))
	for i, b := range baseMaps {
		opts[i] = huh.NewOption(b, b)
	}

	form := newForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Case-data API").
				Description("Base URL of the surveillance backend").
				Value(&v.BaseURL).
				Validate(validateURL),
			huh.NewConfirm().
				Title("Use bulk district counts?").
				Description("One request per diagnosis instead of one per unit").
				Value(&v.BulkCounts),
			huh.NewInput().
				Title("Concurrent requests").
				Value(&v.Concurrency).
				Validate(validateConcurrency),
			huh.NewInput().
				Title("Offline database").
				Description("SQLite export to read instead of the API (optional)").
				Value(&v.Offline),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("District geometry").
				Description("GeoJSON file with one feature per district").
				Value(&v.Districts).
				Validate(validateFile),
			huh.NewInput().
				Title("Facility geometry").
				Description("GeoJSON file with one feature per facility catchment").
				Value(&v.Facilities).
				Validate(validateFile),
			huh.NewSelect[string]().
				Title("Base map").
				Options(opts...).
				Value(&v.BaseMap),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if err := v.apply(&cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if path != "" {
		err = config.SaveTo(cfg, path)
	} else {
		path, err = config.ConfigPath(), config.Save(cfg)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Configuration saved to %s\n", path)
	return nil
}

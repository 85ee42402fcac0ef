// Package config handles loading and saving epimap configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/epimap/config.yaml
//   - Data:    ~/.local/share/epimap/ (geometry files, exported databases)
//   - State:   ~/.local/state/epimap/ (sidebar expansion state)
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding the config file.
const (
	EnvAPIURL    = "EPIMAP_API_URL"
	EnvOfflineDB = "EPIMAP_OFFLINE_DB"
)

// APIConfig describes the case-data HTTP API.
type APIConfig struct {
	BaseURL     string        `yaml:"base_url,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"` // per-unit fan-out limit
	BulkCounts  bool          `yaml:"bulk_counts,omitempty"` // use /api/casos_por_distrito
	ShareURL    string        `yaml:"share_url,omitempty"`   // copied by the share action
}

// GeometryConfig locates the GeoJSON documents of both datasets.
type GeometryConfig struct {
	Districts    string `yaml:"districts,omitempty"`
	Facilities   string `yaml:"facilities,omitempty"`
	DistrictProp string `yaml:"district_name_property,omitempty"`
	FacilityProp string `yaml:"facility_name_property,omitempty"`
}

// TaxonomyConfig optionally replaces the embedded diagnosis catalog.
type TaxonomyConfig struct {
	Path string `yaml:"path,omitempty"`
}

// MapConfig holds the home view and fit behaviour.
type MapConfig struct {
	CenterLat  float64 `yaml:"center_lat,omitempty"`
	CenterLon  float64 `yaml:"center_lon,omitempty"`
	Zoom       float64 `yaml:"zoom,omitempty"`
	FitPadding float64 `yaml:"fit_padding,omitempty"`
	MaxFitZoom float64 `yaml:"max_fit_zoom,omitempty"`
	BaseMap    string  `yaml:"base_map,omitempty"` // streets, satellite, terrain, osm
}

// OfflineConfig points at a case database used instead of the HTTP API.
type OfflineConfig struct {
	Database string `yaml:"database,omitempty"`
}

// UIConfig holds UI preference settings.
type UIConfig struct {
	SidebarWidth      int           `yaml:"sidebar_width,omitempty"`
	AutocompleteLimit int           `yaml:"autocomplete_limit,omitempty"`
	NoticeDuration    time.Duration `yaml:"notice_duration,omitempty"`
	ExportDir         string        `yaml:"export_dir,omitempty"`
}

// Config is the top-level configuration for epimap.
type Config struct {
	API      APIConfig      `yaml:"api,omitempty"`
	Geometry GeometryConfig `yaml:"geometry,omitempty"`
	Taxonomy TaxonomyConfig `yaml:"taxonomy,omitempty"`
	Map      MapConfig      `yaml:"map,omitempty"`
	Offline  OfflineConfig  `yaml:"offline,omitempty"`
	UI       UIConfig       `yaml:"ui,omitempty"`
}

// DefaultConfig returns a Config with the dashboard defaults: central Lima,
// 32 concurrent unit requests.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:     "http://localhost:5000",
			Timeout:     15 * time.Second,
			Concurrency: 32,
		},
		Geometry: GeometryConfig{
			DistrictProp: "NM_DIST",
			FacilityProp: "NOMBRE",
		},
		Map: MapConfig{
			CenterLat:  -12.00,
			CenterLon:  -77.02,
			Zoom:       12,
			FitPadding: 50,
			MaxFitZoom: 14,
			BaseMap:    "streets",
		},
		UI: UIConfig{
			SidebarWidth:      34,
			AutocompleteLimit: 10,
			NoticeDuration:    4 * time.Second,
		},
	}
}

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "epimap")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append(append([]string{home}, fallback...), "epimap")...)
}

// ConfigDir returns the XDG config directory for epimap.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the XDG data directory for epimap.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// StateDir returns the XDG state directory for epimap.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path. Missing fields keep their
// defaults. Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// expandPaths resolves ~ in every path setting.
func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Geometry.Districts,
		&c.Geometry.Facilities,
		&c.Taxonomy.Path,
		&c.Offline.Database,
		&c.UI.ExportDir,
	} {
		*p = expandHome(*p)
	}
}

// ApplyEnv overrides settings from the environment. getenv is os.Getenv
// outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvAPIURL)); v != "" {
		c.API.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvOfflineDB)); v != "" {
		c.Offline.Database = expandHome(v)
	}
}

// Validate checks the settings that would otherwise fail late.
func (c Config) Validate() error {
	if c.Offline.Database == "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL)
		}
	}
	if c.API.Concurrency < 1 {
		return fmt.Errorf("api.concurrency must be at least 1, got %d", c.API.Concurrency)
	}
	if c.Geometry.Districts == "" || c.Geometry.Facilities == "" {
		return fmt.Errorf("no geometry configured: set geometry.districts and geometry.facilities")
	}
	if c.Map.Zoom < 0 || c.Map.MaxFitZoom < 0 {
		return fmt.Errorf("map zoom levels must not be negative")
	}
	return nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}

// Package hooks runs user commands around epimap exports. Hooks are read
// from hooks.yaml in the config directory and run before (pre-export) and
// after (post-export) a snapshot, case database or report is written.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the hook file looked up in the config directory.
const FileName = "hooks.yaml"

// DefaultTimeout bounds a hook without its own timeout.
const DefaultTimeout = 30 * time.Second

// Phase is the point of the export a hook runs at.
type Phase string

const (
	// PreExport runs before the file is written. A failure cancels the export.
	PreExport Phase = "pre-export"
	// PostExport runs after the file is written. Failures are reported only.
	PostExport Phase = "post-export"
)

// Failure policies.
const (
	OnErrorFail     = "fail"
	OnErrorContinue = "continue"
)

// Hook is one configured command.
type Hook struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"` // run with sh -c
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"` // values are $-expanded
	OnError string            `yaml:"on_error,omitempty"`
}

// UnmarshalYAML accepts Go durations ("5s") and bare numbers of seconds.
func (h *Hook) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Name    string            `yaml:"name"`
		Command string            `yaml:"command"`
		Timeout string            `yaml:"timeout"`
		Env     map[string]string `yaml:"env"`
		OnError string            `yaml:"on_error"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*h = Hook{Name: raw.Name, Command: raw.Command, Env: raw.Env, OnError: raw.OnError}

	if raw.Timeout == "" {
		return nil
	}
	if d, err := time.ParseDuration(raw.Timeout); err == nil {
		h.Timeout = d
		return nil
	}
	secs, err := strconv.ParseFloat(raw.Timeout, 64)
	if err != nil {
		return fmt.Errorf("invalid timeout %q", raw.Timeout)
	}
	h.Timeout = time.Duration(secs * float64(time.Second))
	return nil
}

// Config is the hooks.yaml document.
type Config struct {
	Hooks struct {
		PreExport  []Hook `yaml:"pre-export,omitempty"`
		PostExport []Hook `yaml:"post-export,omitempty"`
	} `yaml:"hooks"`
}

// Phase returns the hooks of one phase, nil for an unknown phase.
func (c *Config) Phase(p Phase) []Hook {
	switch p {
	case PreExport:
		return c.Hooks.PreExport
	case PostExport:
		return c.Hooks.PostExport
	}
	return nil
}

// Empty reports whether no hook is configured.
func (c *Config) Empty() bool {
	return len(c.Hooks.PreExport) == 0 && len(c.Hooks.PostExport) == 0
}

// Load reads dir/hooks.yaml. A missing file is an empty config. Hooks
// without a command are dropped with a warning.
func Load(dir string) (*Config, []string, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil, nil
		}
		return nil, nil, fmt.Errorf("reading hooks: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var warnings []string
	cfg.Hooks.PreExport = normalize(cfg.Hooks.PreExport, PreExport, &warnings)
	cfg.Hooks.PostExport = normalize(cfg.Hooks.PostExport, PostExport, &warnings)
	return &cfg, warnings, nil
}

func normalize(hooks []Hook, phase Phase, warnings *[]string) []Hook {
	var out []Hook
	for i, h := range hooks {
		if strings.TrimSpace(h.Command) == "" {
			*warnings = append(*warnings, fmt.Sprintf("%s hook %d has no command; skipped", phase, i+1))
			continue
		}
		if h.Timeout <= 0 {
			h.Timeout = DefaultTimeout
		}
		if h.OnError == "" {
			h.OnError = OnErrorContinue
			if phase == PreExport {
				h.OnError = OnErrorFail
			}
		}
		if h.Name == "" {
			h.Name = fmt.Sprintf("%s-%d", phase, i+1)
		}
		out = append(out, h)
	}
	return out
}

package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/epimap/pkg/debug"
)

// ExportContext describes the file being exported. It reaches the hook as
// EPIMAP_* environment variables.
type ExportContext struct {
	Path      string
	Format    string // svg, png, sqlite or markdown
	Dataset   string
	Geography string
	Units     int
	Timestamp time.Time
}

// Env returns the context as environment entries.
func (c ExportContext) Env() []string {
	return []string{
		"EPIMAP_EXPORT_PATH=" + c.Path,
		"EPIMAP_EXPORT_FORMAT=" + c.Format,
		"EPIMAP_DATASET=" + c.Dataset,
		"EPIMAP_GEOGRAPHY=" + c.Geography,
		fmt.Sprintf("EPIMAP_UNIT_COUNT=%d", c.Units),
		"EPIMAP_TIMESTAMP=" + c.Timestamp.Format(time.RFC3339),
	}
}

// Result is the outcome of one hook run.
type Result struct {
	Hook     string
	Phase    Phase
	Success  bool
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Executor runs the hooks of one export and keeps their results.
type Executor struct {
	cfg     *Config
	ctx     ExportContext
	results []Result
}

// NewExecutor returns an executor for cfg.
func NewExecutor(cfg *Config, ctx ExportContext) *Executor {
	return &Executor{cfg: cfg, ctx: ctx}
}

// ForExport loads the hooks in dir. It returns nil without error when hooks
// are disabled or none are configured.
func ForExport(dir string, ctx ExportContext, disabled bool) (*Executor, error) {
	if disabled {
		return nil, nil
	}
	cfg, warnings, err := Load(dir)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		debug.Log("hooks: %s", w)
	}
	if cfg.Empty() {
		return nil, nil
	}
	return NewExecutor(cfg, ctx), nil
}

// RunPreExport runs the pre-export hooks, stopping at the first failing
// hook whose policy is fail.
func (e *Executor) RunPreExport() error {
	for _, h := range e.cfg.Phase(PreExport) {
		r := e.run(h, PreExport)
		if !r.Success && h.OnError == OnErrorFail {
			return fmt.Errorf("pre-export hook %q failed: %w", h.Name, r.Err)
		}
	}
	return nil
}

// RunPostExport runs every post-export hook and reports the first failure
// whose policy is fail.
func (e *Executor) RunPostExport() error {
	var first error
	for _, h := range e.cfg.Phase(PostExport) {
		r := e.run(h, PostExport)
		if !r.Success && h.OnError == OnErrorFail && first == nil {
			first = fmt.Errorf("post-export hook %q failed: %w", h.Name, r.Err)
		}
	}
	return first
}

func (e *Executor) run(h Hook, phase Phase) Result {
	ctx, cancel := context.WithTimeout(context.Background(), h.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.Command)
	cmd.Env = append(os.Environ(), e.ctx.Env()...)
	for k, v := range h.Env {
		cmd.Env = append(cmd.Env, k+"="+os.ExpandEnv(v))
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Children of sh may keep the pipes open after a timeout kill.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	r := Result{
		Hook:     h.Name,
		Phase:    phase,
		Success:  err == nil,
		Stdout:   strings.TrimSpace(stdout.String()),
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
		Err:      err,
	}
	if ctx.Err() == context.DeadlineExceeded {
		r.Success = false
		r.Err = fmt.Errorf("timed out after %v", h.Timeout)
	}
	debug.Log("hooks: %s %s ok=%v in %v", phase, h.Name, r.Success, r.Duration)

	e.results = append(e.results, r)
	return r
}

// Results returns the hooks run so far, in order.
func (e *Executor) Results() []Result {
	return append([]Result(nil), e.results...)
}

// Summary is a short human report, empty when nothing ran.
func (e *Executor) Summary() string {
	if len(e.results) == 0 {
		return ""
	}
	var ok, failed int
	var b strings.Builder
	for _, r := range e.results {
		if r.Success {
			ok++
			continue
		}
		failed++
		fmt.Fprintf(&b, "\n  %s (%s): %v", r.Hook, r.Phase, r.Err)
		if r.Stderr != "" {
			fmt.Fprintf(&b, "\n    stderr: %s", truncate(r.Stderr, 200))
		}
	}
	return fmt.Sprintf("hooks: %d succeeded, %d failed", ok, failed) + b.String()
}

// truncate shortens s to n display columns without splitting a rune.
func truncate(s string, n int) string {
	return runewidth.Truncate(s, n, "...")
}

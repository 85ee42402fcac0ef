package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/config"
	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/engine"
	"github.com/vanderheijden86/epimap/pkg/export"
	"github.com/vanderheijden86/epimap/pkg/hooks"
	"github.com/vanderheijden86/epimap/pkg/loader"
	"github.com/vanderheijden86/epimap/pkg/selection"
	"github.com/vanderheijden86/epimap/pkg/style"
)

// headlessJob lists the files a non-interactive run writes. Empty paths are
// skipped.
type headlessJob struct {
	Diagnoses []string
	Snapshot  string
	Preset    string
	ExportDB  string
	ExportMD  string

	HooksDir string // hooks.yaml location; hooks are off when empty
}

// runHeadless selects the diagnoses, runs the resulting fetches to
// completion and writes the requested files for the active one.
func runHeadless(ctx context.Context, cfg config.Config, world *loader.World, src casedata.Source, job headlessJob, out io.Writer) error {
	ctrl := engine.New(selection.NewStore(world.Tree), casedata.NewCache(), world.Geoms, engineOptions(cfg))
	defer ctrl.Close()

	for _, id := range job.Diagnoses {
		if err := drain(ctx, ctrl, src, cfg.API.Concurrency, ctrl.ToggleDiagnosis(id, true)); err != nil {
			return err
		}
	}

	key := ctrl.ActiveKey()
	if key.Dataset == "" || !ctrl.Cache().Complete(key) {
		return fmt.Errorf("no case data loaded for %v", job.Diagnoses)
	}
	records := ctrl.Cache().Records(key)
	if failed := ctrl.Cache().Failed(key); len(failed) > 0 {
		fmt.Fprintf(out, "warning: %d units failed to load\n", len(failed))
	}

	units := ctrl.Collection(key.Geography).Len()
	exportCtx := func(path, format string) hooks.ExportContext {
		return hooks.ExportContext{
			Path:      path,
			Format:    format,
			Dataset:   key.Dataset,
			Geography: key.Geography.String(),
			Units:     units,
			Timestamp: time.Now(),
		}
	}

	if job.Snapshot != "" {
		err := withHooks(job.HooksDir, exportCtx(job.Snapshot, snapshotFormat(job.Snapshot)), out, func() error {
			return export.SaveSnapshot(export.SnapshotOptions{
				Path:       job.Snapshot,
				Preset:     job.Preset,
				Collection: ctrl.Collection(key.Geography),
				Resolver:   style.NewResolver(ctrl.Store(), ctrl.Cache()),
			})
		})
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		fmt.Fprintf(out, "snapshot written to %s\n", job.Snapshot)
	}

	if job.ExportDB != "" {
		var n int
		err := withHooks(job.HooksDir, exportCtx(job.ExportDB, "sqlite"), out, func() (err error) {
			n, err = export.WriteCasesDB(ctx, job.ExportDB, key, records)
			return err
		})
		if err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(out, "%s units exported to %s\n", humanize.Comma(int64(n)), job.ExportDB)
	}

	if job.ExportMD != "" {
		err := withHooks(job.HooksDir, exportCtx(job.ExportMD, "markdown"), out, func() error {
			return export.SaveReport(job.ExportMD, export.ReportOptions{
				Key:     key,
				Name:    world.Tree.DisplayName(key.Dataset),
				Records: records,
				Now:     time.Now(),
			})
		})
		if err != nil {
			return fmt.Errorf("report: %w", err)
		}
		fmt.Fprintf(out, "report written to %s\n", job.ExportMD)
	}
	return nil
}

// drain performs fetch effects synchronously, feeding batches back into the
// controller until nothing is left to fetch. View effects have no meaning
// without a screen and are dropped.
func drain(ctx context.Context, ctrl *engine.Controller, src casedata.Source, limit int, effects []engine.Effect) error {
	for len(effects) > 0 {
		eff := effects[0]
		effects = effects[1:]

		switch e := eff.(type) {
		case engine.FetchEffect:
			b := casedata.FetchAll(ctx, src, e.Plan, limit)
			if b.Err != nil {
				return fmt.Errorf("fetching %s: %w", e.Plan.Key, b.Err)
			}
			effects = append(effects, ctrl.CommitBatch(b)...)
		case engine.NoticeEffect:
			debug.Log("headless: %s (%v)", e.Text, e.Err)
		}
	}
	return nil
}

// withHooks runs write between the pre- and post-export hooks of dir. A
// failing post-export hook is reported but the file stays written.
func withHooks(dir string, ctx hooks.ExportContext, out io.Writer, write func() error) error {
	var exec *hooks.Executor
	if dir != "" {
		var err error
		if exec, err = hooks.ForExport(dir, ctx, false); err != nil {
			return err
		}
	}
	if exec != nil {
		if err := exec.RunPreExport(); err != nil {
			return err
		}
	}
	if err := write(); err != nil {
		return err
	}
	if exec != nil {
		if err := exec.RunPostExport(); err != nil {
			fmt.Fprintf(out, "warning: %v\n", err)
		}
		debug.Log("headless: %s", exec.Summary())
	}
	return nil
}

func snapshotFormat(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".png") {
		return "png"
	}
	return "svg"
}

// Package watcher reports changes to the files the map is built from: the
// district and facility geometry documents and the diagnosis taxonomy.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vanderheijden86/epimap/pkg/debug"
)

// DefaultPollInterval is the default polling interval for fallback mode.
const DefaultPollInterval = 2 * time.Second

// Common errors.
var (
	ErrFileRemoved    = errors.New("watched file was removed")
	ErrPermission     = errors.New("permission denied")
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrNoFiles        = errors.New("no files to watch")
)

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDuration sets the debounce duration.
func WithDebounceDuration(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDuration = d
	}
}

// WithPollInterval sets the polling interval for fallback mode.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.pollInterval = d
	}
}

// WithOnChange sets the callback invoked with the files that changed since
// the previous notification.
func WithOnChange(fn func(paths []string)) WatcherOption {
	return func(w *Watcher) {
		w.onChange = fn
	}
}

// WithOnError sets the callback invoked on errors. Errors about one file
// wrap the sentinel errors above with its path.
func WithOnError(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// WithForcePoll forces polling mode even if fsnotify is available.
func WithForcePoll(force bool) WatcherOption {
	return func(w *Watcher) {
		w.forcePoll = force
	}
}

type fileState struct {
	mtime time.Time
	size  int64
}

// Watcher monitors a set of files using fsnotify with polling fallback.
// Bursts of changes across all files collapse into one notification.
type Watcher struct {
	paths            []string
	debounceDuration time.Duration
	pollInterval     time.Duration
	onChange         func([]string)
	onError          func(error)
	forcePoll        bool
	forcePollEnv     bool
	fsType           FilesystemType

	fsWatcher   *fsnotify.Watcher
	debouncer   *Debouncer
	useFallback bool
	state       map[string]fileState
	pending     map[string]bool

	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
	changeCh chan struct{}
}

// NewWatcher creates a watcher for the given files. Empty paths are
// skipped; duplicates are watched once.
func NewWatcher(paths []string, opts ...WatcherOption) (*Watcher, error) {
	seen := make(map[string]bool, len(paths))
	var abs []string
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		if !seen[a] {
			seen[a] = true
			abs = append(abs, a)
		}
	}
	if len(abs) == 0 {
		return nil, ErrNoFiles
	}

	w := &Watcher{
		paths:            abs,
		debounceDuration: DefaultDebounceDuration,
		pollInterval:     DefaultPollInterval,
		onChange:         func([]string) {},
		onError:          func(error) {},
		state:            make(map[string]fileState, len(abs)),
		pending:          make(map[string]bool),
		changeCh:         make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.debouncer = NewDebouncer(w.debounceDuration)

	return w, nil
}

// Start begins watching the files for changes.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return ErrAlreadyStarted
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())

	// Reset per-start state.
	w.useFallback = false
	w.forcePollEnv = envBool("EPIMAP_FORCE_POLLING") || envBool("EPIMAP_FORCE_POLL")
	w.fsType = FSTypeUnknown

	// One remote file is enough to poll all of them.
	for _, p := range w.paths {
		t := DetectFilesystemType(p)
		if w.fsType == FSTypeUnknown || isRemoteFilesystem(t) {
			w.fsType = t
		}
		if isRemoteFilesystem(t) {
			w.useFallback = true
		}
	}

	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsPermission(err) {
				return fmt.Errorf("%s: %w", p, ErrPermission)
			}
			// File might not exist yet, that's okay
			w.state[p] = fileState{}
			continue
		}
		w.state[p] = fileState{mtime: info.ModTime(), size: info.Size()}
	}

	forcePoll := w.forcePoll || w.forcePollEnv
	if !forcePoll && !w.useFallback {
		if err := w.startFsnotify(); err != nil {
			debug.Log("watcher: fsnotify unavailable, polling: %v", err)
			w.useFallback = true
		}
	} else {
		w.useFallback = true
	}

	if w.useFallback {
		go w.watchPolling()
	}

	debug.Log("watcher: watching %d files (fs=%s, polling=%v)", len(w.paths), w.fsType, w.useFallback)
	w.started = true
	return nil
}

// startFsnotify watches the directories containing the files, which is more
// reliable than watching the files across atomic renames.
func (w *Watcher) startFsnotify() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := make(map[string]bool)
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return err
		}
	}
	w.fsWatcher = fsw
	go w.watchFsnotify()
	return nil
}

// Stop stops watching. The change channel stays open: a receiver blocked on
// it is released at program exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return
	}

	if w.cancel != nil {
		w.cancel()
	}

	if w.fsWatcher != nil {
		w.fsWatcher.Close()
		w.fsWatcher = nil
	}

	w.debouncer.Cancel()
	w.started = false
}

// IsPolling returns true if the watcher is using polling mode.
func (w *Watcher) IsPolling() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.useFallback
}

// IsStarted returns true if the watcher is running.
func (w *Watcher) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started
}

// Changed returns a channel that receives when any file changes.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changeCh
}

// Paths returns the watched files as absolute paths.
func (w *Watcher) Paths() []string {
	return append([]string(nil), w.paths...)
}

// FilesystemType returns the best-effort filesystem classification; remote
// types win when the files live on different filesystems.
func (w *Watcher) FilesystemType() FilesystemType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.fsType
}

// PollInterval returns the polling interval used when polling mode is active.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

func envBool(name string) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func (w *Watcher) watched(path string) bool {
	for _, p := range w.paths {
		if p == path {
			return true
		}
	}
	return false
}

// watchFsnotify monitors using fsnotify events.
func (w *Watcher) watchFsnotify() {
	// Capture channel references to avoid race with Stop() setting fsWatcher to nil
	w.mu.RLock()
	if w.fsWatcher == nil {
		w.mu.RUnlock()
		return
	}
	events := w.fsWatcher.Events
	errs := w.fsWatcher.Errors
	w.mu.RUnlock()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				return
			}
			name := filepath.Clean(event.Name)
			if !w.watched(name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Remove != 0:
				w.onError(fmt.Errorf("%s: %w", name, ErrFileRemoved))

			case event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0:
				w.markChanged(name)
			}

		case err, ok := <-errs:
			if !ok {
				return
			}
			w.onError(err)
		}
	}
}

// watchPolling monitors using periodic stat checks.
func (w *Watcher) watchPolling() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			for _, p := range w.paths {
				w.poll(p)
			}
		}
	}
}

func (w *Watcher) poll(path string) {
	info, err := os.Stat(path)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			// Only report if file existed before
			w.mu.Lock()
			hadFile := !w.state[path].mtime.IsZero()
			w.state[path] = fileState{}
			w.mu.Unlock()
			if hadFile {
				w.onError(fmt.Errorf("%s: %w", path, ErrFileRemoved))
			}
		case os.IsPermission(err):
			w.onError(fmt.Errorf("%s: %w", path, ErrPermission))
		default:
			w.onError(err)
		}
		return
	}

	w.mu.Lock()
	last := w.state[path]
	changed := info.ModTime().After(last.mtime) || info.Size() != last.size
	if changed {
		w.state[path] = fileState{mtime: info.ModTime(), size: info.Size()}
	}
	w.mu.Unlock()

	if changed {
		w.markChanged(path)
	}
}

// markChanged records path and (re)arms the debouncer.
func (w *Watcher) markChanged(path string) {
	w.mu.Lock()
	w.pending[path] = true
	w.mu.Unlock()
	w.debouncer.Trigger(w.notifyChange)
}

// notifyChange invokes the onChange callback and signals the change channel.
func (w *Watcher) notifyChange() {
	w.mu.Lock()
	started := w.started
	var changed []string
	for _, p := range w.paths {
		if w.pending[p] {
			changed = append(changed, p)
		}
	}
	clear(w.pending)
	w.mu.Unlock()

	// Best effort: a callback may still slip in right after Stop().
	if !started || len(changed) == 0 {
		return
	}

	debug.Log("watcher: changed %v", changed)
	w.onChange(changed)

	select {
	case w.changeCh <- struct{}{}:
	default:
	}
}

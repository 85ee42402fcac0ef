// Package engine binds user events to the selection store and the case
// cache. The Controller owns the loading phase and the popup; it answers
// every event with a list of effects (fetches, viewport moves, notices)
// that the host carries out, so it can be tested without a terminal.
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
	"github.com/vanderheijden86/epimap/pkg/metrics"
	"github.com/vanderheijden86/epimap/pkg/selection"
)

// ErrNotFound is carried by the notice emitted when a search has no match.
var ErrNotFound = errors.New("unit not found")

// Options holds the map constants the controller needs.
type Options struct {
	FitPadding        float64
	MaxZoom           float64
	AutocompleteLimit int
	Home              geo.Viewport
}

// DefaultOptions returns the dashboard defaults: central Lima at zoom 12.
func DefaultOptions() Options {
	return Options{
		FitPadding:        50,
		MaxZoom:           14,
		AutocompleteLimit: 10,
		Home:              geo.Viewport{Center: orb.Point{-77.02, -12.00}, Zoom: 12},
	}
}

func (o Options) fit() geo.FitOptions {
	return geo.FitOptions{Padding: o.FitPadding, MaxZoom: o.MaxZoom}
}

// Popup is the detail popup of a clicked unit.
type Popup struct {
	Gen    uint64
	Unit   geo.Unit
	Detail *casedata.Detail // nil while loading
}

// Loading reports whether the popup is still waiting for its data.
func (p *Popup) Loading() bool {
	return p.Detail == nil
}

type inflight struct {
	gen uint64
	key casedata.Key
}

// Controller is the interaction state machine. It is driven from the UI
// event loop and is not safe for concurrent use.
type Controller struct {
	store  *selection.Store
	cache  *casedata.Cache
	geoms  map[geo.Dataset]*geo.Collection
	opts   Options
	chrome Chrome

	phase     Phase
	gen       uint64
	inflight  *inflight
	shown     casedata.Key // partition the map is meant to show
	detailGen uint64
	popup     *Popup

	pending []selection.Event
	unsub   func()
}

// New wires a controller to a store, a cache and the geometry of both
// datasets.
func New(store *selection.Store, cache *casedata.Cache, geoms map[geo.Dataset]*geo.Collection, opts Options) *Controller {
	c := &Controller{
		store: store,
		cache: cache,
		geoms: geoms,
		opts:  opts,
	}
	c.unsub = store.Subscribe(func(e selection.Event) {
		c.pending = append(c.pending, e)
	})
	return c
}

// Close detaches the controller from its store.
func (c *Controller) Close() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

// Store returns the selection store.
func (c *Controller) Store() *selection.Store { return c.store }

// Cache returns the case cache.
func (c *Controller) Cache() *casedata.Cache { return c.cache }

// Chrome returns the UI region set used to filter map clicks.
func (c *Controller) Chrome() *Chrome { return &c.chrome }

// Options returns the map constants.
func (c *Controller) Options() Options { return c.opts }

// Phase returns the loading phase.
func (c *Controller) Phase() Phase { return c.phase }

// Busy reports whether the newest fetch batch has not reported yet.
func (c *Controller) Busy() bool { return c.phase == PhaseLoading }

// Popup returns the open popup, or nil.
func (c *Controller) Popup() *Popup { return c.popup }

// Collection returns the geometry of a dataset (nil when not loaded).
func (c *Controller) Collection(ds geo.Dataset) *geo.Collection {
	return c.geoms[ds]
}

// ActiveKey returns the cache partition of the active diagnosis in the
// active geography, or the zero Key when no diagnosis is active.
func (c *Controller) ActiveKey() casedata.Key {
	active := c.store.ActiveDiagnosis()
	if active == "" {
		return casedata.Key{}
	}
	return casedata.Key{Dataset: active, Geography: c.store.Geography()}
}

// reconcile consumes the store events of the current handler and plans the
// data the map now needs.
func (c *Controller) reconcile() []Effect {
	events := c.pending
	c.pending = nil

	for _, e := range events {
		if e.Change.Has(selection.ChangeDiagnoses) && c.popup != nil {
			debug.Log("engine: diagnosis list changed, closing popup for %s", c.popup.Unit.Name)
			c.popup = nil
		}
	}
	if want := c.ActiveKey(); want != c.shown {
		return c.ensureData(want)
	}
	return nil
}

func (c *Controller) ensureData(key casedata.Key) []Effect {
	c.shown = key
	effects := c.cancelInflight()

	if key.Dataset == "" {
		c.cache.ClearAll()
		c.fire(trigCleared)
		return effects
	}
	if c.cache.Complete(key) {
		metrics.CaseCache.Hit()
		debug.Log("engine: %s already cached", key)
		c.fire(trigCacheHit)
		return effects
	}
	metrics.CaseCache.Miss()

	c.gen++
	c.inflight = &inflight{gen: c.gen, key: key}
	c.fire(trigFetchStart)
	return append(effects, FetchEffect{Plan: casedata.Plan{
		Gen:   c.gen,
		Key:   key,
		Units: c.geoms[key.Geography].Names(),
	}})
}

func (c *Controller) cancelInflight() []Effect {
	if c.inflight == nil {
		return nil
	}
	debug.Log("engine: superseding batch %d for %s", c.inflight.gen, c.inflight.key)
	gen := c.inflight.gen
	c.inflight = nil
	return []Effect{CancelFetchEffect{Gen: gen}}
}

// CommitBatch receives a finished fetch. Completed batches are committed
// under their own key even when superseded; cancelled ones are dropped.
func (c *Controller) CommitBatch(b casedata.Batch) []Effect {
	latest := c.inflight != nil && c.inflight.gen == b.Gen
	if latest {
		c.inflight = nil
		c.fire(trigBatchLatest)
	} else {
		c.fire(trigBatchStale)
	}

	if b.Err != nil {
		debug.Log("engine: batch %d for %s dropped: %v", b.Gen, b.Key, b.Err)
		return nil
	}
	if !c.cache.Commit(b) {
		return nil
	}
	debug.Log("engine: committed batch %d for %s (%d units, %d failed)", b.Gen, b.Key, len(b.Records), len(b.Failed))
	if latest && len(b.Failed) > 0 {
		return []Effect{NoticeEffect{
			Text: fmt.Sprintf("%d de %d unidades sin datos", len(b.Failed), len(b.Records)),
			Err:  casedata.ErrHTTPStatus,
		}}
	}
	return nil
}

// ToggleLayer handles a sidebar checkbox of any kind.
func (c *Controller) ToggleLayer(id string, on bool) []Effect {
	n, ok := c.store.Tree().Lookup(id)
	if !ok {
		debug.Log("engine: toggle of unknown layer %q ignored", id)
		return nil
	}
	switch n.Kind {
	case layertree.KindDiagnosis:
		return c.ToggleDiagnosis(id, on)
	case layertree.KindUnit:
		return c.ToggleUnit(n.Dataset, n.UnitKey, on)
	}
	if err := c.store.ToggleLayer(id, on); err != nil {
		debug.Log("engine: %v", err)
		return nil
	}
	return c.reconcile()
}

// ToggleDiagnosis checks or unchecks a diagnosis and plans the data for
// whichever diagnosis ends up active.
func (c *Controller) ToggleDiagnosis(id string, checked bool) []Effect {
	if _, err := c.store.ToggleDiagnosis(id, checked); err != nil {
		debug.Log("engine: %v", err)
		return nil
	}
	return c.reconcile()
}

// ToggleUnit checks or unchecks a unit in the panel and fits the view to
// every highlighted unit.
func (c *Controller) ToggleUnit(ds geo.Dataset, unitKey string, on bool) []Effect {
	if err := c.store.ToggleLayer(layertree.UnitID(ds, unitKey), on); err != nil {
		debug.Log("engine: %v", err)
		return nil
	}
	effects := c.reconcile()
	if keys := c.store.HighlightedUnits(); len(keys) > 0 {
		if b, ok := c.geoms[c.store.Geography()].BoundOf(keys); ok {
			effects = append(effects, FitEffect{Bound: b, Options: c.opts.fit()})
		}
	}
	return effects
}

// PointerClick handles a click at terminal cell (x, y) that maps to pt.
// Clicks on UI chrome are swallowed.
func (c *Controller) PointerClick(x, y int, pt orb.Point) []Effect {
	if name, ok := c.chrome.Hit(x, y); ok {
		debug.Log("engine: click at %d,%d on %s ignored by the map", x, y, name)
		return nil
	}
	return c.MapClick(pt)
}

// MapClick dispatches a map click to the feature under pt or to the
// background.
func (c *Controller) MapClick(pt orb.Point) []Effect {
	if c.store.DatasetVisible() {
		if u, ok := c.geoms[c.store.Geography()].Locate(pt); ok {
			return c.ClickFeature(u.Name)
		}
	}
	return c.ClickBackground()
}

// ClickFeature selects a unit of the active dataset, replacing every other
// highlight, fits the view to it and requests its popup data.
func (c *Controller) ClickFeature(name string) []Effect {
	ds := c.store.Geography()
	u, ok := c.geoms[ds].Unit(name)
	if !ok {
		debug.Log("engine: click on unknown %s unit %q", ds, name)
		return nil
	}
	c.store.SetHighlight(selection.HighlightClick, u.Key)
	effects := append(c.reconcile(), FitEffect{Bound: u.Bound, Options: c.opts.fit()})

	c.detailGen++
	c.popup = &Popup{Gen: c.detailGen, Unit: u}
	return append(effects, DetailEffect{Request: casedata.DetailRequest{
		Gen:       c.detailGen,
		Geography: ds,
		Unit:      u.Name,
		Diagnoses: c.store.Diagnoses(),
	}})
}

// ClickBackground clears the highlights, unless a popup is open: then the
// click belongs to the popup and nothing changes.
func (c *Controller) ClickBackground() []Effect {
	if c.popup != nil {
		debug.Log("engine: background click ignored while the popup is open")
		return nil
	}
	c.store.ClearHighlights()
	return c.reconcile()
}

// DetailLoaded stores popup data. Data for a popup that was closed or
// replaced is dropped; the return value reports whether it was used.
func (c *Controller) DetailLoaded(d casedata.Detail) bool {
	if c.popup == nil || c.popup.Gen != d.Gen {
		debug.Log("engine: stale detail %d for %q dropped", d.Gen, d.Unit)
		return false
	}
	c.popup.Detail = &d
	return true
}

// ClosePopup closes the popup; the clicked highlight stays.
func (c *Controller) ClosePopup() {
	c.popup = nil
}

// Search finds the first unit whose name contains query, looking at the
// active dataset before the other one. An empty query clears the search
// highlight and returns to the home view.
func (c *Controller) Search(query string) []Effect {
	q := strings.TrimSpace(query)
	if q == "" {
		c.store.SetHighlight(selection.HighlightSearch, "")
		return append(c.reconcile(), FlyToEffect{Viewport: c.opts.Home})
	}

	ds := c.store.Geography()
	u, ok := c.geoms[ds].FindFirst(q)
	if !ok {
		u, ok = c.geoms[ds.Other()].FindFirst(q)
	}
	if !ok {
		debug.Log("engine: search %q: %v", q, ErrNotFound)
		return []Effect{NoticeEffect{Text: fmt.Sprintf("Sin resultados para %q", q), Err: ErrNotFound}}
	}
	return c.focus(u)
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	Name    string
	Key     string
	Dataset geo.Dataset
}

// Autocomplete returns up to the configured limit of units whose names
// contain query, districts first.
func (c *Controller) Autocomplete(query string) []Suggestion {
	limit := c.opts.AutocompleteLimit
	if limit <= 0 {
		limit = 10
	}
	var out []Suggestion
	for _, ds := range geo.Datasets {
		left := limit - len(out)
		if left <= 0 {
			break
		}
		for _, u := range c.geoms[ds].Matches(query, left) {
			out = append(out, Suggestion{Name: u.Name, Key: u.Key, Dataset: ds})
		}
	}
	return out
}

// SelectSuggestion behaves like a search for exactly that unit.
func (c *Controller) SelectSuggestion(s Suggestion) []Effect {
	u, ok := c.geoms[s.Dataset].Unit(s.Name)
	if !ok {
		return []Effect{NoticeEffect{Text: fmt.Sprintf("Sin resultados para %q", s.Name), Err: ErrNotFound}}
	}
	return c.focus(u)
}

func (c *Controller) focus(u geo.Unit) []Effect {
	switch {
	case u.Dataset != c.store.Geography():
		c.store.SwitchGeography(u.Dataset)
	case !c.store.DatasetVisible():
		_ = c.store.ToggleLayer(layertree.GroupID(u.Dataset), true)
	}
	c.store.SetHighlight(selection.HighlightSearch, u.Key)
	effects := c.reconcile()
	return append(effects, FitEffect{Bound: u.Bound, Options: c.opts.fit()})
}

// Refresh drops the active partition and fetches it again.
func (c *Controller) Refresh() []Effect {
	key := c.ActiveKey()
	if key.Dataset == "" {
		return nil
	}
	c.cache.Clear(key)
	c.shown = casedata.Key{}
	return c.reconcile()
}

// Reset clears every filter, the cache and the popup and returns home.
func (c *Controller) Reset() []Effect {
	effects := c.cancelInflight()
	c.store.ResetAll()
	c.pending = nil
	c.cache.ClearAll()
	c.popup = nil
	c.shown = casedata.Key{}
	c.fire(trigReset)
	return append(effects, FlyToEffect{Viewport: c.opts.Home})
}

// Reload swaps in rebuilt geometry and layer tree. Cached data is dropped
// and the active diagnosis, if any, is fetched again.
func (c *Controller) Reload(tree *layertree.Tree, geoms map[geo.Dataset]*geo.Collection) []Effect {
	effects := c.cancelInflight()
	c.geoms = geoms
	c.store.ReplaceTree(tree)
	c.cache.ClearAll()
	c.popup = nil
	c.shown = casedata.Key{}
	if c.phase == PhaseLoading {
		c.fire(trigCleared)
	}
	return append(effects, c.reconcile()...)
}

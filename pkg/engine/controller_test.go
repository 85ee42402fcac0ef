package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"pgregory.net/rapid"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
	"github.com/vanderheijden86/epimap/pkg/selection"
	"github.com/vanderheijden86/epimap/pkg/testutil"
)

type harness struct {
	c   *Controller
	gen *testutil.Generator
	w   *testutil.World
	src *testutil.ScriptedSource
}

func newHarness(t testing.TB) *harness {
	t.Helper()
	gen := testutil.NewDefault()
	w, err := gen.LimaWorld()
	if err != nil {
		t.Fatalf("LimaWorld: %v", err)
	}
	c := New(selection.NewStore(w.Tree), casedata.NewCache(), w.Geoms, DefaultOptions())
	t.Cleanup(c.Close)
	return &harness{c: c, gen: gen, w: w, src: testutil.NewScriptedSource()}
}

// run executes a fetch effect against the scripted source.
func (h *harness) run(fe FetchEffect) casedata.Batch {
	return casedata.FetchAll(context.Background(), h.src, fe.Plan, 4)
}

// settle commits every fetch effect in order and returns the remaining effects.
func (h *harness) settle(effects []Effect) []Effect {
	var rest []Effect
	for _, e := range effects {
		if fe, ok := e.(FetchEffect); ok {
			rest = append(rest, h.c.CommitBatch(h.run(fe))...)
			continue
		}
		rest = append(rest, e)
	}
	return rest
}

func find[T Effect](effects []Effect) []T {
	var out []T
	for _, e := range effects {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func (h *harness) center(ds geo.Dataset, name string) orb.Point {
	u, ok := h.w.Geoms[ds].Unit(name)
	if !ok {
		panic("unknown unit " + name)
	}
	return u.Bound.Center()
}

func TestToggleDiagnosis_FetchesActivePartition(t *testing.T) {
	h := newHarness(t)

	effects := h.c.ToggleDiagnosis(testutil.Leptospirosis, true)
	fetches := find[FetchEffect](effects)
	if len(fetches) != 1 {
		t.Fatalf("expected one fetch, got %v", effects)
	}
	want := casedata.Key{Dataset: testutil.Leptospirosis, Geography: geo.District}
	if fetches[0].Plan.Key != want {
		t.Errorf("expected key %s, got %s", want, fetches[0].Plan.Key)
	}
	testutil.AssertKeys(t, fetches[0].Plan.Units, testutil.LimaDistricts...)
	if !h.c.Busy() {
		t.Error("expected busy while the batch is outstanding")
	}

	h.c.CommitBatch(h.run(fetches[0]))
	if h.c.Busy() {
		t.Error("expected idle after the latest batch reported")
	}
	if !h.c.Cache().Complete(want) {
		t.Error("expected partition to be cached")
	}
}

func TestDeselectLatest_ReactivatesCachedWithoutRefetch(t *testing.T) {
	h := newHarness(t)
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))
	h.settle(h.c.ToggleDiagnosis(testutil.Ofidismo, true))

	keyA := casedata.Key{Dataset: testutil.Leptospirosis, Geography: geo.District}
	before := h.src.Calls(keyA)

	effects := h.c.ToggleDiagnosis(testutil.Ofidismo, false)
	if f := find[FetchEffect](effects); len(f) != 0 {
		t.Fatalf("expected cache hit, got fetch %+v", f)
	}
	if h.c.Store().ActiveDiagnosis() != testutil.Leptospirosis {
		t.Errorf("expected %s active, got %s", testutil.Leptospirosis, h.c.Store().ActiveDiagnosis())
	}
	if h.c.Busy() {
		t.Error("cache hit must not leave the controller busy")
	}
	if h.src.Calls(keyA) != before {
		t.Errorf("expected no new requests for %s", keyA)
	}
}

func TestSupersededBatch_CommittedButBusyStays(t *testing.T) {
	h := newHarness(t)
	first := find[FetchEffect](h.c.ToggleDiagnosis(testutil.Leptospirosis, true))[0]

	effects := h.c.ToggleDiagnosis(testutil.Ofidismo, true)
	cancels := find[CancelFetchEffect](effects)
	if len(cancels) != 1 || cancels[0].Gen != first.Plan.Gen {
		t.Fatalf("expected cancel of gen %d, got %v", first.Plan.Gen, effects)
	}
	second := find[FetchEffect](effects)[0]
	if second.Plan.Gen <= first.Plan.Gen {
		t.Errorf("expected increasing generation, got %d after %d", second.Plan.Gen, first.Plan.Gen)
	}

	// The first batch finished before it saw the cancellation.
	h.c.CommitBatch(h.run(first))
	if !h.c.Busy() {
		t.Error("a stale batch must not clear the busy flag")
	}
	if !h.c.Cache().Complete(first.Plan.Key) {
		t.Error("a completed stale batch is kept under its own key")
	}

	h.c.CommitBatch(h.run(second))
	if h.c.Busy() {
		t.Error("expected idle after the latest batch")
	}
}

func TestCancelledBatch_Dropped(t *testing.T) {
	h := newHarness(t)
	fe := find[FetchEffect](h.c.ToggleDiagnosis(testutil.Leptospirosis, true))[0]

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := casedata.FetchAll(ctx, h.src, fe.Plan, 4)
	if b.Err == nil {
		t.Fatal("expected cancelled batch")
	}
	h.c.CommitBatch(b)
	if h.c.Cache().Complete(fe.Plan.Key) {
		t.Error("cancelled batch must not be committed")
	}
}

func TestPartialFailure_Notice(t *testing.T) {
	h := newHarness(t)
	h.src.Fail("Rimac")

	rest := h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))
	notices := find[NoticeEffect](rest)
	if len(notices) != 1 || !errors.Is(notices[0].Err, casedata.ErrHTTPStatus) {
		t.Fatalf("expected one network notice, got %v", rest)
	}
	key := h.c.ActiveKey()
	if r, ok := h.c.Cache().Get(key, "RIMAC"); !ok || r.Total != 0 {
		t.Errorf("expected failed unit degraded to zero, got %+v (ok=%v)", r, ok)
	}
	testutil.AssertKeys(t, h.c.Cache().Failed(key), "Rimac")
}

func TestEmptyDiagnosisList_ClearsCache(t *testing.T) {
	h := newHarness(t)
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))
	fe := find[FetchEffect](h.c.ToggleDiagnosis(testutil.Ofidismo, true))[0]

	effects := h.c.ToggleDiagnosis(testutil.Ofidismo, false)
	effects = append(effects, h.c.ToggleDiagnosis(testutil.Leptospirosis, false)...)
	if c := find[CancelFetchEffect](effects); len(c) != 1 || c[0].Gen != fe.Plan.Gen {
		t.Errorf("expected the outstanding batch to be cancelled, got %v", effects)
	}
	if h.c.Cache().Len() != 0 {
		t.Errorf("expected empty cache, got %d partitions", h.c.Cache().Len())
	}
	if h.c.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %s", h.c.Phase())
	}
}

func TestClickFeature_ReplacesHighlightsAndRequestsDetail(t *testing.T) {
	h := newHarness(t)
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))
	h.c.Search("Surco")
	h.c.ToggleUnit(geo.District, "RIMAC", true)

	effects := h.c.MapClick(h.center(geo.District, "Breña"))
	s := h.c.Store()
	if s.ClickedUnit() != "BREÑA" {
		t.Errorf("expected BREÑA clicked, got %q", s.ClickedUnit())
	}
	if s.SearchedUnit() != "" || len(s.PanelHighlights()) != 0 {
		t.Error("a click must replace search and panel highlights")
	}
	details := find[DetailEffect](effects)
	if len(details) != 1 {
		t.Fatalf("expected a detail request, got %v", effects)
	}
	req := details[0].Request
	if req.Unit != "Breña" || req.Geography != geo.District {
		t.Errorf("unexpected detail request %+v", req)
	}
	testutil.AssertKeys(t, req.Diagnoses, testutil.Leptospirosis)

	fits := find[FitEffect](effects)
	if len(fits) != 1 {
		t.Fatalf("expected the view fitted to the clicked unit, got %v", effects)
	}
	unit, _ := h.c.geoms[geo.District].Unit("Breña")
	if fits[0].Bound != unit.Bound {
		t.Errorf("fit bound = %v, want %v", fits[0].Bound, unit.Bound)
	}
	if fits[0].Options.Padding != 50 || fits[0].Options.MaxZoom != 14 {
		t.Errorf("fit options = %+v", fits[0].Options)
	}

	p := h.c.Popup()
	if p == nil || !p.Loading() {
		t.Fatal("expected a loading popup")
	}
	if h.c.DetailLoaded(casedata.Detail{Gen: req.Gen - 1, Unit: "Breña"}) {
		t.Error("stale detail must be dropped")
	}
	d := casedata.FetchDetail(context.Background(), h.src, req)
	if !h.c.DetailLoaded(d) || h.c.Popup().Loading() {
		t.Error("expected current detail to fill the popup")
	}
}

func TestSecondClick_DropsFirstDetail(t *testing.T) {
	h := newHarness(t)
	first := find[DetailEffect](h.c.ClickFeature("Breña"))[0]
	h.c.ClickFeature("Rimac")
	if h.c.DetailLoaded(casedata.Detail{Gen: first.Request.Gen, Unit: "Breña"}) {
		t.Error("detail of the replaced popup must be dropped")
	}
	if h.c.Popup().Unit.Key != "RIMAC" {
		t.Errorf("expected RIMAC popup, got %q", h.c.Popup().Unit.Key)
	}
}

func TestBackgroundClick(t *testing.T) {
	h := newHarness(t)
	h.c.ClickFeature("Breña")

	// Outside every cell of the grid.
	far := orb.Point{-70, -10}
	if effects := h.c.MapClick(far); len(effects) != 0 {
		t.Errorf("expected no effects, got %v", effects)
	}
	if h.c.Store().ClickedUnit() != "BREÑA" || h.c.Popup() == nil {
		t.Fatal("background click with an open popup must change nothing")
	}

	h.c.ClosePopup()
	if h.c.Store().ClickedUnit() != "BREÑA" {
		t.Error("closing the popup keeps the clicked highlight")
	}
	h.c.MapClick(far)
	if h.c.Store().ClickedUnit() != "" {
		t.Error("background click without popup clears the highlight")
	}
}

func TestPointerClick_ChromeSwallowsClicks(t *testing.T) {
	h := newHarness(t)
	h.c.Chrome().Set("sidebar", Rect{X: 0, Y: 0, W: 30, H: 40})
	pt := h.center(geo.District, "Breña")

	if effects := h.c.PointerClick(10, 5, pt); effects != nil {
		t.Errorf("expected click on chrome swallowed, got %v", effects)
	}
	if h.c.Store().ClickedUnit() != "" {
		t.Error("chrome click must not reach the map")
	}

	h.c.PointerClick(50, 5, pt)
	if h.c.Store().ClickedUnit() != "BREÑA" {
		t.Errorf("expected map click outside chrome, got %q", h.c.Store().ClickedUnit())
	}
}

func TestDiagnosisChange_ClosesPopup(t *testing.T) {
	h := newHarness(t)
	h.c.ClickFeature("Breña")
	h.c.ToggleDiagnosis(testutil.EDAS, true)
	if h.c.Popup() != nil {
		t.Error("expected popup closed after a diagnosis change")
	}
	if h.c.Store().ClickedUnit() != "" {
		t.Error("expected clicked unit cleared after a diagnosis change")
	}
}

func TestSearch_FirstMatchInDocumentOrder(t *testing.T) {
	h := newHarness(t)
	effects := h.c.Search("LIMA")

	if got := h.c.Store().SearchedUnit(); got != "LIMA CERCADO" {
		t.Errorf("expected LIMA CERCADO, got %q", got)
	}
	fits := find[FitEffect](effects)
	if len(fits) != 1 {
		t.Fatalf("expected a fit effect, got %v", effects)
	}
	u, _ := h.w.Geoms[geo.District].Unit("Lima Cercado")
	if fits[0].Bound != u.Bound {
		t.Errorf("expected fit to %v, got %v", u.Bound, fits[0].Bound)
	}
	if fits[0].Options.MaxZoom != 14 || fits[0].Options.Padding != 50 {
		t.Errorf("unexpected fit options %+v", fits[0].Options)
	}
}

func TestSearch_OtherDatasetSwitchesGeography(t *testing.T) {
	h := newHarness(t)
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))

	effects := h.c.Search("alfa")
	s := h.c.Store()
	if s.Geography() != geo.Facility {
		t.Fatalf("expected facility geography, got %s", s.Geography())
	}
	if s.SearchedUnit() != "CS ALFA" {
		t.Errorf("expected CS ALFA searched, got %q", s.SearchedUnit())
	}
	fetches := find[FetchEffect](effects)
	if len(fetches) != 1 || fetches[0].Plan.Key.Geography != geo.Facility {
		t.Fatalf("expected facility refetch, got %v", effects)
	}
	testutil.AssertKeys(t, fetches[0].Plan.Units, testutil.LimaFacilities...)
}

func TestSearch_NotFoundLeavesState(t *testing.T) {
	h := newHarness(t)
	h.c.Search("Surco")
	version := h.c.Store().Version()

	effects := h.c.Search("Callao")
	notices := find[NoticeEffect](effects)
	if len(notices) != 1 || !errors.Is(notices[0].Err, ErrNotFound) {
		t.Fatalf("expected not-found notice, got %v", effects)
	}
	if h.c.Store().Version() != version || h.c.Store().SearchedUnit() != "SURCO" {
		t.Error("a failed search must not change the selection")
	}
}

func TestSearch_EmptyFliesHome(t *testing.T) {
	h := newHarness(t)
	h.c.Search("Surco")

	effects := h.c.Search("  ")
	flies := find[FlyToEffect](effects)
	if len(flies) != 1 || flies[0].Viewport != DefaultOptions().Home {
		t.Fatalf("expected fly home, got %v", effects)
	}
	if h.c.Store().SearchedUnit() != "" {
		t.Error("expected search highlight cleared")
	}
}

func TestAutocomplete(t *testing.T) {
	h := newHarness(t)

	got := h.c.Autocomplete("lim")
	if len(got) != 3 {
		t.Fatalf("expected 3 suggestions, got %+v", got)
	}
	wantDS := []geo.Dataset{geo.District, geo.District, geo.Facility}
	for i, s := range got {
		if s.Dataset != wantDS[i] {
			t.Errorf("suggestion %d (%s): expected %s, got %s", i, s.Name, wantDS[i], s.Dataset)
		}
	}

	h.c.opts.AutocompleteLimit = 2
	if got := h.c.Autocomplete("a"); len(got) != 2 {
		t.Errorf("expected the limit to cap suggestions, got %d", len(got))
	}
	if got := h.c.Autocomplete(""); len(got) != 0 {
		t.Errorf("expected no suggestions for empty input, got %d", len(got))
	}

	effects := h.c.SelectSuggestion(Suggestion{Name: "Hospital Limeño", Dataset: geo.Facility})
	if len(find[FitEffect](effects)) != 1 || h.c.Store().SearchedUnit() != "HOSPITAL LIMEÑO" {
		t.Errorf("expected suggestion to behave like a search, got %v", effects)
	}
}

func TestToggleUnit_FitsAllHighlighted(t *testing.T) {
	h := newHarness(t)
	h.c.ToggleUnit(geo.District, "BREÑA", true)
	effects := h.c.ToggleUnit(geo.District, "SURCO", true)

	fits := find[FitEffect](effects)
	if len(fits) != 1 {
		t.Fatalf("expected a fit effect, got %v", effects)
	}
	for _, name := range []string{"Breña", "Surco"} {
		u, _ := h.w.Geoms[geo.District].Unit(name)
		testutil.AssertBoundCovers(t, fits[0].Bound, u.Bound)
	}
	testutil.AssertSameKeys(t, h.c.Store().HighlightedUnits(), "BREÑA", "SURCO")

	h.c.ToggleUnit(geo.District, "BREÑA", false)
	if len(find[FitEffect](h.c.ToggleUnit(geo.District, "SURCO", false))) != 0 {
		t.Error("expected no fit once nothing is highlighted")
	}
}

func TestToggleLayer_Dispatch(t *testing.T) {
	h := newHarness(t)

	if f := find[FetchEffect](h.c.ToggleLayer(testutil.EDAS, true)); len(f) != 1 {
		t.Error("a diagnosis checkbox must start a fetch")
	}
	h.c.ToggleLayer(layertree.UnitID(geo.Facility, "CS BETA"), true)
	if h.c.Store().Geography() != geo.Facility || !h.c.Store().IsHighlighted("CS BETA") {
		t.Error("a facility unit checkbox must switch geography and highlight")
	}
	if effects := h.c.ToggleLayer("no-such-layer", true); effects != nil {
		t.Errorf("expected unknown layer ignored, got %v", effects)
	}
	if f := find[FetchEffect](h.settle(h.c.ToggleLayer("zoonosis", true))); len(f) != 0 {
		t.Error("a category checkbox must not change the active diagnosis")
	}
	if h.c.Store().ActiveDiagnosis() != testutil.EDAS {
		t.Errorf("expected %s still active, got %s", testutil.EDAS, h.c.Store().ActiveDiagnosis())
	}
}

func TestRefresh_Refetches(t *testing.T) {
	h := newHarness(t)
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))

	effects := h.c.Refresh()
	if f := find[FetchEffect](effects); len(f) != 1 {
		t.Fatalf("expected refetch, got %v", effects)
	}
	if h.c.Cache().Complete(h.c.ActiveKey()) {
		t.Error("expected the active partition dropped before refetch")
	}
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))
	fe := find[FetchEffect](h.c.ToggleDiagnosis(testutil.Ofidismo, true))[0]
	h.c.ClickFeature("Breña")

	effects := h.c.Reset()
	if c := find[CancelFetchEffect](effects); len(c) != 1 || c[0].Gen != fe.Plan.Gen {
		t.Errorf("expected outstanding batch cancelled, got %v", effects)
	}
	if len(find[FlyToEffect](effects)) != 1 {
		t.Error("expected fly home")
	}
	s := h.c.Store()
	if len(s.Diagnoses()) != 0 || s.ClickedUnit() != "" || h.c.Popup() != nil {
		t.Error("expected selection and popup cleared")
	}
	if h.c.Cache().Len() != 0 || h.c.Busy() {
		t.Error("expected empty cache and idle phase")
	}
	if h.c.CommitBatch(h.run(fe)); h.c.Busy() {
		t.Error("a batch from before the reset must not make the controller busy")
	}
}

func TestReload_RebuildsAndRefetches(t *testing.T) {
	h := newHarness(t)
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))
	h.c.Search("Surco")

	shrunk, err := h.gen.World([]string{"Lima Cercado", "Breña"}, testutil.LimaFacilities)
	if err != nil {
		t.Fatal(err)
	}
	effects := h.c.Reload(shrunk.Tree, shrunk.Geoms)
	if h.c.Store().SearchedUnit() != "" {
		t.Error("expected highlight of a removed unit dropped")
	}
	fetches := find[FetchEffect](effects)
	if len(fetches) != 1 {
		t.Fatalf("expected refetch after reload, got %v", effects)
	}
	testutil.AssertKeys(t, fetches[0].Plan.Units, "Lima Cercado", "Breña")
}

func TestLegend(t *testing.T) {
	h := newHarness(t)
	if !h.c.Legend().Empty() {
		t.Error("expected empty legend with nothing selected")
	}

	key := casedata.Key{Dataset: testutil.Leptospirosis, Geography: geo.District}
	h.src.Set(key, h.gen.Records(testutil.LimaDistricts))
	h.settle(h.c.ToggleDiagnosis(testutil.Ofidismo, true))
	h.settle(h.c.ToggleDiagnosis(testutil.Leptospirosis, true))
	h.c.ClickFeature("Breña")

	lg := h.c.Legend()
	if len(lg.Diagnoses) != 2 || !lg.Diagnoses[1].Active || lg.Diagnoses[1].Name != "Leptospirosis" {
		t.Errorf("unexpected legend diagnoses %+v", lg.Diagnoses)
	}
	if lg.ScaleName == "" || len(lg.Buckets) == 0 {
		t.Error("expected scale buckets")
	}
	if lg.Loading {
		t.Error("legend must not show loading for a cached partition")
	}
	if len(lg.Units) != 1 || lg.Units[0].Name != "Breña" {
		t.Errorf("expected Breña in the legend, got %+v", lg.Units)
	}
}

func TestTransitionsComplete(t *testing.T) {
	for _, p := range []Phase{PhaseIdle, PhaseLoading} {
		for tr := trigFetchStart; tr <= trigReset; tr++ {
			if _, ok := transitions[p][tr]; !ok {
				t.Errorf("no transition from %s on %s", p, tr)
			}
		}
	}
	if transitions[PhaseLoading][trigBatchStale] != PhaseLoading {
		t.Error("a stale batch must keep the loading phase")
	}
}

// TestBusyTracksLatestBatch drives random toggles and completions and
// checks that the controller is busy exactly while the newest batch is
// outstanding.
func TestBusyTracksLatestBatch(t *testing.T) {
	ids := []string{testutil.Leptospirosis, testutil.Ofidismo, testutil.EDAS, testutil.TBTIA}
	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		var queue []FetchEffect
		var latest uint64

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0, 1:
				id := rapid.SampledFrom(ids).Draw(rt, "id")
				on := rapid.Bool().Draw(rt, "on")
				effects := h.c.ToggleDiagnosis(id, on)
				for _, c := range find[CancelFetchEffect](effects) {
					if c.Gen == latest {
						latest = 0
					}
				}
				for _, f := range find[FetchEffect](effects) {
					queue = append(queue, f)
					latest = f.Plan.Gen
				}
			case 2:
				if len(queue) == 0 {
					continue
				}
				j := rapid.IntRange(0, len(queue)-1).Draw(rt, "batch")
				fe := queue[j]
				queue = append(queue[:j], queue[j+1:]...)
				h.c.CommitBatch(h.run(fe))
				if fe.Plan.Gen == latest {
					latest = 0
				}
			case 3:
				h.c.Search(rapid.SampledFrom([]string{"lima", "alfa", "brena", ""}).Draw(rt, "query"))
				queue = queue[:0]
				latest = 0
				h.settle(h.c.Reset())
			}

			if h.c.Busy() != (latest != 0) {
				rt.Fatalf("busy=%v but latest outstanding gen=%d", h.c.Busy(), latest)
			}
			if key := h.c.ActiveKey(); key.Dataset != "" && latest == 0 && !h.c.Cache().Complete(key) {
				rt.Fatalf("idle without data for %s", key)
			}
		}
	})
}

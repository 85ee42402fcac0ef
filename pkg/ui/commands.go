package ui

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/engine"
)

// BatchMsg carries a finished fetch batch back to the event loop.
type BatchMsg struct {
	Batch casedata.Batch
}

// DetailMsg carries popup data back to the event loop.
type DetailMsg struct {
	Detail casedata.Detail
}

// noticeExpiredMsg hides the notice with the given sequence number.
type noticeExpiredMsg struct {
	seq int
}

// fetcher owns the contexts of running fetches. It is shared by every copy
// of the Model.
type fetcher struct {
	src   casedata.Source
	limit int

	mu      sync.Mutex
	batches map[uint64]context.CancelFunc
	detail  context.CancelFunc
}

func newFetcher(src casedata.Source, limit int) *fetcher {
	return &fetcher{src: src, limit: limit, batches: make(map[uint64]context.CancelFunc)}
}

func (f *fetcher) batch(plan casedata.Plan) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.batches[plan.Gen] = cancel
	f.mu.Unlock()
	return func() tea.Msg {
		b := casedata.FetchAll(ctx, f.src, plan, f.limit)
		f.release(plan.Gen)
		return BatchMsg{Batch: b}
	}
}

func (f *fetcher) release(gen uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cancel, ok := f.batches[gen]; ok {
		cancel()
		delete(f.batches, gen)
	}
}

func (f *fetcher) cancel(gen uint64) {
	debug.Log("ui: cancelling batch %d", gen)
	f.release(gen)
}

func (f *fetcher) fetchDetail(req casedata.DetailRequest) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	if f.detail != nil {
		f.detail()
	}
	f.detail = cancel
	f.mu.Unlock()
	return func() tea.Msg {
		d := casedata.FetchDetail(ctx, f.src, req)
		return DetailMsg{Detail: d}
	}
}

// stop cancels everything in flight.
func (f *fetcher) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for gen, cancel := range f.batches {
		cancel()
		delete(f.batches, gen)
	}
	if f.detail != nil {
		f.detail()
		f.detail = nil
	}
}

// inflight returns the number of running batches.
func (f *fetcher) inflight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// apply performs the effects emitted by the controller and returns the
// commands that carry out their IO.
func (m *Model) apply(effects []engine.Effect) tea.Cmd {
	var cmds []tea.Cmd
	for _, e := range effects {
		switch e := e.(type) {
		case engine.FetchEffect:
			debug.Log("ui: fetching %s (%d units, gen %d)", e.Plan.Key, len(e.Plan.Units), e.Plan.Gen)
			cmds = append(cmds, m.fetch.batch(e.Plan), m.spin.Tick)
		case engine.CancelFetchEffect:
			m.fetch.cancel(e.Gen)
		case engine.DetailEffect:
			cmds = append(cmds, m.fetch.fetchDetail(e.Request), m.spin.Tick)
		case engine.FitEffect:
			m.mapView.Fit(e.Bound, e.Options)
		case engine.FlyToEffect:
			m.mapView.SetViewport(e.Viewport)
		case engine.NoticeEffect:
			cmds = append(cmds, m.setNotice(e.Text, e.Err != nil))
		}
	}
	m.syncPopup()
	return tea.Batch(cmds...)
}

// setNotice shows a transient message in the status bar.
func (m *Model) setNotice(text string, isErr bool) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	m.noticeErr = isErr
	seq := m.noticeSeq
	d := m.noticeDuration
	if d <= 0 {
		d = 4 * time.Second
	}
	return tea.Tick(d, func(time.Time) tea.Msg { return noticeExpiredMsg{seq: seq} })
}

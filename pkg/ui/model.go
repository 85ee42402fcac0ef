package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/engine"
	"github.com/vanderheijden86/epimap/pkg/export"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
	"github.com/vanderheijden86/epimap/pkg/selection"
	"github.com/vanderheijden86/epimap/pkg/style"
)

type focusArea int

const (
	focusMap focusArea = iota
	focusSidebar
	focusSearch
)

// Chrome region names.
const (
	regionHeader      = "header"
	regionSidebar     = "sidebar"
	regionStatus      = "status"
	regionLegend      = "legend"
	regionPopup       = "popup"
	regionSuggestions = "suggestions"
	regionModal       = "modal"
)

const (
	defaultWidth        = 120
	defaultHeight       = 40
	defaultSidebarWidth = 34
	legendWidth         = 30
	headerTitle         = " epimap "

	// UTM zone of the coordinate readout.
	readoutZone = 19

	panCellsX = 8
	panCellsY = 4
)

// ReloadFunc reloads geometry and taxonomy from disk.
type ReloadFunc func() (*layertree.Tree, map[geo.Dataset]*geo.Collection, error)

// Options configures the dashboard.
type Options struct {
	Source           casedata.Source
	Concurrency      int
	BaseMap          string
	SidebarWidth     int
	NoticeDuration   time.Duration
	ShareURL         string
	ExportDir        string
	StateDir         string
	InitialDiagnoses []string

	// Reload is called when a value arrives on Changes.
	Reload  ReloadFunc
	Changes <-chan struct{}
}

// FileChangedMsg reports that the geometry or taxonomy files changed.
type FileChangedMsg struct{}

type reloadedMsg struct {
	tree  *layertree.Tree
	geoms map[geo.Dataset]*geo.Collection
	err   error
}

type exportDoneMsg struct {
	path string
	rows int
	err  error
}

type shareDoneMsg struct {
	err error
}

// Model is the bubbletea model of the dashboard. All controller calls
// happen on the event loop; fetches run as commands.
type Model struct {
	ctrl  *engine.Controller
	store *selection.Store
	opts  Options
	theme Theme
	keys  KeyMap
	help  help.Model

	fetch   *fetcher
	mapView MapView
	sidebar LayerTreeModel
	search  SearchBox
	popup   PopupView
	spin    spinner.Model

	confirm   *huh.Form
	confirmed *bool
	showHelp  bool

	focus        focusArea
	width        int
	height       int
	sidebarWidth int

	cursorX, cursorY int // map cell under the pointer
	hasCursor        bool

	legendRect  engine.Rect
	popupRect   engine.Rect
	suggestRect engine.Rect

	notice         string
	noticeErr      bool
	noticeSeq      int
	noticeDuration time.Duration

	initCmd tea.Cmd
}

// NewModel builds the dashboard around a controller.
func NewModel(ctrl *engine.Controller, opts Options) Model {
	theme := DefaultTheme(lipgloss.DefaultRenderer())
	store := ctrl.Store()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = theme.PrimaryBold

	sw := opts.SidebarWidth
	if sw <= 0 {
		sw = defaultSidebarWidth
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = casedata.DefaultConcurrency
	}

	m := Model{
		ctrl:           ctrl,
		store:          store,
		opts:           opts,
		theme:          theme,
		keys:           DefaultKeyMap(),
		help:           help.New(),
		fetch:          newFetcher(opts.Source, limit),
		mapView:        NewMapView(ctrl.Options().Home, opts.BaseMap),
		sidebar:        NewLayerTreeModel(store.Tree(), theme),
		search:         NewSearchBox(theme, ctrl.Autocomplete),
		popup:          NewPopupView(theme),
		spin:           sp,
		sidebarWidth:   sw,
		noticeDuration: opts.NoticeDuration,
	}
	m.help.ShowAll = true
	if opts.StateDir != "" {
		m.sidebar.SetStatePath(TreeStatePath(opts.StateDir))
	}
	m.resize(defaultWidth, defaultHeight)

	var effects []engine.Effect
	for _, id := range opts.InitialDiagnoses {
		effects = append(effects, ctrl.ToggleDiagnosis(id, true)...)
	}
	m.initCmd = m.apply(effects)
	m.layoutChrome()
	return m
}

// Init starts the initial fetches and the file watch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.initCmd, waitForChange(m.opts.Changes))
}

// Close cancels everything still in flight.
func (m Model) Close() {
	m.fetch.stop()
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return FileChangedMsg{}
	}
}

// Update handles a message and refreshes the chrome regions.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := m.update(msg)
	m.layoutChrome()
	return m, cmd
}

func (m Model) update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		if m.confirm != nil {
			m.confirm = m.confirm.WithWidth(min(48, msg.Width-4))
		}
		return m, nil

	case BatchMsg:
		return m, m.apply(m.ctrl.CommitBatch(msg.Batch))

	case DetailMsg:
		if m.ctrl.DetailLoaded(msg.Detail) {
			m.syncPopup()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.ctrl.Busy() && !m.popupLoading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
			m.noticeErr = false
		}
		return m, nil

	case FileChangedMsg:
		return m, tea.Batch(m.reloadCmd(), waitForChange(m.opts.Changes))

	case reloadedMsg:
		if msg.err != nil {
			debug.Log("ui: reload failed: %v", msg.err)
			return m, m.setNotice(fmt.Sprintf("Error al recargar: %v", msg.err), true)
		}
		effects := m.ctrl.Reload(msg.tree, msg.geoms)
		m.sidebar.SetTree(msg.tree)
		return m, tea.Batch(m.apply(effects), m.setNotice("Geometría recargada", false))

	case exportDoneMsg:
		if msg.err != nil {
			return m, m.setNotice(fmt.Sprintf("Error al exportar: %v", msg.err), true)
		}
		return m, m.setNotice(fmt.Sprintf("%d registros exportados a %s", msg.rows, msg.path), false)

	case shareDoneMsg:
		if msg.err != nil {
			return m, m.setNotice(fmt.Sprintf("No se pudo copiar: %v", msg.err), true)
		}
		return m, m.setNotice("Enlace copiado al portapapeles", false)
	}

	if m.confirm != nil {
		return m.updateConfirm(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.MouseMsg:
		return m.handleMouse(msg)
	}
	return m, nil
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	sw := min(m.sidebarWidth, w/2)
	bodyH := max(h-2, 1)
	m.sidebar.SetSize(max(sw-2, 1), max(bodyH-2, 1))
	m.mapView.SetSize(w-sw, bodyH)
	m.popup.SetSize(w-sw, bodyH)
	m.search.SetWidth(max(w-len(headerTitle)-1, 10))
	m.help.Width = w - 4
}

func (m Model) sidebarCols() int {
	return min(m.sidebarWidth, m.width/2)
}

// mapCell converts a screen cell to a map cell.
func (m Model) mapCell(x, y int) (int, int, bool) {
	cx, cy := x-m.sidebarCols(), y-1
	w, h := m.mapView.Size()
	if cx < 0 || cy < 0 || cx >= w || cy >= h {
		return 0, 0, false
	}
	return cx, cy, true
}

func (m Model) popupLoading() bool {
	p := m.ctrl.Popup()
	return p != nil && p.Loading()
}

func (m *Model) syncPopup() {
	m.popup.Sync(m.ctrl.Popup(), m.store.Tree().DisplayName)
}

// layoutChrome registers every region drawn over or beside the map, so map
// clicks inside them are ignored.
func (m *Model) layoutChrome() {
	ch := m.ctrl.Chrome()
	sw := m.sidebarCols()
	mapW, mapH := m.mapView.Size()

	ch.Set(regionHeader, engine.Rect{X: 0, Y: 0, W: m.width, H: 1})
	ch.Set(regionSidebar, engine.Rect{X: 0, Y: 1, W: sw, H: mapH})
	ch.Set(regionStatus, engine.Rect{X: 0, Y: m.height - 1, W: m.width, H: 1})

	m.legendRect = engine.Rect{}
	if lg := renderLegend(m.ctrl.Legend(), m.theme, m.activeIsRate(), legendWidth); lg != "" {
		r := blockRect(0, 0, lg)
		r.X = sw + mapW - r.W - 1
		r.Y = 1 + mapH - r.H
		if r.X >= sw && r.Y >= 1 {
			m.legendRect = r
		}
	}
	ch.Set(regionLegend, m.legendRect)

	m.popupRect = engine.Rect{}
	if p := m.ctrl.Popup(); p != nil {
		r := blockRect(0, 0, m.popup.View(p, m.spin.View()))
		r.X = sw + mapW - r.W - 1
		r.Y = 2
		m.popupRect = r
	}
	ch.Set(regionPopup, m.popupRect)

	m.suggestRect = engine.Rect{}
	if dd := m.search.DropdownView(); dd != "" {
		r := blockRect(0, 0, dd)
		r.X = len(headerTitle) + 1
		r.Y = 1
		m.suggestRect = r
	}
	ch.Set(regionSuggestions, m.suggestRect)

	if m.confirm != nil || m.showHelp {
		ch.Set(regionModal, engine.Rect{X: 0, Y: 0, W: m.width, H: m.height})
	} else {
		ch.Remove(regionModal)
	}
}

func (m Model) activeIsRate() bool {
	return style.IsRateDataset(m.store.ActiveDiagnosis())
}

func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.fetch.stop()
		return m, tea.Quit
	}
	if m.search.Focused() {
		return m.handleSearchKey(msg)
	}
	if m.sidebar.Filtering() {
		return m.handleFilterKey(msg)
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Escape, m.keys.Quit) {
			m.showHelp = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.fetch.stop()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Search):
		m.focus = focusSearch
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.FocusNext):
		if m.focus == focusSidebar {
			m.focus = focusMap
		} else {
			m.focus = focusSidebar
		}
		return m, nil
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.BaseMap):
		b := m.mapView.CycleBase()
		return m, m.setNotice("Mapa base: "+b.Name, false)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.apply(m.ctrl.Refresh())
	case key.Matches(msg, m.keys.Reset):
		return m, m.openConfirm()
	case key.Matches(msg, m.keys.Export):
		return m, m.exportCmd()
	case key.Matches(msg, m.keys.Share):
		return m, m.shareCmd()
	case key.Matches(msg, m.keys.Home):
		m.mapView.SetViewport(m.ctrl.Options().Home)
		return m, nil
	case key.Matches(msg, m.keys.Escape):
		if m.ctrl.Popup() != nil {
			m.ctrl.ClosePopup()
			m.syncPopup()
		}
		return m, nil
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleMapKey(msg)
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.Blur()
		m.focus = focusMap
		return m, nil
	case "enter":
		var effects []engine.Effect
		if s, ok := m.search.Picked(); ok {
			m.search.SetValue(s.Name)
			effects = m.ctrl.SelectSuggestion(s)
		} else {
			effects = m.ctrl.Search(m.search.Value())
		}
		m.search.Blur()
		m.focus = focusMap
		return m, m.apply(effects)
	case "down", "ctrl+n":
		m.search.Next()
		return m, nil
	case "up", "ctrl+p":
		m.search.Prev()
		return m, nil
	}
	return m, m.search.Update(msg)
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.sidebar.StopFilter(true)
		return m, nil
	case "enter":
		m.sidebar.StopFilter(false)
		return m, nil
	}
	return m, m.sidebar.UpdateFilter(msg)
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.sidebar.MoveUp()
	case key.Matches(msg, m.keys.Down):
		m.sidebar.MoveDown()
	case key.Matches(msg, m.keys.PageUp):
		m.sidebar.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.sidebar.PageDown()
	case key.Matches(msg, m.keys.Left):
		m.sidebar.Collapse()
	case key.Matches(msg, m.keys.Right):
		m.sidebar.Expand()
	case key.Matches(msg, m.keys.Expand):
		m.sidebar.ToggleExpand()
	case key.Matches(msg, m.keys.Filter):
		return m, m.sidebar.StartFilter()
	case key.Matches(msg, m.keys.Toggle):
		if n, ok := m.sidebar.SelectedNode(); ok {
			return m, m.apply(m.ctrl.ToggleLayer(n.ID, !m.store.Checked(n.ID)))
		}
	}
	return m, nil
}

func (m Model) handleMapKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	popupOpen := m.ctrl.Popup() != nil
	switch {
	case popupOpen && key.Matches(msg, m.keys.PageUp):
		m.popup.ScrollUp()
	case popupOpen && key.Matches(msg, m.keys.PageDown):
		m.popup.ScrollDown()
	case key.Matches(msg, m.keys.PanUp):
		m.mapView.Pan(0, -panCellsY)
	case key.Matches(msg, m.keys.PanDown):
		m.mapView.Pan(0, panCellsY)
	case key.Matches(msg, m.keys.PanLeft):
		m.mapView.Pan(-panCellsX, 0)
	case key.Matches(msg, m.keys.PanRight):
		m.mapView.Pan(panCellsX, 0)
	case key.Matches(msg, m.keys.ZoomIn):
		m.mapView.ZoomBy(1)
	case key.Matches(msg, m.keys.ZoomOut):
		m.mapView.ZoomBy(-1)
	case key.Matches(msg, m.keys.Select):
		cx, cy := m.cursorX, m.cursorY
		if !m.hasCursor {
			w, h := m.mapView.Size()
			cx, cy = w/2, h/2
		}
		return m, m.apply(m.ctrl.MapClick(m.mapView.PointAt(cx, cy)))
	}
	return m, nil
}

func (m Model) handleMouse(msg tea.MouseMsg) (Model, tea.Cmd) {
	ev := tea.MouseEvent(msg)
	name, onChrome := m.ctrl.Chrome().Hit(ev.X, ev.Y)

	switch {
	case ev.Action == tea.MouseActionMotion:
		if cx, cy, ok := m.mapCell(ev.X, ev.Y); ok && !onChrome {
			m.cursorX, m.cursorY, m.hasCursor = cx, cy, true
		}
		return m, nil

	case ev.Button == tea.MouseButtonWheelUp || ev.Button == tea.MouseButtonWheelDown:
		up := ev.Button == tea.MouseButtonWheelUp
		switch {
		case name == regionPopup && up:
			m.popup.ScrollUp()
		case name == regionPopup:
			m.popup.ScrollDown()
		case name == regionSidebar && up:
			m.sidebar.MoveUp()
		case name == regionSidebar:
			m.sidebar.MoveDown()
		case !onChrome && up:
			m.mapView.ZoomBy(1)
		case !onChrome:
			m.mapView.ZoomBy(-1)
		}
		return m, nil

	case ev.Action == tea.MouseActionPress && ev.Button == tea.MouseButtonLeft:
		return m.click(ev.X, ev.Y, name)
	}
	return m, nil
}

// click routes a left click: chrome regions handle their own clicks, the
// rest goes to the controller as a map click.
func (m Model) click(x, y int, region string) (Model, tea.Cmd) {
	switch region {
	case regionSidebar:
		m.focus = focusSidebar
		return m, m.clickSidebar(x, y)
	case regionPopup:
		r := m.popupRect
		if m.popup.CloseHit(x-r.X, y-r.Y) {
			m.ctrl.ClosePopup()
			m.syncPopup()
		}
		return m, nil
	case regionSuggestions:
		if s, ok := m.search.SuggestionAt(y - m.suggestRect.Y); ok {
			m.search.SetValue(s.Name)
			m.search.Blur()
			m.focus = focusMap
			return m, m.apply(m.ctrl.SelectSuggestion(s))
		}
		return m, nil
	case regionHeader:
		m.focus = focusSearch
		return m, m.search.Focus()
	case regionModal:
		m.showHelp = false
		return m, nil
	}

	cx, cy, ok := m.mapCell(x, y)
	if !ok {
		return m, nil
	}
	if m.search.Focused() {
		m.search.Blur()
	}
	m.focus = focusMap
	m.cursorX, m.cursorY, m.hasCursor = cx, cy, true
	return m, m.apply(m.ctrl.PointerClick(x, y, m.mapView.PointAt(cx, cy)))
}

// clickSidebar toggles the checkbox of the clicked row, or expands it when
// the click lands on the expander.
func (m *Model) clickSidebar(x, y int) tea.Cmd {
	n, ok := m.sidebar.RowAt(y - 2) // top border, then the panel
	if !ok {
		return nil
	}
	if !n.IsLeaf() && x-1 == n.Depth*2 {
		m.sidebar.ToggleExpand()
		return nil
	}
	return m.apply(m.ctrl.ToggleLayer(n.ID, !m.store.Checked(n.ID)))
}

func (m *Model) openConfirm() tea.Cmd {
	yes := false
	m.confirmed = &yes
	m.confirm = huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("¿Limpiar todos los filtros?").
			Description("Se quitan capas, diagnósticos y resaltados y se vacía la caché.").
			Affirmative("Sí").
			Negative("No").
			Value(m.confirmed),
	)).WithTheme(huh.ThemeDracula()).WithShowHelp(false).WithWidth(min(48, m.width-4))
	return m.confirm.Init()
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok && k.String() == "ctrl+c" {
		m.fetch.stop()
		return m, tea.Quit
	}
	form, cmd := m.confirm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.confirm = f
	}
	switch m.confirm.State {
	case huh.StateCompleted:
		yes := *m.confirmed
		m.confirm, m.confirmed = nil, nil
		if yes {
			return m, m.reset()
		}
		return m, nil
	case huh.StateAborted:
		m.confirm, m.confirmed = nil, nil
		return m, nil
	}
	return m, cmd
}

func (m *Model) reset() tea.Cmd {
	effects := m.ctrl.Reset()
	m.sidebar.StopFilter(true)
	m.search.SetValue("")
	m.search.Blur()
	m.focus = focusMap
	return tea.Batch(m.apply(effects), m.setNotice("Filtros reiniciados", false))
}

func (m *Model) exportCmd() tea.Cmd {
	key := m.ctrl.ActiveKey()
	if key.Dataset == "" || !m.ctrl.Cache().Complete(key) {
		return m.setNotice("No hay datos cargados para exportar", true)
	}
	records := m.ctrl.Cache().Records(key)
	dir := m.opts.ExportDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, export.CasesFileName(key, time.Now()))
	return func() tea.Msg {
		n, err := export.WriteCasesDB(context.Background(), path, key, records)
		return exportDoneMsg{path: path, rows: n, err: err}
	}
}

func (m *Model) shareCmd() tea.Cmd {
	url := strings.TrimSpace(m.opts.ShareURL)
	if url == "" {
		return m.setNotice("No hay URL configurada para compartir", true)
	}
	return func() tea.Msg {
		return shareDoneMsg{err: clipboard.WriteAll(url)}
	}
}

func (m Model) reloadCmd() tea.Cmd {
	reload := m.opts.Reload
	if reload == nil {
		return nil
	}
	return func() tea.Msg {
		tree, geoms, err := reload()
		return reloadedMsg{tree: tree, geoms: geoms, err: err}
	}
}

// View renders the whole screen.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	header := m.renderHeader()
	sidebar := m.renderSidebar()

	res := style.NewResolver(m.store, m.ctrl.Cache())
	coll := m.ctrl.Collection(m.store.Geography())
	canvas := m.mapView.Render(coll, res, m.theme)

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, canvas)
	screen := header + "\n" + body + "\n" + m.renderStatus()

	if !m.legendRect.Empty() {
		lg := renderLegend(m.ctrl.Legend(), m.theme, m.activeIsRate(), legendWidth)
		screen = placeOverlay(m.legendRect.X, m.legendRect.Y, lg, screen)
	}
	if p := m.ctrl.Popup(); p != nil && !m.popupRect.Empty() {
		screen = placeOverlay(m.popupRect.X, m.popupRect.Y, m.popup.View(p, m.spin.View()), screen)
	}
	if !m.suggestRect.Empty() {
		screen = placeOverlay(m.suggestRect.X, m.suggestRect.Y, m.search.DropdownView(), screen)
	}
	if m.confirm != nil {
		screen = m.centered(m.theme.PanelFocused.Render(m.confirm.View()), screen)
	} else if m.showHelp {
		box := m.theme.PanelFocused.Render(m.theme.Title.Render("Atajos") + "\n\n" + m.help.View(m.keys))
		screen = m.centered(box, screen)
	}
	return screen
}

func (m Model) centered(box, screen string) string {
	r := blockRect(0, 0, box)
	return placeOverlay(max((m.width-r.W)/2, 0), max((m.height-r.H)/2, 0), box, screen)
}

func (m Model) renderHeader() string {
	title := m.theme.Header.Render(strings.TrimSpace(headerTitle))
	line := title + " " + m.search.View()
	if w := ansi.StringWidth(line); w < m.width {
		return line + strings.Repeat(" ", m.width-w)
	}
	return ansi.Truncate(line, m.width, "")
}

func (m Model) renderSidebar() string {
	sw := m.sidebarCols()
	_, h := m.mapView.Size()
	panel := m.theme.Panel
	if m.focus == focusSidebar {
		panel = m.theme.PanelFocused
	}
	return panel.
		Width(max(sw-2, 1)).
		Height(max(h-2, 1)).
		MaxHeight(h).
		Render(m.sidebar.View(m.store, m.focus == focusSidebar))
}

func (m Model) renderStatus() string {
	var left []string
	if m.ctrl.Busy() {
		name := m.store.Tree().DisplayName(m.store.ActiveDiagnosis())
		left = append(left, m.spin.View()+" cargando "+name)
	}
	geoLabel := m.store.Geography().Label()
	if !m.store.DatasetVisible() {
		geoLabel += " (oculto)"
	}
	left = append(left, geoLabel)
	if id := m.store.ActiveDiagnosis(); id != "" && !m.ctrl.Busy() {
		left = append(left, m.store.Tree().DisplayName(id))
	}
	if m.hasCursor {
		pt := m.mapView.PointAt(m.cursorX, m.cursorY)
		utm := geo.ToUTM(pt, readoutZone, true)
		left = append(left, formatCoord(pt.Lon(), pt.Lat())+"  UTM "+utm.String())
	}
	if m.notice != "" {
		st := m.theme.Notice
		if m.noticeErr {
			st = m.theme.Error
		}
		left = append(left, st.Render(m.notice))
	}

	vp := m.mapView.Viewport()
	right := fmt.Sprintf("%s · z%.1f · ? ayuda", m.mapView.Base().Name, vp.Zoom)
	leftStr := strings.Join(left, " │ ")
	gap := m.width - 2 - lipglossWidth(leftStr) - lipglossWidth(right)
	if gap < 1 {
		return m.theme.StatusBar.Width(m.width).MaxWidth(m.width).Render(leftStr)
	}
	return m.theme.StatusBar.Width(m.width).Render(leftStr + strings.Repeat(" ", gap) + right)
}

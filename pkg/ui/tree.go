package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	json "github.com/goccy/go-json"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/layertree"
)

// TreeState is the persisted expand/collapse state of the layer sidebar.
type TreeState struct {
	Version  int      `json:"version"`
	Expanded []string `json:"expanded"`
}

const treeStateVersion = 1

// TreeStatePath returns the state file inside a state directory.
func TreeStatePath(stateDir string) string {
	return filepath.Join(stateDir, "sidebar.json")
}

// Checked reports the checkbox state of a layer.
type Checked interface {
	Checked(id string) bool
	ActiveDiagnosis() string
}

type treeRow struct {
	node  layertree.Node
	depth int
}

// LayerTreeModel is the sidebar: the layer catalog as a collapsible
// checkbox tree with a name filter.
type LayerTreeModel struct {
	tree      *layertree.Tree
	theme     Theme
	expanded  map[string]bool
	rows      []treeRow
	cursor    int
	offset    int
	width     int
	height    int
	filter    textinput.Model
	filtering bool
	result    layertree.FilterResult
	statePath string
}

// NewLayerTreeModel creates the sidebar with the root expanded.
func NewLayerTreeModel(tree *layertree.Tree, theme Theme) LayerTreeModel {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filtrar capas"
	ti.CharLimit = 64

	t := LayerTreeModel{
		tree:     tree,
		theme:    theme,
		expanded: map[string]bool{tree.Root().ID: true},
		filter:   ti,
	}
	t.rebuild()
	return t
}

// SetStatePath enables persistence of the expanded nodes and loads any
// saved state.
func (t *LayerTreeModel) SetStatePath(path string) {
	t.statePath = path
	t.loadState()
}

func (t *LayerTreeModel) loadState() {
	if t.statePath == "" {
		return
	}
	data, err := os.ReadFile(t.statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			debug.Log("ui: reading sidebar state: %v", err)
		}
		return
	}
	var st TreeState
	if err := json.Unmarshal(data, &st); err != nil || st.Version != treeStateVersion {
		debug.Log("ui: ignoring sidebar state %s: %v", t.statePath, err)
		return
	}
	for _, id := range st.Expanded {
		if t.tree.Has(id) {
			t.expanded[id] = true
		}
	}
	t.rebuild()
}

func (t *LayerTreeModel) saveState() {
	if t.statePath == "" {
		return
	}
	st := TreeState{Version: treeStateVersion}
	t.tree.Walk(func(n layertree.Node) bool {
		if t.expanded[n.ID] {
			st.Expanded = append(st.Expanded, n.ID)
		}
		return true
	})
	data, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.statePath), 0o755); err != nil {
		debug.Log("ui: sidebar state dir: %v", err)
		return
	}
	if err := os.WriteFile(t.statePath, data, 0o644); err != nil {
		debug.Log("ui: writing sidebar state: %v", err)
	}
}

// SetTree swaps in a rebuilt tree, keeping the expansion of nodes that
// still exist.
func (t *LayerTreeModel) SetTree(tree *layertree.Tree) {
	t.tree = tree
	for id := range t.expanded {
		if !tree.Has(id) {
			delete(t.expanded, id)
		}
	}
	t.expanded[tree.Root().ID] = true
	if t.filtering || t.filter.Value() != "" {
		t.result = tree.Filter(t.filter.Value())
	}
	t.rebuild()
}

// SetSize sets the sidebar area, borders excluded.
func (t *LayerTreeModel) SetSize(width, height int) {
	t.width, t.height = width, height
	t.filter.Width = max(width-4, 1)
	t.ensureCursorVisible()
}

func (t *LayerTreeModel) rebuild() {
	var current string
	if n, ok := t.SelectedNode(); ok {
		current = n.ID
	}
	t.rows = t.rows[:0]
	var walk func(n layertree.Node, depth int)
	walk = func(n layertree.Node, depth int) {
		if !t.result.Shows(n.ID) {
			return
		}
		t.rows = append(t.rows, treeRow{node: n, depth: depth})
		if !t.isExpanded(n.ID) {
			return
		}
		for _, c := range n.Children {
			walk(t.tree.At(c), depth+1)
		}
	}
	walk(t.tree.Root(), 0)

	t.cursor = 0
	for i, r := range t.rows {
		if r.node.ID == current {
			t.cursor = i
			break
		}
	}
	t.ensureCursorVisible()
}

// isExpanded reports whether children are drawn. An active filter opens
// every ancestor of a match.
func (t *LayerTreeModel) isExpanded(id string) bool {
	if t.result.Active() {
		return true
	}
	return t.expanded[id]
}

func (t *LayerTreeModel) visibleCount() int {
	n := t.height - 1 // header
	if t.filtering || t.filter.Value() != "" {
		n--
	}
	return max(n, 1)
}

func (t *LayerTreeModel) ensureCursorVisible() {
	page := t.visibleCount()
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+page {
		t.offset = t.cursor - page + 1
	}
	if t.offset < 0 {
		t.offset = 0
	}
}

// Len returns the number of visible rows.
func (t *LayerTreeModel) Len() int {
	return len(t.rows)
}

// SelectedNode returns the node under the cursor.
func (t *LayerTreeModel) SelectedNode() (layertree.Node, bool) {
	if t.cursor < 0 || t.cursor >= len(t.rows) {
		return layertree.Node{}, false
	}
	return t.rows[t.cursor].node, true
}

// MoveDown moves the cursor down.
func (t *LayerTreeModel) MoveDown() {
	if t.cursor < len(t.rows)-1 {
		t.cursor++
		t.ensureCursorVisible()
	}
}

// MoveUp moves the cursor up.
func (t *LayerTreeModel) MoveUp() {
	if t.cursor > 0 {
		t.cursor--
		t.ensureCursorVisible()
	}
}

// PageDown moves the cursor a page down.
func (t *LayerTreeModel) PageDown() {
	t.cursor = min(t.cursor+t.visibleCount(), len(t.rows)-1)
	t.ensureCursorVisible()
}

// PageUp moves the cursor a page up.
func (t *LayerTreeModel) PageUp() {
	t.cursor = max(t.cursor-t.visibleCount(), 0)
	t.ensureCursorVisible()
}

// ToggleExpand opens or closes the node under the cursor.
func (t *LayerTreeModel) ToggleExpand() {
	n, ok := t.SelectedNode()
	if !ok || n.IsLeaf() || t.result.Active() {
		return
	}
	t.expanded[n.ID] = !t.expanded[n.ID]
	t.rebuild()
	t.saveState()
}

// Collapse closes the node under the cursor, or jumps to its parent when
// it is a leaf or already closed.
func (t *LayerTreeModel) Collapse() {
	n, ok := t.SelectedNode()
	if !ok {
		return
	}
	if !n.IsLeaf() && t.expanded[n.ID] && !t.result.Active() {
		t.expanded[n.ID] = false
		t.rebuild()
		t.saveState()
		return
	}
	if n.Parent < 0 {
		return
	}
	parent := t.tree.At(n.Parent).ID
	for i, r := range t.rows {
		if r.node.ID == parent {
			t.cursor = i
			t.ensureCursorVisible()
			return
		}
	}
}

// Expand opens the node under the cursor.
func (t *LayerTreeModel) Expand() {
	n, ok := t.SelectedNode()
	if !ok || n.IsLeaf() || t.expanded[n.ID] {
		return
	}
	t.expanded[n.ID] = true
	t.rebuild()
	t.saveState()
}

// Reveal expands the ancestors of id and moves the cursor onto it.
func (t *LayerTreeModel) Reveal(id string) {
	path := t.tree.Path(id)
	if len(path) == 0 {
		return
	}
	for _, p := range path[:len(path)-1] {
		t.expanded[p] = true
	}
	t.rebuild()
	for i, r := range t.rows {
		if r.node.ID == id {
			t.cursor = i
			break
		}
	}
	t.ensureCursorVisible()
}

// RowAt returns the node drawn at sidebar line y (0 is the header).
func (t *LayerTreeModel) RowAt(y int) (layertree.Node, bool) {
	first := 1
	if t.filtering || t.filter.Value() != "" {
		first++
	}
	i := t.offset + y - first
	if y < first || i < 0 || i >= len(t.rows) || i >= t.offset+t.visibleCount() {
		return layertree.Node{}, false
	}
	t.cursor = i
	return t.rows[i].node, true
}

// Filtering reports whether the filter input has focus.
func (t *LayerTreeModel) Filtering() bool {
	return t.filtering
}

// StartFilter focuses the filter input.
func (t *LayerTreeModel) StartFilter() tea.Cmd {
	t.filtering = true
	return t.filter.Focus()
}

// StopFilter blurs the filter input; clear also drops the query.
func (t *LayerTreeModel) StopFilter(clear bool) {
	t.filtering = false
	t.filter.Blur()
	if clear {
		t.filter.SetValue("")
		t.result = layertree.FilterResult{}
		t.rebuild()
	}
}

// UpdateFilter feeds a key to the filter input and reapplies the filter.
func (t *LayerTreeModel) UpdateFilter(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	before := t.filter.Value()
	t.filter, cmd = t.filter.Update(msg)
	if t.filter.Value() != before {
		t.result = t.tree.Filter(t.filter.Value())
		t.rebuild()
	}
	return cmd
}

// checkbox renders the selection state: categories show a partial mark
// when only some descendants are selected.
func (t *LayerTreeModel) checkbox(n layertree.Node, sel Checked) string {
	if sel.Checked(n.ID) {
		return t.theme.Checked.Render("[x]")
	}
	if n.Kind == layertree.KindCategory && partial(t.tree, n, sel) {
		return t.theme.Partial.Render("[-]")
	}
	return "[ ]"
}

func (t *LayerTreeModel) expander(n layertree.Node) string {
	if n.IsLeaf() {
		return " "
	}
	if t.isExpanded(n.ID) {
		return "▾"
	}
	return "▸"
}

// View renders the sidebar into width x height cells.
func (t *LayerTreeModel) View(sel Checked, focused bool) string {
	var sb strings.Builder
	sb.WriteString(t.theme.Title.Render("Capas"))
	if page := t.visibleCount(); len(t.rows) > page {
		last := min(t.offset+page, len(t.rows))
		sb.WriteString(t.theme.MutedText.Render(fmt.Sprintf(" %d-%d de %d", t.offset+1, last, len(t.rows))))
	}

	if t.filtering || t.filter.Value() != "" {
		sb.WriteString("\n")
		sb.WriteString(t.filter.View())
	}

	if len(t.rows) == 0 {
		sb.WriteString("\n")
		sb.WriteString(t.theme.MutedText.Render(fmt.Sprintf("sin coincidencias para %q", t.filter.Value())))
		return sb.String()
	}

	active := sel.ActiveDiagnosis()
	end := min(t.offset+t.visibleCount(), len(t.rows))
	for i := t.offset; i < end; i++ {
		r := t.rows[i]
		prefix := strings.Repeat("  ", r.depth) + t.expander(r.node) + " "
		mark := " "
		if r.node.ID == active {
			mark = t.theme.PrimaryBold.Render("●")
		}
		nameWidth := t.width - runewidth.StringWidth(prefix) - 5
		name := truncate(r.node.Name, max(nameWidth, 1))
		if i == t.cursor && focused {
			line := fit(prefix+plainCheckbox(t.tree, r.node, sel)+" "+name, t.width)
			sb.WriteString("\n")
			sb.WriteString(t.theme.Selected.Render(line))
			continue
		}
		if t.result.Matched[r.node.ID] {
			name = t.theme.Match.Render(name)
		}
		line := prefix + t.checkbox(r.node, sel) + mark + name
		sb.WriteString("\n")
		sb.WriteString(line)
	}
	return sb.String()
}

// plainCheckbox is the unstyled checkbox used on the cursor row.
func plainCheckbox(tree *layertree.Tree, n layertree.Node, sel Checked) string {
	if sel.Checked(n.ID) {
		return "[x]"
	}
	if n.Kind == layertree.KindCategory && partial(tree, n, sel) {
		return "[-]"
	}
	return "[ ]"
}

func partial(tree *layertree.Tree, n layertree.Node, sel Checked) bool {
	closure, err := tree.Closure(n.ID)
	if err != nil {
		return false
	}
	for _, id := range closure[1:] {
		if sel.Checked(id) {
			return true
		}
	}
	return false
}

package ui

import (
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/vanderheijden86/epimap/pkg/layertree"
	"github.com/vanderheijden86/epimap/pkg/testutil"
)

type fakeChecked struct {
	selected map[string]bool
	active   string
}

func (f fakeChecked) Checked(id string) bool  { return f.selected[id] }
func (f fakeChecked) ActiveDiagnosis() string { return f.active }

func newTestTree(t *testing.T) LayerTreeModel {
	t.Helper()
	w, err := testutil.NewDefault().LimaWorld()
	if err != nil {
		t.Fatalf("LimaWorld: %v", err)
	}
	tm := NewLayerTreeModel(w.Tree, TestTheme())
	tm.SetSize(30, 20)
	return tm
}

func rowIDs(tm LayerTreeModel) []string {
	ids := make([]string, len(tm.rows))
	for i, r := range tm.rows {
		ids[i] = r.node.ID
	}
	return ids
}

func TestLayerTree_RootExpandedByDefault(t *testing.T) {
	tm := newTestTree(t)
	testutil.AssertKeys(t, rowIDs(tm),
		"vigilancia", "zoonosis", testutil.EDAS, testutil.TBTIA,
		layertree.DistrictGroupID, layertree.FacilityGroupID)
}

func TestLayerTree_ExpandCollapse(t *testing.T) {
	tm := newTestTree(t)
	tm.MoveDown() // zoonosis
	tm.ToggleExpand()
	if tm.Len() != 8 {
		t.Fatalf("rows after expand = %d, want 8", tm.Len())
	}
	tm.MoveDown() // leptospirosis
	tm.Collapse()
	if n, _ := tm.SelectedNode(); n.ID != "zoonosis" {
		t.Fatalf("collapse on a leaf should jump to the parent, got %q", n.ID)
	}
	tm.Collapse()
	if tm.Len() != 6 {
		t.Errorf("rows after collapse = %d, want 6", tm.Len())
	}
}

func TestLayerTree_CursorBounds(t *testing.T) {
	tm := newTestTree(t)
	tm.MoveUp()
	if n, _ := tm.SelectedNode(); n.ID != "vigilancia" {
		t.Errorf("cursor moved above the first row: %q", n.ID)
	}
	for range 20 {
		tm.MoveDown()
	}
	if n, _ := tm.SelectedNode(); n.ID != layertree.FacilityGroupID {
		t.Errorf("cursor moved past the last row: %q", n.ID)
	}
}

func TestLayerTree_FilterShowsAncestors(t *testing.T) {
	tm := newTestTree(t)
	tm.StartFilter()
	tm.UpdateFilter(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("lepto")})
	testutil.AssertKeys(t, rowIDs(tm), "vigilancia", "zoonosis", testutil.Leptospirosis)

	tm.StopFilter(true)
	if tm.Len() != 6 {
		t.Errorf("rows after clearing the filter = %d", tm.Len())
	}
}

func TestLayerTree_FilterNoMatch(t *testing.T) {
	tm := newTestTree(t)
	tm.StartFilter()
	tm.UpdateFilter(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("zzz")})
	if tm.Len() != 0 {
		t.Fatalf("rows = %d", tm.Len())
	}
	view := ansi.Strip(tm.View(fakeChecked{}, true))
	if !strings.Contains(view, "sin coincidencias") {
		t.Errorf("view = %q", view)
	}
}

func TestLayerTree_Checkboxes(t *testing.T) {
	tm := newTestTree(t)
	tm.Reveal(testutil.Leptospirosis)
	sel := fakeChecked{
		selected: map[string]bool{testutil.Leptospirosis: true, testutil.EDAS: true},
		active:   testutil.EDAS,
	}
	view := ansi.Strip(tm.View(sel, false))
	lines := strings.Split(view, "\n")

	find := func(name string) string {
		for _, l := range lines {
			if strings.Contains(l, name) {
				return l
			}
		}
		t.Fatalf("row %q not drawn in\n%s", name, view)
		return ""
	}
	if l := find("Zoonosis"); !strings.Contains(l, "[-]") {
		t.Errorf("partial category not marked: %q", l)
	}
	if l := find("Leptospirosis"); !strings.Contains(l, "[x]") {
		t.Errorf("selected diagnosis not checked: %q", l)
	}
	if l := find("Ofidismo"); !strings.Contains(l, "[ ]") {
		t.Errorf("unselected diagnosis checked: %q", l)
	}
	if l := find("EDAS"); !strings.Contains(l, "●") {
		t.Errorf("active diagnosis not marked: %q", l)
	}
}

func TestLayerTree_RowAt(t *testing.T) {
	tm := newTestTree(t)
	if _, ok := tm.RowAt(0); ok {
		t.Error("title line resolved to a row")
	}
	n, ok := tm.RowAt(2)
	if !ok || n.ID != "zoonosis" {
		t.Errorf("RowAt(2) = %q, %v", n.ID, ok)
	}
	if got, _ := tm.SelectedNode(); got.ID != "zoonosis" {
		t.Error("RowAt did not move the cursor")
	}
}

func TestLayerTree_Scrolls(t *testing.T) {
	tm := newTestTree(t)
	tm.SetSize(30, 4)
	tm.Reveal(layertree.FacilityGroupID)
	if tm.offset == 0 {
		t.Fatal("window did not scroll to the cursor")
	}
	view := ansi.Strip(tm.View(fakeChecked{}, true))
	if !strings.Contains(view, "Establecimientos") {
		t.Errorf("cursor row not visible:\n%s", view)
	}
	if !strings.Contains(view, "de 6") {
		t.Errorf("position indicator missing:\n%s", view)
	}
}

func TestLayerTree_PersistsExpansion(t *testing.T) {
	path := TreeStatePath(filepath.Join(t.TempDir(), "state"))
	tm := newTestTree(t)
	tm.SetStatePath(path)
	tm.MoveDown()
	tm.ToggleExpand()

	again := newTestTree(t)
	again.SetStatePath(path)
	if again.Len() != 8 {
		t.Errorf("expansion not restored: %d rows", again.Len())
	}
}

func TestLayerTree_SetTreeKeepsExpansion(t *testing.T) {
	tm := newTestTree(t)
	tm.MoveDown()
	tm.ToggleExpand()

	w, err := testutil.NewDefault().World([]string{"Solo"}, []string{"Solo"})
	if err != nil {
		t.Fatalf("World: %v", err)
	}
	tm.SetTree(w.Tree)
	if tm.Len() != 8 {
		t.Errorf("rows = %d, want 8", tm.Len())
	}
}

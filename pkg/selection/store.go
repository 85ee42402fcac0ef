// Package selection holds the mutable dashboard selection: shown layers,
// the ordered diagnosis list, highlighted units and the active geography.
//
// A Store is owned by the UI event loop and is not safe for concurrent use.
// Every mutation commits a consistent state and then notifies subscribers
// synchronously, so renderers only ever observe whole transitions.
package selection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/layertree"
)

// ErrInvalidSelection is returned for ids absent from the layer tree or of
// the wrong kind for the operation. Callers log it and carry on.
var ErrInvalidSelection = errors.New("invalid selection")

// HighlightKind is the source of a unit highlight.
type HighlightKind int

const (
	HighlightSearch HighlightKind = iota
	HighlightClick
	HighlightPanel
)

func (k HighlightKind) String() string {
	switch k {
	case HighlightSearch:
		return "search"
	case HighlightClick:
		return "click"
	case HighlightPanel:
		return "panel"
	default:
		return fmt.Sprintf("highlight(%d)", int(k))
	}
}

// Change is a bit set describing what a mutation touched.
type Change uint8

const (
	ChangeLayers Change = 1 << iota
	ChangeDiagnoses
	ChangeHighlight
	ChangeGeography
	ChangeTree
)

// Has reports whether c includes any of the bits in o.
func (c Change) Has(o Change) bool {
	return c&o != 0
}

// Event is delivered to subscribers after each committed mutation.
type Event struct {
	Change      Change
	Version     uint64
	PrevActive  string // active diagnosis before the mutation
	Active      string // active diagnosis after the mutation
	PrevDataset geo.Dataset
	Dataset     geo.Dataset
}

// ActiveChanged reports whether the painted diagnosis changed.
func (e Event) ActiveChanged() bool {
	return e.PrevActive != e.Active
}

// State is a copy of the selection at one point in time.
type State struct {
	SelectedLayers map[string]bool
	Diagnoses      []string
	Highlighted    map[string]bool
	SearchedUnit   string
	ClickedUnit    string
	Geography      geo.Dataset
}

// Store is the selection state machine.
type Store struct {
	tree *layertree.Tree

	selected    map[string]bool
	diagnoses   DiagnosisList
	highlighted map[string]bool
	searched    string
	clicked     string
	geography   geo.Dataset

	version uint64
	subs    []subscription
	nextSub int
}

type subscription struct {
	id int
	fn func(Event)
}

// NewStore returns a store in the default state: district view visible,
// nothing selected.
func NewStore(tree *layertree.Tree) *Store {
	s := &Store{tree: tree}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.selected = map[string]bool{layertree.DistrictGroupID: true}
	s.diagnoses.Clear()
	s.highlighted = make(map[string]bool)
	s.searched = ""
	s.clicked = ""
	s.geography = geo.District
}

// Subscribe registers fn for change events and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Event)) func() {
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(c Change, prevActive string, prevDataset geo.Dataset) {
	if c == 0 {
		return
	}
	s.version++
	ev := Event{
		Change:      c,
		Version:     s.version,
		PrevActive:  prevActive,
		Active:      s.diagnoses.Active(),
		PrevDataset: prevDataset,
		Dataset:     s.geography,
	}
	for _, sub := range append([]subscription(nil), s.subs...) {
		sub.fn(ev)
	}
}

// Tree returns the layer tree the store validates against.
func (s *Store) Tree() *layertree.Tree {
	return s.tree
}

// Version increases with every committed mutation.
func (s *Store) Version() uint64 {
	return s.version
}

// IsSelected reports whether a layer checkbox is on.
func (s *Store) IsSelected(id string) bool {
	return s.selected[id]
}

// Checked reports the checkbox state shown for a layer. A diagnosis is
// checked while it is in the diagnosis list, whatever its category did.
func (s *Store) Checked(id string) bool {
	if s.tree != nil {
		if n, ok := s.tree.Lookup(id); ok && n.Kind == layertree.KindDiagnosis {
			return s.diagnoses.Contains(id)
		}
	}
	return s.selected[id]
}

// Diagnoses returns the selected diagnoses in selection order.
func (s *Store) Diagnoses() []string {
	return s.diagnoses.Items()
}

// ActiveDiagnosis returns the diagnosis painting the map, or "".
func (s *Store) ActiveDiagnosis() string {
	return s.diagnoses.Active()
}

// Geography returns the active dataset.
func (s *Store) Geography() geo.Dataset {
	return s.geography
}

// DatasetVisible reports whether the active dataset's group layer is on.
func (s *Store) DatasetVisible() bool {
	return s.selected[layertree.GroupID(s.geography)]
}

// SearchedUnit returns the unit picked by the last search, or "".
func (s *Store) SearchedUnit() string {
	return s.searched
}

// ClickedUnit returns the unit picked by the last map click, or "".
func (s *Store) ClickedUnit() string {
	return s.clicked
}

// IsHighlighted reports whether a unit key carries any highlight flag.
func (s *Store) IsHighlighted(unitKey string) bool {
	if unitKey == "" {
		return false
	}
	return s.highlighted[unitKey] || s.searched == unitKey || s.clicked == unitKey
}

// PanelHighlights returns the panel-highlighted unit keys, sorted.
func (s *Store) PanelHighlights() []string {
	out := make([]string, 0, len(s.highlighted))
	for k := range s.highlighted {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HighlightedUnits returns the union of clicked, panel and searched units,
// in that order, without duplicates.
func (s *Store) HighlightedUnits() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(k string) {
		if k != "" && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	add(s.clicked)
	for _, k := range s.PanelHighlights() {
		add(k)
	}
	add(s.searched)
	return out
}

// Snapshot returns a deep copy of the state.
func (s *Store) Snapshot() State {
	st := State{
		SelectedLayers: make(map[string]bool, len(s.selected)),
		Diagnoses:      s.diagnoses.Items(),
		Highlighted:    make(map[string]bool, len(s.highlighted)),
		SearchedUnit:   s.searched,
		ClickedUnit:    s.clicked,
		Geography:      s.geography,
	}
	for k, v := range s.selected {
		st.SelectedLayers[k] = v
	}
	for k, v := range s.highlighted {
		st.Highlighted[k] = v
	}
	return st
}

func (s *Store) lookup(id string) (layertree.Node, error) {
	if s.tree == nil {
		return layertree.Node{}, fmt.Errorf("%w: %s (no layer tree)", ErrInvalidSelection, id)
	}
	n, ok := s.tree.Lookup(id)
	if !ok {
		debug.Log("selection: toggle of unknown id %q ignored", id)
		return layertree.Node{}, fmt.Errorf("%w: %s", ErrInvalidSelection, id)
	}
	return n, nil
}

// ToggleLayer sets a layer checkbox.
//
// Categories apply the value to the taxonomy part of their descendant
// closure; dataset groups below them are left alone. A unit
// leaf also adds or removes its highlight and, when it belongs to the other
// dataset, switches the active geography first. The dataset group node
// turns dataset-wide visibility on (clearing individual unit highlights) or
// off (clearing only that dataset's units).
func (s *Store) ToggleLayer(id string, selected bool) error {
	n, err := s.lookup(id)
	if err != nil {
		return err
	}
	prevActive, prevDataset := s.diagnoses.Active(), s.geography
	var change Change

	switch n.Kind {
	case layertree.KindUnitGroup:
		if selected {
			change |= s.clearPanelUnits()
			change |= s.switchGeography(n.Dataset)
			if !s.selected[id] {
				s.selected[id] = true
				change |= ChangeLayers
			}
		} else {
			change |= s.deselectDataset(n.Dataset)
		}

	case layertree.KindUnit:
		if selected {
			change |= s.switchGeography(n.Dataset)
			if !s.selected[id] {
				s.selected[id] = true
				change |= ChangeLayers
			}
			if !s.highlighted[n.UnitKey] {
				s.highlighted[n.UnitKey] = true
				change |= ChangeHighlight
			}
		} else {
			if s.selected[id] {
				delete(s.selected, id)
				change |= ChangeLayers
			}
			if s.highlighted[n.UnitKey] {
				delete(s.highlighted, n.UnitKey)
				change |= ChangeHighlight
			}
		}

	default:
		closure, err := s.tree.Closure(id)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSelection, err)
		}
		for _, cid := range closure {
			c, _ := s.tree.Lookup(cid)
			if c.Kind == layertree.KindUnit {
				continue
			}
			// Only one geography is visible: switching a category on
			// leaves the hidden dataset's group off.
			if c.Kind == layertree.KindUnitGroup && selected && c.Dataset != s.geography {
				continue
			}
			if s.selected[cid] == selected {
				continue
			}
			if selected {
				s.selected[cid] = true
			} else {
				delete(s.selected, cid)
			}
			change |= ChangeLayers
		}
	}

	s.notify(change, prevActive, prevDataset)
	return nil
}

// ToggleDiagnosis checks or unchecks a diagnosis and returns the resulting
// active diagnosis. Any effective change clears the clicked unit so the new
// overlay is visible undimmed.
func (s *Store) ToggleDiagnosis(id string, checked bool) (string, error) {
	n, err := s.lookup(id)
	if err != nil {
		return s.diagnoses.Active(), err
	}
	if n.Kind != layertree.KindDiagnosis {
		debug.Log("selection: %q is a %s, not a diagnosis", id, n.Kind)
		return s.diagnoses.Active(), fmt.Errorf("%w: %s is not a diagnosis", ErrInvalidSelection, id)
	}
	prevActive, prevDataset := s.diagnoses.Active(), s.geography

	var change Change
	if checked {
		if s.diagnoses.Add(id) {
			change |= ChangeDiagnoses
		}
	} else if s.diagnoses.Remove(id) {
		change |= ChangeDiagnoses
	}
	if s.selected[id] != checked {
		if checked {
			s.selected[id] = true
		} else {
			delete(s.selected, id)
		}
		change |= ChangeLayers
	}
	if change.Has(ChangeDiagnoses) && s.clicked != "" {
		s.clicked = ""
		change |= ChangeHighlight
	}

	s.notify(change, prevActive, prevDataset)
	return s.diagnoses.Active(), nil
}

// SetHighlight records a highlight. Search and click are singletons that
// replace every other highlight; panel highlights accumulate. An empty
// unitKey clears that kind only.
func (s *Store) SetHighlight(kind HighlightKind, unitKey string) {
	prevActive, prevDataset := s.diagnoses.Active(), s.geography
	var change Change

	switch kind {
	case HighlightSearch:
		if unitKey != "" {
			change |= s.clearPanelUnits()
			if s.clicked != "" {
				s.clicked = ""
				change |= ChangeHighlight
			}
		}
		if s.searched != unitKey {
			s.searched = unitKey
			change |= ChangeHighlight
		}

	case HighlightClick:
		if unitKey != "" {
			change |= s.clearPanelUnits()
			if s.searched != "" {
				s.searched = ""
				change |= ChangeHighlight
			}
		}
		if s.clicked != unitKey {
			s.clicked = unitKey
			change |= ChangeHighlight
		}

	case HighlightPanel:
		if unitKey == "" {
			change |= s.clearPanelUnits()
		} else if !s.highlighted[unitKey] {
			s.highlighted[unitKey] = true
			change |= ChangeHighlight
		}
	}

	s.notify(change, prevActive, prevDataset)
}

// ClearHighlights drops the clicked, searched and panel highlights.
func (s *Store) ClearHighlights() {
	prevActive, prevDataset := s.diagnoses.Active(), s.geography
	change := s.clearPanelUnits()
	if s.clicked != "" || s.searched != "" {
		s.clicked, s.searched = "", ""
		change |= ChangeHighlight
	}
	s.notify(change, prevActive, prevDataset)
}

// SwitchGeography makes ds the active dataset.
func (s *Store) SwitchGeography(ds geo.Dataset) {
	prevActive, prevDataset := s.diagnoses.Active(), s.geography
	s.notify(s.switchGeography(ds), prevActive, prevDataset)
}

// ResetAll clears diagnoses and highlights and restores the district view.
func (s *Store) ResetAll() {
	prevActive, prevDataset := s.diagnoses.Active(), s.geography
	s.reset()
	s.notify(ChangeLayers|ChangeDiagnoses|ChangeHighlight|ChangeGeography, prevActive, prevDataset)
}

// ReplaceTree swaps in a rebuilt layer tree, dropping selections and
// highlights that no longer resolve.
func (s *Store) ReplaceTree(tree *layertree.Tree) {
	prevActive, prevDataset := s.diagnoses.Active(), s.geography
	s.tree = tree
	for id := range s.selected {
		if !tree.Has(id) {
			delete(s.selected, id)
		}
	}
	for _, id := range s.diagnoses.Items() {
		if !tree.Has(id) {
			s.diagnoses.Remove(id)
		}
	}
	known := func(key string) bool {
		_, ok := tree.Unit(s.geography, key)
		return ok
	}
	for k := range s.highlighted {
		if !known(k) {
			delete(s.highlighted, k)
		}
	}
	if s.searched != "" && !known(s.searched) {
		s.searched = ""
	}
	if s.clicked != "" && !known(s.clicked) {
		s.clicked = ""
	}
	s.notify(ChangeTree|ChangeLayers|ChangeDiagnoses|ChangeHighlight, prevActive, prevDataset)
}

// switchGeography hides the other dataset, dropping its unit selections and
// highlights, and shows ds.
func (s *Store) switchGeography(ds geo.Dataset) Change {
	if s.geography == ds {
		return 0
	}
	change := s.deselectDataset(s.geography) | ChangeGeography
	s.geography = ds
	group := layertree.GroupID(ds)
	if !s.selected[group] {
		s.selected[group] = true
		change |= ChangeLayers
	}
	return change
}

// deselectDataset removes the group node and every unit of ds from the
// selection, together with their highlights.
func (s *Store) deselectDataset(ds geo.Dataset) Change {
	var change Change
	group := layertree.GroupID(ds)
	if s.selected[group] {
		delete(s.selected, group)
		change |= ChangeLayers
	}
	if s.tree == nil {
		return change
	}
	for _, u := range s.tree.Units(ds) {
		if s.selected[u.ID] {
			delete(s.selected, u.ID)
			change |= ChangeLayers
		}
		if s.highlighted[u.UnitKey] {
			delete(s.highlighted, u.UnitKey)
			change |= ChangeHighlight
		}
		if s.searched == u.UnitKey {
			s.searched = ""
			change |= ChangeHighlight
		}
		if s.clicked == u.UnitKey {
			s.clicked = ""
			change |= ChangeHighlight
		}
	}
	return change
}

// clearPanelUnits empties the panel highlight set and unchecks unit leaves.
func (s *Store) clearPanelUnits() Change {
	var change Change
	if len(s.highlighted) > 0 {
		s.highlighted = make(map[string]bool)
		change |= ChangeHighlight
	}
	if s.tree == nil {
		return change
	}
	for _, ds := range geo.Datasets {
		for _, u := range s.tree.Units(ds) {
			if s.selected[u.ID] {
				delete(s.selected, u.ID)
				change |= ChangeLayers
			}
		}
	}
	return change
}

// Package layertree holds the catalog of selectable map layers: the static
// diagnosis taxonomy plus one group per geography dataset whose children are
// the individual units loaded from the geometry files.
//
// A Tree is immutable once built. Nodes live in an arena addressed by index;
// a pre-order numbering gives every node the contiguous span of its
// descendants, so closures are slices of the pre-order sequence.
package layertree

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/geo"
)

// Group node ids for the geography datasets.
const (
	DistrictGroupID = "distritos"
	FacilityGroupID = "establecimientos"
)

var (
	ErrEmptyID     = errors.New("empty node id")
	ErrDuplicateID = errors.New("duplicate node id")
	ErrUnknownNode = errors.New("unknown node")
)

// Kind classifies a node.
type Kind int

const (
	KindCategory  Kind = iota // taxonomy node with or without children
	KindDiagnosis             // taxonomy leaf in the diagnosis namespace
	KindUnitGroup             // "select all units" node of a dataset
	KindUnit                  // geographic unit leaf
)

func (k Kind) String() string {
	switch k {
	case KindCategory:
		return "category"
	case KindDiagnosis:
		return "diagnosis"
	case KindUnitGroup:
		return "unit-group"
	case KindUnit:
		return "unit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is one entry of the tree.
type Node struct {
	ID       string
	Name     string
	Kind     Kind
	Dataset  geo.Dataset // meaningful for KindUnitGroup and KindUnit
	UnitKey  string      // normalized unit name, KindUnit only
	Depth    int
	Parent   int   // arena index, -1 for the root
	Children []int // arena indices in catalog order

	pre  int // position in pre-order
	last int // pre-order position of the last descendant
}

// IsLeaf reports whether the node has no children.
func (n Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Tree is the immutable layer catalog.
type Tree struct {
	nodes []Node
	order []int // arena indices in pre-order
	index map[string]int
	units map[geo.Dataset]map[string]int // dataset -> unit key -> arena index
}

// Build merges the taxonomy and the unit names of each dataset under the
// taxonomy root. Unit names keep the order given; repeated names within one
// dataset are dropped.
func Build(taxonomy TaxonomyNode, units map[geo.Dataset][]string) (*Tree, error) {
	t := &Tree{
		index: make(map[string]int),
		units: make(map[geo.Dataset]map[string]int),
	}

	root, err := t.addTaxonomy(taxonomy, -1)
	if err != nil {
		return nil, err
	}

	for _, ds := range geo.Datasets {
		names, ok := units[ds]
		if !ok {
			continue
		}
		groupID := GroupID(ds)
		g, err := t.add(Node{ID: groupID, Name: ds.Label(), Kind: KindUnitGroup, Dataset: ds}, root)
		if err != nil {
			return nil, err
		}
		keys := make(map[string]int, len(names))
		for _, name := range names {
			key := geo.NormalizeUnit(name)
			if key == "" {
				continue
			}
			if _, dup := keys[key]; dup {
				debug.Log("layertree: duplicate %s unit %q dropped", ds, name)
				continue
			}
			idx, err := t.add(Node{
				ID:      UnitID(ds, key),
				Name:    strings.TrimSpace(name),
				Kind:    KindUnit,
				Dataset: ds,
				UnitKey: key,
			}, g)
			if err != nil {
				return nil, err
			}
			keys[key] = idx
		}
		t.units[ds] = keys
	}

	t.number(root)
	return t, nil
}

// GroupID returns the "select all" node id of a dataset.
func GroupID(ds geo.Dataset) string {
	if ds == geo.Facility {
		return FacilityGroupID
	}
	return DistrictGroupID
}

// UnitID returns the node id of a unit. Unit ids are namespaced by their
// group so the same name may exist in both datasets.
func UnitID(ds geo.Dataset, unitKey string) string {
	return GroupID(ds) + "/" + unitKey
}

func (t *Tree) addTaxonomy(tn TaxonomyNode, parent int) (int, error) {
	kind := KindCategory
	if len(tn.Children) == 0 && strings.HasPrefix(tn.ID, DiagnosisPrefix) {
		kind = KindDiagnosis
	}
	idx, err := t.add(Node{ID: tn.ID, Name: tn.Name, Kind: kind}, parent)
	if err != nil {
		return -1, err
	}
	for _, child := range tn.Children {
		if _, err := t.addTaxonomy(child, idx); err != nil {
			return -1, err
		}
	}
	return idx, nil
}

func (t *Tree) add(n Node, parent int) (int, error) {
	if n.ID == "" {
		return -1, ErrEmptyID
	}
	if _, dup := t.index[n.ID]; dup {
		return -1, fmt.Errorf("%w: %s", ErrDuplicateID, n.ID)
	}
	if n.Name == "" {
		n.Name = n.ID
	}
	n.Parent = parent
	if parent >= 0 {
		n.Depth = t.nodes[parent].Depth + 1
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, n)
	t.index[n.ID] = idx
	if parent >= 0 {
		t.nodes[parent].Children = append(t.nodes[parent].Children, idx)
	}
	return idx, nil
}

// number assigns pre-order positions iteratively.
func (t *Tree) number(root int) {
	t.order = make([]int, 0, len(t.nodes))
	stack := []int{root}
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		t.nodes[idx].pre = len(t.order)
		t.order = append(t.order, idx)
		children := t.nodes[idx].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	// Spans: walk pre-order backwards so children are finished first.
	for i := len(t.order) - 1; i >= 0; i-- {
		idx := t.order[i]
		n := &t.nodes[idx]
		n.last = n.pre
		if k := len(n.Children); k > 0 {
			n.last = t.nodes[n.Children[k-1]].last
		}
	}
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Root returns the root node.
func (t *Tree) Root() Node {
	return t.nodes[t.order[0]]
}

// Lookup returns the node with the given id.
func (t *Tree) Lookup(id string) (Node, bool) {
	idx, ok := t.index[id]
	if !ok {
		return Node{}, false
	}
	return t.nodes[idx], true
}

// Has reports whether id is in the tree.
func (t *Tree) Has(id string) bool {
	_, ok := t.index[id]
	return ok
}

// At returns the node stored at an arena index.
func (t *Tree) At(idx int) Node {
	return t.nodes[idx]
}

// Closure returns id and the ids of all its descendants in pre-order.
func (t *Tree) Closure(id string) ([]string, error) {
	idx, ok := t.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	n := t.nodes[idx]
	out := make([]string, 0, n.last-n.pre+1)
	for _, i := range t.order[n.pre : n.last+1] {
		out = append(out, t.nodes[i].ID)
	}
	return out, nil
}

// IsDescendant reports whether id lies in the subtree of ancestor (inclusive).
func (t *Tree) IsDescendant(id, ancestor string) bool {
	i, ok := t.index[id]
	a, ok2 := t.index[ancestor]
	if !ok || !ok2 {
		return false
	}
	p := t.nodes[i].pre
	return p >= t.nodes[a].pre && p <= t.nodes[a].last
}

// Walk visits every node in pre-order until fn returns false.
func (t *Tree) Walk(fn func(Node) bool) {
	for _, idx := range t.order {
		if !fn(t.nodes[idx]) {
			return
		}
	}
}

// Diagnoses returns the diagnosis leaves in catalog order.
func (t *Tree) Diagnoses() []Node {
	var out []Node
	t.Walk(func(n Node) bool {
		if n.Kind == KindDiagnosis {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Units returns the unit leaves of a dataset in load order.
func (t *Tree) Units(ds geo.Dataset) []Node {
	g, ok := t.index[GroupID(ds)]
	if !ok {
		return nil
	}
	children := t.nodes[g].Children
	out := make([]Node, len(children))
	for i, c := range children {
		out[i] = t.nodes[c]
	}
	return out
}

// Unit returns the unit node of a dataset by name (any case).
func (t *Tree) Unit(ds geo.Dataset, name string) (Node, bool) {
	idx, ok := t.units[ds][geo.NormalizeUnit(name)]
	if !ok {
		return Node{}, false
	}
	return t.nodes[idx], true
}

// DisplayName returns the node name, or the id itself when unknown.
func (t *Tree) DisplayName(id string) string {
	if n, ok := t.Lookup(id); ok {
		return n.Name
	}
	return id
}

// Path returns the ids from the root down to id, inclusive.
func (t *Tree) Path(id string) []string {
	idx, ok := t.index[id]
	if !ok {
		return nil
	}
	var rev []string
	for idx >= 0 {
		rev = append(rev, t.nodes[idx].ID)
		idx = t.nodes[idx].Parent
	}
	out := make([]string, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

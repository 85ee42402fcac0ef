package layertree

import "strings"

// FilterResult is the outcome of a sidebar name filter.
type FilterResult struct {
	Query   string
	Visible map[string]bool // nodes to draw
	Matched map[string]bool // nodes whose own name matched
}

// Active reports whether a non-empty query produced the result.
func (r FilterResult) Active() bool {
	return r.Query != ""
}

// Shows reports whether the node should be drawn. Without an active query
// every node is shown.
func (r FilterResult) Shows(id string) bool {
	if !r.Active() {
		return true
	}
	return r.Visible[id]
}

// Filter keeps a node when its own name contains query (case-insensitive)
// or when any descendant does. Ancestors of kept nodes are kept too.
func (t *Tree) Filter(query string) FilterResult {
	q := strings.ToLower(strings.TrimSpace(query))
	res := FilterResult{Query: q}
	if q == "" {
		return res
	}
	res.Visible = make(map[string]bool)
	res.Matched = make(map[string]bool)

	for _, idx := range t.order {
		n := t.nodes[idx]
		if !strings.Contains(strings.ToLower(n.Name), q) {
			continue
		}
		res.Matched[n.ID] = true
		for p := idx; p >= 0; p = t.nodes[p].Parent {
			id := t.nodes[p].ID
			if res.Visible[id] {
				break
			}
			res.Visible[id] = true
		}
	}
	return res
}

package selection

// DiagnosisList is the ordered set of toggled-on diagnoses.
//
// Selecting appends, deselecting filters the id out, and the tail is the
// active diagnosis that paints the map. The list never holds duplicates.
type DiagnosisList struct {
	ids []string
}

// Add appends id unless it is already present. It reports whether the list changed.
func (l *DiagnosisList) Add(id string) bool {
	if id == "" || l.Contains(id) {
		return false
	}
	l.ids = append(l.ids, id)
	return true
}

// Remove drops id. It reports whether the list changed.
func (l *DiagnosisList) Remove(id string) bool {
	for i, cur := range l.ids {
		if cur == id {
			l.ids = append(l.ids[:i:i], l.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether id is selected.
func (l DiagnosisList) Contains(id string) bool {
	for _, cur := range l.ids {
		if cur == id {
			return true
		}
	}
	return false
}

// Active returns the most recently selected diagnosis, or "" when empty.
func (l DiagnosisList) Active() string {
	if len(l.ids) == 0 {
		return ""
	}
	return l.ids[len(l.ids)-1]
}

// Len returns the number of selected diagnoses.
func (l DiagnosisList) Len() int {
	return len(l.ids)
}

// Items returns a copy of the list in selection order.
func (l DiagnosisList) Items() []string {
	out := make([]string, len(l.ids))
	copy(out, l.ids)
	return out
}

// Clear empties the list.
func (l *DiagnosisList) Clear() {
	l.ids = nil
}

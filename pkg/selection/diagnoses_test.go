package selection

import (
	"testing"

	"pgregory.net/rapid"
)

func TestDiagnosisList_TailIsActive(t *testing.T) {
	var l DiagnosisList
	l.Add("a")
	l.Add("b")
	if l.Active() != "b" {
		t.Fatalf("expected b active, got %q", l.Active())
	}
	l.Remove("b")
	if l.Active() != "a" {
		t.Errorf("expected a active after removing b, got %q", l.Active())
	}
	if l.Add("a") {
		t.Error("re-adding a present id should not change the list")
	}
	l.Remove("a")
	if l.Active() != "" || l.Len() != 0 {
		t.Errorf("expected empty list, got %v", l.Items())
	}
}

func TestDiagnosisList_RemoveDoesNotAliasItems(t *testing.T) {
	var l DiagnosisList
	l.Add("a")
	l.Add("b")
	l.Add("c")
	items := l.Items()
	l.Remove("a")
	if items[0] != "a" || items[1] != "b" || items[2] != "c" {
		t.Errorf("Items copy was mutated: %v", items)
	}
}

func TestDiagnosisList_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var l DiagnosisList
		var model []string
		ops := rapid.SliceOf(rapid.IntRange(0, 9)).Draw(rt, "ops")
		for _, op := range ops {
			id := string(rune('a' + op%5))
			if op < 5 {
				l.Add(id)
				found := false
				for _, m := range model {
					found = found || m == id
				}
				if !found {
					model = append(model, id)
				}
			} else {
				l.Remove(id)
				var next []string
				for _, m := range model {
					if m != id {
						next = append(next, m)
					}
				}
				model = next
			}

			seen := map[string]bool{}
			for _, id := range l.Items() {
				if seen[id] {
					rt.Fatalf("duplicate %q in %v", id, l.Items())
				}
				seen[id] = true
			}
			want := ""
			if len(model) > 0 {
				want = model[len(model)-1]
			}
			if l.Active() != want {
				rt.Fatalf("active = %q, want %q (list %v)", l.Active(), want, l.Items())
			}
		}
	})
}

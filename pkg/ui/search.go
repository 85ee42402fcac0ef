package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/epimap/pkg/engine"
)

// SuggestFunc returns autocomplete entries for a query.
type SuggestFunc func(query string) []engine.Suggestion

// SearchBox is the header search input with its suggestion dropdown.
type SearchBox struct {
	input       textinput.Model
	suggest     SuggestFunc
	suggestions []engine.Suggestion
	cursor      int // -1 while no suggestion is picked
	theme       Theme
	width       int
}

// NewSearchBox creates an unfocused search box.
func NewSearchBox(theme Theme, suggest SuggestFunc) SearchBox {
	ti := textinput.New()
	ti.Prompt = "Buscar: "
	ti.Placeholder = "distrito o establecimiento"
	ti.CharLimit = 80
	return SearchBox{input: ti, suggest: suggest, cursor: -1, theme: theme}
}

// SetWidth sets the width of the input line.
func (s *SearchBox) SetWidth(w int) {
	s.width = w
	s.input.Width = max(w-len(s.input.Prompt)-1, 1)
}

// Focused reports whether the input has focus.
func (s SearchBox) Focused() bool {
	return s.input.Focused()
}

// Focus gives the input focus.
func (s *SearchBox) Focus() tea.Cmd {
	s.refresh()
	return s.input.Focus()
}

// Blur drops focus and hides the suggestions.
func (s *SearchBox) Blur() {
	s.input.Blur()
	s.suggestions = nil
	s.cursor = -1
}

// Value returns the query.
func (s SearchBox) Value() string {
	return s.input.Value()
}

// SetValue replaces the query.
func (s *SearchBox) SetValue(v string) {
	s.input.SetValue(v)
	s.input.CursorEnd()
	s.refresh()
}

// Suggestions returns the entries currently shown.
func (s SearchBox) Suggestions() []engine.Suggestion {
	return s.suggestions
}

// Picked returns the highlighted suggestion, if any.
func (s SearchBox) Picked() (engine.Suggestion, bool) {
	if s.cursor < 0 || s.cursor >= len(s.suggestions) {
		return engine.Suggestion{}, false
	}
	return s.suggestions[s.cursor], true
}

// Next moves the suggestion cursor down.
func (s *SearchBox) Next() {
	if len(s.suggestions) == 0 {
		return
	}
	s.cursor = (s.cursor + 1) % len(s.suggestions)
}

// Prev moves the suggestion cursor up.
func (s *SearchBox) Prev() {
	if len(s.suggestions) == 0 {
		return
	}
	if s.cursor <= 0 {
		s.cursor = len(s.suggestions) - 1
		return
	}
	s.cursor--
}

// Update feeds a message to the input and refreshes the suggestions when
// the query changed.
func (s *SearchBox) Update(msg tea.Msg) tea.Cmd {
	before := s.input.Value()
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	if s.input.Value() != before {
		s.refresh()
	}
	return cmd
}

func (s *SearchBox) refresh() {
	s.cursor = -1
	q := strings.TrimSpace(s.input.Value())
	if q == "" || s.suggest == nil {
		s.suggestions = nil
		return
	}
	s.suggestions = s.suggest(q)
}

// SuggestionAt returns the entry drawn on line y of the dropdown.
func (s SearchBox) SuggestionAt(y int) (engine.Suggestion, bool) {
	// line 0 is the top border
	i := y - 1
	if i < 0 || i >= len(s.suggestions) {
		return engine.Suggestion{}, false
	}
	return s.suggestions[i], true
}

// View renders the input line.
func (s SearchBox) View() string {
	return s.input.View()
}

// DropdownView renders the suggestion list, or "" when there is none.
func (s SearchBox) DropdownView() string {
	if !s.Focused() || len(s.suggestions) == 0 {
		return ""
	}
	w := 0
	for _, sg := range s.suggestions {
		w = max(w, len([]rune(sg.Name))+len(sg.Dataset.Label())+3)
	}
	w = min(w, max(s.width-2, 10))

	lines := make([]string, len(s.suggestions))
	for i, sg := range s.suggestions {
		label := sg.Dataset.Label()
		name := truncate(sg.Name, max(w-len([]rune(label))-1, 1))
		line := padRight(name, w-len([]rune(label))) + s.theme.MutedText.Render(label)
		if i == s.cursor {
			line = s.theme.Selected.Render(padRight(name, w-len([]rune(label))) + label)
		}
		lines[i] = line
	}
	return s.theme.Panel.Render(strings.Join(lines, "\n"))
}

package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so every style helper can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeBg returns the given hex color for TrueColor terminals and
// lipgloss.NoColor{} otherwise, so 16/256-color terminals use the
// terminal's own background instead of a down-converted approximation.
func ThemeBg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.TrueColor {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(hex)
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

// Theme holds the pre-computed styles of the dashboard.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	// Stroke drawn for highlighted units. The map palette's black outline
	// disappears on dark terminals.
	HighlightStroke lipgloss.AdaptiveColor

	Base         lipgloss.Style
	Header       lipgloss.Style
	Selected     lipgloss.Style
	Panel        lipgloss.Style
	PanelFocused lipgloss.Style
	Title        lipgloss.Style
	MutedText    lipgloss.Style
	PrimaryBold  lipgloss.Style
	Checked      lipgloss.Style
	Partial      lipgloss.Style
	Match        lipgloss.Style
	Notice       lipgloss.Style
	Error        lipgloss.Style
	StatusBar    lipgloss.Style
}

// DefaultTheme returns the Dracula-inspired adaptive theme.
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},

		HighlightStroke: lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"},
	}

	t.Base = r.NewStyle().Foreground(ColorText)

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Bold(true)

	t.Panel = r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBgHighlight)
	t.PanelFocused = t.Panel.BorderForeground(t.Primary)

	t.Title = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.MutedText = r.NewStyle().Foreground(ColorMuted)
	t.PrimaryBold = r.NewStyle().Foreground(t.Primary).Bold(true)
	t.Checked = r.NewStyle().Foreground(ColorSuccess).Bold(true)
	t.Partial = r.NewStyle().Foreground(ColorWarning)
	t.Match = r.NewStyle().Foreground(ColorWarning).Underline(true)
	t.Notice = r.NewStyle().Foreground(ColorInfo)
	t.Error = r.NewStyle().Foreground(ColorDanger).Bold(true)
	t.StatusBar = r.NewStyle().
		Background(ColorBgDark).
		Foreground(ColorSubtext).
		Padding(0, 1)

	return t
}

// TestTheme returns a theme suitable for use in tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout))
}

package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

// Spacing constants for consistent layout (in characters)
const (
	SpaceXS = 1
	SpaceSM = 2
	SpaceMD = 3
)

// Adaptive palette for light and dark terminals.
var (
	ColorBg          = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}
	ColorBgDark      = lipgloss.AdaptiveColor{Light: "#F5F5F5", Dark: "#1E1F29"}
	ColorBgSubtle    = lipgloss.AdaptiveColor{Light: "#E8E8E8", Dark: "#363949"}
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext     = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorInfo    = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorWarning = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"}
	ColorDanger  = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}
)

// BaseMap is a background the map is drawn over. The terminal cannot show
// tiles, so each base map is a tint that unit fills are blended onto.
type BaseMap struct {
	Name string
	Tint string
}

// BaseMaps lists the selectable backgrounds in cycling order.
var BaseMaps = []BaseMap{
	{Name: "streets", Tint: "#F2EFE9"},
	{Name: "satellite", Tint: "#2E3B2F"},
	{Name: "terrain", Tint: "#DCD3B8"},
	{Name: "osm", Tint: "#EAE6DF"},
}

// BaseMapIndex returns the position of a base map by name, or 0.
func BaseMapIndex(name string) int {
	for i, b := range BaseMaps {
		if b.Name == name {
			return i
		}
	}
	return 0
}

// blend mixes fill over tint with the given opacity and returns a hex color.
// Unparseable colors fall back to the tint.
func blend(fill, tint string, opacity float64) string {
	bg, err := colorful.Hex(tint)
	if err != nil {
		return tint
	}
	fg, err := colorful.Hex(fill)
	if err != nil {
		return tint
	}
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	return bg.BlendRgb(fg, opacity).Clamped().Hex()
}

// contrastText picks black or white text for a background color.
func contrastText(bg string) string {
	c, err := colorful.Hex(bg)
	if err != nil {
		return "#000000"
	}
	l, _, _ := c.Lab()
	if l > 0.6 {
		return "#000000"
	}
	return "#FFFFFF"
}

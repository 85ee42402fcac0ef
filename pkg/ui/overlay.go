package ui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/vanderheijden86/epimap/pkg/engine"
)

// placeOverlay draws fg over bg with its top-left corner at cell (x, y).
// Lines of fg that fall outside bg are dropped; styled bg content on both
// sides of the overlay is kept.
func placeOverlay(x, y int, fg, bg string) string {
	bgLines := strings.Split(bg, "\n")
	fgLines := strings.Split(fg, "\n")
	for i, line := range fgLines {
		row := y + i
		if row < 0 || row >= len(bgLines) {
			continue
		}
		base := bgLines[row]
		w := ansi.StringWidth(line)
		left := ansi.Truncate(base, x, "")
		if pad := x - ansi.StringWidth(left); pad > 0 {
			left += strings.Repeat(" ", pad)
		}
		right := ansi.TruncateLeft(base, x+w, "")
		bgLines[row] = left + line + right
	}
	return strings.Join(bgLines, "\n")
}

// blockRect returns the screen rectangle a rendered block covers at (x, y).
func blockRect(x, y int, block string) engine.Rect {
	return engine.Rect{X: x, Y: y, W: lipglossWidth(block), H: strings.Count(block, "\n") + 1}
}

func lipglossWidth(block string) int {
	w := 0
	for _, line := range strings.Split(block, "\n") {
		w = max(w, ansi.StringWidth(line))
	}
	return w
}

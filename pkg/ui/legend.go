package ui

import (
	"fmt"
	"strings"

	"github.com/vanderheijden86/epimap/pkg/engine"
)

const legendMaxUnits = 5

// renderLegend draws the legend panel: selected diagnoses, the color scale
// of the active one and the highlighted units.
func renderLegend(lg engine.Legend, theme Theme, rate bool, width int) string {
	if lg.Empty() {
		return ""
	}
	inner := max(width-2, 12)
	var lines []string

	if len(lg.Diagnoses) > 0 {
		lines = append(lines, theme.Title.Render("Diagnósticos"))
		for _, d := range lg.Diagnoses {
			mark := "  "
			name := truncate(d.Name, inner-2)
			if d.Active {
				mark = theme.PrimaryBold.Render("● ")
				name = theme.PrimaryBold.Render(name)
			}
			lines = append(lines, mark+name)
		}
	}

	if lg.ScaleName != "" {
		title := lg.ScaleName
		if lg.Loading {
			title += " (cargando…)"
		}
		lines = append(lines, "", theme.Title.Render(truncate(title, inner)))
		for _, b := range lg.Buckets {
			swatch := theme.Renderer.NewStyle().
				Background(ThemeBg(b.Color)).
				Foreground(ThemeFg(b.Color)).
				Render("██")
			lines = append(lines, swatch+" "+truncate(b.Label, inner-3))
		}
		if lg.Summary.N > 0 {
			lines = append(lines, theme.MutedText.Render(truncate(fmt.Sprintf(
				"n=%d  máx %s  mediana %s",
				lg.Summary.N, formatValue(lg.Summary.Max, rate), formatValue(lg.Summary.Median, rate),
			), inner)))
		}
	}

	if len(lg.Units) > 0 {
		lines = append(lines, "", theme.Title.Render("Resaltados"))
		for i, u := range lg.Units {
			if i == legendMaxUnits {
				lines = append(lines, theme.MutedText.Render(fmt.Sprintf("… y %d más", len(lg.Units)-i)))
				break
			}
			lines = append(lines, "◆ "+truncate(u.Name, inner-2))
		}
	}
	return theme.Panel.Width(inner).Render(strings.Join(lines, "\n"))
}

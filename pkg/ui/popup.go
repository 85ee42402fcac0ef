package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/debug"
	"github.com/vanderheijden86/epimap/pkg/engine"
	"github.com/vanderheijden86/epimap/pkg/style"
)

const (
	popupWidth     = 46
	popupMaxHeight = 18
)

type popupKey struct {
	gen    uint64
	loaded bool
	width  int
}

// PopupView shows the detail of a clicked unit: population and the cases
// of every selected diagnosis, rendered as markdown.
type PopupView struct {
	vp       viewport.Model
	renderer *glamour.TermRenderer
	rwidth   int
	key      popupKey
	theme    Theme
	width    int
	height   int
}

// NewPopupView creates an empty popup.
func NewPopupView(theme Theme) PopupView {
	return PopupView{
		vp:    viewport.New(popupWidth-4, popupMaxHeight-3),
		theme: theme,
	}
}

// SetSize fits the popup to the map area.
func (p *PopupView) SetSize(mapW, mapH int) {
	p.width = min(popupWidth, max(mapW-2, 20))
	p.height = min(popupMaxHeight, max(mapH-2, 6))
	p.vp.Width = p.width - 4
	p.vp.Height = p.height - 3
}

// Update scrolls the popup content.
func (p *PopupView) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	p.vp, cmd = p.vp.Update(msg)
	return cmd
}

// ScrollUp scrolls the content up by one line.
func (p *PopupView) ScrollUp() { p.vp.ScrollUp(1) }

// ScrollDown scrolls the content down by one line.
func (p *PopupView) ScrollDown() { p.vp.ScrollDown(1) }

// Sync renders the content of pop when it changed since the last call.
func (p *PopupView) Sync(pop *engine.Popup, names func(id string) string) {
	if pop == nil {
		p.key = popupKey{}
		return
	}
	key := popupKey{gen: pop.Gen, loaded: !pop.Loading(), width: p.vp.Width}
	if key == p.key {
		return
	}
	p.key = key
	if pop.Loading() {
		p.vp.SetContent("")
		return
	}
	md := popupMarkdown(pop, names)
	p.vp.SetContent(p.render(md))
	p.vp.GotoTop()
}

func (p *PopupView) render(md string) string {
	if p.renderer == nil || p.rwidth != p.vp.Width {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(p.vp.Width),
		)
		if err != nil {
			debug.Log("ui: glamour renderer: %v", err)
			return md
		}
		p.renderer, p.rwidth = r, p.vp.Width
	}
	out, err := p.renderer.Render(md)
	if err != nil {
		debug.Log("ui: rendering popup: %v", err)
		return md
	}
	return strings.Trim(out, "\n")
}

// View draws the popup box; the close marker sits at the right end of the
// first line. spin is shown while the data loads.
func (p PopupView) View(pop *engine.Popup, spin string) string {
	if pop == nil {
		return ""
	}
	title := padRight(truncate(pop.Unit.Name, p.width-6), p.width-5)
	header := p.theme.Title.Render(title) + p.theme.MutedText.Render("[x]")
	body := p.vp.View()
	if pop.Loading() {
		body = spin + " cargando…"
	}
	sub := p.theme.MutedText.Render(pop.Unit.Dataset.Label())
	return p.theme.PanelFocused.Width(p.width - 2).Render(header + "\n" + sub + "\n" + body)
}

// CloseHit reports whether a click at (x, y) relative to the popup's
// top-left corner lands on the close marker.
func (p PopupView) CloseHit(x, y int) bool {
	return y == 1 && x >= p.width-4 && x <= p.width-2
}

// popupMarkdown renders the detail of a loaded popup.
func popupMarkdown(pop *engine.Popup, names func(id string) string) string {
	d := pop.Detail
	var sb strings.Builder

	sb.WriteString("### Población\n\n")
	if d.PopulationErr != nil {
		sb.WriteString("_Sin datos de población._\n\n")
	} else {
		pp := d.Population
		fmt.Fprintf(&sb, "**Total:** %s\n\n", formatCount(pp.Total))
		sb.WriteString("| Sexo | Población |\n|---|---:|\n")
		fmt.Fprintf(&sb, "| Masculino | %s |\n", formatCount(pp.Male))
		fmt.Fprintf(&sb, "| Femenino | %s |\n\n", formatCount(pp.Female))
		if bands := pp.AgeBands(); hasCounts(bands) {
			sb.WriteString("| Grupo etario | Población |\n|---|---:|\n")
			for _, b := range bands {
				fmt.Fprintf(&sb, "| %s | %s |\n", b.Label, formatCount(b.Count))
			}
			sb.WriteString("\n")
		}
	}

	if len(d.Diagnoses) == 0 {
		sb.WriteString("_Ningún diagnóstico seleccionado._\n")
		return sb.String()
	}
	for _, dd := range d.Diagnoses {
		fmt.Fprintf(&sb, "### %s\n\n", names(dd.Diagnosis))
		if dd.Err != nil {
			sb.WriteString("_Sin datos._\n\n")
			continue
		}
		rec := dd.Record
		fmt.Fprintf(&sb, "**Casos:** %s", formatCount(rec.Total))
		if style.IsRateDataset(dd.Diagnosis) && rec.HasRate {
			fmt.Fprintf(&sb, " · **TIA x 100k:** %s", formatValue(rec.Rate, true))
		}
		sb.WriteString("\n\n")
		if len(rec.Breakdown) > 0 {
			sb.WriteString("| Tipo | Casos |\n|---|---:|\n")
			for _, c := range rec.Breakdown {
				fmt.Fprintf(&sb, "| %s | %s |\n", c.Label, formatCount(c.Count))
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func hasCounts(cs []casedata.Count) bool {
	for _, c := range cs {
		if c.Count != 0 {
			return true
		}
	}
	return false
}

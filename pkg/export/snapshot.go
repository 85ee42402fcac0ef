package export

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"git.sr.ht/~sbinet/gg"
	"github.com/ajstarks/svgo"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/basicfont"

	"github.com/vanderheijden86/epimap/pkg/geo"
	"github.com/vanderheijden86/epimap/pkg/metrics"
	"github.com/vanderheijden86/epimap/pkg/style"
)

// SnapshotOptions controls choropleth snapshot export.
type SnapshotOptions struct {
	Path       string          // Output path; format inferred from extension when Format empty
	Format     string          // "svg" or "png" (case-insensitive). If empty, inferred from Path.
	Title      string          // Rendered in the header block
	Preset     string          // "compact" (default) or "roomy"
	Collection *geo.Collection // Units to draw
	Resolver   *style.Resolver // Paint of every unit
}

// SaveSnapshot renders the choropleth of the resolver's active diagnosis as
// a static SVG or PNG with a header and a legend.
func SaveSnapshot(opts SnapshotOptions) error {
	if opts.Collection == nil || opts.Collection.Len() == 0 {
		return fmt.Errorf("no units to export")
	}
	if opts.Resolver == nil {
		return fmt.Errorf("a style resolver is required for snapshot export")
	}

	format := strings.ToLower(strings.TrimPrefix(opts.Format, "."))
	if format == "" {
		switch strings.ToLower(filepath.Ext(opts.Path)) {
		case ".svg":
			format = "svg"
		case ".png":
			format = "png"
		default:
			format = "svg"
			if opts.Path != "" && filepath.Ext(opts.Path) == "" {
				opts.Path = opts.Path + ".svg"
			}
		}
	}
	if format != "svg" && format != "png" {
		return fmt.Errorf("unsupported format %q (want svg or png)", format)
	}
	if opts.Path == "" {
		return fmt.Errorf("output path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	defer metrics.Timer(metrics.SnapshotExport)()
	layout := buildLayout(opts)

	if format == "png" {
		return renderPNG(opts.Path, layout)
	}
	return renderSVG(opts.Path, layout)
}

// --- layout computation ----------------------------------------------------

type point struct{ X, Y float64 }

type layoutUnit struct {
	Key         string
	Rings       [][]point
	Fill        color.RGBA
	Stroke      color.RGBA
	Weight      float64
	Highlighted bool
}

type layoutResult struct {
	Units   []layoutUnit
	Width   int
	Height  int
	Header  float64
	Buckets []style.Bucket
	Summary summaryInfo
}

type summaryInfo struct {
	Title     string
	Subtitle  string
	UnitCount int
	WithData  int
	Scale     string
}

func buildLayout(opts SnapshotOptions) layoutResult {
	const (
		widthCompact  = 960
		heightCompact = 720
		widthRoomy    = 1280
		heightRoomy   = 960
		padding       = 36.0
		headerHeight  = 110.0
	)

	width, height := widthCompact, heightCompact
	if strings.EqualFold(opts.Preset, "roomy") {
		width, height = widthRoomy, heightRoomy
	}

	mapW := width - int(2*padding)
	mapH := height - int(2*padding+headerHeight)
	vp := geo.FitBounds(opts.Collection.Bound(), mapW, mapH, geo.FitOptions{Padding: 12})
	proj := geo.NewProjector(vp, mapW, mapH)
	offX, offY := padding, padding+headerHeight

	res := opts.Resolver
	var units []layoutUnit
	withData := 0
	for _, u := range opts.Collection.Units() {
		st := res.Style(u)
		if st.Hidden {
			continue
		}
		if st.HasData {
			withData++
		}
		lu := layoutUnit{
			Key:         u.Key,
			Fill:        blendHex(st.Fill, colorBackdrop, st.FillOpacity),
			Stroke:      hexColor(st.Stroke, colorStroke),
			Weight:      float64(max(st.Weight, 1)),
			Highlighted: st.Highlighted,
		}
		for _, poly := range u.Geometry {
			for _, ring := range poly {
				pts := make([]point, len(ring))
				for i, p := range ring {
					x, y := proj.ToPixel(p)
					pts[i] = point{X: x + offX, Y: y + offY}
				}
				lu.Rings = append(lu.Rings, pts)
			}
		}
		units = append(units, lu)
	}

	// highlighted outlines are drawn last so neighbours do not cover them
	ordered := make([]layoutUnit, 0, len(units))
	for _, hl := range []bool{false, true} {
		for _, u := range units {
			if u.Highlighted == hl {
				ordered = append(ordered, u)
			}
		}
	}

	title := opts.Title
	if strings.TrimSpace(title) == "" {
		title = "Mapa epidemiológico"
	}
	var buckets []style.Bucket
	scaleName := "sin diagnóstico"
	if sc := res.Scale(); sc != nil {
		buckets = sc.Buckets()
		scaleName = sc.Name()
	}

	return layoutResult{
		Units:   ordered,
		Width:   width,
		Height:  height,
		Header:  headerHeight,
		Buckets: buckets,
		Summary: summaryInfo{
			Title:     title,
			Subtitle:  opts.Collection.Dataset().Label(),
			UnitCount: len(units),
			WithData:  withData,
			Scale:     scaleName,
		},
	}
}

// --- rendering -------------------------------------------------------------

var (
	colorStroke    = color.RGBA{0x22, 0x22, 0x22, 0xff}
	colorHighlight = color.RGBA{0xff, 0x00, 0x00, 0xff}
	colorText      = color.RGBA{0x11, 0x11, 0x11, 0xff}
	colorSubtle    = color.RGBA{0x66, 0x66, 0x66, 0xff}
	colorBackdrop  = color.RGBA{0xf9, 0xfa, 0xfb, 0xff}
	colorHeaderBG  = color.RGBA{0xf3, 0xf4, 0xf6, 0xff}
	colorLegendBG  = color.RGBA{0xee, 0xee, 0xee, 0xff}
)

// hexColor parses a "#rrggbb" color, falling back to def.
func hexColor(hex string, def color.RGBA) color.RGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		return def
	}
	r, g, b := c.RGB255()
	return color.RGBA{r, g, b, 0xff}
}

// blendHex mixes fill over the backdrop with the given opacity.
func blendHex(fill string, backdrop color.RGBA, opacity float64) color.RGBA {
	f, err := colorful.Hex(fill)
	if err != nil {
		return backdrop
	}
	bg, _ := colorful.MakeColor(backdrop)
	r, g, b := bg.BlendRgb(f, opacity).Clamped().RGB255()
	return color.RGBA{r, g, b, 0xff}
}

func renderPNG(path string, layout layoutResult) error {
	dc := gg.NewContext(layout.Width, layout.Height)
	dc.SetColor(colorBackdrop)
	dc.Clear()

	dc.SetColor(colorHeaderBG)
	dc.DrawRoundedRectangle(16, 16, float64(layout.Width)-32, layout.Header-24, 10)
	dc.Fill()

	dc.SetFontFace(basicfont.Face7x13)
	drawSummaryBlock(dc, layout)

	dc.SetFillRuleEvenOdd()
	for _, u := range layout.Units {
		drawUnit(dc, u)
	}
	drawLegend(dc, layout)

	return dc.SavePNG(path)
}

func drawUnit(dc *gg.Context, u layoutUnit) {
	tracePath := func() {
		dc.NewSubPath()
		for _, ring := range u.Rings {
			for i, p := range ring {
				if i == 0 {
					dc.MoveTo(p.X, p.Y)
				} else {
					dc.LineTo(p.X, p.Y)
				}
			}
			dc.ClosePath()
		}
	}
	tracePath()
	dc.SetColor(u.Fill)
	dc.Fill()

	tracePath()
	dc.SetColor(u.Stroke)
	if u.Highlighted {
		dc.SetColor(colorHighlight)
	}
	dc.SetLineWidth(u.Weight)
	dc.Stroke()
}

func drawSummaryBlock(dc *gg.Context, layout layoutResult) {
	s := layout.Summary
	dc.SetColor(colorText)
	dc.DrawStringAnchored(s.Title, 32, 44, 0, 0.5)
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(s.Subtitle, 32, 64, 0, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("unidades: %d  con datos: %d", s.UnitCount, s.WithData), 32, 84, 0, 0.5)
}

func legendBox(layout layoutResult) (x, y, w, h float64) {
	w = 180
	h = 30 + 16*float64(max(len(layout.Buckets), 1))
	return float64(layout.Width) - w - 20, 24, w, h
}

func drawLegend(dc *gg.Context, layout layoutResult) {
	x, y, boxW, boxH := legendBox(layout)
	dc.SetColor(colorLegendBG)
	dc.DrawRoundedRectangle(x, y, boxW, boxH, 10)
	dc.Fill()
	dc.SetColor(colorStroke)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x, y, boxW, boxH, 10)
	dc.Stroke()

	dc.SetColor(colorText)
	dc.DrawStringAnchored(layout.Summary.Scale, x+12, y+18, 0, 0.5)
	for i, b := range layout.Buckets {
		drawLegendRow(dc, x+12, y+36+16*float64(i), hexColor(b.Color, colorBackdrop), b.Label)
	}
}

func drawLegendRow(dc *gg.Context, x, y float64, c color.RGBA, label string) {
	dc.SetColor(c)
	dc.DrawRoundedRectangle(x, y-8, 14, 14, 3)
	dc.Fill()
	dc.SetColor(colorStroke)
	dc.DrawRoundedRectangle(x, y-8, 14, 14, 3)
	dc.Stroke()
	dc.SetColor(colorSubtle)
	dc.DrawStringAnchored(label, x+20, y, 0, 0.5)
}

func renderSVG(path string, layout layoutResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return renderSVGToWriter(file, layout)
}

func renderSVGToWriter(w io.Writer, layout layoutResult) error {
	canvas := svg.New(w)
	canvas.Start(layout.Width, layout.Height)
	canvas.Rect(0, 0, layout.Width, layout.Height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Roundrect(16, 16, layout.Width-32, int(layout.Header-24), 10, 10, fmt.Sprintf("fill:%s", css(colorHeaderBG)))

	s := layout.Summary
	canvas.Text(32, 44, s.Title, fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(32, 64, s.Subtitle, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))
	canvas.Text(32, 84, fmt.Sprintf("unidades: %d  con datos: %d", s.UnitCount, s.WithData),
		fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace", css(colorSubtle)))

	for _, u := range layout.Units {
		stroke := u.Stroke
		if u.Highlighted {
			stroke = colorHighlight
		}
		canvas.Path(svgPath(u.Rings), fmt.Sprintf("fill:%s;fill-rule:evenodd;stroke:%s;stroke-width:%.1f",
			css(u.Fill), css(stroke), u.Weight), fmt.Sprintf(`data-unit="%s"`, u.Key))
	}

	fx, fy, fw, fh := legendBox(layout)
	x, y := int(fx), int(fy)
	canvas.Roundrect(x, y, int(fw), int(fh), 10, 10, fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", css(colorLegendBG), css(colorStroke)))
	canvas.Text(x+12, y+18, layout.Summary.Scale, fmt.Sprintf("fill:%s;font-size:13px;font-family:monospace;font-weight:bold", css(colorText)))
	for i, b := range layout.Buckets {
		ry := y + 36 + 16*i
		canvas.Roundrect(x+12, ry-8, 14, 14, 3, 3, fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", css(hexColor(b.Color, colorBackdrop)), css(colorStroke)))
		canvas.Text(x+32, ry, b.Label, fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))
	}

	canvas.End()
	return nil
}

// svgPath encodes rings as an SVG path with one closed subpath per ring.
func svgPath(rings [][]point) string {
	var sb strings.Builder
	for _, ring := range rings {
		for i, p := range ring {
			if i == 0 {
				fmt.Fprintf(&sb, "M%.1f %.1f", p.X, p.Y)
			} else {
				fmt.Fprintf(&sb, "L%.1f %.1f", p.X, p.Y)
			}
		}
		sb.WriteString("Z")
	}
	return sb.String()
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

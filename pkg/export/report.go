package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vanderheijden86/epimap/pkg/casedata"
	"github.com/vanderheijden86/epimap/pkg/style"
)

// ReportOptions describes a markdown case report.
type ReportOptions struct {
	Title   string
	Key     casedata.Key
	Name    string // display name of the dataset
	Records map[string]casedata.Record
	Now     time.Time
}

// GenerateReport renders a partition as markdown: a summary, the units
// ranked by value and the case breakdown of the top units.
func GenerateReport(opts ReportOptions) string {
	var sb strings.Builder
	rate := style.IsRateDataset(opts.Key.Dataset)

	title := opts.Title
	if strings.TrimSpace(title) == "" {
		title = fmt.Sprintf("%s por %s", opts.Name, strings.ToLower(opts.Key.Geography.Label()))
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "*Generado: %s*\n\n", now.Format(time.RFC1123))

	units := make([]string, 0, len(opts.Records))
	values := make([]float64, 0, len(opts.Records))
	for u, rec := range opts.Records {
		units = append(units, u)
		values = append(values, rec.Value(rate))
	}
	sort.Slice(units, func(i, j int) bool {
		vi, vj := opts.Records[units[i]].Value(rate), opts.Records[units[j]].Value(rate)
		if vi != vj {
			return vi > vj
		}
		return units[i] < units[j]
	})

	sum := style.Summarize(values)
	total := 0
	for _, rec := range opts.Records {
		total += rec.Total
	}
	sb.WriteString("## Resumen\n\n")
	sb.WriteString("| Medida | Valor |\n|--------|------:|\n")
	fmt.Fprintf(&sb, "| Unidades | %d |\n", sum.N)
	fmt.Fprintf(&sb, "| Casos | %s |\n", humanize.Comma(int64(total)))
	fmt.Fprintf(&sb, "| Máximo | %s |\n", reportValue(sum.Max, rate))
	fmt.Fprintf(&sb, "| Mediana | %s |\n", reportValue(sum.Median, rate))
	fmt.Fprintf(&sb, "| Media | %s |\n\n", reportValue(sum.Mean, rate))

	header := "Casos"
	if rate {
		header = "TIA x 100k"
	}
	sb.WriteString("## Unidades\n\n")
	fmt.Fprintf(&sb, "| # | Unidad | %s |\n|--:|--------|------:|\n", header)
	for i, u := range units {
		fmt.Fprintf(&sb, "| %d | %s | %s |\n", i+1, escapeCell(u), reportValue(opts.Records[u].Value(rate), rate))
	}
	sb.WriteString("\n")

	const detailed = 5
	for i, u := range units {
		if i == detailed {
			break
		}
		rec := opts.Records[u]
		if len(rec.Breakdown) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n\n", escapeCell(u))
		sb.WriteString("| Tipo | Casos |\n|------|------:|\n")
		for _, c := range rec.Breakdown {
			fmt.Fprintf(&sb, "| %s | %s |\n", escapeCell(c.Label), humanize.Comma(int64(c.Count)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// SaveReport writes GenerateReport's output to path.
func SaveReport(path string, opts ReportOptions) error {
	if len(opts.Records) == 0 {
		return fmt.Errorf("partition %s is empty", opts.Key)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return os.WriteFile(path, []byte(GenerateReport(opts)), 0o644)
}

func reportValue(v float64, rate bool) string {
	if rate {
		return humanize.CommafWithDigits(v, 2)
	}
	return humanize.Comma(int64(v))
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

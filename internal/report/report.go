// Package report renders an analysis as markdown and as a standalone HTML page.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"imvqa/domain/plate"
	"imvqa/internal/wellstats"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// Input is everything a report shows for one feature
type Input struct {
	Feature     string
	Layout      plate.Layout
	Variations  plate.VariationTable
	Summary     wellstats.Summary
	Selection   *plate.Bounds
	Comparison  *wellstats.GroupComparison
	ControlErr  error
	TopN        int
	GeneratedAt time.Time
}

// Markdown renders the report body
func Markdown(in Input) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# IMV QA report: %s\n\n", in.Feature)
	if !in.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "_Generated %s_\n\n", in.GeneratedAt.UTC().Format(time.RFC3339))
	}

	b.WriteString("## Control\n\n")
	fmt.Fprintf(&b, "- Control median: %s\n", formatValue(in.Variations.ControlMedian))
	fmt.Fprintf(&b, "- Wells in layout: %d\n", in.Layout.Wells().Len())
	fmt.Fprintf(&b, "- Compounds: %d\n", len(in.Layout.Compounds()))
	if in.ControlErr != nil {
		fmt.Fprintf(&b, "\n> **Warning:** %s\n", in.ControlErr)
	}
	b.WriteString("\n")

	b.WriteString("## Distribution\n\n")
	b.WriteString("| Count | Min | Q1 | Median | Q3 | Max |\n")
	b.WriteString("|---:|---:|---:|---:|---:|---:|\n")
	s := in.Summary
	fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s |\n\n", s.Count,
		formatValue(s.Min), formatValue(s.Q1), formatValue(s.Median), formatValue(s.Q3), formatValue(s.Max))

	if in.Comparison != nil {
		b.WriteString("## Selection\n\n")
		if in.Selection != nil {
			fmt.Fprintf(&b, "Wells in %s (%d wells)\n\n", in.Selection.String(), in.Comparison.Wells)
		}
		b.WriteString("| Group | Median | Variation |\n")
		b.WriteString("|---|---:|---:|\n")
		fmt.Fprintf(&b, "| Control | %s | %s |\n", formatValue(in.Comparison.ControlMedian), formatValue(in.Comparison.Control))
		fmt.Fprintf(&b, "| Test group | %s | %s |\n\n", formatValue(in.Comparison.GroupMedian), formatValue(in.Comparison.TestGroup))
	}

	rows := topVariations(in.Variations, in.TopN)
	if len(rows) > 0 {
		b.WriteString("## Highest variation\n\n")
		b.WriteString("| Well | Compound | Variation |\n")
		b.WriteString("|---|---|---:|\n")
		for _, r := range rows {
			compound, err := r.Well.CompoundName(in.Layout)
			if err != nil {
				compound = "?"
			}
			fmt.Fprintf(&b, "| %s | %s | %s |\n", r.Well, escapeCell(compound), formatValue(r.Variation))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// HTML renders markdown as a complete HTML page
func HTML(title, md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage,
	})
	return markdown.ToHTML([]byte(md), p, renderer)
}

// topVariations returns the n defined variations with the largest value
func topVariations(t plate.VariationTable, n int) []plate.VariationRow {
	if n <= 0 {
		n = 10
	}
	rows := make([]plate.VariationRow, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !math.IsNaN(r.Variation) {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Variation > rows[j].Variation })
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", v)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

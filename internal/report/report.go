// Package report renders the pre-release balance check of a schedule.
package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"trialrand/domain/randomisation"
	"trialrand/domain/run"
)

// Markdown builds the audit report: the manifest header, one allocation
// table per stratum and any block-balance violations.
func Markdown(m *run.Manifest, audit *randomisation.BalanceReport) string {
	var b strings.Builder

	title := m.Study
	if title == "" {
		title = "Randomisation schedule"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Run: `%s`\n", m.RunID)
	fmt.Fprintf(&b, "- Fingerprint: `%s`\n", m.Fingerprint)
	fmt.Fprintf(&b, "- Rows: %d (identifier width %d)\n", m.TotalRows, m.IDWidth)
	fmt.Fprintf(&b, "- Code version: %s\n", m.CodeVersion)
	fmt.Fprintf(&b, "- Generated: %s\n\n", m.CreatedAt.Time().Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Strata\n\n")
	b.WriteString("| Stratum | Seed | Policy | Requested | Allocated | Blocks |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, s := range m.Strata {
		fmt.Fprintf(&b, "| %s | %d | %s | %d | %d | %d |\n", s.Stratum, s.Seed, s.Policy, s.N, s.Allocated, s.Blocks)
	}
	b.WriteString("\n")

	levels := audit.Levels()
	b.WriteString("## Allocation balance\n\n")
	b.WriteString("| Stratum |")
	for _, level := range levels {
		fmt.Fprintf(&b, " %s |", level)
	}
	b.WriteString(" Imbalance | Chi-square | p | Mean block | SD block |\n|---|")
	for range levels {
		b.WriteString("---|")
	}
	b.WriteString("---|---|---|---|---|\n")
	for _, s := range audit.Strata {
		fmt.Fprintf(&b, "| %s |", s.Stratum)
		for _, level := range levels {
			fmt.Fprintf(&b, " %d |", s.Counts[level])
		}
		fmt.Fprintf(&b, " %d | %.3f | %.3f | %.2f | %.2f |\n",
			s.Imbalance, s.ChiSquare, s.PValue, s.MeanBlockLength, s.SDBlockLength)
	}
	b.WriteString("\n")

	if audit.Balanced() {
		b.WriteString("All blocks are balanced.\n")
	} else {
		b.WriteString("## Violations\n\n")
		for _, v := range audit.Violations {
			fmt.Fprintf(&b, "- %s\n", v)
		}
	}

	return b.String()
}

// HTML renders the markdown report as a standalone page.
func HTML(m *run.Manifest, audit *randomisation.BalanceReport) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: m.Study,
	})
	return markdown.ToHTML([]byte(Markdown(m, audit)), p, renderer)
}

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/lightkeeper/pkg/audit"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	fairStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	poorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// scoreStyle picks the lighthouse colour band for a 0..1 score.
func scoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 0.9:
		return goodStyle
	case score >= 0.5:
		return fairStyle
	default:
		return poorStyle
	}
}

func formatScore(score float64) string {
	return scoreStyle(score).Render(fmt.Sprintf("%3.0f", score*100))
}

// printSummary writes one line per audited site followed by the category
// breakdown and a totals line.
func printSummary(w io.Writer, summary *audit.Summary) {
	fmt.Fprintln(w, titleStyle.Render("Lighthouse results"))

	width := 0
	for _, site := range summary.Sites {
		if l := lipgloss.Width(site.URL); l > width {
			width = l
		}
	}

	for _, site := range summary.Sites {
		pad := strings.Repeat(" ", width-lipgloss.Width(site.URL))
		if site.Error != "" {
			fmt.Fprintf(w, "  %s%s  %s\n", site.URL, pad, poorStyle.Render("failed: "+site.Error))
			continue
		}
		fmt.Fprintf(w, "  %s%s  %s  %s\n", site.URL, pad, formatScore(site.Score), mutedStyle.Render(formatDetail(site.Detail)))
	}

	failed := len(summary.Failed())
	fmt.Fprintf(w, "%d audited, %d failed in %s\n", len(summary.Sites)-failed, failed, summary.Duration)
}

func formatDetail(detail map[string]float64) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%.0f", k, detail[k]*100))
	}
	return strings.Join(parts, " ")
}

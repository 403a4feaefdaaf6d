package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444466")).
		Padding(0, 2)

	title = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00ffff"))

	label = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888899")).
		Width(18)

	value = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00ccff")).
		Bold(true)

	warn = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#ffaa00"))
)

type row struct {
	k, v string
}

func summary(heading string, rows []row, metrics map[string]float64, warnings []string) string {
	var b strings.Builder
	b.WriteString(title.Render(heading))
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(label.Render(r.k) + value.Render(r.v) + "\n")
	}
	if len(metrics) > 0 {
		names := make([]string, 0, len(metrics))
		for name := range metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n")
		for _, name := range names {
			b.WriteString(label.Render(name) + value.Render(fmt.Sprintf("%.6g", metrics[name])) + "\n")
		}
	}
	for _, w := range warnings {
		b.WriteString(warn.Render("! "+w) + "\n")
	}
	return panel.Render(strings.TrimRight(b.String(), "\n"))
}

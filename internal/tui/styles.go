package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/gantryd/gantry/internal/graph"
)

// Pane chrome
var (
	StyleFocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("69"))

	StyleUnfocusedBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("238"))

	StyleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	StyleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// statusStyles colors each task status; the progress pane reuses the
// same entries so counters and list rows always agree.
var statusStyles = map[graph.Status]lipgloss.Style{
	graph.StatusAssigned: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	graph.StatusRunning:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	graph.StatusComplete: lipgloss.NewStyle().Foreground(lipgloss.Color("35")).Bold(true),
	graph.StatusFailed:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	graph.StatusBlocked:  lipgloss.NewStyle().Foreground(lipgloss.Color("211")).Bold(true),
}

var statusDim = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

// statusStyle maps a status to its display style; statuses without a
// dedicated entry (pending, ready) render dimmed.
func statusStyle(s graph.Status) lipgloss.Style {
	if style, ok := statusStyles[s]; ok {
		return style
	}
	return statusDim
}

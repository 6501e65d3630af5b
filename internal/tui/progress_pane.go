package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gantryd/gantry/internal/events"
	"github.com/gantryd/gantry/internal/graph"
)

// ProgressPaneModel displays graph-wide status counts.
type ProgressPaneModel struct {
	counts  graph.Counts
	width   int
	height  int
	focused bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	return ProgressPaneModel{}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.ProgressEvent:
		m.counts = msg.Counts
	}
	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Graph Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	c := m.counts
	b.WriteString(fmt.Sprintf("Total:     %d\n", c.Total))
	b.WriteString(fmt.Sprintf("Complete:  %s\n", statusStyle(graph.StatusComplete).Render(fmt.Sprintf("%d", c.Complete))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", statusStyle(graph.StatusRunning).Render(fmt.Sprintf("%d", c.Running+c.Assigned))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", statusStyle(graph.StatusFailed).Render(fmt.Sprintf("%d", c.Failed))))
	b.WriteString(fmt.Sprintf("Blocked:   %s\n", statusStyle(graph.StatusBlocked).Render(fmt.Sprintf("%d", c.Blocked))))
	b.WriteString(fmt.Sprintf("Pending:   %s\n", statusStyle(graph.StatusPending).Render(fmt.Sprintf("%d", c.Pending+c.Ready))))

	b.WriteString("\n")

	if c.Total > 0 {
		barWidth := minInt(m.width-4, 40)
		doneWidth := (c.Complete * barWidth) / c.Total
		failWidth := ((c.Failed + c.Blocked) * barWidth) / c.Total
		runWidth := ((c.Running + c.Assigned) * barWidth) / c.Total
		pendWidth := barWidth - doneWidth - failWidth - runWidth

		bar := statusStyle(graph.StatusComplete).Render(strings.Repeat("=", maxInt(0, doneWidth)))
		bar += statusStyle(graph.StatusFailed).Render(strings.Repeat("!", maxInt(0, failWidth)))
		bar += statusStyle(graph.StatusRunning).Render(strings.Repeat("-", maxInt(0, runWidth)))
		bar += statusStyle(graph.StatusPending).Render(strings.Repeat(".", maxInt(0, pendWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, c.Complete, c.Total))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

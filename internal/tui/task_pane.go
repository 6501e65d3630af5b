package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/gantryd/gantry/internal/events"
	"github.com/gantryd/gantry/internal/graph"
)

// taskRow tracks one task's displayed state and its transition tail.
type taskRow struct {
	ID      string
	Status  graph.Status
	Worker  string
	History []string
}

// TaskPaneModel renders the task list and the selected task's
// transition history in a scrollable viewport.
type TaskPaneModel struct {
	rows        map[string]*taskRow
	order       []string // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		rows:     make(map[string]*taskRow),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.refreshViewport()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.refreshViewport()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskSubmittedEvent:
		m.upsert(msg.ID).append(fmt.Sprintf("%s submitted (%s)",
			msg.Timestamp.Format(time.TimeOnly), msg.Kind))
		m.refreshViewport()

	case events.StatusChangedEvent:
		row := m.upsert(msg.ID)
		row.Status = msg.To
		line := fmt.Sprintf("%s %s -> %s", msg.Timestamp.Format(time.TimeOnly), msg.From, msg.To)
		if msg.Classification != "" {
			line += " [" + msg.Classification + "]"
		}
		row.append(line)
		m.refreshViewport()

	case events.TaskAssignedEvent:
		row := m.upsert(msg.ID)
		row.Worker = msg.Worker
		row.append(fmt.Sprintf("%s assigned to %s", msg.Timestamp.Format(time.TimeOnly), msg.Worker))
		m.refreshViewport()
	}

	return m, cmd
}

func (m *TaskPaneModel) upsert(id string) *taskRow {
	if row, ok := m.rows[id]; ok {
		return row
	}
	row := &taskRow{ID: id}
	m.rows[id] = row
	m.order = append(m.order, id)
	return row
}

func (r *taskRow) append(line string) {
	r.History = append(r.History, line)
	if len(r.History) > 200 {
		r.History = r.History[len(r.History)-200:]
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(StyleTitle.Render("Tasks"))
	b.WriteString("\n\n")

	listHeight := m.listHeight()
	start := 0
	if m.selectedIdx >= listHeight {
		start = m.selectedIdx - listHeight + 1
	}
	for i := start; i < len(m.order) && i < start+listHeight; i++ {
		row := m.rows[m.order[i]]
		cursor := "  "
		if i == m.selectedIdx {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-24s %s", cursor, truncate(row.ID, 24), statusStyle(row.Status).Render(row.Status.String()))
		if row.Worker != "" {
			line += " @" + row.Worker
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.viewport.View())

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m *TaskPaneModel) refreshViewport() {
	if m.selectedIdx >= len(m.order) {
		return
	}
	row := m.rows[m.order[m.selectedIdx]]
	m.viewport.SetContent(strings.Join(row.History, "\n"))
	m.viewport.GotoBottom()
}

func (m *TaskPaneModel) listHeight() int {
	h := (m.height - 6) / 2
	if h < 3 {
		h = 3
	}
	return h
}

func (m *TaskPaneModel) resizeViewport() {
	m.viewport.Width = m.width - 4
	m.viewport.Height = m.height - m.listHeight() - 6
	if m.viewport.Height < 3 {
		m.viewport.Height = 3
	}
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

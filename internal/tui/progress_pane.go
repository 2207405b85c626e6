package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contentmesh/internal/events"
)

// ProgressPaneModel shows run and task counters.
type ProgressPaneModel struct {
	runsStarted   int
	runsCompleted int
	runsFailed    int
	pagesExpected int
	pagesProduced int

	tasksAssigned  int
	tasksCompleted int
	tasksFailed    int

	lastError string
	width     int
	height    int
	focused   bool
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

	case events.Message:
		switch p := msg.Payload.(type) {
		case events.PipelineStart:
			m.runsStarted++
			m.pagesExpected += len(p.Expected)
		case events.PipelineComplete:
			m.runsCompleted++
		case events.PipelineError:
			m.runsFailed++
			m.lastError = p.Error
		case events.OutputProduced:
			m.pagesProduced++
		case events.TaskAssigned:
			m.tasksAssigned++
		case events.TaskCompleted:
			if p.Success {
				m.tasksCompleted++
			} else {
				m.tasksFailed++
			}
		}
	}

	return m, nil
}

// running returns tasks handed out and not yet reported. A failed attempt
// that is retried counts once per attempt.
func (m ProgressPaneModel) running() int {
	return max(0, m.tasksAssigned-m.tasksCompleted-m.tasksFailed)
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Pipeline Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Runs:      %d started, %s, %s\n", m.runsStarted,
		StyleStatusComplete.Render(fmt.Sprintf("%d done", m.runsCompleted)),
		StyleStatusFailed.Render(fmt.Sprintf("%d failed", m.runsFailed))))
	b.WriteString(fmt.Sprintf("Tasks:     %s, %s, %s\n",
		StyleStatusRunning.Render(fmt.Sprintf("%d running", m.running())),
		StyleStatusComplete.Render(fmt.Sprintf("%d completed", m.tasksCompleted)),
		StyleStatusFailed.Render(fmt.Sprintf("%d failed attempts", m.tasksFailed))))
	b.WriteString(fmt.Sprintf("Pages:     %d/%d\n", m.pagesProduced, m.pagesExpected))
	b.WriteString("\n")

	if m.pagesExpected > 0 {
		barWidth := min(m.width-4, 40)
		doneWidth := min(barWidth, (m.pagesProduced*barWidth)/m.pagesExpected)
		bar := StyleStatusComplete.Render(strings.Repeat("=", doneWidth))
		bar += StyleStatusPending.Render(strings.Repeat(".", barWidth-doneWidth))
		b.WriteString(fmt.Sprintf("[%s]\n", bar))
	}

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(StyleStatusFailed.Render("Last error: " + m.lastError))
		b.WriteString("\n")
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

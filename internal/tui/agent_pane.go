package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contentmesh/internal/events"
)

// maxActivity bounds the lines kept per worker.
const maxActivity = 500

// AgentState is what the pane knows about one worker.
type AgentState struct {
	ID           string
	Type         string
	Capabilities []string
	Status       string // "starting", "ready", "busy", "error"
	Handled      int
	Activity     []string
}

// AgentPaneModel represents the worker list and activity viewport pane.
type AgentPaneModel struct {
	agents      map[string]*AgentState
	agentOrder  []string // registration order
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing
}

// NewAgentPaneModel creates a new agent pane model.
func NewAgentPaneModel() AgentPaneModel {
	vp := viewport.New(0, 0)
	return AgentPaneModel{
		agents:   make(map[string]*AgentState),
		viewport: vp,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the agent pane.
func (m AgentPaneModel) Update(msg tea.Msg) (AgentPaneModel, tea.Cmd) {
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

		switch {
		case key.Matches(msg, keys.Down):
			if m.selectedIdx < len(m.agentOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case key.Matches(msg, keys.Up):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.Message:
		touched := m.apply(msg)
		if touched != "" && touched == m.getSelectedID() {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// apply folds one bus message into worker state and returns the id of the
// worker whose activity changed, if any.
func (m *AgentPaneModel) apply(msg events.Message) string {
	switch p := msg.Payload.(type) {
	case events.AgentRegistered:
		if _, exists := m.agents[p.AgentID]; !exists {
			m.agents[p.AgentID] = &AgentState{
				ID:           p.AgentID,
				Type:         p.Type,
				Capabilities: p.Capabilities,
				Status:       "starting",
			}
			m.agentOrder = append(m.agentOrder, p.AgentID)
			if len(m.agentOrder) == 1 {
				m.selectedIdx = 0
				m.updateViewportContent()
			}
		}
		return ""

	case events.AgentReady:
		if a, ok := m.agents[p.AgentID]; ok {
			a.Status = "ready"
		}
		return ""

	case events.TaskAssigned:
		a, ok := m.agents[msg.Target]
		if !ok {
			return ""
		}
		a.Status = "busy"
		a.log(msg.Timestamp, fmt.Sprintf("assigned %s (%s)", p.TaskType, short(p.TaskID)))
		return a.ID

	case events.TaskCompleted:
		a, ok := m.agents[p.AgentID]
		if !ok {
			return ""
		}
		a.Handled++
		if p.Success {
			a.log(msg.Timestamp, fmt.Sprintf("completed %s", short(p.TaskID)))
		} else {
			a.log(msg.Timestamp, fmt.Sprintf("failed %s: %s", short(p.TaskID), p.Error))
		}
		return a.ID

	case events.AgentError:
		a, ok := m.agents[p.AgentID]
		if !ok {
			return ""
		}
		a.Status = "error"
		a.log(msg.Timestamp, fmt.Sprintf("error on %s: %s", p.Topic, p.Error))
		return a.ID
	}

	// Everything else is shown as activity of its publisher
	a, ok := m.agents[msg.Source]
	if !ok {
		return ""
	}
	line := "published " + msg.Topic
	if msg.Target != "" {
		line += " -> " + msg.Target
	}
	a.log(msg.Timestamp, line)
	return a.ID
}

func (a *AgentState) log(ts time.Time, line string) {
	a.Activity = append(a.Activity, ts.Format("15:04:05.000")+"  "+line)
	if len(a.Activity) > maxActivity {
		a.Activity = a.Activity[len(a.Activity)-maxActivity:]
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// View renders the agent pane.
func (m AgentPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 28
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderAgentList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m AgentPaneModel) renderAgentList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Workers")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.agentOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.agentOrder {
			a := m.agents[id]
			name := a.ID
			if len(name) > width-8 {
				name = name[:width-11] + "..."
			}

			line := fmt.Sprintf("%s %s %d", m.StatusIcon(a.Status), name, a.Handled)
			if i == m.selectedIdx {
				line = StyleSelected.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func (m AgentPaneModel) StatusIcon(status string) string {
	switch status {
	case "busy":
		return StyleStatusRunning.Render("●")
	case "ready":
		return StyleStatusComplete.Render("✓")
	case "error":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

func (m AgentPaneModel) getSelectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.agentOrder) {
		return m.agentOrder[m.selectedIdx]
	}
	return ""
}

func (m *AgentPaneModel) updateViewportContent() {
	a, ok := m.agents[m.getSelectedID()]
	if !ok {
		m.viewport.SetContent("Waiting for workers...")
		return
	}

	header := StyleActivityHeader.Render(fmt.Sprintf("%s (%s)", a.ID, a.Type)) +
		fmt.Sprintf("\ncapabilities: %s\n\n", strings.Join(a.Capabilities, ", "))
	m.viewport.SetContent(header + strings.Join(a.Activity, "\n"))
	m.viewport.GotoBottom()
}

func (m *AgentPaneModel) resizeViewport() {
	listWidth := 28
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *AgentPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *AgentPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

// Agent returns a copy of a worker's state.
func (m AgentPaneModel) Agent(id string) (AgentState, bool) {
	a, ok := m.agents[id]
	if !ok {
		return AgentState{}, false
	}
	out := *a
	out.Activity = append([]string(nil), a.Activity...)
	return out, true
}

package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contentmesh/internal/config"
	"github.com/aristath/contentmesh/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneAgents PaneID = iota
	PaneProgress
	paneCount
)

// DoneMsg tells the model that every requested run has finished.
type DoneMsg struct {
	Err error
}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	agentPane    AgentPaneModel
	progressPane ProgressPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Message
	width        int
	height       int
	quitting     bool
	showSettings bool
	done         bool
	doneErr      error
}

// New creates the TUI model. Every bus message reaches it through Watch;
// callers stop the returned tap once the program exits.
func New(bus *events.Bus, cfg *config.Config, globalPath, projectPath string) (Model, func()) {
	sub, stop := Watch(bus)
	return Model{
		agentPane:    NewAgentPaneModel(),
		progressPane: NewProgressPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:  PaneAgents,
		eventSub:     sub,
	}, stop
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Settings is modal
		if m.showSettings {
			if key.Matches(msg, keys.Close) {
				m.showSettings = false
				m.settingsPane.SetVisible(false)
				return m, nil
			}
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			if !m.settingsPane.IsVisible() {
				m.showSettings = false
			}
			return m, cmd
		}

		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, keys.Settings):
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case key.Matches(msg, keys.NextPane):
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case key.Matches(msg, keys.PrevPane):
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case key.Matches(msg, keys.Agents):
			m.focusedPane = PaneAgents
			m.updateFocusStates()

		case key.Matches(msg, keys.Progress):
			m.focusedPane = PaneProgress
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneAgents {
				var cmd tea.Cmd
				m.agentPane, cmd = m.agentPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case events.Message:
		var cmd tea.Cmd
		m.agentPane, cmd = m.agentPane.Update(msg)
		cmds = append(cmds, cmd)
		m.progressPane, _ = m.progressPane.Update(msg)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case tickMsg:
		var cmd tea.Cmd
		m.agentPane, cmd = m.agentPane.Update(msg)
		cmds = append(cmds, cmd)

	case DoneMsg:
		m.done = true
		m.doneErr = msg.Err
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, m.agentPane.View(), m.progressPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, main, m.statusLine())
}

func (m Model) statusLine() string {
	switch {
	case m.done && m.doneErr != nil:
		return StyleStatusFailed.Render("Finished with errors: "+m.doneErr.Error()) + "  " + HelpView()
	case m.done:
		return StyleStatusComplete.Render("All runs finished") + "  " + HelpView()
	default:
		return HelpView()
	}
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1

	m.agentPane.SetSize(leftWidth, availableHeight)
	m.progressPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.agentPane.SetFocused(m.focusedPane == PaneAgents)
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
}

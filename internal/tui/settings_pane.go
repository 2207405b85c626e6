package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/contentmesh/internal/config"
)

// SettingsPaneModel manages the settings form overlay. Changes are written to
// disk and take effect on the next run.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget    string
	maxRetries    string
	retryInterval string
	leaseTimeout  string
	concurrency   string
	logLevel      string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
	}
	m.loadFromConfig()
	m.buildForm()
	return m
}

func (m *SettingsPaneModel) loadFromConfig() {
	m.saveTarget = "project"
	m.maxRetries = strconv.Itoa(m.config.Queue.MaxRetries)
	m.retryInterval = strconv.Itoa(m.config.Queue.RetryInitialIntervalMS)
	m.leaseTimeout = strconv.Itoa(m.config.Queue.LeaseTimeoutMS)
	m.concurrency = strconv.Itoa(m.config.Pipeline.Concurrency)
	m.logLevel = m.config.Log.Level
}

func nonNegative(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func positive(s string) error {
	if err := nonNegative(s); err != nil {
		return err
	}
	if n, _ := strconv.Atoi(s); n == 0 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project ("+m.projectPath+")", "project"),
					huh.NewOption("Global ("+m.globalPath+")", "global"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxRetries").
				Title("Max Retries").
				Value(&m.maxRetries).
				Validate(positive),

			huh.NewInput().
				Key("retryInterval").
				Title("Initial Retry Interval (ms)").
				Value(&m.retryInterval).
				Validate(nonNegative),

			huh.NewInput().
				Key("leaseTimeout").
				Title("Task Lease Timeout (ms, 0 disables)").
				Value(&m.leaseTimeout).
				Validate(nonNegative),
		).Title("Task Queue"),

		huh.NewGroup(
			huh.NewInput().
				Key("concurrency").
				Title("Concurrent Runs").
				Value(&m.concurrency).
				Validate(positive),

			huh.NewSelect[string]().
				Key("logLevel").
				Title("Log Level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&m.logLevel),
		).Title("Pipeline"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.err = m.save()
		m.saved = m.err == nil
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

func (m *SettingsPaneModel) save() error {
	m.applyFormToConfig()
	target := m.globalPath
	if m.saveTarget == "project" {
		target = m.projectPath
	}
	return config.Save(m.config, target)
}

// applyFormToConfig copies form field values back to the config struct. The
// form validators guarantee the numbers parse.
func (m *SettingsPaneModel) applyFormToConfig() {
	m.config.Queue.MaxRetries, _ = strconv.Atoi(m.maxRetries)
	m.config.Queue.RetryInitialIntervalMS, _ = strconv.Atoi(m.retryInterval)
	m.config.Queue.LeaseTimeoutMS, _ = strconv.Atoi(m.leaseTimeout)
	m.config.Pipeline.Concurrency, _ = strconv.Atoi(m.concurrency)
	m.config.Log.Level = m.logLevel
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	content := m.form.View()
	if m.err != nil {
		content = StyleStatusFailed.Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	}

	box := StyleFocusedBorder.
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	return lipgloss.JoinVertical(lipgloss.Left, StyleActivityHeader.Render("⚙ Settings"), box.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane. Showing it reloads the form
// from the current config.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil
	if v {
		m.loadFromConfig()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

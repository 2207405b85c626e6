package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds every binding the monitor reacts to.
type keyMap struct {
	NextPane key.Binding
	PrevPane key.Binding
	Agents   key.Binding
	Progress key.Binding
	Up       key.Binding
	Down     key.Binding
	Settings key.Binding
	Close    key.Binding
	Quit     key.Binding
}

var keys = keyMap{
	NextPane: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "cycle focus")),
	PrevPane: key.NewBinding(key.WithKeys("shift+tab")),
	Agents:   key.NewBinding(key.WithKeys("1"), key.WithHelp("1/2", "jump to pane")),
	Progress: key.NewBinding(key.WithKeys("2")),
	Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("j/k", "select worker")),
	Down:     key.NewBinding(key.WithKeys("j", "down")),
	Settings: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
	Close:    key.NewBinding(key.WithKeys("s", "esc")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// HelpView returns a one-line help bar built from the bindings that carry
// help text.
func HelpView() string {
	var parts []string
	for _, b := range []key.Binding{keys.NextPane, keys.Agents, keys.Up, keys.Settings, keys.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return StyleHelp.Render(strings.Join(parts, " | "))
}

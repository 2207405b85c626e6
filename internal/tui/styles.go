package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette shared by every pane. Adaptive colors keep the monitor readable
// on light terminals.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "63", Dark: "62"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "245", Dark: "240"}
	colorSubtle  = lipgloss.AdaptiveColor{Light: "243", Dark: "241"}
	colorWarn    = lipgloss.AdaptiveColor{Light: "136", Dark: "214"}
	colorOK      = lipgloss.AdaptiveColor{Light: "28", Dark: "42"}
	colorFailure = lipgloss.AdaptiveColor{Light: "160", Dark: "203"}
)

func border(c lipgloss.TerminalColor) lipgloss.Style {
	return lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(c)
}

func status(c lipgloss.TerminalColor, bold bool) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c).Bold(bold)
}

var (
	StyleFocusedBorder   = border(colorAccent)
	StyleUnfocusedBorder = border(colorMuted)

	StyleStatusRunning  = status(colorWarn, true)
	StyleStatusComplete = status(colorOK, true)
	StyleStatusFailed   = status(colorFailure, true)
	StyleStatusPending  = status(colorMuted, false)

	StyleTitle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp  = lipgloss.NewStyle().Foreground(colorSubtle)

	// StyleSelected highlights the selected worker row.
	StyleSelected       = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
	StyleActivityHeader = status(colorAccent, true)
)

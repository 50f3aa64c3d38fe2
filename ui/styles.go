package ui

import "github.com/charmbracelet/lipgloss"

var (
	green     = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	blue      = lipgloss.AdaptiveColor{Light: "#0077CC", Dark: "#00AAFF"}
	red       = lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}
	gray      = lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"}
	darkGray  = lipgloss.AdaptiveColor{Light: "#DDDADA", Dark: "#3C3C3C"}
	highlight = lipgloss.AdaptiveColor{Light: "#6D28D9", Dark: "#A78BFA"}

	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	subtleStyle     = lipgloss.NewStyle().Foreground(gray)
	errorTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(red).
			Padding(0, 1)
	errorStyle = lipgloss.NewStyle().Foreground(red)
	doneStyle  = lipgloss.NewStyle().Foreground(green)
)

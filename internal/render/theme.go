package render

import "charm.land/lipgloss/v2"

// Palette
var (
	Primary = lipgloss.Color("#8B5CF6") // Vivid Purple
	Accent  = lipgloss.Color("#F97316") // Orange
	Success = lipgloss.Color("#22C55E") // Green
	Error   = lipgloss.Color("#F43F5E") // Rose
	Fg      = lipgloss.Color("#F8FAFC") // White
	FgDim   = lipgloss.Color("#94A3B8") // Slate
)

var (
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary)

	Subtitle = lipgloss.NewStyle().
			Foreground(FgDim)

	Body = lipgloss.NewStyle().
		Foreground(Fg)

	Hint = lipgloss.NewStyle().
		Foreground(FgDim).
		Italic(true)

	Reward = lipgloss.NewStyle().
		Foreground(Accent).
		Bold(true)

	Good = lipgloss.NewStyle().
		Foreground(Success).
		Bold(true)

	Bad = lipgloss.NewStyle().
		Foreground(Error).
		Bold(true)
)

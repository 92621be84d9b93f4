package cmd

import "charm.land/lipgloss/v2"

// Output styles shared by the commands.
var (
	styleAnswer = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#8B5CF6")).
			Padding(1, 2)

	styleHeading = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8B5CF6"))

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94A3B8"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F43F5E"))

	styleOK = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#22C55E"))
)

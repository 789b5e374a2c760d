package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorMuted      = lipgloss.Color("245")
	colorSelectedFg = lipgloss.Color("255")
	colorSelectedBg = lipgloss.Color("236")
	colorChipBg     = lipgloss.Color("238")
	colorChipOnBg   = lipgloss.Color("62")
	colorError      = lipgloss.Color("203")
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle    = lipgloss.NewStyle().Foreground(colorError)
	selectedStyle = lipgloss.NewStyle().Foreground(colorSelectedFg).Background(colorSelectedBg).Bold(true)
	// Done cards are struck through and dimmed, never hidden.
	doneStyle = lipgloss.NewStyle().Strikethrough(true).Faint(true)

	chipStyle       = lipgloss.NewStyle().Padding(0, 1).Background(colorChipBg)
	chipActiveStyle = chipStyle.Background(colorChipOnBg).Foreground(colorSelectedFg)
	chipCursorStyle = lipgloss.NewStyle().Underline(true)

	formLabelStyle = lipgloss.NewStyle().Width(7).Foreground(colorMuted)
	modalStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// ABOUTME: Defines lipgloss style constants for the TUI panels, statuses, and activity log.
// ABOUTME: Provides StyleForStatus to map terminal query statuses to display styles.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/sqlscout/pipeline"
)

var (
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	QuestionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	BlockedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	SQLStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75"))

	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	ActivityStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)
)

// StyleForStatus returns the display style for a terminal query status.
func StyleForStatus(status pipeline.Status) lipgloss.Style {
	switch status {
	case pipeline.StatusSuccess:
		return SuccessStyle
	case pipeline.StatusBlocked:
		return BlockedStyle
	case pipeline.StatusError:
		return ErrorStyle
	default:
		return WarningStyle
	}
}

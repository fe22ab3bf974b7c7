package tui

import (
	"github.com/charmbracelet/lipgloss"

	"compliance/internal/domain"
	"compliance/internal/pointer"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	cardStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	activeCard     = cardStyle.BorderForeground(lipgloss.Color("14"))
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

var statusColors = map[string]lipgloss.Color{
	"compliant":           lipgloss.Color("10"),
	"partially-compliant": lipgloss.Color("11"),
	"not-compliant":       lipgloss.Color("9"),
	"not-checked":         lipgloss.Color("8"),
}

func statusBadge(status domain.Status) string {
	color := statusColors[pointer.StatusClass(status)]
	return lipgloss.NewStyle().Bold(true).Foreground(color).Render(string(status))
}

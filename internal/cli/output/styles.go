package output

import "github.com/charmbracelet/lipgloss"

// Styles groups the lipgloss styles used by terminal output.
type Styles struct {
	Title   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles returns the default style set.
func NewStyles() *Styles {
	return &Styles{
		Title:   lipgloss.NewStyle().Bold(true),
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// Package watch renders a run full-screen with bubbletea, either driven by a
// local session or attached to a remote live mirror.
package watch

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the watch view.
type Theme struct {
	Title   lipgloss.Style
	Running lipgloss.Style
	Done    lipgloss.Style
	Failed  lipgloss.Style
	Dim     lipgloss.Style
	Border  lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")),
		Running: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00")),
		Done:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00")),
		Failed:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
	}
}

// NewPlainTheme returns a theme without colors or borders.
func NewPlainTheme() Theme {
	plain := lipgloss.NewStyle()
	return Theme{Title: plain, Running: plain, Done: plain, Failed: plain, Dim: plain, Border: plain}
}

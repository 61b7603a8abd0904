package render

import "github.com/charmbracelet/lipgloss"

// Theme styles the start and done lines of a progress stream.
// The zero Theme renders text untouched.
type Theme struct {
	enabled bool
	Start   lipgloss.Style
	Done    lipgloss.Style
}

// PlainTheme leaves text as the worker sent it.
func PlainTheme() Theme {
	return Theme{}
}

// ColorTheme highlights the start and done lines.
func ColorTheme() Theme {
	return Theme{
		enabled: true,
		Start:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")),
		Done:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF00")),
	}
}

func (t Theme) start(s string) string {
	if !t.enabled || s == "" {
		return s
	}
	return t.Start.Render(s)
}

func (t Theme) done(s string) string {
	if !t.enabled || s == "" {
		return s
	}
	return t.Done.Render(s)
}

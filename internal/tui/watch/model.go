package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/portrun/internal/protocol"
)

const (
	maxLines     = 1000
	chromeHeight = 6
)

// MessageMsg carries one worker message into the model.
type MessageMsg protocol.Message

// FinishedMsg ends the view. Err is the run's failure, if any.
type FinishedMsg struct {
	Err error
}

// Model is the BubbleTea model for one run.
type Model struct {
	worker string
	theme  Theme

	width  int
	height int

	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	title     string
	lines     []string
	doneText  string
	done      bool
	finished  bool
	err       error
	quit      bool
	startedAt time.Time
	elapsed   time.Duration
}

// New creates a model for a run of worker.
func New(worker string, theme Theme) Model {
	return Model{
		worker:    worker,
		theme:     theme,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Running)),
		startedAt: time.Now(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.finished {
				m.quit = true
			}
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := max(msg.Height-chromeHeight, 1)
		w := max(msg.Width-4, 1)
		if !m.ready {
			m.viewport = viewport.New(w, h)
			m.ready = true
		} else {
			m.viewport.Width = w
			m.viewport.Height = h
		}
		m.syncViewport()

	case spinner.TickMsg:
		if m.done || m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case MessageMsg:
		m.apply(protocol.Message(msg))

	case FinishedMsg:
		m.finished = true
		m.err = msg.Err
		m.elapsed = time.Since(m.startedAt)
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) apply(msg protocol.Message) {
	switch msg.Type {
	case protocol.TypeStart:
		m.title = msg.Text()
	case protocol.TypeRunning:
		m.lines = appendOutput(m.lines, msg.Text())
		m.syncViewport()
	case protocol.TypeDone:
		m.done = true
		m.doneText = msg.Text()
	}
}

func (m *Model) syncViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// Quit reports whether the user left before the run finished.
func (m Model) Quit() bool { return m.quit }

// Done reports whether the done message was seen.
func (m Model) Done() bool { return m.done }

// Err returns the failure the run finished with.
func (m Model) Err() error { return m.err }

// Output returns the accumulated running text.
func (m Model) Output() string { return strings.Join(m.lines, "\n") }

func (m Model) View() string {
	title := m.title
	if title == "" {
		title = "Waiting for worker..."
	}

	var status string
	switch {
	case m.err != nil:
		status = m.theme.Failed.Render("✗")
	case m.done:
		status = m.theme.Done.Render("✓")
	default:
		status = m.spinner.View()
	}
	header := fmt.Sprintf("%s %s %s", status, m.theme.Title.Render(title), m.theme.Dim.Render("("+m.worker+")"))

	body := m.Output()
	if m.ready {
		body = m.viewport.View()
	}
	if m.width > 0 {
		body = m.theme.Border.Width(max(m.width-2, 1)).Render(body)
	}

	var footer string
	switch {
	case m.err != nil:
		footer = m.theme.Failed.Render(m.err.Error())
	case m.done:
		footer = m.theme.Done.Render(m.doneText)
	default:
		footer = m.theme.Dim.Render("[q] quit • [↑/↓] scroll")
	}
	if m.finished {
		footer += m.theme.Dim.Render(fmt.Sprintf("  %s", m.elapsed.Round(time.Millisecond)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer) + "\n"
}

// appendOutput applies raw terminal text to lines: a carriage return
// rewrites the current line and a newline starts a new one.
func appendOutput(lines []string, s string) []string {
	if len(lines) == 0 {
		lines = []string{""}
	}
	for len(s) > 0 {
		i := strings.IndexAny(s, "\r\n")
		last := len(lines) - 1
		if i < 0 {
			lines[last] += s
			break
		}
		lines[last] += s[:i]
		switch {
		case s[i] == '\n':
			lines = append(lines, "")
		case i+1 < len(s) && s[i+1] == '\n':
			lines = append(lines, "")
			i++
		default:
			lines[last] = ""
		}
		s = s[i+1:]
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return lines
}

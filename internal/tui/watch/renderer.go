package watch

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/portrun/internal/protocol"
)

// Renderer drives a Model from a local session. It satisfies the session
// renderer contract by forwarding each message to the running program.
type Renderer struct {
	program *tea.Program
	exited  chan struct{}
	final   Model
	runErr  error
}

// NewRenderer creates a renderer that draws on out. cancel is called when the
// user quits before the run finishes.
func NewRenderer(worker string, theme Theme, out io.Writer, cancel context.CancelFunc, opts ...tea.ProgramOption) *Renderer {
	opts = append([]tea.ProgramOption{tea.WithOutput(out), tea.WithAltScreen()}, opts...)
	r := &Renderer{
		program: tea.NewProgram(New(worker, theme), opts...),
		exited:  make(chan struct{}),
	}
	go func() {
		defer close(r.exited)
		m, err := r.program.Run()
		r.runErr = err
		if fm, ok := m.(Model); ok {
			r.final = fm
			if fm.Quit() && cancel != nil {
				cancel()
			}
		}
	}()
	return r
}

// Render forwards msg to the program.
func (r *Renderer) Render(msg protocol.Message) (bool, error) {
	select {
	case <-r.exited:
		return false, fmt.Errorf("watch view closed")
	default:
	}
	r.program.Send(MessageMsg(msg))
	return msg.Type == protocol.TypeDone, nil
}

// Finish ends the view with the run's error and waits for the program to exit.
func (r *Renderer) Finish(runErr error) (Model, error) {
	r.program.Send(FinishedMsg{Err: runErr})
	<-r.exited
	if r.runErr != nil {
		return r.final, fmt.Errorf("watch view: %w", r.runErr)
	}
	return r.final, nil
}

// Attach shows a run followed from the live mirror at apiURL until it
// finishes or the user quits.
func Attach(ctx context.Context, apiURL, runID string, theme Theme, out io.Writer, opts ...tea.ProgramOption) (Model, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	name := runID
	if name == "" {
		name = apiURL
	}
	opts = append([]tea.ProgramOption{tea.WithOutput(out), tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	program := tea.NewProgram(New(name, theme), opts...)

	go func() {
		if err := Follow(ctx, apiURL, runID, program.Send); err != nil && !errors.Is(err, context.Canceled) {
			program.Send(FinishedMsg{Err: err})
		}
	}()

	m, err := program.Run()
	final, _ := m.(Model)
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return final, fmt.Errorf("watch view: %w", err)
	}
	return final, nil
}

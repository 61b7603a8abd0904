package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/log"
	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/render"
	"github.com/mattjoyce/portrun/internal/session"
	"github.com/mattjoyce/portrun/internal/stream"
	"github.com/mattjoyce/portrun/internal/tui/watch"
	"github.com/mattjoyce/portrun/internal/worker"
)

// RunOptions tunes Run. Zero values use the configuration.
type RunOptions struct {
	Worker string
	TUI    bool
}

// Run starts the run worker with no input and renders its progress stream.
// It returns the process exit code.
func (e *Env) Run(ctx context.Context, s Streams, opts RunOptions) int {
	name := opts.Worker
	if name == "" {
		name = e.Config.Run.Worker
	}
	logger := log.WithWorker(name)

	plug, err := e.lookup(name, protocol.ModeRun)
	if err != nil {
		fmt.Fprintf(s.Stderr, "run: %v\n", err)
		return ExitFailure
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	info := session.RunInfo{
		ID:        uuid.NewString(),
		Worker:    name,
		Mode:      protocol.ModeRun,
		StartedAt: time.Now().UTC(),
	}
	run, err := e.Producer.Start(runCtx, plug, worker.StartOptions{
		RunID:    info.ID,
		Mode:     protocol.ModeRun,
		Settings: e.Config.Worker(name),
	})
	if err != nil {
		fmt.Fprintf(s.Stderr, "run: start worker %q: %v\n", name, err)
		return ExitFailure
	}

	var outcome session.Outcome
	if opts.TUI || e.Config.Run.Renderer == config.RendererTUI {
		outcome = e.runTUI(runCtx, cancel, s, info, run)
	} else {
		progress := render.NewProgress(render.NewTerminal(s.Stdout), e.theme(s.Stdout))
		outcome = session.Run(runCtx, info, stream.New(run), progress, session.Options{RequireDone: true}, e.observers...)
		if err := progress.Restore(); err != nil {
			logger.Warn("failed to restore cursor", "error", err)
		}
	}

	// After done the stream is complete; a lingering worker is stopped, not awaited.
	var closeErr error
	if outcome.Done {
		closeErr = run.Release()
	} else {
		closeErr = run.Close()
	}
	if closeErr != nil && outcome.Done {
		logger.Warn("worker exited uncleanly after done", "error", closeErr)
	}

	switch {
	case outcome.Done && outcome.Err == nil:
		return ExitOK
	case interrupted(ctx, outcome.Err):
		return ExitInterrupted
	case errors.Is(outcome.Err, session.ErrNoDone) && closeErr != nil:
		fmt.Fprintf(s.Stderr, "run: %v (%v)\n", outcome.Err, closeErr)
	default:
		fmt.Fprintf(s.Stderr, "run: %v\n", outcome.Err)
	}
	logWorkerStderr(logger, run)
	return ExitFailure
}

func (e *Env) runTUI(ctx context.Context, cancel context.CancelFunc, s Streams, info session.RunInfo, run *worker.Run) session.Outcome {
	theme := watch.NewPlainTheme()
	if e.colorize(s.Stdout) {
		theme = watch.NewDefaultTheme()
	}
	view := watch.NewRenderer(info.Worker, theme, s.Stdout, cancel)
	outcome := session.Run(ctx, info, stream.New(run), view, session.Options{RequireDone: true}, e.observers...)
	if _, err := view.Finish(outcome.Err); err != nil {
		e.logger.Warn("watch view failed", "error", err)
	}
	return outcome
}

func logWorkerStderr(logger *slog.Logger, run *worker.Run) {
	if stderr := run.Stderr(); stderr != "" {
		logger.Error("worker stderr", "stderr", stderr)
	}
}

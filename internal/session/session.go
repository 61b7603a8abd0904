// Package session drives one run: it pulls messages from a stream, renders
// each one synchronously, and reports progress to observers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mattjoyce/portrun/internal/log"
	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/stream"
)

//go:generate mockgen -destination=mocks/mock_observer.go -package=mocks github.com/mattjoyce/portrun/internal/session Observer

// ErrNoDone is reported when a stream that must finish with done closes early.
var ErrNoDone = errors.New("worker stream ended without done")

// Run statuses recorded by observers.
const (
	StatusDone       = "done"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// RunInfo identifies a run.
type RunInfo struct {
	ID        string
	Worker    string
	Mode      string
	Input     json.RawMessage
	StartedAt time.Time
}

// Outcome summarizes a finished run.
type Outcome struct {
	RunID      string
	Messages   int
	Done       bool
	Err        error
	FinishedAt time.Time
}

// Status classifies the outcome.
func (o Outcome) Status() string {
	switch {
	case errors.Is(o.Err, context.Canceled):
		return StatusCancelled
	case o.Err != nil && !errors.Is(o.Err, ErrNoDone):
		return StatusFailed
	case o.Done:
		return StatusDone
	default:
		return StatusIncomplete
	}
}

// Renderer writes one message. It reports true when the message completes the run.
type Renderer interface {
	Render(msg protocol.Message) (bool, error)
}

// Observer is told about a run's lifecycle. Observer errors are logged and
// never interrupt rendering.
type Observer interface {
	RunStarted(ctx context.Context, info RunInfo) error
	MessageReceived(ctx context.Context, runID string, seq int, msg protocol.Message) error
	RunFinished(ctx context.Context, runID string, outcome Outcome) error
}

// Options tunes Run.
type Options struct {
	// RequireDone turns a stream that closes without done into ErrNoDone.
	RequireDone bool
}

// Run renders s until the done sentinel, stream close, or a render failure.
func Run(ctx context.Context, info RunInfo, s *stream.Stream, r Renderer, opts Options, observers ...Observer) Outcome {
	logger := log.WithRun(info.ID).With("worker", info.Worker, "mode", info.Mode)
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}

	for _, o := range observers {
		if err := o.RunStarted(ctx, info); err != nil {
			logger.Warn("observer failed on run start", "error", err)
		}
	}

	outcome := Outcome{RunID: info.ID}
	for s.Next(ctx) {
		msg := s.Message()
		outcome.Messages++

		for _, o := range observers {
			if err := o.MessageReceived(ctx, info.ID, outcome.Messages, msg); err != nil {
				logger.Warn("observer failed on message", "error", err, "seq", outcome.Messages)
			}
		}

		done, err := r.Render(msg)
		if err != nil {
			outcome.Err = err
			break
		}
		if done {
			outcome.Done = true
			break
		}
	}

	if s.Done() {
		outcome.Done = true
	}
	if outcome.Err == nil {
		outcome.Err = s.Err()
	}
	if outcome.Err == nil && opts.RequireDone && !outcome.Done {
		outcome.Err = ErrNoDone
	}
	outcome.FinishedAt = time.Now().UTC()

	// Observers still hear about cancelled runs.
	finishCtx := context.WithoutCancel(ctx)
	for _, o := range observers {
		if err := o.RunFinished(finishCtx, info.ID, outcome); err != nil {
			logger.Warn("observer failed on run finish", "error", err)
		}
	}

	logger.Debug("run finished", "status", outcome.Status(), "messages", outcome.Messages)
	return outcome
}

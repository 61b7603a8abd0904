package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/portrun/internal/input"
	"github.com/mattjoyce/portrun/internal/log"
	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/render"
	"github.com/mattjoyce/portrun/internal/session"
	"github.com/mattjoyce/portrun/internal/stream"
	"github.com/mattjoyce/portrun/internal/worker"
)

// ParseOptions tunes Parse. Zero values use the configuration.
type ParseOptions struct {
	Worker string
}

// Parse reads one JSON document from stdin, hands it to the parse worker and
// prints every message the worker emits. It returns the process exit code.
func (e *Env) Parse(ctx context.Context, s Streams, opts ParseOptions) int {
	name := opts.Worker
	if name == "" {
		name = e.Config.Parse.Worker
	}
	logger := log.WithWorker(name)

	acc := input.NewAccumulator(s.Stdout)
	doc, err := input.ReadAll(ctx, s.Stdin, acc, e.Config.Parse.ChunkSize)
	if err != nil {
		if interrupted(ctx, err) {
			return ExitInterrupted
		}
		var decodeErr *input.DecodeError
		if errors.As(err, &decodeErr) {
			fmt.Fprintf(s.Stderr, "parse: %v\n", decodeErr)
			return ExitFailure
		}
		fmt.Fprintf(s.Stderr, "parse: %v\n", err)
		return ExitFailure
	}

	plug, err := e.lookup(name, protocol.ModeParse)
	if err != nil {
		fmt.Fprintf(s.Stderr, "parse: %v\n", err)
		return ExitFailure
	}

	info := session.RunInfo{
		ID:        uuid.NewString(),
		Worker:    name,
		Mode:      protocol.ModeParse,
		Input:     doc,
		StartedAt: time.Now().UTC(),
	}
	run, err := e.Producer.Start(ctx, plug, worker.StartOptions{
		RunID:    info.ID,
		Mode:     protocol.ModeParse,
		Input:    doc,
		Settings: e.Config.Worker(name),
	})
	if err != nil {
		fmt.Fprintf(s.Stderr, "parse: start worker %q: %v\n", name, err)
		return ExitFailure
	}

	echo := render.NewEcho(render.NewTerminal(s.Stdout))
	outcome := session.Run(ctx, info, stream.New(run, stream.UntilClose()), echo, session.Options{}, e.observers...)
	closeErr := run.Close()

	switch {
	case interrupted(ctx, outcome.Err):
		return ExitInterrupted
	case outcome.Err != nil:
		fmt.Fprintf(s.Stderr, "parse: %v\n", outcome.Err)
		logWorkerStderr(logger, run)
		return ExitFailure
	case closeErr != nil:
		fmt.Fprintf(s.Stderr, "parse: %v\n", closeErr)
		logWorkerStderr(logger, run)
		return ExitFailure
	}
	return ExitOK
}

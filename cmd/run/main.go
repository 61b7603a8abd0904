// Command run starts the configured run worker and renders its progress
// stream, hiding the cursor while the stream is live.
//
// It takes no flags. Exit status is 0 when the worker reports done, 1 when
// its stream ends early or it cannot start, and 130 when interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/portrun/internal/app"
)

func main() {
	os.Exit(runCLI(os.Args[1:], app.StdStreams()))
}

func runCLI(args []string, s app.Streams) int {
	if len(args) > 0 {
		fmt.Fprintln(s.Stderr, "Usage: run")
		return app.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Execute(ctx, s, func(ctx context.Context, env *app.Env) int {
		return env.Run(ctx, s, app.RunOptions{})
	})
}

// Command parse reads one JSON document from standard input, hands it to the
// configured parse worker and prints every message the worker emits.
//
// It takes no flags. Configuration comes from the portrun config file and
// PORTRUN_* environment variables.
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
		fmt.Fprintln(s.Stderr, "Usage: parse < input.json")
		return app.ExitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Execute(ctx, s, func(ctx context.Context, env *app.Env) int {
		return env.Parse(ctx, s, app.ParseOptions{})
	})
}

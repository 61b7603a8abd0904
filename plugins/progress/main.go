// Command progress is a run-mode worker that reports a fake build as a
// start / running / done progress stream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/portrun/internal/protocol"
)

type workerConfig struct {
	Label    string
	DoneText string
	Steps    int
	Width    int
	Interval time.Duration
}

func defaultConfig() workerConfig {
	return workerConfig{
		Label:    "Compiling",
		DoneText: "Finished",
		Steps:    10,
		Width:    20,
		Interval: 150 * time.Millisecond,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "progress: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	req, err := protocol.DecodeRequest(stdin)
	if err != nil {
		return err
	}
	cfg := parseConfig(req.Config)
	enc := protocol.NewEncoder(stdout)

	if err := enc.Emit(protocol.TypeStart, cfg.Label); err != nil {
		return err
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for step := 1; step <= cfg.Steps; step++ {
		if err := enc.Emit(protocol.TypeRunning, frame(step, cfg.Steps, cfg.Width)); err != nil {
			return err
		}
		if step == cfg.Steps {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return enc.Emit(protocol.TypeDone, cfg.DoneText)
}

// frame draws one progress bar that overwrites the previous one.
func frame(step, steps, width int) string {
	filled := step * width / steps
	pct := step * 100 / steps
	return fmt.Sprintf("\r[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(" ", width-filled), pct)
}

func parseConfig(raw map[string]any) workerConfig {
	cfg := defaultConfig()
	if v, ok := raw["label"].(string); ok && v != "" {
		cfg.Label = v
	}
	if v, ok := raw["done_text"].(string); ok && v != "" {
		cfg.DoneText = v
	}
	if v, ok := positiveInt(raw["steps"]); ok {
		cfg.Steps = v
	}
	if v, ok := positiveInt(raw["width"]); ok {
		cfg.Width = v
	}
	if v, ok := raw["interval"].(string); ok {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.Interval = d
		}
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Nanosecond
	}
	return cfg
}

// positiveInt accepts JSON numbers, which decode as float64.
func positiveInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		if n >= 1 {
			return int(n), true
		}
	case int:
		if n >= 1 {
			return n, true
		}
	}
	return 0, false
}

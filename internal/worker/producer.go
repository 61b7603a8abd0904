package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/log"
	"github.com/mattjoyce/portrun/internal/plugin"
	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/stream"
)

// maxStderrBytes caps the amount of stderr captured from a worker.
const maxStderrBytes = 64 * 1024

// ErrTimeout is returned when a worker exceeds its configured timeout.
var ErrTimeout = errors.New("worker timed out")

// StartOptions describes one worker run.
type StartOptions struct {
	RunID    string
	Mode     string // protocol.ModeParse | protocol.ModeRun
	Input    json.RawMessage
	Settings config.WorkerConf
}

// Producer starts worker subprocesses.
type Producer struct {
	logger *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer() *Producer {
	return &Producer{logger: log.WithComponent("worker")}
}

// Start spawns plug and returns its running output stream.
func (p *Producer) Start(ctx context.Context, plug *plugin.Plugin, opts StartOptions) (*Run, error) {
	if err := checkStart(plug, opts); err != nil {
		return nil, err
	}

	req := &protocol.Request{
		Protocol: protocol.Version,
		RunID:    opts.RunID,
		Mode:     opts.Mode,
		Input:    opts.Input,
		Config:   opts.Settings.Config,
	}
	var stdin bytes.Buffer
	if err := protocol.EncodeRequest(&stdin, req); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	// A plain os.Pipe rather than cmd.StdoutPipe: Wait must not close the
	// read side while buffered messages are still unread.
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	grace := opts.Settings.GracePeriod
	if grace <= 0 {
		grace = config.DefaultGracePeriod
	}

	// Parse workers may print raw payloads without a type tag.
	src := stream.FromReader(pr)
	if opts.Mode == protocol.ModeParse {
		src = stream.FromLenientReader(pr)
	}

	logger := log.WithRun(opts.RunID).With("worker", plug.Name, "mode", opts.Mode)
	r := &Run{
		stdout:  pr,
		src:     src,
		stderr:  &cappedBuffer{limit: maxStderrBytes},
		exited:  make(chan struct{}),
		closing: make(chan struct{}),
		grace:   grace,
		logger:  logger,
	}

	cmd := exec.Command(plug.Entrypoint)
	cmd.Dir = plug.Path
	cmd.Stdin = &stdin
	cmd.Stdout = pw
	cmd.Stderr = r.stderr
	cmd.Env = append(os.Environ(),
		"PORTRUN_RUN_ID="+opts.RunID,
		"PORTRUN_MODE="+opts.Mode,
	)
	r.cmd = cmd

	logger.Debug("spawning worker", "entrypoint", plug.Entrypoint, "timeout", opts.Settings.Timeout)
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("start process: %w", err)
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	go func() {
		r.waitErr = cmd.Wait()
		close(r.exited)
	}()

	if opts.Settings.Timeout > 0 {
		r.timer = time.AfterFunc(opts.Settings.Timeout, func() {
			logger.Warn("worker execution timed out", "timeout", opts.Settings.Timeout)
			r.timedOut.Store(true)
			r.Stop()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("run cancelled, stopping worker")
			r.Stop()
		case <-r.exited:
		case <-r.closing:
		}
	}()

	return r, nil
}

func checkStart(plug *plugin.Plugin, opts StartOptions) error {
	if plug == nil {
		return errors.New("no worker given")
	}
	if !plug.SupportsMode(opts.Mode) {
		return fmt.Errorf("worker %q does not support mode %q", plug.Name, opts.Mode)
	}
	switch opts.Mode {
	case protocol.ModeParse:
		if len(opts.Input) == 0 {
			return fmt.Errorf("mode %q requires an input payload", opts.Mode)
		}
	case protocol.ModeRun:
		if len(opts.Input) != 0 {
			return fmt.Errorf("mode %q takes no input payload", opts.Mode)
		}
	}
	if missing := plug.MissingConfigKeys(opts.Settings.Config); len(missing) > 0 {
		return fmt.Errorf("worker %q is missing required config keys: %s", plug.Name, strings.Join(missing, ", "))
	}
	return nil
}

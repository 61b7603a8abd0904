package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/stream"
)

// Run is a live worker process. It implements stream.Source.
type Run struct {
	cmd    *exec.Cmd
	stdout *os.File
	src    *stream.ReaderSource
	stderr *cappedBuffer
	logger *slog.Logger

	exited  chan struct{}
	closing chan struct{}
	waitErr error

	grace    time.Duration
	timer    *time.Timer
	timedOut atomic.Bool

	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
	reaped    bool
}

var _ stream.Source = (*Run)(nil)

// Next returns the next message written by the worker.
func (r *Run) Next(ctx context.Context) (protocol.Message, error) {
	msg, err := r.src.Next(ctx)
	if err == nil {
		return msg, nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return protocol.Message{}, cerr
	}
	if r.timedOut.Load() {
		return protocol.Message{}, ErrTimeout
	}
	return protocol.Message{}, err
}

// PID returns the worker's process id.
func (r *Run) PID() int {
	if r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// Stderr returns captured stderr output.
func (r *Run) Stderr() string {
	return r.stderr.String()
}

// Stop terminates the worker: SIGTERM, then SIGKILL after the grace period.
// It blocks until the process has exited and unblocks any pending Next.
func (r *Run) Stop() {
	r.terminate()
	// Descendants may still hold the write end of the pipe.
	_ = r.stdout.Close()
}

// Close releases the worker. It gives the process the grace period to exit
// on its own, terminates it otherwise, and returns its exit status. A worker
// terminated by Close itself is not an error.
func (r *Run) Close() error {
	return r.release(r.grace)
}

// Release is Close for a worker whose stream is complete: a process that has
// not already exited is terminated at once rather than waited for.
func (r *Run) Release() error {
	return r.release(0)
}

func (r *Run) release(wait time.Duration) error {
	r.closeOnce.Do(func() {
		close(r.closing)
		if r.timer != nil {
			r.timer.Stop()
		}

		// Keep draining so a chatty worker cannot block on a full pipe.
		go func() { _, _ = io.Copy(io.Discard, r.stdout) }()

		select {
		case <-r.exited:
		default:
			if !r.waitExit(wait) {
				r.logger.Debug("worker still running after close, terminating")
				r.reaped = true
				r.terminate()
			}
		}

		_ = r.stdout.Close()
		if !r.reaped {
			r.closeErr = r.exitError()
		}
		if stderr := r.Stderr(); stderr != "" {
			r.logger.Debug("worker stderr", "stderr", stderr)
		}
	})
	return r.closeErr
}

// waitExit reports whether the worker exits within d.
func (r *Run) waitExit(d time.Duration) bool {
	if d <= 0 {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.exited:
		return true
	case <-t.C:
		return false
	}
}

// Wait blocks until the worker exits and returns its exit status.
func (r *Run) Wait() error {
	<-r.exited
	return r.exitError()
}

func (r *Run) exitError() error {
	if r.timedOut.Load() {
		return ErrTimeout
	}
	if r.waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(r.waitErr, &exitErr) {
		return fmt.Errorf("worker exited with status %d: %w", exitErr.ExitCode(), r.waitErr)
	}
	return fmt.Errorf("wait for process: %w", r.waitErr)
}

func (r *Run) terminate() {
	r.stopOnce.Do(func() {
		select {
		case <-r.exited:
			return
		default:
		}

		if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			r.logger.Error("failed to send SIGTERM", "error", err)
		}

		grace := time.NewTimer(r.grace)
		defer grace.Stop()

		select {
		case <-r.exited:
			r.logger.Info("worker exited after SIGTERM")
		case <-grace.C:
			r.logger.Warn("worker did not exit after SIGTERM, sending SIGKILL")
			if err := r.cmd.Process.Kill(); err != nil {
				r.logger.Error("failed to send SIGKILL", "error", err)
			}
			<-r.exited
		}
	})
	// Concurrent callers wait for the same exit.
	<-r.exited
}

// cappedBuffer keeps the first limit bytes written to it.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if room := c.limit - len(c.buf); room > 0 {
		if len(p) > room {
			c.buf = append(c.buf, p[:room]...)
		} else {
			c.buf = append(c.buf, p...)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf)
}

// Package app wires configuration, workers, renderers and observers into the
// parse and run flows shared by the portrun binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/mattjoyce/portrun/internal/api"
	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/events"
	"github.com/mattjoyce/portrun/internal/log"
	"github.com/mattjoyce/portrun/internal/plugin"
	"github.com/mattjoyce/portrun/internal/render"
	"github.com/mattjoyce/portrun/internal/session"
	"github.com/mattjoyce/portrun/internal/storage"
	"github.com/mattjoyce/portrun/internal/worker"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// Streams are the process's standard streams.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// StdStreams returns the real standard streams.
func StdStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Env holds everything one invocation needs.
type Env struct {
	Config   *config.Config
	Registry *plugin.Registry
	Producer *worker.Producer
	History  *storage.History
	Hub      *events.Hub

	logger    *slog.Logger
	db        *sql.DB
	observers []session.Observer

	stopAPI context.CancelFunc
	apiDone sync.WaitGroup
}

// LoadConfig loads the discovered configuration and sets up logging on stderr.
func LoadConfig(stderr io.Writer) (*config.Config, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat, stderr)
	return cfg, nil
}

// Open discovers workers and starts the optional history store and live mirror.
func Open(ctx context.Context, cfg *config.Config) (*Env, error) {
	logger := log.WithComponent("app")
	env := &Env{
		Config:   cfg,
		Producer: worker.NewProducer(),
		logger:   logger,
	}

	registry, err := DiscoverWorkers(cfg)
	if err != nil {
		return nil, err
	}
	env.Registry = registry

	if cfg.History.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		env.db = db
		env.History = storage.NewHistory(db)
		env.observers = append(env.observers, env.History)
	}

	if cfg.API.Enabled {
		env.Hub = events.NewHub(cfg.API.EventBuffer)
		env.observers = append(env.observers, events.NewPublisher(env.Hub))
		env.startAPI(ctx)
	}

	return env, nil
}

// DiscoverWorkers loads the worker registry from cfg.PluginsDir.
func DiscoverWorkers(cfg *config.Config) (*plugin.Registry, error) {
	registry, err := plugin.Discover(cfg.PluginsDir, discoveryLogger(log.WithComponent("app")))
	if err != nil {
		return nil, fmt.Errorf("discover workers in %s: %w", cfg.PluginsDir, err)
	}
	return registry, nil
}

func (e *Env) startAPI(ctx context.Context) {
	apiCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.stopAPI = cancel

	var runs api.RunStore
	if e.History != nil {
		runs = e.History
	}
	server := api.New(api.Config{Listen: e.Config.API.Listen}, e.Hub, runs, e.Registry, log.WithComponent("api"))

	e.apiDone.Add(1)
	go func() {
		defer e.apiDone.Done()
		if err := server.Start(apiCtx); err != nil {
			e.logger.Error("live mirror stopped", "error", err)
		}
	}()
}

// Observers returns the observers every run reports to.
func (e *Env) Observers() []session.Observer {
	return e.observers
}

// Close stops the live mirror and closes the history store.
func (e *Env) Close() error {
	if e.Hub != nil {
		e.Hub.Close()
	}
	if e.stopAPI != nil {
		e.stopAPI()
		e.apiDone.Wait()
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			return fmt.Errorf("close history: %w", err)
		}
	}
	return nil
}

func (e *Env) lookup(name, mode string) (*plugin.Plugin, error) {
	plug, ok := e.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("worker %q not found in %s", name, e.Config.PluginsDir)
	}
	if !plug.SupportsMode(mode) {
		return nil, fmt.Errorf("worker %q does not support %s", name, mode)
	}
	return plug, nil
}

// colorize reports whether output to w is styled: only when asked for and
// writing to a terminal.
func (e *Env) colorize(w io.Writer) bool {
	return e.Config.Run.Color && IsTerminal(w)
}

func (e *Env) theme(w io.Writer) render.Theme {
	if e.colorize(w) {
		return render.ColorTheme()
	}
	return render.PlainTheme()
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
}

func discoveryLogger(logger *slog.Logger) func(level, msg string, args ...any) {
	return func(level, msg string, args ...any) {
		switch level {
		case "debug":
			logger.Debug(msg, args...)
		case "info":
			logger.Info(msg, args...)
		case "warn":
			logger.Warn(msg, args...)
		case "error":
			logger.Error(msg, args...)
		}
	}
}

// Execute loads the configuration, opens an Env, runs fn and closes the Env.
// It returns fn's exit code, or ExitFailure when setup fails.
func Execute(ctx context.Context, s Streams, fn func(context.Context, *Env) int) int {
	cfg, err := LoadConfig(s.Stderr)
	if err != nil {
		fmt.Fprintf(s.Stderr, "config: %v\n", err)
		return ExitFailure
	}

	env, err := Open(ctx, cfg)
	if err != nil {
		fmt.Fprintf(s.Stderr, "%v\n", err)
		return ExitFailure
	}
	defer func() {
		if err := env.Close(); err != nil {
			log.Warn("failed to close", "error", err)
		}
	}()

	return fn(ctx, env)
}

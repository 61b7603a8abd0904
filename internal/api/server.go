// Package api serves a read-only HTTP mirror of runs: live events over SSE
// and, when history is enabled, stored runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/portrun/internal/events"
	"github.com/mattjoyce/portrun/internal/plugin"
	"github.com/mattjoyce/portrun/internal/storage"
)

// RunStore reads stored runs.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]storage.RunRecord, error)
	GetRun(ctx context.Context, id string) (*storage.RunRecord, []storage.MessageRecord, error)
}

// WorkerRegistry lists discovered workers.
type WorkerRegistry interface {
	Sorted() []*plugin.Plugin
}

// Config holds API server configuration.
type Config struct {
	Listen string
}

// Server is the live mirror HTTP server.
type Server struct {
	config    Config
	hub       *events.Hub
	runs      RunStore
	registry  WorkerRegistry
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a server. runs and registry may be nil.
func New(config Config, hub *events.Hub, runs RunStore, registry WorkerRegistry, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		hub:       hub,
		runs:      runs,
		registry:  registry,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
		// SSE responses stay open, so there is no write timeout.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/events", s.handleEvents)
	r.Get("/workers", s.handleListWorkers)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

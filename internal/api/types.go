package api

import "github.com/mattjoyce/portrun/internal/storage"

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	WorkersLoaded  int    `json:"workers_loaded"`
	HistoryEnabled bool   `json:"history_enabled"`
}

// RunListResponse is returned by GET /runs.
type RunListResponse struct {
	Runs []storage.RunRecord `json:"runs"`
}

// RunDetailResponse is returned by GET /runs/{runID}.
type RunDetailResponse struct {
	Run      storage.RunRecord       `json:"run"`
	Messages []storage.MessageRecord `json:"messages"`
}

// WorkerListResponse is returned by GET /workers.
type WorkerListResponse struct {
	Workers []WorkerSummary `json:"workers"`
}

// WorkerSummary describes one discovered worker.
type WorkerSummary struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Modes       []string `json:"modes"`
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/session"
)

// ErrRunNotFound is returned by GetRun for unknown IDs.
var ErrRunNotFound = errors.New("run not found")

// Fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRecord is one stored run.
type RunRecord struct {
	ID          string     `json:"id"`
	Worker      string     `json:"worker"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	InputDigest string     `json:"input_digest,omitempty"`
	InputSize   int        `json:"input_size"`
	Messages    int        `json:"messages"`
	LastError   string     `json:"last_error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// MessageRecord is one stored message of a run.
type MessageRecord struct {
	Seq        int              `json:"seq"`
	Message    protocol.Message `json:"message"`
	ReceivedAt time.Time        `json:"received_at"`
}

// History records runs as a session observer.
type History struct {
	db  *sql.DB
	now func() time.Time
}

var _ session.Observer = (*History)(nil)

func NewHistory(db *sql.DB) *History {
	return &History{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// StatusRunning marks a run that has started but not finished.
const StatusRunning = "running"

func (h *History) RunStarted(ctx context.Context, info session.RunInfo) error {
	var digest sql.NullString
	if len(info.Input) > 0 {
		digest = sql.NullString{String: config.HashBytes(info.Input), Valid: true}
	}
	startedAt := info.StartedAt
	if startedAt.IsZero() {
		startedAt = h.now()
	}

	_, err := h.db.ExecContext(ctx, `
INSERT INTO runs(id, worker, mode, status, input_digest, input_size, started_at)
VALUES(?, ?, ?, ?, ?, ?, ?);`,
		info.ID, info.Worker, info.Mode, StatusRunning, digest, len(info.Input), startedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", info.ID, err)
	}
	return nil
}

func (h *History) MessageReceived(ctx context.Context, runID string, seq int, msg protocol.Message) error {
	var data sql.NullString
	if len(msg.Data) > 0 {
		data = sql.NullString{String: string(msg.Data), Valid: true}
	}
	_, err := h.db.ExecContext(ctx, `
INSERT INTO run_messages(run_id, seq, type, data, received_at)
VALUES(?, ?, ?, ?, ?);`,
		runID, seq, msg.Type, data, h.now().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert message %d of run %s: %w", seq, runID, err)
	}
	return nil
}

func (h *History) RunFinished(ctx context.Context, runID string, outcome session.Outcome) error {
	var lastErr sql.NullString
	if outcome.Err != nil {
		lastErr = sql.NullString{String: outcome.Err.Error(), Valid: true}
	}
	finishedAt := outcome.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = h.now()
	}

	res, err := h.db.ExecContext(ctx, `
UPDATE runs SET status = ?, messages = ?, last_error = ?, finished_at = ?
WHERE id = ?;`,
		outcome.Status(), outcome.Messages, lastErr, finishedAt.UTC().Format(timeLayout), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (h *History) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx, `
SELECT id, worker, mode, status, input_digest, input_size, messages, last_error, started_at, finished_at
FROM runs
ORDER BY started_at DESC, id DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// GetRun returns one run and its messages in sequence order.
func (h *History) GetRun(ctx context.Context, id string) (*RunRecord, []MessageRecord, error) {
	row := h.db.QueryRowContext(ctx, `
SELECT id, worker, mode, status, input_digest, input_size, messages, last_error, started_at, finished_at
FROM runs WHERE id = ?;`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := h.db.QueryContext(ctx, `
SELECT seq, type, data, received_at FROM run_messages
WHERE run_id = ? ORDER BY seq ASC;`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages of run %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []MessageRecord
	for rows.Next() {
		var (
			m          MessageRecord
			data       sql.NullString
			receivedAt string
		)
		if err := rows.Scan(&m.Seq, &m.Message.Type, &data, &receivedAt); err != nil {
			return nil, nil, fmt.Errorf("scan message: %w", err)
		}
		if data.Valid {
			m.Message.Data = json.RawMessage(data.String)
		}
		if m.ReceivedAt, err = time.Parse(timeLayout, receivedAt); err != nil {
			return nil, nil, fmt.Errorf("parse received_at: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list messages of run %s: %w", id, err)
	}
	return rec, msgs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var (
		rec        RunRecord
		digest     sql.NullString
		lastErr    sql.NullString
		startedAt  string
		finishedAt sql.NullString
	)
	if err := s.Scan(&rec.ID, &rec.Worker, &rec.Mode, &rec.Status, &digest, &rec.InputSize,
		&rec.Messages, &lastErr, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rec.InputDigest = digest.String
	rec.LastError = lastErr.String

	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		rec.FinishedAt = &t
	}
	return &rec, nil
}

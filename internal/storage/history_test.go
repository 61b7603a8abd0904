package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/portrun/internal/config"
	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/session"
	"github.com/mattjoyce/portrun/internal/stream"
)

func newTestHistory(t *testing.T) *History {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewHistory(db)
}

type discard struct{}

func (discard) Render(msg protocol.Message) (bool, error) { return msg.IsTerminal(), nil }

func TestHistoryRecordsSessionRun(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	start, _ := protocol.NewMessage(protocol.TypeStart, "Compiling")
	running, _ := protocol.NewMessage(protocol.TypeRunning, "[==]")
	done, _ := protocol.NewMessage(protocol.TypeDone, "Finished")

	input := json.RawMessage(`{"a":1}`)
	info := session.RunInfo{
		ID:     uuid.NewString(),
		Worker: "progress",
		Mode:   protocol.ModeRun,
		Input:  input,
	}
	outcome := session.Run(ctx, info, stream.New(stream.FromSlice(start, running, done)), discard{}, session.Options{RequireDone: true}, h)
	require.NoError(t, outcome.Err)

	rec, msgs, err := h.GetRun(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, "progress", rec.Worker)
	assert.Equal(t, session.StatusDone, rec.Status)
	assert.Equal(t, 3, rec.Messages)
	assert.Equal(t, config.HashBytes(input), rec.InputDigest)
	assert.Equal(t, len(input), rec.InputSize)
	require.NotNil(t, rec.FinishedAt)

	require.Len(t, msgs, 3)
	for i, m := range msgs {
		assert.Equal(t, i+1, m.Seq)
	}
	assert.Equal(t, protocol.TypeRunning, msgs[1].Message.Type)
	assert.Equal(t, "[==]", msgs[1].Message.Text())
}

func TestHistoryRecordsFailure(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()

	require.NoError(t, h.RunStarted(ctx, session.RunInfo{ID: "r1", Worker: "w", Mode: protocol.ModeRun}))
	require.NoError(t, h.RunFinished(ctx, "r1", session.Outcome{RunID: "r1", Err: session.ErrNoDone}))

	rec, msgs, err := h.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusIncomplete, rec.Status)
	assert.Equal(t, session.ErrNoDone.Error(), rec.LastError)
	assert.Empty(t, rec.InputDigest)
	assert.Empty(t, msgs)
}

func TestHistoryListRunsNewestFirst(t *testing.T) {
	h := newTestHistory(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, h.RunStarted(ctx, session.RunInfo{
			ID: id, Worker: "w", Mode: protocol.ModeParse, StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := h.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.Nil(t, runs[0].FinishedAt)
	assert.True(t, runs[1].StartedAt.Equal(base.Add(time.Minute)))
}

func TestHistoryGetRunNotFound(t *testing.T) {
	h := newTestHistory(t)
	_, _, err := h.GetRun(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	err = h.RunFinished(context.Background(), "missing", session.Outcome{})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

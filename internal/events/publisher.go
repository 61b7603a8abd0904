package events

import (
	"context"

	"github.com/mattjoyce/portrun/internal/protocol"
	"github.com/mattjoyce/portrun/internal/session"
)

// Publisher forwards a run's lifecycle to a Hub.
type Publisher struct {
	hub *Hub
}

var _ session.Observer = (*Publisher)(nil)

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

type startedPayload struct {
	Worker    string `json:"worker"`
	Mode      string `json:"mode"`
	StartedAt string `json:"started_at"`
}

type messagePayload struct {
	Seq     int              `json:"seq"`
	Message protocol.Message `json:"message"`
}

type finishedPayload struct {
	Status   string `json:"status"`
	Messages int    `json:"messages"`
	Error    string `json:"error,omitempty"`
}

func (p *Publisher) RunStarted(_ context.Context, info session.RunInfo) error {
	p.hub.Publish(TypeRunStarted, info.ID, startedPayload{
		Worker:    info.Worker,
		Mode:      info.Mode,
		StartedAt: info.StartedAt.Format("2006-01-02T15:04:05.000Z07:00"),
	})
	return nil
}

func (p *Publisher) MessageReceived(_ context.Context, runID string, seq int, msg protocol.Message) error {
	p.hub.Publish(TypeRunMessage, runID, messagePayload{Seq: seq, Message: msg})
	return nil
}

func (p *Publisher) RunFinished(_ context.Context, runID string, outcome session.Outcome) error {
	payload := finishedPayload{Status: outcome.Status(), Messages: outcome.Messages}
	if outcome.Err != nil {
		payload.Error = outcome.Err.Error()
	}
	p.hub.Publish(TypeRunFinished, runID, payload)
	return nil
}

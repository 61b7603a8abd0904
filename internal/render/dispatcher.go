package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/portrun/internal/log"
	"github.com/mattjoyce/portrun/internal/protocol"
)

// Progress renders a start/running/done stream.
//
//	start    data + newline, then hide the cursor
//	running  data verbatim
//	done     show the cursor, two newlines, data + newline; ends the run
//
// Other tags write nothing.
type Progress struct {
	term   *Terminal
	theme  Theme
	logger *slog.Logger
}

// NewProgress returns a Progress writing to term.
func NewProgress(term *Terminal, theme Theme) *Progress {
	return &Progress{
		term:   term,
		theme:  theme,
		logger: log.WithComponent("render"),
	}
}

// Render writes msg and reports whether it completed the run.
func (p *Progress) Render(msg protocol.Message) (bool, error) {
	switch msg.Type {
	case protocol.TypeStart:
		if err := p.term.Line(p.theme.start(msg.Text())); err != nil {
			return false, fmt.Errorf("render start: %w", err)
		}
		if err := p.term.HideCursor(); err != nil {
			return false, fmt.Errorf("render start: %w", err)
		}
		return false, nil

	case protocol.TypeRunning:
		if err := p.term.Raw(msg.Text()); err != nil {
			return false, fmt.Errorf("render running: %w", err)
		}
		return false, nil

	case protocol.TypeDone:
		if err := p.term.ShowCursor("\n\n"); err != nil {
			return false, fmt.Errorf("render done: %w", err)
		}
		if err := p.term.Line(p.theme.done(msg.Text())); err != nil {
			return true, fmt.Errorf("render done: %w", err)
		}
		return true, nil

	default:
		p.logger.Debug("ignoring message with unknown type", "type", msg.Type)
		return false, nil
	}
}

// Restore shows the cursor again if a start message hid it.
func (p *Progress) Restore() error {
	if !p.term.CursorHidden() {
		return nil
	}
	return p.term.ShowCursor("\n")
}

// Echo writes every message as one JSON line: the payload itself for
// untagged messages, the {"type","data"} record otherwise.
type Echo struct {
	term *Terminal
}

// NewEcho returns an Echo writing to term.
func NewEcho(term *Terminal) *Echo {
	return &Echo{term: term}
}

// Render writes msg. Echo never ends a run by itself.
func (e *Echo) Render(msg protocol.Message) (bool, error) {
	var line []byte
	if msg.IsTagged() {
		var err error
		if line, err = json.Marshal(msg); err != nil {
			return false, fmt.Errorf("marshal message: %w", err)
		}
	} else {
		var buf bytes.Buffer
		if err := json.Compact(&buf, msg.Data); err != nil {
			return false, fmt.Errorf("compact payload: %w", err)
		}
		line = buf.Bytes()
	}
	if err := e.term.Line(string(line)); err != nil {
		return false, fmt.Errorf("render message: %w", err)
	}
	return false, nil
}

package protocol

import (
	"bytes"
	"encoding/json"
)

// Version is the only wire protocol version spoken to workers.
const Version = 1

// Message tags understood by the renderers.
const (
	TypeStart   = "start"
	TypeRunning = "running"
	TypeDone    = "done"

	// TypeError is reserved on the wire; renderers treat it as an unknown tag.
	TypeError = "error"
)

// Modes a worker can be started in.
const (
	ModeParse = "parse" // exactly one input payload
	ModeRun   = "run"   // no input
)

// Request is the envelope written once to a worker's stdin.
type Request struct {
	Protocol int             `json:"protocol"`
	RunID    string          `json:"run_id"`
	Mode     string          `json:"mode"` // parse | run
	Input    json.RawMessage `json:"input,omitempty"`
	Config   map[string]any  `json:"config,omitempty"`
}

// Message is one tagged record emitted by a worker on stdout.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IsTagged reports whether the message carries a type. Untagged messages
// are raw payloads accepted only by a lenient Decoder.
func (m Message) IsTagged() bool {
	return m.Type != ""
}

// IsTerminal reports whether the message ends the stream.
func (m Message) IsTerminal() bool {
	return m.Type == TypeDone
}

// Text returns the renderable form of Data. JSON strings are unquoted,
// anything else is returned as compact JSON.
func (m Message) Text() string {
	data := bytes.TrimSpace(m.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return ""
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return string(data)
	}
	return buf.String()
}

// NewMessage builds a Message, marshaling data into the payload.
func NewMessage(msgType string, data any) (Message, error) {
	if data == nil {
		return Message{Type: msgType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Data: raw}, nil
}

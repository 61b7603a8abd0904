package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// LineError reports a worker output line that is not a valid message.
type LineError struct {
	Line int
	Raw  []byte
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("invalid message on line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// EncodeRequest serializes a Request to JSON and writes it to w.
// Returns an error if marshaling or writing fails.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	if req.Mode != ModeParse && req.Mode != ModeRun {
		return fmt.Errorf("invalid mode: %q (must be %q or %q)", req.Mode, ModeParse, ModeRun)
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	return nil
}

// DecodeRequest reads the envelope a worker receives on stdin.
func DecodeRequest(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Protocol != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}
	return &req, nil
}

// Decoder reads newline-delimited messages from a worker's stdout.
type Decoder struct {
	r       *bufio.Reader
	line    int
	lenient bool
}

// NewDecoder returns a Decoder reading from r. Every line must be a tagged
// message.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// NewLenientDecoder returns a Decoder that also accepts untagged lines. Any
// JSON value without a string "type" field is returned as a Message with an
// empty Type and the compacted line as Data. Lines that are not JSON are
// still a *LineError.
func NewLenientDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r), lenient: true}
}

// Decode returns the next message. Blank lines are skipped. It returns io.EOF
// once the worker closes its output, and a *LineError for malformed lines.
func (d *Decoder) Decode() (Message, error) {
	for {
		raw, err := d.r.ReadBytes('\n')
		if len(raw) == 0 && err != nil {
			return Message{}, err
		}
		d.line++

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			if err != nil {
				return Message{}, err
			}
			continue
		}

		msg, perr := parseLine(raw, d.lenient)
		if perr != nil {
			return Message{}, &LineError{Line: d.line, Raw: raw, Err: perr}
		}
		return msg, nil
	}
}

func parseLine(raw []byte, lenient bool) (Message, error) {
	var msg Message
	err := json.Unmarshal(raw, &msg)
	if err == nil && msg.Type != "" {
		return msg, nil
	}
	if !lenient {
		if err != nil {
			return Message{}, err
		}
		return Message{}, errors.New("message missing required field: type")
	}

	// Untagged: a bare value, or an object whose "type" is absent or not a string.
	var buf bytes.Buffer
	if cerr := json.Compact(&buf, raw); cerr != nil {
		return Message{}, cerr
	}
	return Message{Data: buf.Bytes()}, nil
}

// Encoder writes newline-delimited messages. Workers use it to emit.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// Encode writes one message line.
func (e *Encoder) Encode(msg Message) error {
	if msg.Type == "" {
		return errors.New("message missing required field: type")
	}
	if err := e.enc.Encode(msg); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return nil
}

// Emit marshals data and writes it as a message of the given type.
func (e *Encoder) Emit(msgType string, data any) error {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
	}
	return e.Encode(msg)
}

// Package input collects a JSON document from a byte stream chunk by chunk.
package input

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DefaultChunkSize matches a typical pipe buffer.
const DefaultChunkSize = 64 * 1024

// ErrFinalized is returned when the accumulator is used after OnEnd.
var ErrFinalized = errors.New("input already finalized")

// DecodeError reports that the accumulated input is not a JSON document.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed input (%d bytes): %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Accumulator is an append-only buffer that is decoded exactly once.
type Accumulator struct {
	buf       strings.Builder
	diag      io.Writer
	finalized bool
}

// NewAccumulator returns an accumulator writing diagnostic lines to diag.
// A nil diag discards them.
func NewAccumulator(diag io.Writer) *Accumulator {
	if diag == nil {
		diag = io.Discard
	}
	return &Accumulator{diag: diag}
}

// OnChunk appends text to the buffer.
func (a *Accumulator) OnChunk(text string) error {
	if a.finalized {
		return ErrFinalized
	}
	fmt.Fprintf(a.diag, "received chunk: %d bytes\n", len(text))
	a.buf.WriteString(text)
	return nil
}

// Len returns the number of bytes accumulated so far.
func (a *Accumulator) Len() int {
	return a.buf.Len()
}

// OnEnd finalizes the buffer and decodes it as a single JSON value.
// The returned document is the input compacted, otherwise unchanged.
func (a *Accumulator) OnEnd() (json.RawMessage, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	a.finalized = true
	fmt.Fprintln(a.diag, "ok")

	data := []byte(a.buf.String())
	a.buf.Reset()

	dec := json.NewDecoder(bytes.NewReader(data))
	var doc json.RawMessage
	if err := dec.Decode(&doc); err != nil {
		return nil, &DecodeError{Size: len(data), Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &DecodeError{Size: len(data), Err: errors.New("trailing data after JSON document")}
	}

	var out bytes.Buffer
	if err := json.Compact(&out, doc); err != nil {
		return nil, &DecodeError{Size: len(data), Err: err}
	}
	return out.Bytes(), nil
}

// ReadAll pumps r into acc in chunks and finalizes it at end-of-stream.
func ReadAll(ctx context.Context, r io.Reader, acc *Accumulator, chunkSize int) (json.RawMessage, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			if cerr := acc.OnChunk(string(chunk[:n])); cerr != nil {
				return nil, cerr
			}
		}
		if errors.Is(err, io.EOF) {
			return acc.OnEnd()
		}
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
	}
}

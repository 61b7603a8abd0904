// Package stream exposes a worker's output as an explicit, pull-based
// sequence of messages.
//
// A Stream is lazy, finite and non-restartable. It ends after the done
// sentinel has been yielded (unless built with UntilClose), when the source
// reports io.EOF, when the source fails, or when the caller's context is
// cancelled.
package stream

import (
	"context"
	"errors"
	"io"
	"iter"

	"github.com/mattjoyce/portrun/internal/protocol"
)

// Source produces messages one at a time. It returns io.EOF once closed.
type Source interface {
	Next(ctx context.Context) (protocol.Message, error)
}

// Stream iterates a Source in arrival order.
type Stream struct {
	src        Source
	cur        protocol.Message
	err        error
	count      int
	done       bool
	closed     bool
	untilClose bool
}

// Option configures a Stream.
type Option func(*Stream)

// UntilClose keeps reading past the done sentinel until the source closes.
// Done still reports whether a sentinel was seen.
func UntilClose() Option {
	return func(s *Stream) { s.untilClose = true }
}

// New wraps src in a Stream.
func New(src Source, opts ...Option) *Stream {
	s := &Stream{src: src}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next advances to the next message. It returns false once the stream has
// ended and keeps returning false afterwards.
func (s *Stream) Next(ctx context.Context) bool {
	if s.closed {
		return false
	}
	if s.done && !s.untilClose {
		s.closed = true
		return false
	}

	msg, err := s.src.Next(ctx)
	if err != nil {
		s.closed = true
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		return false
	}

	s.cur = msg
	s.count++
	if msg.IsTerminal() {
		s.done = true
	}
	return true
}

// Message returns the message produced by the last successful Next.
func (s *Stream) Message() protocol.Message {
	return s.cur
}

// Done reports whether the done sentinel has been yielded.
func (s *Stream) Done() bool {
	return s.done
}

// Count returns how many messages have been yielded.
func (s *Stream) Count() int {
	return s.count
}

// Err returns the first error other than io.EOF that ended the stream.
func (s *Stream) Err() error {
	return s.err
}

// All returns a single-use iterator over the remaining messages.
func (s *Stream) All(ctx context.Context) iter.Seq[protocol.Message] {
	return func(yield func(protocol.Message) bool) {
		for s.Next(ctx) {
			if !yield(s.Message()) {
				return
			}
		}
	}
}

// SliceSource replays a fixed list of messages.
type SliceSource struct {
	msgs []protocol.Message
	pos  int
}

// FromSlice returns a Source over msgs.
func FromSlice(msgs ...protocol.Message) *SliceSource {
	return &SliceSource{msgs: msgs}
}

func (s *SliceSource) Next(ctx context.Context) (protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Message{}, err
	}
	if s.pos >= len(s.msgs) {
		return protocol.Message{}, io.EOF
	}
	msg := s.msgs[s.pos]
	s.pos++
	return msg, nil
}

// ChanSource reads messages from a channel until it is closed.
type ChanSource <-chan protocol.Message

func (c ChanSource) Next(ctx context.Context) (protocol.Message, error) {
	select {
	case <-ctx.Done():
		return protocol.Message{}, ctx.Err()
	case msg, ok := <-c:
		if !ok {
			return protocol.Message{}, io.EOF
		}
		return msg, nil
	}
}

// ReaderSource decodes newline-delimited messages from a reader.
type ReaderSource struct {
	dec *protocol.Decoder
}

// FromReader returns a Source decoding tagged messages from r.
func FromReader(r io.Reader) *ReaderSource {
	return &ReaderSource{dec: protocol.NewDecoder(r)}
}

// FromLenientReader is FromReader that also yields untagged raw payloads.
func FromLenientReader(r io.Reader) *ReaderSource {
	return &ReaderSource{dec: protocol.NewLenientDecoder(r)}
}

func (r *ReaderSource) Next(ctx context.Context) (protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Message{}, err
	}
	return r.dec.Decode()
}

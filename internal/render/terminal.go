// Package render turns worker messages into terminal output.
package render

import (
	"io"
	"sync"
)

// ANSI sequences written around a live progress stream.
const (
	HideCursor = "\x1b[?25l"
	ShowCursor = "\x1b[?25h"
)

// Terminal owns an output stream and tracks cursor visibility.
// Writes are serialized.
type Terminal struct {
	mu           sync.Mutex
	w            io.Writer
	cursorHidden bool
}

// NewTerminal wraps w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

// Raw writes s verbatim.
func (t *Terminal) Raw(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.w, s)
	return err
}

// Line writes s followed by a newline.
func (t *Terminal) Line(s string) error {
	return t.Raw(s + "\n")
}

// HideCursor writes the hide-cursor sequence.
func (t *Terminal) HideCursor() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, HideCursor); err != nil {
		return err
	}
	t.cursorHidden = true
	return nil
}

// ShowCursor writes the show-cursor sequence followed by suffix.
func (t *Terminal) ShowCursor(suffix string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.w, ShowCursor+suffix); err != nil {
		return err
	}
	t.cursorHidden = false
	return nil
}

// CursorHidden reports whether the last cursor sequence written hid it.
func (t *Terminal) CursorHidden() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursorHidden
}

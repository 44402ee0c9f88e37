// Package output delivers recognized text to the focused application.
package output

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Sink delivers one utterance of text. Failures are reported but never end a session.
type Sink interface {
	Emit(ctx context.Context, text string) error
}

// EmitError reports a failed delivery. Hint carries an actionable fix when one is known.
type EmitError struct {
	Backend string
	Hint    string
	Err     error
}

func (e *EmitError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("emit %s: %v", e.Backend, e.Err)
	}
	return fmt.Sprintf("emit %s: %v (%s)", e.Backend, e.Err, e.Hint)
}

func (e *EmitError) Unwrap() error { return e.Err }

// Func adapts a function to Sink.
type Func func(ctx context.Context, text string) error

func (f Func) Emit(ctx context.Context, text string) error { return f(ctx, text) }

// Writer prints each utterance on its own line. It is always available and
// backs the stdout fallback.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a sink writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Emit(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.w, text); err != nil {
		return &EmitError{Backend: "stdout", Err: err}
	}
	return nil
}

// Package recognize turns sealed utterances into text through pluggable speech engines.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rbright/parla/internal/audio"
)

// Result is one utterance's recognition output. Empty Text means no speech.
type Result struct {
	Text       string
	Language   string
	Confidence float64
	Duration   time.Duration
}

// Recognizer is a blocking speech engine. Implementations are not required
// to support concurrent calls.
type Recognizer interface {
	Recognize(ctx context.Context, frames []audio.Frame) (Result, error)
}

// Error classifies an engine failure. Fatal errors end the session; other
// failures drop only the affected utterance.
type Error struct {
	Backend string
	Fatal   bool
	Err     error
}

func (e *Error) Error() string {
	kind := "retryable"
	if e.Fatal {
		kind = "fatal"
	}
	if e.Backend == "" {
		return fmt.Sprintf("recognize (%s): %v", kind, e.Err)
	}
	return fmt.Sprintf("recognize %s (%s): %v", e.Backend, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable wraps err as a per-utterance failure.
func Retryable(backend string, err error) error {
	return &Error{Backend: backend, Err: err}
}

// Fatal wraps err as a session-ending failure.
func Fatal(backend string, err error) error {
	return &Error{Backend: backend, Fatal: true, Err: err}
}

// IsFatal reports whether err must end the session. Unclassified errors are
// treated as retryable.
func IsFatal(err error) bool {
	var recErr *Error
	return errors.As(err, &recErr) && recErr.Fatal
}

// Func adapts a function to Recognizer.
type Func func(ctx context.Context, frames []audio.Frame) (Result, error)

func (f Func) Recognize(ctx context.Context, frames []audio.Frame) (Result, error) {
	return f(ctx, frames)
}

func clampConfidence(v float64) float64 {
	return max(0, min(1, v))
}

// monoSamples flattens frames and down-mixes interleaved channels by averaging.
func monoSamples(frames []audio.Frame) []float32 {
	samples := audio.Concat(frames)
	if len(frames) == 0 || frames[0].Channels <= 1 {
		return samples
	}
	channels := frames[0].Channels
	mono := make([]float32, len(samples)/channels)
	for i := range mono {
		var sum float32
		for ch := range channels {
			sum += samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

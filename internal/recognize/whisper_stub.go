//go:build !whisper

package recognize

import (
	"context"
	"errors"

	"github.com/rbright/parla/internal/audio"
)

// WhisperSupported reports whether this binary links whisper.cpp.
const WhisperSupported = false

var errWhisperDisabled = errors.New("whisper.cpp support not compiled in (rebuild with -tags whisper)")

// WhisperConfig selects a local ggml model.
type WhisperConfig struct {
	ModelPath string
	Language  string
	Threads   int
}

// Whisper is unavailable in builds without the whisper tag.
type Whisper struct{}

func NewWhisper(WhisperConfig) (*Whisper, error) {
	return nil, errWhisperDisabled
}

func (*Whisper) Recognize(context.Context, []audio.Frame) (Result, error) {
	return Result{}, Fatal("whisper", errWhisperDisabled)
}

func (*Whisper) Close() error { return nil }

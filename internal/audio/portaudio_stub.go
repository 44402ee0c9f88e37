//go:build !portaudio

package audio

import (
	"context"
	"errors"
)

// PortAudioSupported reports whether this binary was built with PortAudio.
const PortAudioSupported = false

var errPortAudioDisabled = errors.New("portaudio support not compiled in (rebuild with -tags portaudio)")

// PortAudioSource is unavailable in builds without the portaudio tag.
type PortAudioSource struct{}

func NewPortAudioSource(Format) *PortAudioSource {
	return &PortAudioSource{}
}

func ProbePortAudio(context.Context) error {
	return errPortAudioDisabled
}

func (*PortAudioSource) Open(context.Context) error {
	return permanent("portaudio", errPortAudioDisabled)
}

func (*PortAudioSource) Next(context.Context) (Frame, error) {
	return Frame{}, permanent("portaudio", errPortAudioDisabled)
}

func (*PortAudioSource) Close() error { return nil }

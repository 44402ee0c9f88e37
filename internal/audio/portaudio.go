//go:build portaudio

package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioSupported reports whether this binary was built with PortAudio.
const PortAudioSupported = true

// PortAudioSource records from the default PortAudio input device.
type PortAudioSource struct {
	format Format

	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
	closed bool
}

// NewPortAudioSource prepares a default-device recorder.
func NewPortAudioSource(format Format) *PortAudioSource {
	return &PortAudioSource{format: format}
}

// ProbePortAudio checks that PortAudio initializes and exposes a default input.
func ProbePortAudio(_ context.Context) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return fmt.Errorf("portaudio default input: %w", err)
	}
	return nil
}

func (s *PortAudioSource) Open(_ context.Context) error {
	if err := s.format.Validate(); err != nil {
		return permanent("portaudio", err)
	}
	if err := portaudio.Initialize(); err != nil {
		return permanent("portaudio", fmt.Errorf("initialize portaudio: %w", err))
	}

	buf := make([]float32, s.format.SamplesPerFrame())
	framesPerBuffer := len(buf) / s.format.Channels
	stream, err := portaudio.OpenDefaultStream(s.format.Channels, 0, float64(s.format.SampleRate), framesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return permanent("portaudio", fmt.Errorf("open stream: %w", err))
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return permanent("portaudio", fmt.Errorf("start stream: %w", err))
	}

	s.mu.Lock()
	s.stream = stream
	s.buf = buf
	s.mu.Unlock()
	return nil
}

// Next blocks in the PortAudio read call for one frame.
func (s *PortAudioSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	s.mu.Lock()
	stream, closed := s.stream, s.closed
	s.mu.Unlock()
	if closed {
		return Frame{}, io.EOF
	}
	if stream == nil {
		return Frame{}, permanent("portaudio", errors.New("source is not open"))
	}

	if err := stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return Frame{}, transient("portaudio", err)
		}
		s.mu.Lock()
		closed = s.closed
		s.mu.Unlock()
		if closed {
			return Frame{}, io.EOF
		}
		return Frame{}, permanent("portaudio", fmt.Errorf("read stream: %w", err))
	}

	samples := make([]float32, len(s.buf))
	copy(samples, s.buf)
	return Frame{
		Samples:    samples,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		CapturedAt: time.Now(),
		Duration:   s.format.FrameDuration,
	}, nil
}

func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	_ = stream.Stop()
	err := stream.Close()
	_ = portaudio.Terminate()
	return err
}

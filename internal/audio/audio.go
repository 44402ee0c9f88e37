// Package audio handles device discovery, capture sources, and PCM frame conversion.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultSampleRate    = 16000
	DefaultChannels      = 1
	DefaultFrameDuration = 20 * time.Millisecond
)

// Format is the fixed shape every frame of one capture session shares.
type Format struct {
	SampleRate    int
	Channels      int
	FrameDuration time.Duration
}

// DefaultFormat is 20ms mono frames at 16kHz.
func DefaultFormat() Format {
	return Format{
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		FrameDuration: DefaultFrameDuration,
	}
}

// SamplesPerFrame returns interleaved samples per frame across all channels.
func (f Format) SamplesPerFrame() int {
	return int(int64(f.SampleRate)*int64(f.FrameDuration)/int64(time.Second)) * f.Channels
}

// BytesPerFrame returns the s16le byte size of one frame.
func (f Format) BytesPerFrame() int {
	return f.SamplesPerFrame() * 2
}

// Validate rejects formats that cannot produce a non-empty frame.
func (f Format) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("sample rate must be > 0, got %d", f.SampleRate)
	case f.Channels <= 0:
		return fmt.Errorf("channels must be > 0, got %d", f.Channels)
	case f.FrameDuration <= 0:
		return fmt.Errorf("frame duration must be > 0, got %s", f.FrameDuration)
	case f.SamplesPerFrame() == 0:
		return fmt.Errorf("frame duration %s is shorter than one sample at %dHz", f.FrameDuration, f.SampleRate)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", f.SampleRate, f.Channels, f.FrameDuration)
}

// Frame is one fixed-duration block of normalized samples in [-1, 1].
// Frames are values; consumers must not mutate Samples after hand-off.
type Frame struct {
	Samples    []float32
	SampleRate int
	Channels   int
	CapturedAt time.Time
	Duration   time.Duration
}

// Format returns the frame's shape for session consistency checks.
func (f Frame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels, FrameDuration: f.Duration}
}

// Source produces frames for one capture session.
// Next returns io.EOF once the stream has ended.
type Source interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// CaptureError reports an audio source failure. Permanent errors end the session.
type CaptureError struct {
	Backend   string
	Permanent bool
	Err       error
}

func (e *CaptureError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Backend == "" {
		return fmt.Sprintf("capture (%s): %v", kind, e.Err)
	}
	return fmt.Sprintf("capture %s (%s): %v", e.Backend, kind, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a permanent CaptureError.
func IsPermanent(err error) bool {
	var captureErr *CaptureError
	return errors.As(err, &captureErr) && captureErr.Permanent
}

func permanent(backend string, err error) error {
	return &CaptureError{Backend: backend, Permanent: true, Err: err}
}

func transient(backend string, err error) error {
	return &CaptureError{Backend: backend, Err: err}
}

// FrameFromPCM16 decodes little-endian s16 PCM into a frame of format f.
func FrameFromPCM16(pcm []byte, f Format, capturedAt time.Time) Frame {
	return Frame{
		Samples:    PCM16ToFloat32(pcm),
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		CapturedAt: capturedAt,
		Duration:   f.FrameDuration,
	}
}

// PCM16ToFloat32 converts little-endian s16 PCM to float32 in [-1, 1).
func PCM16ToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(sample) / 32768.0
	}
	return out
}

// Float32ToPCM16 clamps samples and converts them to s16 ints.
func Float32ToPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767.0)
		out[i] = int(max(-32768, min(32767, v)))
	}
	return out
}

// Concat flattens frames into one contiguous sample slice.
func Concat(frames []Frame) []float32 {
	total := 0
	for _, frame := range frames {
		total += len(frame.Samples)
	}
	out := make([]float32, 0, total)
	for _, frame := range frames {
		out = append(out, frame.Samples...)
	}
	return out
}

// TotalDuration sums nominal frame durations.
func TotalDuration(frames []Frame) time.Duration {
	var total time.Duration
	for _, frame := range frames {
		total += frame.Duration
	}
	return total
}

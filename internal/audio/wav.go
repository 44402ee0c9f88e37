package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes frames as 16-bit PCM WAV. All frames must share one format.
func WriteWAV(w io.WriteSeeker, frames []Frame) error {
	if len(frames) == 0 {
		return errors.New("no frames to encode")
	}
	format := frames[0].Format()
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           Float32ToPCM16(Concat(frames)),
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(w, format.SampleRate, 16, format.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile writes frames to path with private permissions.
func WriteWAVFile(path string, frames []Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create wav dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	if err := WriteWAV(file, frames); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// FileSource replays a 16-bit WAV file as fixed-duration frames.
// A trailing partial frame is dropped.
type FileSource struct {
	path          string
	frameDuration time.Duration
	realtime      bool

	format  Format
	samples []int
	offset  int
	next    time.Time
}

// NewFileSource replays path. With realtime set, Next paces frames at their
// nominal duration instead of returning them as fast as possible.
func NewFileSource(path string, frameDuration time.Duration, realtime bool) *FileSource {
	if frameDuration <= 0 {
		frameDuration = DefaultFrameDuration
	}
	return &FileSource{path: path, frameDuration: frameDuration, realtime: realtime}
}

// ProbeFile checks that path is a readable WAV file.
func ProbeFile(_ context.Context, path string) error {
	if path == "" {
		return errors.New("audio.file is not set")
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if !wav.NewDecoder(file).IsValidFile() {
		return fmt.Errorf("%s is not a valid wav file", path)
	}
	return nil
}

func (s *FileSource) Open(_ context.Context) error {
	file, err := os.Open(s.path)
	if err != nil {
		return permanent("file", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return permanent("file", fmt.Errorf("%s is not a valid wav file", s.path))
	}
	if dec.BitDepth != 16 {
		return permanent("file", fmt.Errorf("%s: unsupported bit depth %d", s.path, dec.BitDepth))
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return permanent("file", fmt.Errorf("decode %s: %w", s.path, err))
	}

	s.format = Format{
		SampleRate:    int(dec.SampleRate),
		Channels:      int(dec.NumChans),
		FrameDuration: s.frameDuration,
	}
	if err := s.format.Validate(); err != nil {
		return permanent("file", err)
	}
	s.samples = buf.Data
	s.offset = 0
	s.next = time.Now()
	return nil
}

// Format returns the decoded file format after Open.
func (s *FileSource) Format() Format {
	return s.format
}

func (s *FileSource) Next(ctx context.Context) (Frame, error) {
	n := s.format.SamplesPerFrame()
	if n == 0 || s.offset+n > len(s.samples) {
		return Frame{}, io.EOF
	}

	if s.realtime {
		if wait := time.Until(s.next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Frame{}, ctx.Err()
			case <-timer.C:
			}
		}
		s.next = s.next.Add(s.format.FrameDuration)
	} else if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	chunk := s.samples[s.offset : s.offset+n]
	s.offset += n

	samples := make([]float32, n)
	for i, v := range chunk {
		samples[i] = float32(v) / 32768.0
	}
	return Frame{
		Samples:    samples,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		CapturedAt: time.Now(),
		Duration:   s.format.FrameDuration,
	}, nil
}

func (s *FileSource) Close() error {
	s.samples = nil
	return nil
}

package audio

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testFrames(n int, value float32) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		samples := make([]float32, DefaultFormat().SamplesPerFrame())
		for j := range samples {
			samples[j] = value
		}
		frames[i] = Frame{
			Samples:    samples,
			SampleRate: DefaultSampleRate,
			Channels:   DefaultChannels,
			Duration:   DefaultFrameDuration,
		}
	}
	return frames
}

func TestWriteWAVFileReplaysThroughFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "utterance.wav")
	require.NoError(t, WriteWAVFile(path, testFrames(5, 0.25)))
	require.NoError(t, ProbeFile(context.Background(), path))

	source := NewFileSource(path, DefaultFrameDuration, false)
	require.NoError(t, source.Open(context.Background()))
	defer source.Close()
	require.Equal(t, DefaultFormat(), source.Format())

	count := 0
	for {
		frame, err := source.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Len(t, frame.Samples, 320)
		require.InDelta(t, 0.25, frame.Samples[0], 0.001)
		count++
	}
	require.Equal(t, 5, count)
}

func TestWriteWAVRejectsEmpty(t *testing.T) {
	err := WriteWAVFile(filepath.Join(t.TempDir(), "empty.wav"), nil)
	require.Error(t, err)
}

func TestFileSourceRealtimePacingHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.wav")
	require.NoError(t, WriteWAVFile(path, testFrames(3, 0)))

	source := NewFileSource(path, time.Second, true)
	// 3 x 20ms of audio is shorter than one 1s frame.
	require.NoError(t, source.Open(context.Background()))
	_, err := source.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestFileSourceOpenMissingFileIsPermanent(t *testing.T) {
	err := NewFileSource(filepath.Join(t.TempDir(), "missing.wav"), 0, false).Open(context.Background())
	require.True(t, IsPermanent(err))
	require.Error(t, ProbeFile(context.Background(), ""))
}

package recognize

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rbright/parla/internal/audio"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	root := errors.New("model missing")

	fatal := Fatal("whisper", root)
	require.True(t, IsFatal(fatal))
	require.ErrorIs(t, fatal, root)
	require.Equal(t, "recognize whisper (fatal): model missing", fatal.Error())

	retry := Retryable("exec", root)
	require.False(t, IsFatal(retry))
	require.Contains(t, retry.Error(), "(retryable)")

	require.False(t, IsFatal(root))
	require.True(t, IsFatal(fmt.Errorf("wrapped: %w", fatal)))
	require.Equal(t, "recognize (fatal): model missing", (&Error{Fatal: true, Err: root}).Error())
}

func TestMonoSamplesDownmixesInterleavedChannels(t *testing.T) {
	frames := []audio.Frame{
		{Samples: []float32{1, 0, 0.5, 0.5}, Channels: 2},
		{Samples: []float32{-1, 1}, Channels: 2},
	}
	require.Equal(t, []float32{0.5, 0.5, 0}, monoSamples(frames))

	mono := []audio.Frame{{Samples: []float32{0.1, 0.2}, Channels: 1}}
	require.Equal(t, []float32{0.1, 0.2}, monoSamples(mono))
}

func TestFuncAdapter(t *testing.T) {
	r := Func(func(context.Context, []audio.Frame) (Result, error) {
		return Result{Text: "hi"}, nil
	})
	res, err := r.Recognize(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "hi", res.Text)
}

func TestClampConfidence(t *testing.T) {
	require.Equal(t, 0.0, clampConfidence(-1))
	require.Equal(t, 1.0, clampConfidence(3))
	require.Equal(t, 0.4, clampConfidence(0.4))
}

func TestWhisperStubOrBuildReportsMissingModel(t *testing.T) {
	_, err := NewWhisper(WhisperConfig{})
	require.Error(t, err)
}

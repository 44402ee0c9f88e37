package gate

import (
	"errors"
	"math"
	"testing"

	"github.com/rbright/parla/internal/audio"
	"github.com/stretchr/testify/require"
)

func frameAt(level float32) audio.Frame {
	samples := make([]float32, 320)
	for i := range samples {
		samples[i] = level
	}
	return audio.Frame{Samples: samples, SampleRate: 16000, Channels: 1}
}

func TestRMSGateHysteresis(t *testing.T) {
	g, err := NewRMS(Config{SpeechThreshold: 0.1, SilenceThreshold: 0.05, OnsetFrames: 2, HangoverFrames: 2})
	require.NoError(t, err)

	steps := []struct {
		level float32
		want  bool
	}{
		{0.2, false}, // onset 1/2
		{0.2, true},  // onset reached
		{0.07, true}, // between thresholds holds speech
		{0.01, true}, // hangover 1
		{0.01, true}, // hangover 2
		{0.01, false},
		{0.2, false},
		{0.01, false}, // onset counter reset by quiet frame
		{0.2, false},
		{0.2, true},
	}
	for i, step := range steps {
		got, err := g.IsSpeech(frameAt(step.level))
		require.NoError(t, err)
		require.Equalf(t, step.want, got, "step %d", i)
	}

	g.Reset()
	got, err := g.IsSpeech(frameAt(0.01))
	require.NoError(t, err)
	require.False(t, got)
}

func TestRMSGateRejectsBadFrames(t *testing.T) {
	g, err := NewRMS(DefaultConfig())
	require.NoError(t, err)

	_, err = g.IsSpeech(audio.Frame{})
	var gateErr *Error
	require.ErrorAs(t, err, &gateErr)
	require.ErrorIs(t, err, errEmptyFrame)

	_, err = g.IsSpeech(frameAt(float32(math.NaN())))
	require.ErrorAs(t, err, &gateErr)
	require.Contains(t, err.Error(), "activity gate")
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	_, err := NewRMS(Config{SpeechThreshold: 0.01, SilenceThreshold: 0.02, OnsetFrames: 1})
	require.Error(t, err)
	require.Error(t, Config{SpeechThreshold: 1.5, SilenceThreshold: 0.1, OnsetFrames: 1}.Validate())
	require.Error(t, Config{SpeechThreshold: 0.1, SilenceThreshold: 0.1, OnsetFrames: 0}.Validate())
	require.Error(t, Config{SpeechThreshold: 0.1, SilenceThreshold: 0.1, OnsetFrames: 1, HangoverFrames: -1}.Validate())
}

func TestLevel(t *testing.T) {
	level, err := Level([]float32{0.5, -0.5})
	require.NoError(t, err)
	require.InDelta(t, 0.5, level, 1e-9)
}

func TestOpenAndFunc(t *testing.T) {
	ok, err := Open{}.IsSpeech(audio.Frame{})
	require.NoError(t, err)
	require.True(t, ok)

	boom := errors.New("boom")
	_, err = Func(func(audio.Frame) (bool, error) { return false, boom }).IsSpeech(audio.Frame{})
	require.ErrorIs(t, err, boom)
}

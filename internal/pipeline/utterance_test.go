package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/parla/internal/audio"
)

func testFrame(speech bool) audio.Frame {
	f := audio.DefaultFormat()
	samples := make([]float32, f.SamplesPerFrame())
	if speech {
		samples[0] = 1
	}
	return audio.Frame{
		Samples:    samples,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		CapturedAt: time.Now(),
		Duration:   f.FrameDuration,
	}
}

func TestBatcherSealsOnSilenceRun(t *testing.T) {
	b := newBatcher(100*time.Millisecond, time.Second)

	require.Empty(t, b.Push(testFrame(false), false))
	for range 3 {
		require.Empty(t, b.Push(testFrame(true), true))
	}
	for range 5 {
		require.Empty(t, b.Push(testFrame(false), false))
	}

	sealed := b.Push(testFrame(false), false)
	require.Len(t, sealed, 1)
	require.Len(t, sealed[0].Frames, 3)
	require.Equal(t, 60*time.Millisecond, sealed[0].Duration)
	require.Equal(t, SealSilence, sealed[0].Reason)
	require.Nil(t, b.Flush())
}

func TestBatcherSilenceMustExceedThreshold(t *testing.T) {
	b := newBatcher(100*time.Millisecond, time.Second)
	b.Push(testFrame(true), true)

	// five 20ms frames reach 100ms exactly and keep the utterance open
	for range 5 {
		require.Empty(t, b.Push(testFrame(false), false))
	}
	require.NotNil(t, b.open)
	require.Len(t, b.Push(testFrame(false), false), 1)
}

func TestBatcherSpeechResetsSilenceRun(t *testing.T) {
	b := newBatcher(100*time.Millisecond, time.Second)
	b.Push(testFrame(true), true)
	for range 4 {
		b.Push(testFrame(false), false)
	}
	b.Push(testFrame(true), true)
	for range 4 {
		require.Empty(t, b.Push(testFrame(false), false))
	}

	u := b.Flush()
	require.NotNil(t, u)
	require.Len(t, u.Frames, 2)
	require.Equal(t, SealFlush, u.Reason)
}

func TestBatcherCapsUtteranceDuration(t *testing.T) {
	b := newBatcher(time.Second, 100*time.Millisecond)

	var sealed []*Utterance
	for range 12 {
		sealed = append(sealed, b.Push(testFrame(true), true)...)
	}
	if u := b.Flush(); u != nil {
		sealed = append(sealed, u)
	}

	require.Len(t, sealed, 3)
	require.Equal(t, 100*time.Millisecond, sealed[0].Duration)
	require.Equal(t, SealMaxDuration, sealed[0].Reason)
	require.Equal(t, 100*time.Millisecond, sealed[1].Duration)
	require.Equal(t, 40*time.Millisecond, sealed[2].Duration)
}

func TestBatcherSealsBeforeOverflowingCap(t *testing.T) {
	b := newBatcher(time.Second, 50*time.Millisecond)

	require.Empty(t, b.Push(testFrame(true), true))
	require.Empty(t, b.Push(testFrame(true), true))
	sealed := b.Push(testFrame(true), true)

	require.Len(t, sealed, 1)
	require.Equal(t, 40*time.Millisecond, sealed[0].Duration)
	require.Equal(t, SealMaxDuration, sealed[0].Reason)
	require.NotNil(t, b.open)
	require.Equal(t, 20*time.Millisecond, b.open.Duration)
}

func TestBatcherDiscard(t *testing.T) {
	b := newBatcher(time.Second, time.Second)
	require.False(t, b.Discard())
	b.Push(testFrame(true), true)
	require.True(t, b.Discard())
	require.Nil(t, b.Flush())
}

package indicator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEveryCueHasAScore(t *testing.T) {
	for _, kind := range []cueKind{cueStart, cueStop, cueCancel, cueError} {
		require.NotEmpty(t, render(cueScores[kind]), "cue %d", kind)
	}
	require.Empty(t, render(cueScores[cueKind(99)]))
}

func TestRenderIncludesRests(t *testing.T) {
	tone := note{hz: 440, dur: 50 * time.Millisecond, gain: 0.2}
	got := render([]note{tone, rest(cueGap), tone})
	require.Len(t, got, 2*sampleCount(50*time.Millisecond)+sampleCount(cueGap))

	gapStart := sampleCount(50 * time.Millisecond)
	for _, s := range got[gapStart : gapStart+sampleCount(cueGap)] {
		require.Zero(t, s)
	}
}

func TestRenderNoteStaysWithinGainAndRampsAtEdges(t *testing.T) {
	got := renderNote(note{hz: 440, dur: 100 * time.Millisecond, gain: 0.25})
	require.Len(t, got, 1600)
	require.Zero(t, got[0])
	require.Zero(t, got[len(got)-1])
	for _, s := range got {
		require.LessOrEqual(t, s, float32(0.25))
		require.GreaterOrEqual(t, s, float32(-0.25))
	}
}

func TestRenderNoteSilentForInvalidTone(t *testing.T) {
	for _, n := range []note{
		{hz: 0, dur: 10 * time.Millisecond, gain: 0.2},
		{hz: 440, dur: 10 * time.Millisecond, gain: 0},
	} {
		got := renderNote(n)
		require.Len(t, got, 160)
		for _, s := range got {
			require.Zero(t, s)
		}
	}
	require.Empty(t, renderNote(note{hz: 440, gain: 0.2}))
}

func TestSampleCount(t *testing.T) {
	require.Equal(t, 0, sampleCount(0))
	require.Equal(t, 0, sampleCount(-time.Second))
	require.Equal(t, 400, sampleCount(25*time.Millisecond))
}

func TestEmitCueRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, emitCue(ctx, cueStart), context.Canceled)
}

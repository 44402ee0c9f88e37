package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jfreymuth/pulse"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueCancel
	cueError
)

const (
	cueSampleRate = 16000
	cueRamp       = 5 * time.Millisecond
	cueGap        = 22 * time.Millisecond
)

// note is one sine tone. A zero frequency renders silence.
type note struct {
	hz   float64
	dur  time.Duration
	gain float64
}

func rest(d time.Duration) note { return note{dur: d} }

var cueScores = map[cueKind][]note{
	cueStart:  {{880, 70 * time.Millisecond, 0.18}, rest(cueGap), {1175, 70 * time.Millisecond, 0.18}},
	cueStop:   {{620, 120 * time.Millisecond, 0.18}},
	cueCancel: {{480, 75 * time.Millisecond, 0.18}, rest(cueGap), {360, 90 * time.Millisecond, 0.18}},
	cueError:  {{330, 110 * time.Millisecond, 0.2}, rest(cueGap), {330, 110 * time.Millisecond, 0.2}},
}

func emitCue(ctx context.Context, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := render(cueScores[kind])
	if len(samples) == 0 {
		return nil
	}
	return playSamples(samples)
}

func playSamples(samples []float32) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("parla"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	remaining := samples
	stream, err := client.NewPlayback(
		pulse.Float32Reader(func(buf []float32) (int, error) {
			n := copy(buf, remaining)
			remaining = remaining[n:]
			if len(remaining) == 0 {
				return n, pulse.EndOfData
			}
			return n, nil
		}),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("parla indicator cue"),
	)
	if err != nil {
		return fmt.Errorf("open cue playback: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue: %w", err)
	}
	return nil
}

// render concatenates notes into mono float32 samples at cueSampleRate.
func render(score []note) []float32 {
	total := 0
	for _, n := range score {
		total += sampleCount(n.dur)
	}
	out := make([]float32, 0, total)
	for _, n := range score {
		out = append(out, renderNote(n)...)
	}
	return out
}

// renderNote shapes a tone with linear attack and release ramps to avoid
// clicks at the edges.
func renderNote(n note) []float32 {
	count := sampleCount(n.dur)
	out := make([]float32, count)
	if n.hz <= 0 || n.gain <= 0 {
		return out
	}
	ramp := min(max(count/10, 1), sampleCount(cueRamp))
	step := 2 * math.Pi * n.hz / cueSampleRate
	for i := range out {
		edge := min(i, count-1-i)
		env := 1.0
		if edge < ramp {
			env = float64(edge) / float64(ramp)
		}
		out[i] = float32(n.gain * env * math.Sin(step*float64(i)))
	}
	return out
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}

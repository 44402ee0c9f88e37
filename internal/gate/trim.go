package gate

import (
	"fmt"
	"math"
	"time"

	"github.com/rbright/parla/internal/audio"
)

// floorDB is the level reported for digital silence.
const floorDB = -100

// Trimmer cuts leading and trailing quiet frames from a sealed utterance so
// the recognizer sees less dead air.
type Trimmer struct {
	// ThresholdDB is the frame level, in dBFS, a frame must exceed to count
	// as audible.
	ThresholdDB float64
	// MinDuration is the shortest audio Trimmer returns. Shorter input is
	// returned unchanged and fully quiet input is cut to this length.
	MinDuration time.Duration
}

// DefaultTrimmer keeps audio from the first to the last frame above -40dBFS.
func DefaultTrimmer() Trimmer {
	return Trimmer{ThresholdDB: -40, MinDuration: 100 * time.Millisecond}
}

// Validate rejects thresholds outside the representable range.
func (t Trimmer) Validate() error {
	switch {
	case t.ThresholdDB < floorDB || t.ThresholdDB >= 0:
		return fmt.Errorf("trim threshold must be in [%d,0) dBFS, got %v", floorDB, t.ThresholdDB)
	case t.MinDuration < 0:
		return fmt.Errorf("trim min duration must be >= 0, got %s", t.MinDuration)
	}
	return nil
}

// Process returns the sub-slice of frames between the first and last audible
// frame. The input slice is not modified.
func (t Trimmer) Process(frames []audio.Frame) ([]audio.Frame, error) {
	if audio.TotalDuration(frames) < t.MinDuration {
		return frames, nil
	}

	first, last := -1, -1
	for i, frame := range frames {
		db, err := LevelDB(frame.Samples)
		if err != nil {
			return frames, &Error{Err: err}
		}
		if db > t.ThresholdDB {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 {
		var kept time.Duration
		for i, frame := range frames {
			kept += frame.Duration
			if kept >= t.MinDuration {
				return frames[:i+1], nil
			}
		}
		return frames, nil
	}
	return frames[first : last+1], nil
}

// LevelDB returns the RMS level of samples in dBFS, floored at -100.
func LevelDB(samples []float32) (float64, error) {
	level, err := Level(samples)
	if err != nil {
		return 0, err
	}
	if level == 0 {
		return floorDB, nil
	}
	return math.Max(20*math.Log10(level), floorDB), nil
}

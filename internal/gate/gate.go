// Package gate classifies audio frames as speech or silence.
package gate

import (
	"errors"
	"fmt"
	"math"

	"github.com/rbright/parla/internal/audio"
)

// Gate decides per frame whether audio is worth recognizing.
// Implementations may keep adaptive state and are used from one goroutine.
type Gate interface {
	IsSpeech(frame audio.Frame) (bool, error)
}

// Error reports a classification failure. Callers treat the frame as speech.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "activity gate: " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Func adapts a function to Gate.
type Func func(audio.Frame) (bool, error)

func (f Func) IsSpeech(frame audio.Frame) (bool, error) { return f(frame) }

// Open passes every frame as speech.
type Open struct{}

func (Open) IsSpeech(audio.Frame) (bool, error) { return true, nil }

// Config tunes the RMS gate.
type Config struct {
	SpeechThreshold  float64
	SilenceThreshold float64
	OnsetFrames      int
	HangoverFrames   int
}

// DefaultConfig suits 16kHz 20ms frames from a desk microphone.
func DefaultConfig() Config {
	return Config{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		OnsetFrames:      2,
		HangoverFrames:   10,
	}
}

// Validate rejects inconsistent thresholds.
func (c Config) Validate() error {
	switch {
	case c.SpeechThreshold <= 0 || c.SpeechThreshold >= 1:
		return fmt.Errorf("speech threshold must be in (0,1), got %v", c.SpeechThreshold)
	case c.SilenceThreshold <= 0 || c.SilenceThreshold > c.SpeechThreshold:
		return fmt.Errorf("silence threshold must be in (0,%v], got %v", c.SpeechThreshold, c.SilenceThreshold)
	case c.OnsetFrames < 1:
		return fmt.Errorf("onset frames must be >= 1, got %d", c.OnsetFrames)
	case c.HangoverFrames < 0:
		return fmt.Errorf("hangover frames must be >= 0, got %d", c.HangoverFrames)
	}
	return nil
}

// RMS is an energy gate with hysteresis: speech starts after OnsetFrames
// frames above SpeechThreshold and ends after HangoverFrames frames below
// SilenceThreshold.
type RMS struct {
	cfg          Config
	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewRMS builds an RMS gate.
func NewRMS(cfg Config) (*RMS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RMS{cfg: cfg}, nil
}

func (g *RMS) IsSpeech(frame audio.Frame) (bool, error) {
	level, err := Level(frame.Samples)
	if err != nil {
		return false, &Error{Err: err}
	}

	if g.inSpeech {
		if level < g.cfg.SilenceThreshold {
			g.silenceCount++
			if g.silenceCount > g.cfg.HangoverFrames {
				g.inSpeech = false
				g.silenceCount = 0
			}
		} else {
			g.silenceCount = 0
		}
		return g.inSpeech, nil
	}

	if level >= g.cfg.SpeechThreshold {
		g.speechCount++
		if g.speechCount >= g.cfg.OnsetFrames {
			g.inSpeech = true
			g.speechCount = 0
		}
	} else {
		g.speechCount = 0
	}
	return g.inSpeech, nil
}

// Reset clears hysteresis state.
func (g *RMS) Reset() {
	g.inSpeech = false
	g.speechCount = 0
	g.silenceCount = 0
}

var (
	errEmptyFrame   = errors.New("empty frame")
	errInvalidLevel = errors.New("frame contains non-finite samples")
)

// Level returns the root-mean-square amplitude of samples.
func Level(samples []float32) (float64, error) {
	if len(samples) == 0 {
		return 0, errEmptyFrame
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	level := math.Sqrt(sum / float64(len(samples)))
	if math.IsNaN(level) || math.IsInf(level, 0) {
		return 0, errInvalidLevel
	}
	return level, nil
}

//go:build whisper

package recognize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rbright/parla/internal/audio"
)

// WhisperSupported reports whether this binary links whisper.cpp.
const WhisperSupported = true

// WhisperConfig selects a local ggml model.
type WhisperConfig struct {
	ModelPath string
	Language  string
	Threads   int
}

// Whisper runs whisper.cpp in-process. The model is loaded once; each
// utterance gets a fresh context.
type Whisper struct {
	cfg   WhisperConfig
	mu    sync.Mutex
	model whisperlib.Model
}

// NewWhisper loads the model at cfg.ModelPath.
func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if strings.TrimSpace(cfg.ModelPath) == "" {
		return nil, errors.New("whisper model path is empty")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", cfg.ModelPath, err)
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}
	return &Whisper{cfg: cfg, model: model}, nil
}

func (w *Whisper) Recognize(ctx context.Context, frames []audio.Frame) (Result, error) {
	if len(frames) == 0 {
		return Result{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, Retryable("whisper", err)
	}
	if rate := frames[0].SampleRate; rate != whisperlib.SampleRate {
		return Result{}, Fatal("whisper", fmt.Errorf("whisper needs %dHz audio, got %dHz", whisperlib.SampleRate, rate))
	}
	started := time.Now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return Result{}, Fatal("whisper", errors.New("model is closed"))
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return Result{}, Fatal("whisper", fmt.Errorf("create context: %w", err))
	}
	if err := wctx.SetLanguage(w.cfg.Language); err != nil {
		return Result{}, Fatal("whisper", fmt.Errorf("set language %q: %w", w.cfg.Language, err))
	}
	if w.cfg.Threads > 0 {
		wctx.SetThreads(uint(w.cfg.Threads))
	}

	if err := wctx.Process(monoSamples(frames), nil, nil, nil); err != nil {
		return Result{}, Retryable("whisper", fmt.Errorf("process audio: %w", err))
	}

	var (
		parts   []string
		probSum float64
		probN   int
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, Retryable("whisper", fmt.Errorf("read segment: %w", err))
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
		for _, token := range segment.Tokens {
			probSum += float64(token.P)
			probN++
		}
	}

	confidence := 0.0
	if probN > 0 {
		confidence = probSum / float64(probN)
	}
	language := wctx.DetectedLanguage()
	if language == "" {
		language = w.cfg.Language
	}
	return Result{
		Text:       strings.Join(parts, " "),
		Language:   language,
		Confidence: clampConfidence(confidence),
		Duration:   time.Since(started),
	}, nil
}

// Close releases the model.
func (w *Whisper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}

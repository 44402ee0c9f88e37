// Package backends maps configuration onto ordered adapter candidates and
// assembles the selected adapters into session components.
package backends

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/parla/internal/adapter"
	"github.com/rbright/parla/internal/audio"
	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/gate"
	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/recognize"
	"github.com/rbright/parla/internal/session"
	"github.com/rbright/parla/internal/transcript"
)

// Adapter kinds, also the keys of session.Assembly.Adapters.
const (
	KindAudio      = "audio"
	KindGate       = "gate"
	KindRecognizer = "recognizer"
	KindOutput     = "output"
)

// Format derives the capture frame shape from config.
func Format(cfg config.AudioConfig) audio.Format {
	return audio.Format{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		FrameDuration: time.Duration(cfg.FrameMS) * time.Millisecond,
	}
}

// DumpDir is where debug utterance WAVs are written under the state directory.
func DumpDir(stateDir string) string {
	return filepath.Join(stateDir, "utterances")
}

// SessionRequest converts config timings into a session request. dumpDir is
// used only when debug.dump_utterances is set.
func SessionRequest(cfg config.Config, dumpDir string) session.Request {
	p := pipeline.DefaultConfig()
	if normalizedBackend(cfg.Audio.Backend) != "file" {
		p.Format = Format(cfg.Audio)
	}
	p.QueueCapacity = cfg.Pipeline.QueueCapacity
	p.DispatchCapacity = cfg.Pipeline.DispatchCapacity
	p.SilenceClose = ms(cfg.Pipeline.SilenceCloseMS)
	p.MaxUtterance = ms(cfg.Pipeline.MaxUtteranceMS)
	p.MinUtterance = ms(cfg.Pipeline.MinUtteranceMS)
	p.ShutdownTimeout = ms(cfg.Pipeline.ShutdownTimeoutMS)
	if cfg.Debug.DumpUtterances {
		p.DumpDir = dumpDir
	}
	return session.Request{
		Pipeline:     p,
		StartTimeout: ms(cfg.Pipeline.StartTimeoutMS),
	}
}

// Builder selects one adapter per kind for each new session.
type Builder struct {
	cfg      config.Config
	logger   *slog.Logger
	stdout   io.Writer
	observer pipeline.Observer
	env      func(string) string
}

// NewBuilder returns a session.Builder over cfg. stdout backs the stdout
// output adapter; observer may be nil.
func NewBuilder(cfg config.Config, logger *slog.Logger, stdout io.Writer, observer pipeline.Observer) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Builder{cfg: cfg, logger: logger, stdout: stdout, observer: observer, env: os.Getenv}
}

// Build selects audio, gate, recognizer, and output adapters in that order.
// Anything acquired is released when a later selection fails.
func (b *Builder) Build(ctx context.Context) (session.Assembly, error) {
	var acquired []any
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			if closer, ok := acquired[i].(io.Closer); ok {
				_ = closer.Close()
			}
		}
	}

	src, err := adapter.Select(ctx, b.logger, KindAudio, AudioCandidates(b.cfg.Audio), b.cfg.Audio.Backend)
	if err != nil {
		return session.Assembly{}, err
	}
	acquired = append(acquired, src.Instance)

	g, err := adapter.Select(ctx, b.logger, KindGate, GateCandidates(b.cfg.Gate), gateChoice(b.cfg.Gate))
	if err != nil {
		release()
		return session.Assembly{}, err
	}

	rec, err := adapter.Select(ctx, b.logger, KindRecognizer, RecognizerCandidates(b.cfg.Recognizer), b.cfg.Recognizer.Backend)
	if err != nil {
		release()
		return session.Assembly{}, err
	}
	acquired = append(acquired, rec.Instance)

	sink, err := adapter.Select(ctx, b.logger, KindOutput, OutputCandidates(b.cfg.Output, b.stdout, b.logger, b.env), b.cfg.Output.Backend)
	if err != nil {
		release()
		return session.Assembly{}, err
	}

	return session.Assembly{
		Components: pipeline.Components{
			Source:     src.Instance,
			Gate:       g.Instance,
			Recognizer: rec.Instance,
			Sink:       sink.Instance,
			Processor:  SilenceTrimmer(b.cfg.Pipeline),
			Format:     TextFormatter(b.cfg.Output),
		},
		Adapters: map[string]string{
			KindAudio:      src.Name,
			KindGate:       g.Name,
			KindRecognizer: rec.Name,
			KindOutput:     sink.Name,
		},
		Observer: b.observer,
	}, nil
}

// SilenceTrimmer returns the utterance preprocessor for the pipeline section,
// or nil when trimming is off.
func SilenceTrimmer(cfg config.PipelineConfig) pipeline.Processor {
	if !cfg.TrimSilence {
		return nil
	}
	return gate.Trimmer{ThresholdDB: cfg.TrimThresholdDB, MinDuration: ms(cfg.TrimMinMS)}
}

// TextFormatter applies the output section's transcript options.
func TextFormatter(cfg config.OutputConfig) func(string) string {
	opts := transcript.Options{
		TrailingSpace:    cfg.AddSpaceAfter,
		Capitalize:       cfg.Capitalize,
		StripAnnotations: cfg.StripAnnotations,
	}
	return func(text string) string { return transcript.Format(text, opts) }
}

// AudioCandidates lists capture backends in detection order.
func AudioCandidates(cfg config.AudioConfig) []adapter.Candidate[audio.Source] {
	format := Format(cfg)
	command := cfg.Command.Raw
	return []adapter.Candidate[audio.Source]{
		{
			Name:  "pulse",
			Probe: audio.ProbePulse,
			Construct: func(context.Context) (audio.Source, error) {
				return audio.NewPulseSource(format, cfg.Input, cfg.Fallback), nil
			},
		},
		{
			Name:  "portaudio",
			Probe: audio.ProbePortAudio,
			Construct: func(context.Context) (audio.Source, error) {
				return audio.NewPortAudioSource(format), nil
			},
		},
		{
			Name: "exec",
			Probe: func(ctx context.Context) error {
				return audio.ProbeExec(ctx, format, command)
			},
			Construct: func(context.Context) (audio.Source, error) {
				return audio.NewExecSource(format, command), nil
			},
		},
		{
			Name: "file",
			Probe: func(ctx context.Context) error {
				return audio.ProbeFile(ctx, cfg.File)
			},
			Construct: func(context.Context) (audio.Source, error) {
				return audio.NewFileSource(cfg.File, format.FrameDuration, cfg.Realtime), nil
			},
		},
	}
}

// GateCandidates lists the energy gate and the pass-through gate.
func GateCandidates(cfg config.GateConfig) []adapter.Candidate[gate.Gate] {
	return []adapter.Candidate[gate.Gate]{
		{
			Name: "rms",
			Construct: func(context.Context) (gate.Gate, error) {
				return gate.NewRMS(gate.Config{
					SpeechThreshold:  cfg.SpeechThreshold,
					SilenceThreshold: cfg.SilenceThreshold,
					OnsetFrames:      cfg.OnsetFrames,
					HangoverFrames:   cfg.HangoverFrames,
				})
			},
		},
		{
			Name: "none",
			Construct: func(context.Context) (gate.Gate, error) {
				return gate.Open{}, nil
			},
		},
	}
}

func gateChoice(cfg config.GateConfig) string {
	if cfg.Enable {
		return "rms"
	}
	return "none"
}

// RecognizerCandidates lists recognizers in detection order.
func RecognizerCandidates(cfg config.RecognizerConfig) []adapter.Candidate[recognize.Recognizer] {
	timeout := ms(cfg.TimeoutMS)
	return []adapter.Candidate[recognize.Recognizer]{
		{
			Name: "whisper",
			Probe: func(context.Context) error {
				if !recognize.WhisperSupported {
					return errors.New("whisper.cpp support not compiled in (rebuild with -tags whisper)")
				}
				return modelExists(cfg.Model)
			},
			Construct: func(context.Context) (recognize.Recognizer, error) {
				return recognize.NewWhisper(recognize.WhisperConfig{
					ModelPath: expandHome(cfg.Model),
					Language:  cfg.Language,
					Threads:   cfg.Threads,
				})
			},
		},
		{
			Name: "remote",
			Probe: func(context.Context) error {
				if cfg.Address == "" {
					return errors.New("recognizer.address is not set")
				}
				return nil
			},
			Construct: func(ctx context.Context) (recognize.Recognizer, error) {
				return recognize.DialRemote(ctx, recognize.RemoteConfig{
					Address:     cfg.Address,
					Model:       cfg.Model,
					Language:    cfg.Language,
					CallTimeout: timeout,
				})
			},
		},
		{
			Name: "exec",
			Probe: func(context.Context) error {
				if len(cfg.Command.Argv) == 0 {
					return errors.New("recognizer.command is not set")
				}
				return nil
			},
			Construct: func(context.Context) (recognize.Recognizer, error) {
				return recognize.NewExec(recognize.ExecConfig{
					Command:  cfg.Command.Raw,
					Model:    cfg.Model,
					Language: cfg.Language,
					Timeout:  timeout,
				})
			},
		},
	}
}

func modelExists(model string) error {
	if model == "" {
		return errors.New("recognizer.model is not set")
	}
	if _, err := os.Stat(expandHome(model)); err != nil {
		return fmt.Errorf("model %q: %w", model, err)
	}
	return nil
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

package backends

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/rbright/parla/internal/adapter"
	"github.com/rbright/parla/internal/config"
)

// Status is the probe outcome of one candidate.
type Status struct {
	Kind     string
	Name     string
	Selected bool
	Err      error
}

// Probe checks every candidate of every kind without constructing anything.
// Selected marks the candidate Build would try first under cfg.
func Probe(ctx context.Context, cfg config.Config, logger *slog.Logger) []Status {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var out []Status
	out = appendStatuses(ctx, out, KindAudio, cfg.Audio.Backend, AudioCandidates(cfg.Audio))
	out = appendStatuses(ctx, out, KindRecognizer, cfg.Recognizer.Backend, RecognizerCandidates(cfg.Recognizer))
	out = appendStatuses(ctx, out, KindOutput, cfg.Output.Backend, OutputCandidates(cfg.Output, io.Discard, logger, os.Getenv))
	return out
}

func appendStatuses[T any](ctx context.Context, out []Status, kind string, explicit string, candidates []adapter.Candidate[T]) []Status {
	choice := normalizedBackend(explicit)
	selected := false
	for _, candidate := range candidates {
		if choice != "" && choice != adapter.Auto && candidate.Name != choice {
			continue
		}
		var err error
		if candidate.Probe != nil {
			err = candidate.Probe(ctx)
		}
		status := Status{Kind: kind, Name: candidate.Name, Err: err}
		if err == nil && !selected {
			status.Selected = true
			selected = true
		}
		out = append(out, status)
	}
	return out
}

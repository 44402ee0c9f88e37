package backends

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/parla/internal/adapter"
	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/output"
)

// OutputCandidates lists text sinks in detection order. Under Wayland ydotool
// and wtype lead; under X11 xdotool leads. Clipboard paste and stdout follow.
func OutputCandidates(cfg config.OutputConfig, stdout io.Writer, logger *slog.Logger, env func(string) string) []adapter.Candidate[output.Sink] {
	delay := ms(cfg.TypingDelayMS)
	typers := map[string]func(time.Duration) *output.Typer{
		"ydotool": output.NewYdotool,
		"xdotool": output.NewXdotool,
		"wtype":   output.NewWtype,
	}

	candidates := make([]adapter.Candidate[output.Sink], 0, 5)
	for _, name := range keyboardOrder(env) {
		typer := typers[name](delay)
		candidates = append(candidates, adapter.Candidate[output.Sink]{
			Name:  name,
			Probe: typer.Probe,
			Construct: func(context.Context) (output.Sink, error) {
				return typer, nil
			},
		})
	}

	paster := output.NewPaster(output.PasteConfig{
		ClipboardArgv: cfg.ClipboardCmd.Argv,
		PasteArgv:     cfg.PasteCmd.Argv,
		Shortcut:      cfg.PasteShortcut,
	}, logger)
	candidates = append(candidates,
		adapter.Candidate[output.Sink]{
			Name:  "paste",
			Probe: paster.Probe,
			Construct: func(context.Context) (output.Sink, error) {
				return paster, nil
			},
		},
		adapter.Candidate[output.Sink]{
			Name: "stdout",
			Construct: func(context.Context) (output.Sink, error) {
				return output.NewWriter(stdout), nil
			},
		},
	)
	return candidates
}

func keyboardOrder(env func(string) string) []string {
	wayland := env("WAYLAND_DISPLAY") != "" || strings.EqualFold(env("XDG_SESSION_TYPE"), "wayland")
	if wayland {
		return []string{"ydotool", "wtype", "xdotool"}
	}
	if env("DISPLAY") != "" {
		return []string{"xdotool", "ydotool", "wtype"}
	}
	return []string{"ydotool", "xdotool", "wtype"}
}

func normalizedBackend(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

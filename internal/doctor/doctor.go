// Package doctor runs readiness diagnostics for config, backends, audio, and
// the optional history, events, and metrics surfaces.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/parla/internal/audio"
	"github.com/rbright/parla/internal/backends"
	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/events"
	"github.com/rbright/parla/internal/history"
)

const probeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes config, backend, and environment checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, logger *slog.Logger) Report {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	statuses := backends.Probe(ctx, cfg, logger)
	for _, kind := range []string{backends.KindAudio, backends.KindRecognizer, backends.KindOutput} {
		checks = append(checks, summarizeKind(kind, statuses))
	}

	if selected(statuses, backends.KindAudio) == "pulse" {
		checks = append(checks, checkAudioSelection(ctx, cfg))
	}
	if selected(statuses, backends.KindOutput) == "paste" {
		checks = append(checks, checkCommand(cfg.Output.ClipboardCmd.Argv, "clipboard_cmd"))
		if len(cfg.Output.PasteCmd.Argv) > 0 {
			checks = append(checks, checkCommand(cfg.Output.PasteCmd.Argv, "paste_cmd"))
		} else {
			checks = append(checks, checkBinary("hyprctl", "default paste path requires hyprctl"))
		}
	}

	if cfg.History.Enable {
		checks = append(checks, checkHistory(ctx, cfg.History))
	}
	if cfg.Events.Enable {
		checks = append(checks, checkEvents(ctx, cfg.Events))
	}
	if cfg.Metrics.Enable {
		checks = append(checks, checkListen("metrics.listen", cfg.Metrics.Listen))
	}
	if cfg.Debug.DumpUtterances {
		checks = append(checks, checkDumpDir())
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q (%s)", loaded.Path, loaded.Format)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 && loaded.Exists {
		message = fmt.Sprintf("%s (%d warning(s))", message, n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// summarizeKind passes when some candidate of kind is usable.
func summarizeKind(kind string, statuses []backends.Status) Check {
	name := "backend." + kind
	var failures []string
	for _, status := range statuses {
		if status.Kind != kind {
			continue
		}
		if status.Selected {
			return Check{Name: name, Pass: true, Message: fmt.Sprintf("using %s", status.Name)}
		}
		if status.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", status.Name, status.Err))
		}
	}
	if len(failures) == 0 {
		return Check{Name: name, Pass: false, Message: "no candidates configured"}
	}
	return Check{Name: name, Pass: false, Message: "no usable backend (" + strings.Join(failures, "; ") + ")"}
}

func selected(statuses []backends.Status, kind string) string {
	for _, status := range statuses {
		if status.Kind == kind && status.Selected {
			return status.Name
		}
	}
	return ""
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

// checkHistory opens the history database, creating it if needed.
func checkHistory(ctx context.Context, cfg config.HistoryConfig) Check {
	path, err := history.ResolvePath(cfg.Path)
	if err != nil {
		return Check{Name: "history", Pass: false, Message: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	store, err := history.Open(ctx, path, cfg.Retain, nil)
	if err != nil {
		return Check{Name: "history", Pass: false, Message: err.Error()}
	}
	defer store.Close()
	records, err := store.Recent(ctx, cfg.Retain)
	if err != nil {
		return Check{Name: "history", Pass: false, Message: err.Error()}
	}
	return Check{Name: "history", Pass: true, Message: fmt.Sprintf("%s (%d session(s))", path, len(records))}
}

// checkEvents connects to the NATS server and disconnects.
func checkEvents(ctx context.Context, cfg config.EventsConfig) Check {
	publisher, err := events.Connect(ctx, cfg, nil)
	if err != nil {
		return Check{Name: "events", Pass: false, Message: err.Error()}
	}
	publisher.Close()
	return Check{Name: "events", Pass: true, Message: fmt.Sprintf("connected to %s", cfg.URL)}
}

// checkListen binds the address briefly to prove it is free.
func checkListen(name string, address string) Check {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Err != nil {
			return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s: %v", address, opErr.Err)}
		}
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	_ = ln.Close()
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is free", address)}
}

func checkDumpDir() Check {
	dir, err := config.StateDir()
	if err != nil {
		return Check{Name: "debug.dump_dir", Pass: false, Message: err.Error()}
	}
	return checkWritableDir("debug.dump_dir", backends.DumpDir(dir))
}

func checkWritableDir(name string, dir string) Check {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".parla-doctor-*")
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	probePath := probe.Name()
	_ = probe.Close()
	_ = os.Remove(probePath)
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is writable", filepath.Clean(dir))}
}

// Package app dispatches parla commands and owns the long-running session
// process started by `parla start`.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/parla/internal/audio"
	"github.com/rbright/parla/internal/cli"
	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/doctor"
	"github.com/rbright/parla/internal/history"
	"github.com/rbright/parla/internal/ipc"
	"github.com/rbright/parla/internal/logging"
	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/session"
	"github.com/rbright/parla/internal/version"
)

const (
	probeTimeout   = 180 * time.Millisecond
	acquireRetries = 8
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("parla"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("parla"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	if err := logRuntime.SetLevel(cfgLoaded.Config.Debug.LogLevel); err != nil {
		logger.Warn("invalid log level", "error", err.Error())
	}
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded, logger)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandConfig:
		return r.commandConfig(cfgLoaded)
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStats:
		return r.commandStats(ctx)
	case cli.CommandHistory:
		return r.commandHistory(ctx, cfgLoaded.Config.History, parsed.Limit)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.CommandStop)
	case cli.CommandCancel:
		return r.forwardOrFail(ctx, ipc.CommandCancel)
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded.Config, logger)
	case cli.CommandStart:
		return r.commandStart(ctx, cfgLoaded.Config, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

// commandConfig prints the effective config in the file's own syntax, headed
// by a comment naming its source, so the output can be saved as a config file.
func (r Runner) commandConfig(loaded config.Loaded) int {
	out, err := config.Render(loaded.Config, loaded.Format)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	marker := "//"
	if loaded.Format == config.FormatYAML {
		marker = "#"
	}
	source := "defaults, file not found"
	if loaded.Exists {
		source = string(loaded.Format)
	}
	fmt.Fprintf(r.Stdout, "%s config: %s (%s)\n", marker, loaded.Path, source)
	_, _ = r.Stdout.Write(out)
	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandStatus(ctx context.Context) int {
	resp, err := ipc.NewClient().Call(ctx, ipc.CommandStatus)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	state := resp.State
	if state == "" {
		state = "idle"
	}
	var info session.Info
	if len(resp.Data) > 0 && resp.Decode(&info) == nil && info.ID != "" {
		fmt.Fprintf(r.Stdout, "%s session=%s started=%s\n", state, info.ID, info.StartedAt.Format(time.RFC3339))
		return 0
	}
	fmt.Fprintln(r.Stdout, state)
	return 0
}

func (r Runner) commandStats(ctx context.Context) int {
	resp, err := ipc.NewClient().Call(ctx, ipc.CommandStats)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(r.Stderr, "error: no active parla session")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	var snap pipeline.Snapshot
	if err := resp.Decode(&snap); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	fmt.Fprintln(r.Stdout, string(out))
	return 0
}

func (r Runner) commandHistory(ctx context.Context, cfg config.HistoryConfig, limit int) int {
	path, err := history.ResolvePath(cfg.Path)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(r.Stdout, "no sessions recorded")
		return 0
	}

	store, err := history.Open(ctx, path, cfg.Retain, nil)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.Recent(ctx, limit)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Fprintln(r.Stdout, "no sessions recorded")
		return 0
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s %s %-13s %8s utterances=%d chars=%d",
			rec.StartedAt.Local().Format(time.DateTime),
			rec.ID,
			rec.Reason,
			rec.Duration.Round(100*time.Millisecond),
			rec.Stats.UtterancesRecognized,
			rec.Stats.CharsEmitted,
		)
		if rec.Error != "" {
			line += fmt.Sprintf(" error=%q", rec.Error)
		}
		fmt.Fprintln(r.Stdout, line)
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, command string) int {
	resp, err := ipc.NewClient().Call(ctx, command)
	if errors.Is(err, ipc.ErrNotRunning) {
		fmt.Fprintln(r.Stderr, "error: no active parla session")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandToggle stops a running session, or becomes the owner of a new one.
func (r Runner) commandToggle(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	resp, err := ipc.NewClient().Call(ctx, ipc.CommandStop)
	if errors.Is(err, ipc.ErrNotRunning) {
		return r.commandStart(ctx, cfg, logger)
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

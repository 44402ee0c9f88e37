package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

const uinputHint = `ydotool needs uinput access: sudo usermod -aG input $USER and add KERNEL=="uinput", GROUP="input", MODE="0660" to /etc/udev/rules.d/80-uinput.rules`

// Typer types text through an external keyboard-injection tool.
type Typer struct {
	tool    string
	delay   time.Duration
	timeout time.Duration
}

// NewYdotool types via ydotool (Wayland and X11, needs uinput).
func NewYdotool(delay time.Duration) *Typer {
	return &Typer{tool: "ydotool", delay: delay, timeout: 10 * time.Second}
}

// NewXdotool types via xdotool (X11).
func NewXdotool(delay time.Duration) *Typer {
	return &Typer{tool: "xdotool", delay: delay, timeout: 10 * time.Second}
}

// NewWtype types via wtype (wlroots Wayland compositors).
func NewWtype(delay time.Duration) *Typer {
	return &Typer{tool: "wtype", delay: delay, timeout: 10 * time.Second}
}

// Name returns the backing tool name.
func (t *Typer) Name() string { return t.tool }

// Probe checks that the tool is installed and its display server is present.
func (t *Typer) Probe(context.Context) error {
	if _, err := exec.LookPath(t.tool); err != nil {
		return fmt.Errorf("%s not found on PATH", t.tool)
	}
	switch t.tool {
	case "xdotool":
		if os.Getenv("DISPLAY") == "" {
			return errors.New("DISPLAY is not set")
		}
	case "wtype":
		if os.Getenv("WAYLAND_DISPLAY") == "" {
			return errors.New("WAYLAND_DISPLAY is not set")
		}
	}
	return nil
}

func (t *Typer) argv(text string) []string {
	ms := strconv.FormatInt(t.delay.Milliseconds(), 10)
	switch t.tool {
	case "ydotool":
		argv := []string{"ydotool", "type"}
		if t.delay > 0 {
			argv = append(argv, "--key-delay", ms)
		}
		return append(argv, "--", text)
	case "xdotool":
		argv := []string{"xdotool", "type", "--clearmodifiers"}
		if t.delay > 0 {
			argv = append(argv, "--delay", ms)
		}
		return append(argv, "--", text)
	default:
		argv := []string{t.tool}
		if t.delay > 0 {
			argv = append(argv, "-d", ms)
		}
		return append(argv, "--", text)
	}
}

func (t *Typer) Emit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	argv := t.argv(text)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		emitErr := &EmitError{Backend: t.tool, Err: err}
		if msg != "" {
			emitErr.Err = fmt.Errorf("%w: %s", err, msg)
		}
		lower := strings.ToLower(msg)
		if t.tool == "ydotool" && (strings.Contains(lower, "permission denied") || strings.Contains(lower, "uinput")) {
			emitErr.Hint = uinputHint
		}
		return emitErr
	}
	return nil
}

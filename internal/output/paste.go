package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/rbright/parla/internal/hypr"
)

// PasteConfig configures clipboard-and-paste delivery.
type PasteConfig struct {
	// ClipboardArgv receives the text on stdin. Empty uses the system clipboard library.
	ClipboardArgv []string
	// PasteArgv triggers the paste. Empty dispatches Shortcut through Hyprland when
	// available, otherwise a virtual Ctrl+V keystroke.
	PasteArgv []string
	Shortcut  string
}

// Paster copies text to the clipboard and pastes it into the focused window.
type Paster struct {
	cfg    PasteConfig
	logger *slog.Logger
	keys   func() error
}

// NewPaster builds a clipboard sink.
func NewPaster(cfg PasteConfig, logger *slog.Logger) *Paster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if strings.TrimSpace(cfg.Shortcut) == "" {
		cfg.Shortcut = "CTRL,V"
	}
	return &Paster{cfg: cfg, logger: logger, keys: sendCtrlV}
}

// Probe checks that some clipboard writer exists.
func (p *Paster) Probe(context.Context) error {
	if len(p.cfg.ClipboardArgv) > 0 {
		if _, err := exec.LookPath(p.cfg.ClipboardArgv[0]); err != nil {
			return fmt.Errorf("clipboard command %q not found", p.cfg.ClipboardArgv[0])
		}
		return nil
	}
	if clipboard.Unsupported {
		return errors.New("no clipboard utility found (install wl-clipboard, xclip, or xsel)")
	}
	return nil
}

// Emit writes the clipboard, then pastes. A paste failure leaves the clipboard set
// and is reported so the user can paste manually.
func (p *Paster) Emit(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	clipboardCtx, clipboardCancel := context.WithTimeout(ctx, 2*time.Second)
	defer clipboardCancel()
	if err := p.setClipboard(clipboardCtx, text); err != nil {
		return &EmitError{Backend: "paste", Err: fmt.Errorf("set clipboard: %w", err)}
	}

	pasteCtx, pasteCancel := context.WithTimeout(ctx, 1200*time.Millisecond)
	defer pasteCancel()
	if err := p.paste(pasteCtx); err != nil {
		p.logger.Error("paste dispatch failed; clipboard remains set", "error", err.Error())
		return &EmitError{Backend: "paste", Err: err, Hint: "text is on the clipboard"}
	}
	return nil
}

func (p *Paster) setClipboard(ctx context.Context, text string) error {
	if len(p.cfg.ClipboardArgv) > 0 {
		return runCommandWithInput(ctx, p.cfg.ClipboardArgv, text)
	}
	return clipboard.WriteAll(text)
}

func (p *Paster) paste(ctx context.Context) error {
	if len(p.cfg.PasteArgv) > 0 {
		return runCommandWithInput(ctx, p.cfg.PasteArgv, "")
	}
	if hypr.Available() == nil {
		return hyprPaste(ctx, p.cfg.Shortcut)
	}
	return p.keys()
}

func hyprPaste(ctx context.Context, shortcut string) error {
	window, err := activeWindowWithRetry(ctx, 5, 10*time.Millisecond)
	if err != nil {
		return err
	}
	payload, err := buildPasteShortcut(shortcut, window.Address)
	if err != nil {
		return err
	}
	return hypr.SendShortcut(ctx, payload)
}

func buildPasteShortcut(shortcut string, windowAddress string) (string, error) {
	shortcut = strings.TrimSpace(shortcut)
	if shortcut == "" {
		return "", errors.New("paste shortcut cannot be empty")
	}
	address := strings.TrimSpace(windowAddress)
	if address == "" {
		return "", errors.New("active window address is required")
	}
	return fmt.Sprintf("%s,address:%s", shortcut, address), nil
}

func activeWindowWithRetry(ctx context.Context, attempts int, delay time.Duration) (hypr.ActiveWindow, error) {
	attempts = max(attempts, 1)

	var lastErr error
	for i := range attempts {
		window, err := hypr.QueryActiveWindow(ctx)
		if err == nil {
			return window, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return hypr.ActiveWindow{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return hypr.ActiveWindow{}, fmt.Errorf("resolve active window: %w", lastErr)
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return errors.New("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

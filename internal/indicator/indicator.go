// Package indicator handles visual state notifications and audio cue playback.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/hypr"
)

type notice int

const (
	noticeListening notice = iota + 1
	noticeError
)

// surface is where notices are shown.
type surface interface {
	show(ctx context.Context, kind notice, timeoutMS int, text string) error
	dismiss(ctx context.Context) error
}

// Notifier shows session state through Hyprland or desktop notifications and
// plays short audio cues at session boundaries.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	surface  surface
	cue      func(context.Context, cueKind) error

	soundMu sync.Mutex
	sounds  sync.WaitGroup
}

// New creates an indicator from config.
func New(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var s surface = hyprSurface{}
	if strings.EqualFold(strings.TrimSpace(cfg.Backend), "desktop") {
		s = newDesktopSurface(cfg.DesktopAppName)
	}
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv().override(cfg.TextListening, cfg.TextError),
		surface:  s,
		cue:      emitCue,
	}
}

// ShowListening signals that audio is being captured and plays the start cue.
func (n *Notifier) ShowListening(ctx context.Context) {
	n.playCue(cueStart)
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.surface.show(ctx, noticeListening, 300000, n.messages.listening)
	})
}

// ShowError displays an error-state message.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	n.playCue(cueError)
	if !n.cfg.Enable {
		return
	}
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.surface.show(ctx, noticeError, timeout, text)
	})
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueCancel emits the cancel cue.
func (n *Notifier) CueCancel(context.Context) {
	n.playCue(cueCancel)
}

// Hide dismisses the active indicator surface.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}
	n.run(ctx, n.surface.dismiss)
}

// Wait blocks until queued cues finish playing.
func (n *Notifier) Wait() {
	n.sounds.Wait()
}

// run executes an indicator operation with a bounded timeout.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.logger.Debug("indicator dispatch failed", "error", err.Error())
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	n.sounds.Add(1)
	go func() {
		defer n.sounds.Done()
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.cue(ctx, kind); err != nil {
			n.logger.Debug("indicator audio cue failed", "error", err.Error())
		}
	}()
}

type hyprSurface struct{}

func (hyprSurface) show(ctx context.Context, kind notice, timeoutMS int, text string) error {
	if kind == noticeError {
		return hypr.Notify(ctx, 3, timeoutMS, "rgb(f38ba8)", text)
	}
	return hypr.Notify(ctx, 1, timeoutMS, "rgb(89b4fa)", text)
}

func (hyprSurface) dismiss(ctx context.Context) error {
	return hypr.DismissNotify(ctx)
}

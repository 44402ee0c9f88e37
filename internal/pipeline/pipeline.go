// Package pipeline runs capture -> gate -> utterance batching -> recognition -> output
// for one dictation session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/parla/internal/audio"
	"github.com/rbright/parla/internal/gate"
	"github.com/rbright/parla/internal/output"
	"github.com/rbright/parla/internal/recognize"
)

var (
	// ErrFormatMismatch reports a frame whose shape differs from the session format.
	ErrFormatMismatch = errors.New("audio frame format changed mid-session")
	// ErrAlreadyRunning reports a second Run on the same pipeline.
	ErrAlreadyRunning = errors.New("pipeline already running")
)

// StageError wraps a fatal failure with the stage that raised it.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Config tunes queue sizes, utterance boundaries, and shutdown behavior.
type Config struct {
	// Format is the expected frame shape. When zero, the first frame sets it.
	Format              audio.Format
	QueueCapacity       int
	DispatchCapacity    int
	SilenceClose        time.Duration
	MaxUtterance        time.Duration
	MinUtterance        time.Duration
	ShutdownTimeout     time.Duration
	MaxCaptureRetries   int
	CaptureRetryBackoff time.Duration
	// DumpDir, when set, receives a WAV file per sealed utterance.
	DumpDir string
}

// DefaultConfig holds roughly three seconds of 20ms frames ahead of the gate.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:       150,
		DispatchCapacity:    2,
		SilenceClose:        time.Second,
		MaxUtterance:        30 * time.Second,
		ShutdownTimeout:     5 * time.Second,
		MaxCaptureRetries:   5,
		CaptureRetryBackoff: 100 * time.Millisecond,
	}
}

// Validate checks bounds the pipeline relies on.
func (c Config) Validate() error {
	switch {
	case c.QueueCapacity < 1:
		return fmt.Errorf("queue capacity must be >= 1, got %d", c.QueueCapacity)
	case c.DispatchCapacity < 1:
		return fmt.Errorf("dispatch capacity must be >= 1, got %d", c.DispatchCapacity)
	case c.SilenceClose <= 0:
		return fmt.Errorf("silence close must be > 0, got %s", c.SilenceClose)
	case c.MaxUtterance <= 0:
		return fmt.Errorf("max utterance must be > 0, got %s", c.MaxUtterance)
	case c.MinUtterance < 0:
		return fmt.Errorf("min utterance must be >= 0, got %s", c.MinUtterance)
	case c.MinUtterance >= c.MaxUtterance:
		return fmt.Errorf("min utterance %s must be below max utterance %s", c.MinUtterance, c.MaxUtterance)
	case c.ShutdownTimeout < 0:
		return fmt.Errorf("shutdown timeout must be >= 0, got %s", c.ShutdownTimeout)
	case c.MaxCaptureRetries < 0:
		return fmt.Errorf("max capture retries must be >= 0, got %d", c.MaxCaptureRetries)
	}
	if c.Format != (audio.Format{}) {
		if err := c.Format.Validate(); err != nil {
			return fmt.Errorf("format: %w", err)
		}
	}
	return nil
}

// Components are the adapters one pipeline drives. The pipeline closes every
// component that implements io.Closer exactly once when it finishes.
type Components struct {
	Source     audio.Source
	Gate       gate.Gate
	Recognizer recognize.Recognizer
	Sink       output.Sink

	// Processor, when set, rewrites each sealed utterance's audio before
	// recognition. On failure the original audio is recognized.
	Processor Processor

	// Format rewrites recognized text before it is emitted. Text that
	// formats to blank counts as an empty result.
	Format func(string) string
}

// Processor transforms utterance audio ahead of recognition.
type Processor interface {
	Process(frames []audio.Frame) ([]audio.Frame, error)
}

// Observer receives per-event measurements. Implementations must be safe for
// concurrent use.
type Observer interface {
	FrameDropped(ctx context.Context)
	UtteranceSealed(ctx context.Context, duration time.Duration, reason SealReason)
	Recognized(ctx context.Context, latency time.Duration, err error)
	Emitted(ctx context.Context, chars int, err error)
}

type noopObserver struct{}

func (noopObserver) FrameDropped(context.Context)                               {}
func (noopObserver) UtteranceSealed(context.Context, time.Duration, SealReason) {}
func (noopObserver) Recognized(context.Context, time.Duration, error)           {}
func (noopObserver) Emitted(context.Context, int, error)                        {}

// Pipeline is single-use: Run it once, then stop it with Stop or Cancel.
type Pipeline struct {
	cfg      Config
	parts    Components
	logger   *slog.Logger
	observer Observer

	frames   *dropQueue[audio.Frame]
	dispatch *dropQueue[*Utterance]
	stats    Stats

	running   atomic.Bool
	unclean   atomic.Bool
	format    audio.Format
	ready     chan struct{}
	readyOnce sync.Once

	stopCh     chan struct{}
	stopOnce   sync.Once
	cancelCh   chan struct{}
	cancelOnce sync.Once

	failMu  sync.Mutex
	failErr error

	closeOnce sync.Once
}

// New validates cfg and wires the components into a runnable pipeline.
func New(cfg Config, parts Components, logger *slog.Logger, observer Observer) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	if parts.Source == nil || parts.Recognizer == nil || parts.Sink == nil {
		return nil, errors.New("pipeline requires a source, recognizer, and sink")
	}
	if parts.Gate == nil {
		parts.Gate = gate.Open{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Pipeline{
		cfg:      cfg,
		parts:    parts,
		logger:   logger,
		observer: observer,
		frames:   newDropQueue[audio.Frame](cfg.QueueCapacity),
		dispatch: newDropQueue[*Utterance](cfg.DispatchCapacity),
		format:   cfg.Format,
		ready:    make(chan struct{}),
		stopCh:   make(chan struct{}),
		cancelCh: make(chan struct{}),
	}, nil
}

// Ready is closed once the first frame has been accepted from the source.
func (p *Pipeline) Ready() <-chan struct{} { return p.ready }

// Stats returns a snapshot of the live counters.
func (p *Pipeline) Stats() Snapshot { return p.stats.Snapshot() }

// QueueHighWater reports the deepest the frame queue has been.
func (p *Pipeline) QueueHighWater() int { return p.frames.HighWater() }

// Unclean reports whether Run returned with recognition still in flight.
func (p *Pipeline) Unclean() bool { return p.unclean.Load() }

// Stop ends capture, recognizes what was already captured, and gives the
// recognizer ShutdownTimeout to finish before abandoning it. Safe to call
// more than once and before Run.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// Cancel ends capture and abandons queued and in-flight recognition.
func (p *Pipeline) Cancel() {
	p.Stop()
	p.cancelOnce.Do(func() { close(p.cancelCh) })
}

// Run opens the source and processes audio until end of stream, Stop,
// Cancel, ctx cancellation, or a fatal error. Fatal errors are returned as
// *StageError; a graceful end returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runCtx, cancelRun := context.WithCancelCause(ctx)
	defer cancelRun(nil)

	if err := p.parts.Source.Open(runCtx); err != nil {
		_ = p.parts.Source.Close()
		p.closeComponents()
		return &StageError{Stage: "capture", Err: err}
	}

	ingestCtx, abortIngest := context.WithCancel(runCtx)
	defer abortIngest()
	recCtx, abortRecognition := context.WithCancel(runCtx)
	defer abortRecognition()
	g, gctx := errgroup.WithContext(ingestCtx)
	captureCtx, stopCapture := context.WithCancel(gctx)
	defer stopCapture()

	abandoned := make(chan struct{})
	var abandonOnce sync.Once
	abandon := func() {
		abandonOnce.Do(func() {
			close(abandoned)
			abortIngest()
			abortRecognition()
		})
	}

	finished := make(chan struct{})
	defer close(finished)
	go p.supervise(finished, stopCapture, abandon)

	recDone := make(chan struct{})
	go func() {
		err := p.recognizeLoop(recCtx)
		if err != nil {
			p.fail(err)
		}
		close(recDone)
		if err != nil {
			cancelRun(err)
		}
	}()

	g.Go(func() error {
		defer p.frames.Close()
		return p.captureLoop(captureCtx)
	})
	g.Go(func() error {
		defer p.dispatch.Close()
		return p.ingestLoop(gctx)
	})
	if err := g.Wait(); err != nil {
		p.fail(err)
		cancelRun(err)
	}

	if n := p.frames.Drain(); n > 0 {
		p.stats.FramesDropped.Add(uint64(n))
	}
	if err := p.parts.Source.Close(); err != nil {
		p.logger.Warn("close audio source failed", "error", err.Error())
	}

	select {
	case <-recDone:
	case <-abandoned:
	case <-runCtx.Done():
		// Recognition saw the same cancellation; allow it the shutdown grace to return.
		p.awaitBounded(recDone)
	}
	select {
	case <-recDone:
		p.closeComponents()
	default:
		p.unclean.Store(true)
		p.logger.Warn("unclean pipeline shutdown: recognition still in flight, abandoning it")
		go func() {
			<-recDone
			p.closeComponents()
		}()
	}

	if n := p.dispatch.Drain(); n > 0 {
		p.stats.UtterancesDropped.Add(uint64(n))
		p.logger.Warn("abandoned queued utterances", "count", n)
	}

	if err := p.fatal(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// supervise turns Stop and Cancel into context cancellations.
func (p *Pipeline) supervise(finished <-chan struct{}, stopCapture func(), abandon func()) {
	select {
	case <-p.stopCh:
	case <-finished:
		return
	}
	stopCapture()

	grace := time.NewTimer(p.cfg.ShutdownTimeout)
	defer grace.Stop()
	select {
	case <-p.cancelCh:
	case <-grace.C:
		p.logger.Warn("shutdown timeout elapsed", "timeout", p.cfg.ShutdownTimeout.String())
	case <-finished:
		return
	}
	abandon()
}

// captureLoop reads frames into the bounded queue. It never blocks on the
// consumer: a full queue evicts its oldest frame.
func (p *Pipeline) captureLoop(ctx context.Context) error {
	failures := 0
	for {
		frame, err := p.parts.Source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				p.logger.Info("audio source reached end of stream")
				return nil
			}
			if audio.IsPermanent(err) {
				return &StageError{Stage: "capture", Err: err}
			}
			failures++
			if failures > p.cfg.MaxCaptureRetries {
				return &StageError{Stage: "capture", Err: fmt.Errorf("giving up after %d consecutive failures: %w", failures, err)}
			}
			p.stats.CaptureRetries.Add(1)
			p.logger.Warn("transient capture error, retrying", "attempt", failures, "error", err.Error())
			if !sleepCtx(ctx, time.Duration(failures)*p.cfg.CaptureRetryBackoff) {
				return nil
			}
			continue
		}
		failures = 0

		if err := p.checkFormat(frame); err != nil {
			return &StageError{Stage: "capture", Err: err}
		}

		p.stats.FramesProduced.Add(1)
		_, evicted, accepted := p.frames.Push(frame)
		if !accepted {
			p.stats.FramesDropped.Add(1)
			return nil
		}
		if evicted {
			p.stats.FramesDropped.Add(1)
			p.observer.FrameDropped(ctx)
		}
		p.readyOnce.Do(func() { close(p.ready) })
	}
}

func (p *Pipeline) checkFormat(frame audio.Frame) error {
	got := frame.Format()
	if p.format == (audio.Format{}) {
		if err := got.Validate(); err != nil {
			return fmt.Errorf("first frame: %w", err)
		}
		p.format = got
		p.logger.Debug("audio format locked", "format", got.String())
		return nil
	}
	if got != p.format {
		return fmt.Errorf("%w: want %s, got %s", ErrFormatMismatch, p.format, got)
	}
	return nil
}

// ingestLoop gates queued frames and seals utterances. It owns the open
// utterance; only sealed utterances leave this goroutine.
func (p *Pipeline) ingestLoop(ctx context.Context) error {
	batch := newBatcher(p.cfg.SilenceClose, p.cfg.MaxUtterance)
	gateFailing := false
	burst := 0

	for {
		frame, ok := p.frames.Pop(ctx)
		if !ok {
			break
		}
		p.stats.FramesIngested.Add(1)

		speech, err := p.parts.Gate.IsSpeech(frame)
		if err != nil {
			p.stats.GateFailures.Add(1)
			burst++
			if !gateFailing {
				gateFailing = true
				p.logger.Warn("activity gate failed, treating audio as speech", "error", err.Error())
			}
			speech = true
		} else if gateFailing {
			gateFailing = false
			p.logger.Info("activity gate recovered", "failed_frames", burst)
			burst = 0
		}
		if speech {
			p.stats.FramesSpeech.Add(1)
		}

		for _, u := range batch.Push(frame, speech) {
			p.seal(ctx, u)
		}
	}

	if ctx.Err() != nil {
		if batch.Discard() {
			p.stats.UtterancesDropped.Add(1)
		}
		return nil
	}
	if u := batch.Flush(); u != nil {
		p.seal(ctx, u)
	}
	return nil
}

// seal hands a finished utterance to the recognition loop.
func (p *Pipeline) seal(ctx context.Context, u *Utterance) {
	if u.Duration < p.cfg.MinUtterance {
		p.stats.UtterancesDiscarded.Add(1)
		p.logger.Debug("utterance below minimum duration discarded", "duration_ms", u.Duration.Milliseconds())
		return
	}
	u.Seq = p.stats.UtterancesSealed.Add(1)
	p.observer.UtteranceSealed(ctx, u.Duration, u.Reason)
	p.logger.Debug("utterance sealed",
		"seq", u.Seq,
		"frames", len(u.Frames),
		"duration_ms", u.Duration.Milliseconds(),
		"reason", string(u.Reason),
	)

	old, evicted, accepted := p.dispatch.Push(u)
	if !accepted {
		p.stats.UtterancesDropped.Add(1)
		return
	}
	if evicted {
		p.stats.UtterancesDropped.Add(1)
		p.logger.Warn("recognition backlog full, dropped oldest utterance", "seq", old.Seq)
	}
}

// recognizeLoop runs one recognition at a time in seal order and emits the
// results. Only fatal recognizer errors end it early.
func (p *Pipeline) recognizeLoop(ctx context.Context) error {
	for {
		u, ok := p.dispatch.Pop(ctx)
		if !ok {
			return nil
		}
		p.preprocess(u)
		p.dump(u)

		started := time.Now()
		result, err := p.parts.Recognizer.Recognize(ctx, u.Frames)
		latency := time.Since(started)
		if ctx.Err() != nil {
			p.stats.UtterancesDropped.Add(1)
			return nil
		}
		p.observer.Recognized(ctx, latency, err)
		if err != nil {
			if recognize.IsFatal(err) {
				return &StageError{Stage: "recognize", Err: err}
			}
			p.stats.RecognitionFailures.Add(1)
			p.logger.Warn("recognition failed, skipping utterance", "seq", u.Seq, "error", err.Error())
			continue
		}
		p.stats.observeLatency(latency)
		p.stats.UtterancesRecognized.Add(1)

		text := result.Text
		if p.parts.Format != nil {
			text = p.parts.Format(text)
		}
		if strings.TrimSpace(text) == "" {
			p.stats.EmptyResults.Add(1)
			p.logger.Debug("empty recognition result", "seq", u.Seq)
			continue
		}

		chars := utf8.RuneCountInString(text)
		err = p.parts.Sink.Emit(ctx, text)
		p.observer.Emitted(ctx, chars, err)
		if err != nil {
			p.stats.EmitFailures.Add(1)
			p.logger.Warn("emit failed", "seq", u.Seq, "error", err.Error())
			continue
		}
		p.stats.CharsEmitted.Add(uint64(chars))
		p.logger.Debug("utterance emitted",
			"seq", u.Seq,
			"chars", chars,
			"latency_ms", latency.Milliseconds(),
			"language", result.Language,
		)
	}
}

// preprocess applies the configured Processor in place. Errors and empty
// output keep the original frames.
func (p *Pipeline) preprocess(u *Utterance) {
	if p.parts.Processor == nil {
		return
	}
	out, err := p.parts.Processor.Process(u.Frames)
	switch {
	case err != nil:
		p.stats.ProcessFailures.Add(1)
		p.logger.Warn("audio preprocessing failed, using raw utterance", "seq", u.Seq, "error", err.Error())
	case len(out) == 0:
		p.logger.Debug("audio preprocessing removed every frame, using raw utterance", "seq", u.Seq)
	default:
		if len(out) != len(u.Frames) {
			p.logger.Debug("utterance trimmed", "seq", u.Seq, "frames", len(u.Frames), "kept", len(out))
		}
		u.Frames = out
	}
}

// dump writes the utterance audio for debugging when DumpDir is set.
func (p *Pipeline) dump(u *Utterance) {
	if p.cfg.DumpDir == "" {
		return
	}
	name := fmt.Sprintf("utterance-%s-%04d.wav", u.SealedAt.Format("20060102-150405.000"), u.Seq)
	path := filepath.Join(p.cfg.DumpDir, name)
	if err := audio.WriteWAVFile(path, u.Frames); err != nil {
		p.logger.Warn("unable to write utterance dump", "path", path, "error", err.Error())
	}
}

func (p *Pipeline) awaitBounded(done <-chan struct{}) {
	timer := time.NewTimer(p.cfg.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
	}
}

func (p *Pipeline) fail(err error) {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	if p.failErr == nil {
		p.failErr = err
		p.logger.Error("pipeline failed", "error", err.Error())
	}
}

func (p *Pipeline) fatal() error {
	p.failMu.Lock()
	defer p.failMu.Unlock()
	return p.failErr
}

func (p *Pipeline) closeComponents() {
	p.closeOnce.Do(func() {
		for name, component := range map[string]any{
			"recognizer": p.parts.Recognizer,
			"sink":       p.parts.Sink,
		} {
			closer, ok := component.(io.Closer)
			if !ok {
				continue
			}
			if err := closer.Close(); err != nil {
				p.logger.Warn("close component failed", "component", name, "error", err.Error())
			}
		}
	})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Package session owns the single dictation session: lifecycle state, the
// running pipeline, and the statistics it exposes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/parla/internal/fsm"
	"github.com/rbright/parla/internal/pipeline"
)

var (
	// ErrSessionAlreadyActive is returned by Start while another session is live.
	ErrSessionAlreadyActive = errors.New("a dictation session is already active")
	// ErrStartTimeout reports an audio source that produced no frame in time.
	ErrStartTimeout = errors.New("audio source did not become ready")
	// ErrEndedBeforeReady reports a session that ended without accepting audio.
	ErrEndedBeforeReady = errors.New("session ended before audio capture began")
)

// EndReason records how a session finished.
type EndReason string

const (
	EndStopped     EndReason = "stopped"
	EndCancelled   EndReason = "cancelled"
	EndEndOfStream EndReason = "end_of_stream"
	EndFailed      EndReason = "failed"
)

// Request carries per-session settings.
type Request struct {
	Pipeline pipeline.Config
	// StartTimeout bounds the wait for the first audio frame. Zero waits forever.
	StartTimeout time.Duration
}

// Assembly is what a Builder produces: the adapters for one session and
// the names they were selected under.
type Assembly struct {
	Components pipeline.Components
	Adapters   map[string]string
	Observer   pipeline.Observer
}

// Builder selects and constructs session adapters. Implementations release
// anything they acquired before returning an error.
type Builder interface {
	Build(ctx context.Context) (Assembly, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context) (Assembly, error)

func (f BuilderFunc) Build(ctx context.Context) (Assembly, error) { return f(ctx) }

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

// Listener observes session boundaries, e.g. for history and event publishing.
type Listener interface {
	SessionStarted(ctx context.Context, info Info)
	SessionFinished(ctx context.Context, summary Summary)
}

// noopIndicator preserves session flow when no indicator is wired.
type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}

// Info describes the live session.
type Info struct {
	ID        string            `json:"id"`
	State     fsm.State         `json:"state"`
	StartedAt time.Time         `json:"started_at"`
	Adapters  map[string]string `json:"adapters,omitempty"`
}

// Summary is the final record of one session.
type Summary struct {
	ID         string            `json:"id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Duration   time.Duration     `json:"duration"`
	Adapters   map[string]string `json:"adapters,omitempty"`
	Reason     EndReason         `json:"reason"`
	Unclean    bool              `json:"unclean,omitempty"`
	Stats      pipeline.Snapshot `json:"stats"`
	Err        error             `json:"-"`
}

// ErrorText returns the failure message, or "" for a clean session.
func (s Summary) ErrorText() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Handle is the caller's view of a started session.
type Handle struct {
	ID        string
	StartedAt time.Time
	Adapters  map[string]string

	pipe    *pipeline.Pipeline
	errs    chan error
	runDone chan struct{}
	done    chan struct{}
	runErr  error

	// settled is closed once Start has decided whether the session became active.
	settled chan struct{}

	mu          sync.Mutex
	endRequest  EndReason
	startFailed bool
	activated   bool
	summary     Summary
}

// Err delivers the fatal error that ended the session, if any. It is
// closed once the session is over.
func (h *Handle) Err() <-chan error { return h.errs }

// Done is closed once the session has returned to idle.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Summary returns the final record. It is complete once Done is closed.
func (h *Handle) Summary() Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

func (h *Handle) requestEnd(reason EndReason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.endRequest == "" || reason == EndCancelled {
		h.endRequest = reason
	}
}

// Manager enforces one session at a time and drives its lifecycle.
type Manager struct {
	logger    *slog.Logger
	builder   Builder
	indicator Indicator
	listeners []Listener

	mu      sync.Mutex
	state   fsm.State
	current *Handle
}

// NewManager constructs a session manager with safe default fallbacks.
func NewManager(logger *slog.Logger, builder Builder, indicator Indicator, listeners ...Listener) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if indicator == nil {
		indicator = noopIndicator{}
	}
	return &Manager{
		logger:    logger,
		builder:   builder,
		indicator: indicator,
		listeners: listeners,
		state:     fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (m *Manager) State() fsm.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Info describes the live session; ok is false when idle.
func (m *Manager) Info() (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Info{State: m.state}, false
	}
	return Info{
		ID:        m.current.ID,
		State:     m.state,
		StartedAt: m.current.StartedAt,
		Adapters:  m.current.Adapters,
	}, true
}

// Stats returns the live statistics, or a zero snapshot when idle.
func (m *Manager) Stats() pipeline.Snapshot {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current == nil || current.pipe == nil {
		return pipeline.Snapshot{}
	}
	return current.pipe.Stats()
}

// transition applies one FSM event; m.mu must be held.
func (m *Manager) transition(event fsm.Event) error {
	next, err := fsm.Transition(m.state, event)
	if err != nil {
		return err
	}
	m.logger.Debug("session state", "from", string(m.state), "to", string(next), "event", string(event))
	m.state = next
	return nil
}

// Start builds adapters and a pipeline and returns once the pipeline has
// accepted its first frame. Adapter selection errors are returned as-is and
// leave the manager idle.
func (m *Manager) Start(ctx context.Context, req Request) (*Handle, error) {
	m.mu.Lock()
	if m.state != fsm.StateIdle {
		state := m.state
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s)", ErrSessionAlreadyActive, state)
	}
	if err := m.transition(fsm.EventStart); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	h := &Handle{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		errs:      make(chan error, 1),
		runDone:   make(chan struct{}),
		done:      make(chan struct{}),
		settled:   make(chan struct{}),
	}
	logger := m.logger.With("session", h.ID)

	if m.builder == nil {
		m.abortStart()
		return nil, errors.New("session builder is not configured")
	}
	assembly, err := m.builder.Build(ctx)
	if err != nil {
		m.abortStart()
		logger.Error("session adapters unavailable", "error", err.Error())
		return nil, err
	}
	h.Adapters = assembly.Adapters

	pipe, err := pipeline.New(req.Pipeline, assembly.Components, logger, assembly.Observer)
	if err != nil {
		closeComponents(assembly.Components)
		m.abortStart()
		return nil, err
	}
	h.pipe = pipe

	m.mu.Lock()
	m.current = h
	m.mu.Unlock()

	logger.Info("session starting", "adapters", assembly.Adapters)
	go m.run(h)

	var timeout <-chan time.Time
	if req.StartTimeout > 0 {
		timer := time.NewTimer(req.StartTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-pipe.Ready():
	case <-h.runDone:
	case <-timeout:
		return nil, m.failStart(h, fmt.Errorf("%w after %s", ErrStartTimeout, req.StartTimeout))
	case <-ctx.Done():
		return nil, m.failStart(h, ctx.Err())
	}

	if !isClosed(pipe.Ready()) {
		close(h.settled)
		<-h.done
		if err := h.Summary().Err; err != nil {
			return nil, err
		}
		return nil, ErrEndedBeforeReady
	}

	m.mu.Lock()
	if m.current == h && m.state == fsm.StateStarting {
		_ = m.transition(fsm.EventReady)
	}
	info := Info{ID: h.ID, State: m.state, StartedAt: h.StartedAt, Adapters: h.Adapters}
	m.mu.Unlock()

	h.mu.Lock()
	h.activated = true
	h.mu.Unlock()

	m.indicator.ShowListening(ctx)
	for _, listener := range m.listeners {
		listener.SessionStarted(ctx, info)
	}
	logger.Info("session active")
	close(h.settled)
	return h, nil
}

// Stop ends the live session gracefully and returns its summary. It is a
// no-op when idle; concurrent callers share one teardown.
func (m *Manager) Stop(ctx context.Context) (Summary, error) {
	return m.end(ctx, EndStopped)
}

// Cancel ends the live session without waiting for pending recognition.
func (m *Manager) Cancel(ctx context.Context) (Summary, error) {
	return m.end(ctx, EndCancelled)
}

func (m *Manager) end(ctx context.Context, reason EndReason) (Summary, error) {
	m.mu.Lock()
	h := m.current
	if h == nil {
		m.mu.Unlock()
		return Summary{}, nil
	}
	if m.state == fsm.StateStarting || m.state == fsm.StateActive {
		if err := m.transition(fsm.EventStop); err != nil {
			m.mu.Unlock()
			return Summary{}, err
		}
	}
	m.mu.Unlock()

	h.requestEnd(reason)
	if reason == EndCancelled {
		h.pipe.Cancel()
	} else {
		h.pipe.Stop()
	}

	select {
	case <-h.done:
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
	summary := h.Summary()
	return summary, summary.Err
}

// abortStart returns a starting manager to idle through the failure path.
func (m *Manager) abortStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.transition(fsm.EventFail)
	_ = m.transition(fsm.EventReset)
}

// failStart cancels a session that never became active and waits for it.
func (m *Manager) failStart(h *Handle, cause error) error {
	h.mu.Lock()
	h.startFailed = true
	h.mu.Unlock()
	close(h.settled)
	h.pipe.Cancel()
	<-h.done
	return cause
}

// run drives the pipeline and finalizes the session when it returns.
func (m *Manager) run(h *Handle) {
	h.runErr = h.pipe.Run(context.Background())
	close(h.runDone)
	m.finish(h)
}

func (m *Manager) finish(h *Handle) {
	<-h.settled

	err := h.runErr
	h.mu.Lock()
	reason := h.endRequest
	startFailed := h.startFailed
	activated := h.activated
	h.mu.Unlock()

	switch {
	case err != nil:
		reason = EndFailed
	case reason == "":
		reason = EndEndOfStream
	}

	m.mu.Lock()
	switch m.state {
	case fsm.StateStarting, fsm.StateActive:
		if err != nil || startFailed {
			_ = m.transition(fsm.EventFail)
			_ = m.transition(fsm.EventReset)
		} else {
			_ = m.transition(fsm.EventStop)
			_ = m.transition(fsm.EventStopped)
		}
	case fsm.StateStopping:
		_ = m.transition(fsm.EventStopped)
	}
	if m.current == h {
		m.current = nil
	}
	m.mu.Unlock()

	finishedAt := time.Now()
	summary := Summary{
		ID:         h.ID,
		StartedAt:  h.StartedAt,
		FinishedAt: finishedAt,
		Duration:   finishedAt.Sub(h.StartedAt),
		Adapters:   h.Adapters,
		Reason:     reason,
		Unclean:    h.pipe.Unclean(),
		Stats:      h.pipe.Stats(),
		Err:        err,
	}
	h.mu.Lock()
	h.summary = summary
	h.mu.Unlock()

	logger := m.logger.With("session", h.ID)
	logger.Info("session finished",
		"reason", string(summary.Reason),
		"duration_ms", summary.Duration.Milliseconds(),
		"utterances", summary.Stats.UtterancesSealed,
		"chars", summary.Stats.CharsEmitted,
		"frames_dropped", summary.Stats.FramesDropped,
		"gate_filter_ratio", summary.Stats.GateFilterRatio,
		"avg_recognition_ms", summary.Stats.AverageRecognitionLatency.Milliseconds(),
		"unclean", summary.Unclean,
	)

	if activated {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		switch {
		case err != nil:
			logger.Error("session failed", "error", err.Error())
			m.indicator.ShowError(ctx, failureMessage(err))
			h.errs <- err
		case reason == EndCancelled:
			m.indicator.CueCancel(ctx)
			m.indicator.Hide(ctx)
		default:
			m.indicator.CueStop(ctx)
			m.indicator.Hide(ctx)
		}
		for _, listener := range m.listeners {
			listener.SessionFinished(ctx, summary)
		}
	}

	close(h.errs)
	close(h.done)
}

func failureMessage(err error) string {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case "capture":
			return "Microphone capture failed"
		case "recognize":
			return "Speech recognition failed"
		}
	}
	return "Dictation stopped unexpectedly"
}

func closeComponents(parts pipeline.Components) {
	for _, component := range []any{parts.Source, parts.Recognizer, parts.Sink} {
		if closer, ok := component.(io.Closer); ok {
			_ = closer.Close()
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

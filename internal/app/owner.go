package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/parla/internal/backends"
	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/events"
	"github.com/rbright/parla/internal/history"
	"github.com/rbright/parla/internal/indicator"
	"github.com/rbright/parla/internal/ipc"
	"github.com/rbright/parla/internal/observe"
	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/session"
	"github.com/rbright/parla/internal/version"
)

// stopGrace is added to the pipeline shutdown timeout when a signal ends
// the session.
const stopGrace = 2 * time.Second

// sidecars are the optional session observers owned by this process.
type sidecars struct {
	observer  pipeline.Observer
	listeners []session.Listener
	metrics   *observe.Provider
	closers   []func()
}

func (s *sidecars) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openSidecars builds metrics, history, and events. Each is optional: a
// failure is reported as a warning and the session runs without it.
func (r Runner) openSidecars(ctx context.Context, cfg config.Config, logger *slog.Logger) *sidecars {
	s := &sidecars{}

	if cfg.Metrics.Enable {
		provider, err := observe.NewProvider(version.Version)
		if err != nil {
			r.warn(logger, "metrics disabled", err)
		} else {
			s.metrics = provider
			s.observer = provider.Metrics
			s.listeners = append(s.listeners, provider.Metrics)
			s.closers = append(s.closers, func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = provider.Shutdown(shutdownCtx)
			})
		}
	}

	if cfg.History.Enable {
		store, err := openHistory(ctx, cfg.History, logger)
		if err != nil {
			r.warn(logger, "history disabled", err)
		} else {
			s.listeners = append(s.listeners, store)
			s.closers = append(s.closers, func() { _ = store.Close() })
		}
	}

	if cfg.Events.Enable {
		publisher, err := events.Connect(ctx, cfg.Events, logger)
		if err != nil {
			r.warn(logger, "session events disabled", err)
		} else {
			s.listeners = append(s.listeners, publisher)
			s.closers = append(s.closers, publisher.Close)
		}
	}

	return s
}

func openHistory(ctx context.Context, cfg config.HistoryConfig, logger *slog.Logger) (*history.Store, error) {
	path, err := history.ResolvePath(cfg.Path)
	if err != nil {
		return nil, err
	}
	return history.Open(ctx, path, cfg.Retain, logger)
}

func (r Runner) warn(logger *slog.Logger, what string, err error) {
	fmt.Fprintf(r.Stderr, "warning: %s: %v\n", what, err)
	logger.Warn(what, "error", err.Error())
}

// commandStart owns the runtime socket and runs one session until it ends
// on its own, is stopped over IPC, or ctx is cancelled.
func (r Runner) commandStart(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	owner, err := ipc.Acquire(ctx, ipc.SocketPath(), ipc.AcquireOptions{
		ProbeTimeout: probeTimeout,
		Retries:      acquireRetries,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = owner.Close() }()

	side := r.openSidecars(ctx, cfg, logger)
	defer side.close()

	var ind session.Indicator
	if cfg.Indicator.Enable {
		notifier := indicator.New(cfg.Indicator, logger)
		defer notifier.Wait()
		ind = notifier
	}

	builder := backends.NewBuilder(cfg, logger, r.Stdout, side.observer)
	manager := session.NewManager(logger, builder, ind, side.listeners...)

	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
	defer stopServing()
	g, gctx := errgroup.WithContext(serveCtx)
	g.Go(func() error {
		return ipc.Serve(gctx, owner, manager)
	})
	if side.metrics != nil {
		g.Go(func() error {
			if err := observe.Serve(gctx, cfg.Metrics.Listen, side.metrics.Handler(), logger); err != nil {
				r.warn(logger, "metrics endpoint unavailable", err)
			}
			return nil
		})
	}

	summary, err := r.runSession(ctx, cfg, manager)
	stopServing()
	if serveErr := g.Wait(); serveErr != nil {
		logger.Error("ipc server failed", "error", serveErr.Error())
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("session start failed", "error", err.Error())
		return 1
	}

	logSessionSummary(logger, summary)
	fmt.Fprintln(r.Stderr, describeSummary(summary))
	if summary.Reason == session.EndFailed {
		fmt.Fprintf(r.Stderr, "error: %s\n", summary.ErrorText())
		return 1
	}
	return 0
}

// runSession starts a session and waits for it to end. A cancelled ctx is
// treated as a stop request.
func (r Runner) runSession(ctx context.Context, cfg config.Config, manager *session.Manager) (session.Summary, error) {
	dumpDir := ""
	if cfg.Debug.DumpUtterances {
		stateDir, err := config.StateDir()
		if err != nil {
			return session.Summary{}, err
		}
		dumpDir = backends.DumpDir(stateDir)
	}

	handle, err := manager.Start(ctx, backends.SessionRequest(cfg, dumpDir))
	if err != nil {
		return session.Summary{}, err
	}
	fmt.Fprintf(r.Stderr, "listening (session %s)\n", handle.ID)

	select {
	case <-handle.Done():
	case <-ctx.Done():
		timeout := time.Duration(cfg.Pipeline.ShutdownTimeoutMS)*time.Millisecond + stopGrace
		stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
		_, stopErr := manager.Stop(stopCtx)
		cancel()
		if errors.Is(stopErr, context.DeadlineExceeded) {
			_, _ = manager.Cancel(context.Background())
		}
		<-handle.Done()
	}
	return handle.Summary(), nil
}

func describeSummary(summary session.Summary) string {
	return fmt.Sprintf("session %s %s after %s: %d utterance(s), %d char(s)",
		summary.ID,
		summary.Reason,
		summary.Duration.Round(10*time.Millisecond),
		summary.Stats.UtterancesRecognized,
		summary.Stats.CharsEmitted,
	)
}

func logSessionSummary(logger *slog.Logger, summary session.Summary) {
	if logger == nil {
		return
	}
	fields := []any{
		"session", summary.ID,
		"reason", string(summary.Reason),
		"unclean", summary.Unclean,
		"started_at", summary.StartedAt.Format(time.RFC3339Nano),
		"finished_at", summary.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", summary.Duration.Milliseconds(),
		"adapters", summary.Adapters,
		"frames_produced", summary.Stats.FramesProduced,
		"frames_dropped", summary.Stats.FramesDropped,
		"utterances_recognized", summary.Stats.UtterancesRecognized,
		"chars_emitted", summary.Stats.CharsEmitted,
		"avg_recognition_ms", summary.Stats.AverageRecognitionLatency.Milliseconds(),
	}

	if summary.Err != nil {
		logger.Error("session failed", append(fields, "error", summary.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}

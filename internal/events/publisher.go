// Package events publishes session lifecycle notifications to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/session"
)

// Event kinds, appended to the configured subject.
const (
	KindStarted = "started"
	KindStopped = "stopped"
	KindFailed  = "failed"
)

const connectTimeout = 2 * time.Second

// Event is the JSON payload of one notification.
type Event struct {
	Kind      string             `json:"kind"`
	SessionID string             `json:"session_id"`
	At        time.Time          `json:"at"`
	Adapters  map[string]string  `json:"adapters,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Unclean   bool               `json:"unclean,omitempty"`
	Error     string             `json:"error,omitempty"`
	Duration  time.Duration      `json:"duration,omitempty"`
	Stats     *pipeline.Snapshot `json:"stats,omitempty"`
}

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends session events. It implements session.Listener.
type Publisher struct {
	conn    conn
	nc      *nats.Conn
	subject string
	log     *slog.Logger
	now     func() time.Time
}

var _ session.Listener = (*Publisher)(nil)

// Connect dials the configured NATS server.
func Connect(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("no NATS url configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(url,
		nats.Name("parla"),
		nats.Timeout(connectTimeout),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("connected to NATS", slog.String("url", url))

	p := newPublisher(nc, cfg.Subject, log)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, subject string, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		conn:    c,
		subject: strings.TrimSuffix(strings.TrimSpace(subject), "."),
		log:     log,
		now:     time.Now,
	}
}

// Subject returns the full subject for an event kind.
func (p *Publisher) Subject(kind string) string {
	return p.subject + "." + kind
}

// Publish encodes and sends one event.
func (p *Publisher) Publish(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev.Kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Kind, err)
	}
	return nil
}

// SessionStarted publishes a started event.
func (p *Publisher) SessionStarted(_ context.Context, info session.Info) {
	at := info.StartedAt
	if at.IsZero() {
		at = p.now()
	}
	p.send(Event{
		Kind:      KindStarted,
		SessionID: info.ID,
		At:        at,
		Adapters:  info.Adapters,
	})
}

// SessionFinished publishes stopped, or failed when the session ended on
// an error.
func (p *Publisher) SessionFinished(_ context.Context, summary session.Summary) {
	kind := KindStopped
	if summary.Reason == session.EndFailed {
		kind = KindFailed
	}
	at := summary.FinishedAt
	if at.IsZero() {
		at = p.now()
	}
	stats := summary.Stats
	p.send(Event{
		Kind:      kind,
		SessionID: summary.ID,
		At:        at,
		Adapters:  summary.Adapters,
		Reason:    string(summary.Reason),
		Unclean:   summary.Unclean,
		Error:     summary.ErrorText(),
		Duration:  summary.Duration,
		Stats:     &stats,
	})
}

func (p *Publisher) send(ev Event) {
	if err := p.Publish(ev); err != nil {
		p.log.Warn("session event publish failed", "kind", ev.Kind, "session_id", ev.SessionID, "error", err.Error())
	}
}

// Close flushes pending events and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.Debug("nats drain failed", "error", err.Error())
	}
	p.nc.Close()
}

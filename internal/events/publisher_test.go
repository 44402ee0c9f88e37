package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/rbright/parla/internal/config"
	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/session"
)

type published struct {
	subject string
	data    []byte
}

type recordingConn struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: append([]byte(nil), data...)})
	return nil
}

func decode(t *testing.T, data []byte) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestSessionEventsUseKindSubjects(t *testing.T) {
	c := &recordingConn{}
	p := newPublisher(c, "parla.session.", nil)
	ctx := context.Background()
	started := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	p.SessionStarted(ctx, session.Info{ID: "s1", StartedAt: started, Adapters: map[string]string{"audio": "pulse"}})
	p.SessionFinished(ctx, session.Summary{
		ID:         "s1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Second),
		Duration:   2 * time.Second,
		Reason:     session.EndStopped,
		Stats:      pipeline.Snapshot{CharsEmitted: 11},
	})
	p.SessionFinished(ctx, session.Summary{
		ID:     "s2",
		Reason: session.EndFailed,
		Err:    errors.New("audio: device unplugged"),
	})

	require.Len(t, c.msgs, 3)
	require.Equal(t, "parla.session.started", c.msgs[0].subject)
	require.Equal(t, "parla.session.stopped", c.msgs[1].subject)
	require.Equal(t, "parla.session.failed", c.msgs[2].subject)

	first := decode(t, c.msgs[0].data)
	require.Equal(t, KindStarted, first.Kind)
	require.Equal(t, "pulse", first.Adapters["audio"])
	require.True(t, first.At.Equal(started))
	require.Nil(t, first.Stats)

	second := decode(t, c.msgs[1].data)
	require.Equal(t, "stopped", second.Reason)
	require.Equal(t, 2*time.Second, second.Duration)
	require.NotNil(t, second.Stats)
	require.Equal(t, uint64(11), second.Stats.CharsEmitted)

	third := decode(t, c.msgs[2].data)
	require.Equal(t, "audio: device unplugged", third.Error)
	require.False(t, third.At.IsZero())
}

func TestPublishFailureIsLogged(t *testing.T) {
	var logs bytes.Buffer
	c := &recordingConn{err: errors.New("connection closed")}
	p := newPublisher(c, "parla.session", slog.New(slog.NewTextHandler(&logs, nil)))

	p.SessionStarted(context.Background(), session.Info{ID: "s1"})
	require.Contains(t, logs.String(), "session event publish failed")
	require.Contains(t, logs.String(), "connection closed")
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), config.EventsConfig{Subject: "parla.session"}, nil)
	require.Error(t, err)
}

func TestConnectPublishesToServer(t *testing.T) {
	opts := natstest.DefaultTestOptions
	opts.Port = server.RANDOM_PORT
	srv := natstest.RunServer(&opts)
	t.Cleanup(srv.Shutdown)

	sub, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	msgs := make(chan *nats.Msg, 4)
	_, err = sub.ChanSubscribe("parla.session.*", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	p, err := Connect(context.Background(), config.EventsConfig{URL: srv.ClientURL(), Subject: "parla.session"}, nil)
	require.NoError(t, err)

	p.SessionStarted(context.Background(), session.Info{ID: "live"})
	p.Close()

	select {
	case msg := <-msgs:
		require.Equal(t, "parla.session.started", msg.Subject)
		require.Equal(t, "live", decode(t, msg.Data).SessionID)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

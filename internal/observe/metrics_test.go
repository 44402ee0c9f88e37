package observe

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/session"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumByAttr returns the int64 sum data point whose attribute key equals value.
func sumByAttr(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is %T", name, m.Data)
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
		if key == "" {
			return dp.Value
		}
	}
	return 0
}

func TestPipelineObservations(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FrameDropped(ctx)
	m.FrameDropped(ctx)
	m.UtteranceSealed(ctx, 1500*time.Millisecond, pipeline.SealSilence)
	m.UtteranceSealed(ctx, 30*time.Second, pipeline.SealMaxDuration)
	m.Recognized(ctx, 200*time.Millisecond, nil)
	m.Recognized(ctx, time.Second, errors.New("timeout"))
	m.Emitted(ctx, 12, nil)
	m.Emitted(ctx, 5, errors.New("ydotool failed"))

	rm := collect(t, reader)
	require.Equal(t, int64(2), sumByAttr(t, rm, "parla.frames.dropped", "", ""))
	require.Equal(t, int64(1), sumByAttr(t, rm, "parla.utterances.sealed", "reason", "silence"))
	require.Equal(t, int64(1), sumByAttr(t, rm, "parla.utterances.sealed", "reason", "max_duration"))
	require.Equal(t, int64(1), sumByAttr(t, rm, "parla.recognitions", "status", "ok"))
	require.Equal(t, int64(1), sumByAttr(t, rm, "parla.recognitions", "status", "error"))
	require.Equal(t, int64(1), sumByAttr(t, rm, "parla.emits", "status", "error"))
	require.Equal(t, int64(12), sumByAttr(t, rm, "parla.chars.emitted", "", ""))

	latency := findMetric(rm, "parla.recognition.duration")
	require.NotNil(t, latency)
	hist, ok := latency.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	require.Equal(t, uint64(2), count)
}

func TestSessionListener(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SessionStarted(ctx, session.Info{ID: "a"})
	m.SessionStarted(ctx, session.Info{ID: "b"})
	m.SessionFinished(ctx, session.Summary{ID: "a", Reason: session.EndStopped, Duration: 4 * time.Second})

	rm := collect(t, reader)
	active := findMetric(rm, "parla.active_sessions")
	require.NotNil(t, active)
	sum, ok := active.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.False(t, sum.IsMonotonic)
	require.Equal(t, int64(1), sum.DataPoints[0].Value)
	require.Equal(t, int64(1), sumByAttr(t, rm, "parla.sessions", "reason", "stopped"))
}

func TestProviderServesPrometheusText(t *testing.T) {
	provider, err := NewProvider("test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	provider.Metrics.FrameDropped(context.Background())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveListener(ctx, listener, provider.Handler(), nil) }()

	resp, err := http.Get("http://" + listener.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), "parla_frames_dropped")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("metrics server did not shut down")
	}
}

func TestServeRejectsBadAddress(t *testing.T) {
	err := Serve(context.Background(), "not-an-address", http.NotFoundHandler(), nil)
	require.Error(t, err)
}

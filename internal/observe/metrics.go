// Package observe records pipeline and session measurements as OpenTelemetry
// metrics and exposes them for Prometheus scraping.
//
// [Metrics] implements both the pipeline observer and the session listener
// contracts, so one instance covers a whole process. Tests should build it
// with [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/rbright/parla/internal/pipeline"
	"github.com/rbright/parla/internal/session"
)

// meterName is the instrumentation scope for all parla metrics.
const meterName = "github.com/rbright/parla"

// Metrics holds the metric instruments. The OTel types synchronize themselves.
type Metrics struct {
	FramesDropped metric.Int64Counter

	// UtterancesSealed carries attribute "reason" (silence, max_duration, flush).
	UtterancesSealed  metric.Int64Counter
	UtteranceDuration metric.Float64Histogram

	// Recognitions carries attribute "status" (ok, error).
	Recognitions       metric.Int64Counter
	RecognitionLatency metric.Float64Histogram

	// Emits carries attribute "status"; CharsEmitted counts delivered characters.
	Emits        metric.Int64Counter
	CharsEmitted metric.Int64Counter

	ActiveSessions metric.Int64UpDownCounter
	// Sessions counts finished sessions by attribute "reason".
	Sessions        metric.Int64Counter
	SessionDuration metric.Float64Histogram
}

// latencyBuckets are seconds, tuned for per-utterance recognition.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// durationBuckets are seconds, for utterance and session lengths.
var durationBuckets = []float64{
	0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 300, 1800,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesDropped, err = m.Int64Counter("parla.frames.dropped",
		metric.WithDescription("Audio frames evicted from the capture queue."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesSealed, err = m.Int64Counter("parla.utterances.sealed",
		metric.WithDescription("Utterances closed for recognition by seal reason."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("parla.utterance.duration",
		metric.WithDescription("Audio length of sealed utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Recognitions, err = m.Int64Counter("parla.recognitions",
		metric.WithDescription("Recognizer calls by status."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionLatency, err = m.Float64Histogram("parla.recognition.duration",
		metric.WithDescription("Latency of one recognizer call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Emits, err = m.Int64Counter("parla.emits",
		metric.WithDescription("Text deliveries to the output sink by status."),
	); err != nil {
		return nil, err
	}
	if met.CharsEmitted, err = m.Int64Counter("parla.chars.emitted",
		metric.WithDescription("Characters delivered to the output sink."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parla.active_sessions",
		metric.WithDescription("Number of live dictation sessions."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("parla.sessions",
		metric.WithDescription("Finished sessions by end reason."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("parla.session.duration",
		metric.WithDescription("Wall-clock length of finished sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	_ pipeline.Observer = (*Metrics)(nil)
	_ session.Listener  = (*Metrics)(nil)
)

func (m *Metrics) FrameDropped(ctx context.Context) {
	m.FramesDropped.Add(ctx, 1)
}

func (m *Metrics) UtteranceSealed(ctx context.Context, duration time.Duration, reason pipeline.SealReason) {
	m.UtterancesSealed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	m.UtteranceDuration.Record(ctx, duration.Seconds())
}

func (m *Metrics) Recognized(ctx context.Context, latency time.Duration, err error) {
	attrs := metric.WithAttributes(status(err))
	m.Recognitions.Add(ctx, 1, attrs)
	m.RecognitionLatency.Record(ctx, latency.Seconds(), attrs)
}

func (m *Metrics) Emitted(ctx context.Context, chars int, err error) {
	m.Emits.Add(ctx, 1, metric.WithAttributes(status(err)))
	if err == nil && chars > 0 {
		m.CharsEmitted.Add(ctx, int64(chars))
	}
}

func (m *Metrics) SessionStarted(ctx context.Context, _ session.Info) {
	m.ActiveSessions.Add(ctx, 1)
}

func (m *Metrics) SessionFinished(ctx context.Context, summary session.Summary) {
	m.ActiveSessions.Add(ctx, -1)
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(summary.Reason))))
	m.SessionDuration.Record(ctx, summary.Duration.Seconds())
}

func status(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("status", "error")
	}
	return attribute.String("status", "ok")
}

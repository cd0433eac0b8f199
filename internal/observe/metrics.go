// Package observe provides the metrics instruments for the Earshot
// pipeline, recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be
// scraped from /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all Earshot metrics.
const meterName = "github.com/earshot-ai/earshot"

// Metrics holds all metric instruments for the application. All fields
// are safe for concurrent use.
type Metrics struct {
	// FrameDrops counts frames shed by the frame bus. Use with
	// attribute.String("subscriber", ...).
	FrameDrops metric.Int64Counter

	// WakeEvents counts wake triggers. Use with
	// attribute.String("strategy", ...).
	WakeEvents metric.Int64Counter

	// Sessions counts sessions by terminal state. Use with
	// attribute.String("state", ...).
	Sessions metric.Int64Counter

	// StageDuration tracks per-stage session latency. Use with
	// attribute.String("stage", ...).
	StageDuration metric.Float64Histogram

	// ActiveSessions tracks the number of non-terminal sessions (0 or 1
	// under the single-session gate, but recorded as a gauge regardless).
	ActiveSessions metric.Int64UpDownCounter

	// EventsPublished counts events on the event bus. Use with
	// attribute.String("type", ...).
	EventsPublished metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...) and attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds)
// matched to conversational-stage latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the
// given [metric.MeterProvider]. Returns an error if any instrument
// creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FrameDrops, err = m.Int64Counter("earshot.frames.dropped",
		metric.WithDescription("Frames shed by the frame bus, by subscriber."),
	); err != nil {
		return nil, err
	}
	if met.WakeEvents, err = m.Int64Counter("earshot.wake.events",
		metric.WithDescription("Wake triggers by strategy."),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("earshot.sessions",
		metric.WithDescription("Sessions by terminal state."),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("earshot.stage.duration",
		metric.WithDescription("Latency of each session stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("earshot.active_sessions",
		metric.WithDescription("Number of non-terminal sessions."),
	); err != nil {
		return nil, err
	}
	if met.EventsPublished, err = m.Int64Counter("earshot.events.published",
		metric.WithDescription("Events published on the event bus, by type."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating
// it on first call using [otel.GetMeterProvider]. Subsequent calls
// return the same pointer. Panics if instrument creation fails (should
// not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameDrop records a shed frame for the named subscriber.
func (m *Metrics) RecordFrameDrop(ctx context.Context, subscriber string) {
	m.FrameDrops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("subscriber", subscriber)),
	)
}

// RecordWake records a wake trigger for the given strategy.
func (m *Metrics) RecordWake(ctx context.Context, strategy string) {
	m.WakeEvents.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)),
	)
}

// RecordSession records a session reaching the given terminal state.
func (m *Metrics) RecordSession(ctx context.Context, terminalState string) {
	m.Sessions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("state", terminalState)),
	)
}

// RecordStage records one stage's latency in seconds.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	m.StageDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordActiveSessions moves the active-session gauge by delta (+1 on
// session open, -1 on teardown).
func (m *Metrics) RecordActiveSessions(ctx context.Context, delta int64) {
	m.ActiveSessions.Add(ctx, delta)
}

// RecordHTTPRequest records one served request's latency.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, seconds float64) {
	m.HTTPRequestDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
		),
	)
}

// RecordEvent records one published bus event.
func (m *Metrics) RecordEvent(ctx context.Context, eventType string) {
	m.EventsPublished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)),
	)
}

// Package observe provides observability primitives for speechstate:
// OpenTelemetry metrics, tracing helpers, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped from the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all speechstate
// metrics.
const meterName = "github.com/voxkit/speechstate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Counters ---

	// FramesProcessed counts voice-activity frames fed through a session
	// machine. Use with attribute: attribute.Bool("voiced", ...)
	FramesProcessed metric.Int64Counter

	// Transitions counts session state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	Transitions metric.Int64Counter

	// FalseTriggers counts onsets that collapsed back to silence before
	// reaching the minimum speech duration.
	FalseTriggers metric.Int64Counter

	// --- Histograms ---

	// UtteranceDuration tracks the length of completed utterances, from
	// onset to speech end.
	UtteranceDuration metric.Float64Histogram

	// PauseDuration tracks the length of mid-utterance pauses that resumed
	// into continuous speech.
	PauseDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveStreams tracks the number of live classification streams.
	ActiveStreams metric.Int64UpDownCounter
}

// speechBuckets defines histogram bucket boundaries (in seconds) sized for
// human utterance and pause lengths.
var speechBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("speechstate.frames.processed",
		metric.WithDescription("Total voice-activity frames processed, by voiced flag."),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Counter("speechstate.session.transitions",
		metric.WithDescription("Total session state transitions by from and to state."),
	); err != nil {
		return nil, err
	}
	if met.FalseTriggers, err = m.Int64Counter("speechstate.session.false_triggers",
		metric.WithDescription("Total speech onsets discarded as false triggers."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.UtteranceDuration, err = m.Float64Histogram("speechstate.utterance.duration",
		metric.WithDescription("Duration of completed utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(speechBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PauseDuration, err = m.Float64Histogram("speechstate.pause.duration",
		metric.WithDescription("Duration of mid-utterance pauses that resumed."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(speechBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("speechstate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("speechstate.streams.active",
		metric.WithDescription("Number of live classification streams."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// RecordFrame records one processed frame with its voiced flag.
func (m *Metrics) RecordFrame(ctx context.Context, voiced bool) {
	m.FramesProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("voiced", voiced)),
	)
}

// RecordTransition records a session state change with the standard from/to
// attribute set. States are passed as their stable labels so that this
// package stays independent of the session types.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.Transitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

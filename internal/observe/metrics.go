// Package observe provides application-wide observability primitives for
// Voxterview: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxterview metrics.
const meterName = "github.com/voxterview/voxterview"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use, the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// SynthesisDuration tracks question text-to-speech fetch latency.
	SynthesisDuration metric.Float64Histogram

	// TranscriptionDuration tracks answer clip transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// RecordingDuration tracks how long each answer recording ran, in seconds.
	RecordingDuration metric.Float64Histogram

	// --- Counters ---

	// RecordingsStarted counts answer recordings that began capturing.
	RecordingsStarted metric.Int64Counter

	// AutoStops counts recordings ended by the level meter. Use with attribute:
	//   attribute.String("reason", ...)
	AutoStops metric.Int64Counter

	// ClipRejections counts clips that failed minimum size/duration validation.
	ClipRejections metric.Int64Counter

	// QuestionsCompleted counts questions that reached a terminal outcome. Use
	// with attribute:
	//   attribute.String("outcome", "submitted"|"skipped")
	QuestionsCompleted metric.Int64Counter

	// BackendRequests counts interview-service API calls. Use with attributes:
	//   attribute.String("call", ...), attribute.String("status", ...)
	BackendRequests metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks the number of in-flight recording sessions.
	// Expected to stay at 0 or 1.
	ActiveRecordings metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time on the feed
	// server. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// synthesis and transcription round-trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SynthesisDuration, err = m.Float64Histogram("voxterview.synthesis.duration",
		metric.WithDescription("Latency of question speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("voxterview.transcription.duration",
		metric.WithDescription("Latency of answer clip transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecordingDuration, err = m.Float64Histogram("voxterview.recording.duration",
		metric.WithDescription("Duration of each answer recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.RecordingsStarted, err = m.Int64Counter("voxterview.recordings.started",
		metric.WithDescription("Total answer recordings started."),
	); err != nil {
		return nil, err
	}
	if met.AutoStops, err = m.Int64Counter("voxterview.recordings.auto_stops",
		metric.WithDescription("Total recordings ended by voice activity detection, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ClipRejections, err = m.Int64Counter("voxterview.clips.rejected",
		metric.WithDescription("Total clips rejected by minimum size/duration validation."),
	); err != nil {
		return nil, err
	}
	if met.QuestionsCompleted, err = m.Int64Counter("voxterview.questions.completed",
		metric.WithDescription("Total questions completed, by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BackendRequests, err = m.Int64Counter("voxterview.backend.requests",
		metric.WithDescription("Total interview-service API calls by call name and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("voxterview.active_recordings",
		metric.WithDescription("Number of in-flight recording sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxterview.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAutoStop records a level-meter triggered stop with its reason.
func (m *Metrics) RecordAutoStop(ctx context.Context, reason string) {
	m.AutoStops.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)),
	)
}

// RecordQuestionCompleted records a question reaching a terminal outcome.
func (m *Metrics) RecordQuestionCompleted(ctx context.Context, outcome string) {
	m.QuestionsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBackendRequest records an interview-service API call outcome.
func (m *Metrics) RecordBackendRequest(ctx context.Context, call, status string) {
	m.BackendRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("call", call),
			attribute.String("status", status),
		),
	)
}

// RecordTranscription records one transcription round-trip with its latency
// and outcome.
func (m *Metrics) RecordTranscription(ctx context.Context, d time.Duration, status string) {
	m.TranscriptionDuration.Record(ctx, d.Seconds())
	m.RecordBackendRequest(ctx, "transcribe", status)
}

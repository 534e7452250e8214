// Package observe provides application-wide observability primitives for
// MedScribe: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all MedScribe metrics.
const meterName = "github.com/solinvox/medscribe"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChunkDuration tracks per-chunk diarization latency, request to merge.
	ChunkDuration metric.Float64Histogram

	// FinalizationDuration tracks time from final-chunk submission to the
	// terminal status update.
	FinalizationDuration metric.Float64Histogram

	// --- Counters ---

	// ChunksProcessed counts chunk outcomes. Use with attribute:
	//   attribute.String("status", "completed"|"failed")
	ChunksProcessed metric.Int64Counter

	// ContinuityDecisions counts per-speaker continuity outcomes. Use with
	// attribute:
	//   attribute.String("result", "matched"|"new")
	ContinuityDecisions metric.Int64Counter

	// FinalizationOutcomes counts finalization results. Use with attribute:
	//   attribute.String("status", "completed"|"failed")
	FinalizationOutcomes metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ChunksInFlight tracks chunks currently being diarized across all
	// sessions. Per session this is at most 1.
	ChunksInFlight metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// chunkLatencyBuckets defines histogram bucket boundaries (in seconds) sized
// for network round trips carrying up to a minute of audio.
var chunkLatencyBuckets = []float64{
	0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ChunkDuration, err = m.Float64Histogram("medscribe.chunk.duration",
		metric.WithDescription("Latency of one chunk's diarization round trip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkLatencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FinalizationDuration, err = m.Float64Histogram("medscribe.finalization.duration",
		metric.WithDescription("Time from final-chunk submission to terminal status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkLatencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ChunksProcessed, err = m.Int64Counter("medscribe.chunks.processed",
		metric.WithDescription("Total chunks processed by status."),
	); err != nil {
		return nil, err
	}
	if met.ContinuityDecisions, err = m.Int64Counter("medscribe.continuity.decisions",
		metric.WithDescription("Per-speaker continuity decisions by result."),
	); err != nil {
		return nil, err
	}
	if met.FinalizationOutcomes, err = m.Int64Counter("medscribe.finalization.outcomes",
		metric.WithDescription("Finalization results by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("medscribe.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}
	if met.ChunksInFlight, err = m.Int64UpDownCounter("medscribe.chunks_in_flight",
		metric.WithDescription("Chunks currently being diarized."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("medscribe.http.request.duration",
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

// RecordChunk records one chunk outcome counter increment.
func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.ChunksProcessed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordContinuity records one per-speaker continuity decision.
func (m *Metrics) RecordContinuity(ctx context.Context, result string) {
	m.ContinuityDecisions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordFinalization records one finalization outcome counter increment.
func (m *Metrics) RecordFinalization(ctx context.Context, status string) {
	m.FinalizationOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

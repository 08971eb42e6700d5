// Package observe provides application-wide observability primitives: OTel
// metrics and structured-logging helpers shared across the engine.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge can be wired from [NewMetrics]'s MeterProvider so that
// metrics can still be scraped via the standard /metrics endpoint. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/zenzeng/endgameos"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// EmbeddingDuration tracks EmbedBatch call latency.
	EmbeddingDuration metric.Float64Histogram

	// ExtractionDuration tracks structured-extraction LLM call latency.
	ExtractionDuration metric.Float64Histogram

	// ConsolidationDuration tracks map-reduce consolidation latency during
	// file ingestion.
	ConsolidationDuration metric.Float64Histogram

	// NightlyCycleDuration tracks the nightly reflect-strategize cycle.
	NightlyCycleDuration metric.Float64Histogram

	// RetrievalDuration tracks context-assembly latency.
	RetrievalDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ChunksProcessed counts ingestion chunks that completed extraction,
	// successfully or not. Use with attribute.String("status", "ok"|"skipped"|"failed").
	ChunksProcessed metric.Int64Counter

	// StagingCommits counts CommitStaging calls.
	StagingCommits metric.Int64Counter

	// ExperiencesRecorded counts Experience rows written by the evolution
	// service. Use with attribute.String("source", "micro"|"nightly").
	ExperiencesRecorded metric.Int64Counter

	// --- Gauges ---

	// ActiveIngestionJobs tracks the number of in-flight ingestion jobs.
	ActiveIngestionJobs metric.Int64UpDownCounter

	// StagedNodes tracks the current size of the staging mirror (best-effort,
	// updated on AddToStaging/CommitStaging/ClearStaging).
	StagedNodes metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// both fast in-process calls and slower remote LLM round-trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EmbeddingDuration, err = m.Float64Histogram("endgame.embedding.duration",
		metric.WithDescription("Latency of EmbedBatch calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("endgame.extraction.duration",
		metric.WithDescription("Latency of structured-extraction LLM calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConsolidationDuration, err = m.Float64Histogram("endgame.consolidation.duration",
		metric.WithDescription("Latency of map-reduce consolidation during ingestion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NightlyCycleDuration, err = m.Float64Histogram("endgame.evolution.nightly_cycle.duration",
		metric.WithDescription("Latency of the nightly reflect-strategize cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("endgame.retrieval.duration",
		metric.WithDescription("Latency of context assembly."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("endgame.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("endgame.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.ChunksProcessed, err = m.Int64Counter("endgame.ingestion.chunks_processed",
		metric.WithDescription("Total ingestion chunks processed by status."),
	); err != nil {
		return nil, err
	}
	if met.StagingCommits, err = m.Int64Counter("endgame.graph.staging_commits",
		metric.WithDescription("Total CommitStaging calls."),
	); err != nil {
		return nil, err
	}
	if met.ExperiencesRecorded, err = m.Int64Counter("endgame.evolution.experiences_recorded",
		metric.WithDescription("Total Experience rows written, by source."),
	); err != nil {
		return nil, err
	}

	if met.ActiveIngestionJobs, err = m.Int64UpDownCounter("endgame.ingestion.active_jobs",
		metric.WithDescription("Number of in-flight ingestion jobs."),
	); err != nil {
		return nil, err
	}
	if met.StagedNodes, err = m.Int64UpDownCounter("endgame.graph.staged_nodes",
		metric.WithDescription("Current size of the staging mirror (best-effort)."),
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordChunkProcessed records one ingestion chunk outcome.
func (m *Metrics) RecordChunkProcessed(ctx context.Context, status string) {
	m.ChunksProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordExperienceRecorded records one Experience persisted by the evolution
// service.
func (m *Metrics) RecordExperienceRecorded(ctx context.Context, source string) {
	m.ExperiencesRecorded.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

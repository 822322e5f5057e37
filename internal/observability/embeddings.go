package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Enqueue sources for the source attribute.
const (
	EnqueueSourceRequest  = "request"
	EnqueueSourceBackfill = "backfill"
	// EnqueueSourceTrigger marks jobs inserted by a synchronous embed request.
	EnqueueSourceTrigger = "trigger"
)

// EmbeddingMetrics records the embedding job lifecycle.
type EmbeddingMetrics interface {
	// RecordEnqueued counts newly inserted jobs. Idempotent re-enqueues are not reported.
	RecordEnqueued(ctx context.Context, source string, n int64)
	// RecordJobFinished counts a terminal job and observes its processing time.
	RecordJobFinished(ctx context.Context, status string, took time.Duration)
	// RecordAbandoned counts processing jobs failed by stale-job recovery.
	RecordAbandoned(ctx context.Context, n int64)
	RecordWorkerError(ctx context.Context, reason string)
}

type embeddingMetrics struct {
	enqueued     metric.Int64Counter
	finished     metric.Int64Counter
	workerErrors metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewEmbeddingMetrics returns nil, nil when meter is nil.
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		return nil, nil //nolint:nilnil // metrics disabled
	}

	m := &embeddingMetrics{}

	var err error

	if m.enqueued, err = meter.Int64Counter(
		MetricNameEmbeddingJobsEnqueued,
		metric.WithDescription("Embedding jobs inserted, by source"),
	); err != nil {
		return nil, fmt.Errorf("embedding enqueued counter: %w", err)
	}

	if m.finished, err = meter.Int64Counter(
		MetricNameEmbeddingOutcomes,
		metric.WithDescription("Embedding jobs reaching a terminal status"),
	); err != nil {
		return nil, fmt.Errorf("embedding outcomes counter: %w", err)
	}

	if m.workerErrors, err = meter.Int64Counter(
		MetricNameEmbeddingWorkerErrors,
		metric.WithDescription("Embedding worker errors, by step"),
	); err != nil {
		return nil, fmt.Errorf("embedding worker errors counter: %w", err)
	}

	if m.duration, err = meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Time from claim to terminal status"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("embedding duration histogram: %w", err)
	}

	return m, nil
}

func (m *embeddingMetrics) RecordEnqueued(ctx context.Context, source string, n int64) {
	if n <= 0 {
		return
	}

	switch source {
	case EnqueueSourceRequest, EnqueueSourceBackfill, EnqueueSourceTrigger:
	default:
		source = "other"
	}

	m.enqueued.Add(ctx, n, metric.WithAttributes(attribute.String(AttrSource, source)))
}

func (m *embeddingMetrics) RecordJobFinished(ctx context.Context, status string, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String(AttrStatus, outcomeStatus(status)))

	m.finished.Add(ctx, 1, attrs)
	m.duration.Record(ctx, took.Seconds(), attrs)
}

func (m *embeddingMetrics) RecordAbandoned(ctx context.Context, n int64) {
	if n <= 0 {
		return
	}

	m.finished.Add(ctx, n, metric.WithAttributes(
		attribute.String(AttrStatus, "failed"),
		attribute.String(AttrReason, "abandoned"),
	))
}

func (m *embeddingMetrics) RecordWorkerError(ctx context.Context, reason string) {
	m.workerErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, NormalizeReason(reason, AllowedEmbeddingWorkerReasons)),
	))
}

func outcomeStatus(status string) string {
	if AllowedEmbeddingOutcomeStatus(status) {
		return status
	}

	return "other"
}

package observability

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
)

// QueueMetrics exposes queue depth gauges. Depths are stored by a poller and observed on collection.
type QueueMetrics interface {
	SetEmbeddingQueueDepth(depth int64)
	SetRiverQueueDepth(depth int64)
}

type queueMetrics struct {
	embeddingDepth atomic.Int64
	riverDepth     atomic.Int64
}

// NewQueueMetrics registers the queue depth gauges. Returns (nil, nil) when meter is nil (metrics disabled).
func NewQueueMetrics(meter metric.Meter) (QueueMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	q := &queueMetrics{}

	_, err := meter.Int64ObservableGauge(
		MetricNameEmbeddingQueue,
		metric.WithDescription("Pending embedding jobs"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(q.embeddingDepth.Load())

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding queue depth gauge: %w", err)
	}

	_, err = meter.Int64ObservableGauge(
		MetricNameRiverQueueDepth,
		metric.WithDescription("River drain jobs waiting to run (available, scheduled, retryable)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(q.riverDepth.Load())

			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create river queue depth gauge: %w", err)
	}

	return q, nil
}

func (q *queueMetrics) SetEmbeddingQueueDepth(depth int64) {
	q.embeddingDepth.Store(depth)
}

func (q *queueMetrics) SetRiverQueueDepth(depth int64) {
	q.riverDepth.Store(depth)
}

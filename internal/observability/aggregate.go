package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric collectors. When metrics are disabled the whole struct is nil;
// components receive the individual interfaces and handle nil themselves.
type Metrics struct {
	Search     SearchMetrics
	Embeddings EmbeddingMetrics
	Cache      CacheMetrics
	Queue      QueueMetrics
	API        APIMetrics
}

// NewMetrics creates every collector from the given meter.
// Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	search, err := NewSearchMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("search metrics: %w", err)
	}

	embeddings, err := NewEmbeddingMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("embedding metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	queue, err := NewQueueMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("queue metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Search:     search,
		Embeddings: embeddings,
		Cache:      cache,
		Queue:      queue,
		API:        api,
	}, nil
}

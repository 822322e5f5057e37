package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics records lookups on the in-process caches (query embeddings, availability).
type CacheMetrics interface {
	RecordLookup(ctx context.Context, cacheName string, hit bool)
}

type cacheMetrics struct {
	lookups metric.Int64Counter
}

// Precomputed attribute sets: the cache names and results are a closed set.
var (
	attrHit  = attribute.String(AttrResult, "hit")
	attrMiss = attribute.String(AttrResult, "miss")
)

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	lookups, err := meter.Int64Counter(
		MetricNameCacheLookups,
		metric.WithDescription("Cache lookups by cache (query_embedding, availability) and result (hit, miss). "+
			"A query_embedding miss costs one embedding provider call."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache lookups counter: %w", err)
	}

	return &cacheMetrics{lookups: lookups}, nil
}

func (c *cacheMetrics) RecordLookup(ctx context.Context, cacheName string, hit bool) {
	result := attrMiss
	if hit {
		result = attrHit
	}

	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCache, NormalizeCacheName(cacheName)), result))
}

package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SearchMetrics records search orchestrator metrics.
type SearchMetrics interface {
	RecordSearch(ctx context.Context, searchType, outcome string, results int, duration time.Duration)
	RecordFallback(ctx context.Context, reason string)
}

type searchMetrics struct {
	requests  metric.Int64Counter
	duration  metric.Float64Histogram
	results   metric.Int64Histogram
	fallbacks metric.Int64Counter
}

// NewSearchMetrics creates SearchMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewSearchMetrics(meter metric.Meter) (SearchMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requests, err := meter.Int64Counter(
		MetricNameSearchRequests,
		metric.WithDescription("Total search requests by effective search type and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search requests counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameSearchDuration,
		metric.WithDescription("End-to-end search duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search duration histogram: %w", err)
	}

	results, err := meter.Int64Histogram(
		MetricNameSearchResults,
		metric.WithDescription("Number of results returned per search page"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search results histogram: %w", err)
	}

	fallbacks, err := meter.Int64Counter(
		MetricNameSearchFallbacks,
		metric.WithDescription("Searches that fell back to lexical ranking, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("create search fallbacks counter: %w", err)
	}

	return &searchMetrics{requests: requests, duration: duration, results: results, fallbacks: fallbacks}, nil
}

func (s *searchMetrics) RecordSearch(ctx context.Context, searchType, outcome string, results int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrSearchType, NormalizeSearchType(searchType)),
		attribute.String(AttrOutcome, NormalizeReason(outcome, AllowedSearchOutcomes)),
	)
	s.requests.Add(ctx, 1, attrs)
	s.duration.Record(ctx, duration.Seconds(), attrs)
	s.results.Record(ctx, int64(results))
}

func (s *searchMetrics) RecordFallback(ctx context.Context, reason string) {
	reason = NormalizeReason(reason, AllowedFallbackReasons)
	s.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

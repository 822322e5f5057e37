package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Auth failure reasons.
const (
	AuthMissingKey = "missing_key"
	AuthInvalidKey = "invalid_key"
)

// APIMetrics records requests the API rejected before they reached a handler.
type APIMetrics interface {
	RecordRequestBodyTooLarge(ctx context.Context)
	RecordAuthFailure(ctx context.Context, reason string)
}

type apiMetrics struct {
	requestBodyTooLarge metric.Int64Counter
	authFailures        metric.Int64Counter
}

// NewAPIMetrics creates APIMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAPIMetrics(meter metric.Meter) (APIMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	tooLarge, err := meter.Int64Counter(
		MetricNameRequestBodyLimit,
		metric.WithDescription("Requests rejected because the body exceeded MAX_REQUEST_BODY_BYTES (413)."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request body too large counter: %w", err)
	}

	authFailures, err := meter.Int64Counter(
		MetricNameAuthFailures,
		metric.WithDescription("Requests to /v1 rejected with 401. Label reason: missing_key, invalid_key."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create auth failures counter: %w", err)
	}

	return &apiMetrics{requestBodyTooLarge: tooLarge, authFailures: authFailures}, nil
}

func (a *apiMetrics) RecordRequestBodyTooLarge(ctx context.Context) {
	a.requestBodyTooLarge.Add(ctx, 1)
}

func (a *apiMetrics) RecordAuthFailure(ctx context.Context, reason string) {
	if reason != AuthMissingKey {
		reason = AuthInvalidKey
	}

	a.authFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

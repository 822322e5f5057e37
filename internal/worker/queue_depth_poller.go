// Package worker provides in-process background loops for the search API.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/newsdesk/search/internal/observability"
)

// DefaultQueueDepthInterval is used when no poll interval is configured.
const DefaultQueueDepthInterval = 15 * time.Second

// DepthFunc returns the current depth of one queue.
type DepthFunc func(ctx context.Context) (int64, error)

// QueueDepthPoller periodically samples the embedding job backlog and the River drain queue
// and publishes them as gauges.
type QueueDepthPoller struct {
	embeddingDepth DepthFunc
	riverDepth     DepthFunc
	metrics        observability.QueueMetrics
	pollInterval   time.Duration
}

// NewQueueDepthPoller creates a poller. Either depth function may be nil to skip that gauge.
func NewQueueDepthPoller(
	embeddingDepth, riverDepth DepthFunc,
	metrics observability.QueueMetrics,
	pollInterval time.Duration,
) *QueueDepthPoller {
	if pollInterval <= 0 {
		pollInterval = DefaultQueueDepthInterval
	}

	return &QueueDepthPoller{
		embeddingDepth: embeddingDepth,
		riverDepth:     riverDepth,
		metrics:        metrics,
		pollInterval:   pollInterval,
	}
}

// Start runs until ctx is cancelled.
func (p *QueueDepthPoller) Start(ctx context.Context) {
	slog.InfoContext(ctx, "queue depth poller started", "poll_interval", p.pollInterval)

	p.runOnce(ctx)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("queue depth poller stopped")

			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *QueueDepthPoller) runOnce(ctx context.Context) {
	if p.metrics == nil {
		return
	}

	if p.embeddingDepth != nil {
		if n, err := p.embeddingDepth(ctx); err != nil {
			slog.WarnContext(ctx, "embedding queue depth poll failed", "error", err)
		} else {
			p.metrics.SetEmbeddingQueueDepth(n)
		}
	}

	if p.riverDepth != nil {
		if n, err := p.riverDepth(ctx); err != nil {
			slog.WarnContext(ctx, "river queue depth poll failed", "error", err)
		} else {
			p.metrics.SetRiverQueueDepth(n)
		}
	}
}

// Package workers provides River job workers (e.g. embedding queue drains).
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/newsdesk/search/internal/observability"
	"github.com/newsdesk/search/internal/service"
)

const (
	// DefaultDrainBatchSize bounds how many embedding jobs one drain processes.
	DefaultDrainBatchSize = 25
	// DefaultStaleAfter is how long a job may stay processing before a drain fails it.
	DefaultStaleAfter = 10 * time.Minute

	drainTimeout = 5 * time.Minute
)

// embeddingDrainer is the minimal interface needed by the worker.
type embeddingDrainer interface {
	FailStale(ctx context.Context, cutoff time.Time) (int64, error)
	Drain(ctx context.Context, maxJobs int) (int, error)
}

// drainRescheduler is told when a drain stopped at its batch size with work likely remaining.
type drainRescheduler interface {
	NotifyEnqueued(ctx context.Context) error
}

// EmbeddingDrainWorker claims and processes pending embedding jobs in batches.
type EmbeddingDrainWorker struct {
	river.WorkerDefaults[service.DrainEmbeddingJobsArgs]

	drainer     embeddingDrainer
	rescheduler drainRescheduler
	batchSize   int
	staleAfter  time.Duration
	metrics     observability.EmbeddingMetrics
	now         func() time.Time
}

// EmbeddingDrainWorkerParams configures EmbeddingDrainWorker. Rescheduler and Metrics may be nil.
type EmbeddingDrainWorkerParams struct {
	Drainer     embeddingDrainer
	Rescheduler drainRescheduler
	BatchSize   int
	StaleAfter  time.Duration
	Metrics     observability.EmbeddingMetrics
}

// NewEmbeddingDrainWorker creates the drain worker.
func NewEmbeddingDrainWorker(p EmbeddingDrainWorkerParams) *EmbeddingDrainWorker {
	batch := p.BatchSize
	if batch <= 0 {
		batch = DefaultDrainBatchSize
	}

	staleAfter := p.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	return &EmbeddingDrainWorker{
		drainer:     p.Drainer,
		rescheduler: p.Rescheduler,
		batchSize:   batch,
		staleAfter:  staleAfter,
		metrics:     p.Metrics,
		now:         time.Now,
	}
}

// Timeout limits how long a single drain can run.
func (w *EmbeddingDrainWorker) Timeout(*river.Job[service.DrainEmbeddingJobsArgs]) time.Duration {
	return drainTimeout
}

// Work fails abandoned jobs, then drains up to one batch. A full batch schedules another drain.
func (w *EmbeddingDrainWorker) Work(ctx context.Context, job *river.Job[service.DrainEmbeddingJobsArgs]) error {
	// Attached to ctx so log lines from the jobs service carry them too.
	ctx = observability.WithLogAttrs(ctx,
		slog.Int64("river_job_id", job.ID),
		slog.String("trigger", job.Args.Trigger),
	)
	logger := slog.Default()

	if _, err := w.drainer.FailStale(ctx, w.now().Add(-w.staleAfter)); err != nil {
		// Not fatal: the drain can still make progress on pending jobs.
		logger.WarnContext(ctx, "embedding: stale job recovery failed", "error", err)
	}

	n, err := w.drainer.Drain(ctx, w.batchSize)
	if err != nil {
		if w.metrics != nil {
			w.metrics.RecordWorkerError(ctx, "drain_failed")
		}

		logger.ErrorContext(ctx, "embedding: drain failed", "processed", n, "error", err)

		return fmt.Errorf("drain embedding jobs: %w", err)
	}

	logger.DebugContext(ctx, "embedding: drain finished", "processed", n)

	if n >= w.batchSize && w.rescheduler != nil {
		if err := w.rescheduler.NotifyEnqueued(ctx); err != nil {
			logger.WarnContext(ctx, "embedding: reschedule drain failed", "error", err)
		}
	}

	return nil
}

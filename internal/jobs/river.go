// Package jobs builds the River client that schedules embedding queue drains.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"

	"github.com/newsdesk/search/internal/service"
)

// DefaultDrainInterval is how often the periodic drain runs when none is configured.
const DefaultDrainInterval = 30 * time.Second

// ClientParams configures NewClient. Drain workers are registered by the caller on Workers.
type ClientParams struct {
	Workers       *river.Workers
	MaxWorkers    int
	DrainInterval time.Duration
	ErrorHandler  river.ErrorHandler
	Logger        *slog.Logger
}

// NewClient creates a River client with the embeddings queue and a periodic drain that also runs on start,
// so jobs left pending while the process was down are picked up.
func NewClient(db *pgxpool.Pool, p ClientParams) (*river.Client[pgx.Tx], error) {
	interval := p.DrainInterval
	if interval <= 0 {
		interval = DefaultDrainInterval
	}

	maxWorkers := max(p.MaxWorkers, 1)

	client, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			service.EmbeddingsQueueName: {MaxWorkers: maxWorkers},
		},
		Workers:      p.Workers,
		PeriodicJobs: []*river.PeriodicJob{PeriodicDrainJob(interval)},
		ErrorHandler: p.ErrorHandler,
		Logger:       p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	return client, nil
}

// PeriodicDrainJob returns the periodic job that drains the embedding queue every interval.
func PeriodicDrainJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			args := service.DrainEmbeddingJobsArgs{Trigger: service.DrainTriggerPeriodic}
			opts := args.InsertOpts()

			return args, &opts
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}

// rowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QueueDepth counts River jobs on queue that are waiting to run.
func QueueDepth(ctx context.Context, db rowQuerier, queue string) (int64, error) {
	var count int64

	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM river_job WHERE queue = $1 AND state IN ($2, $3, $4)`,
		queue,
		rivertype.JobStateAvailable, rivertype.JobStateRetryable, rivertype.JobStateScheduled,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count river jobs: %w", err)
	}

	return count, nil
}

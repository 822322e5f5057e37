package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
)

// DrainScheduler inserts an on-demand River drain job after new embedding jobs are enqueued.
// Inserts within uniqueByPeriodDrain of each other collapse into one job.
type DrainScheduler struct {
	inserter JobInserter
}

var errNoJobInserter = errors.New("drain scheduler has no job inserter")

// NewDrainScheduler creates a DrainScheduler. inserter may be nil and set later with SetInserter,
// since the River client is built after the workers that schedule through it.
func NewDrainScheduler(inserter JobInserter) *DrainScheduler {
	return &DrainScheduler{inserter: inserter}
}

// SetInserter sets the job inserter. Call it before the River client starts.
func (d *DrainScheduler) SetInserter(inserter JobInserter) {
	d.inserter = inserter
}

// NotifyEnqueued schedules a drain.
func (d *DrainScheduler) NotifyEnqueued(ctx context.Context) error {
	if d.inserter == nil {
		return errNoJobInserter
	}

	args := DrainEmbeddingJobsArgs{Trigger: DrainTriggerEnqueue}
	opts := args.InsertOpts()
	opts.UniqueOpts = river.UniqueOpts{ByPeriod: uniqueByPeriodDrain}

	res, err := d.inserter.Insert(ctx, args, &opts)
	if err != nil {
		return fmt.Errorf("insert drain job: %w", err)
	}

	if res != nil && res.UniqueSkippedAsDuplicate {
		slog.DebugContext(ctx, "embedding: drain already scheduled")
	}

	return nil
}

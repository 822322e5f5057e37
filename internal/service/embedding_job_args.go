package service

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	drainEmbeddingJobsKind = "drain_embedding_jobs"
	// EmbeddingsQueueName is the River queue that runs embedding drain jobs.
	EmbeddingsQueueName = "embeddings"

	// uniqueByPeriodDrain collapses bursts of enqueues into one on-demand drain.
	uniqueByPeriodDrain = 5 * time.Second
)

// Drain triggers recorded in job args and logs.
const (
	DrainTriggerEnqueue  = "enqueue"
	DrainTriggerPeriodic = "periodic"
)

// JobInserter inserts River jobs (the River client satisfies it).
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// DrainEmbeddingJobsArgs is the payload of a River job that claims and processes pending embedding jobs
// until the queue is empty or the batch size is reached. The embedding_jobs table remains the source of
// truth for job state; River only decides when a drain runs.
type DrainEmbeddingJobsArgs struct {
	Trigger string `json:"trigger"`
}

// Kind returns the River job kind.
func (DrainEmbeddingJobsArgs) Kind() string { return drainEmbeddingJobsKind }

// InsertOpts places drains on the embeddings queue. Drains are not retried: unprocessed work stays pending.
func (DrainEmbeddingJobsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       EmbeddingsQueueName,
		MaxAttempts: 1,
	}
}

var _ river.JobArgsWithInsertOpts = DrainEmbeddingJobsArgs{}

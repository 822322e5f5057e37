package models

import (
	"time"

	"github.com/google/uuid"
)

// EmbeddingJobStatus is the lifecycle state of an embedding job.
type EmbeddingJobStatus string

// Embedding job states. Transitions are strictly forward:
// pending -> processing -> completed | failed.
const (
	EmbeddingJobPending    EmbeddingJobStatus = "pending"
	EmbeddingJobProcessing EmbeddingJobStatus = "processing"
	EmbeddingJobCompleted  EmbeddingJobStatus = "completed"
	EmbeddingJobFailed     EmbeddingJobStatus = "failed"
)

// IsValid reports whether s is a known job status.
func (s EmbeddingJobStatus) IsValid() bool {
	switch s {
	case EmbeddingJobPending, EmbeddingJobProcessing, EmbeddingJobCompleted, EmbeddingJobFailed:
		return true
	default:
		return false
	}
}

// IsActive reports whether a job in this state still blocks a new job for the same article.
func (s EmbeddingJobStatus) IsActive() bool {
	return s == EmbeddingJobPending || s == EmbeddingJobProcessing
}

// IsTerminal reports whether no further transition is possible.
func (s EmbeddingJobStatus) IsTerminal() bool {
	return s == EmbeddingJobCompleted || s == EmbeddingJobFailed
}

// CanTransitionTo reports whether moving from s to next is a legal forward transition.
func (s EmbeddingJobStatus) CanTransitionTo(next EmbeddingJobStatus) bool {
	switch s {
	case EmbeddingJobPending:
		return next == EmbeddingJobProcessing
	case EmbeddingJobProcessing:
		return next == EmbeddingJobCompleted || next == EmbeddingJobFailed
	default:
		return false
	}
}

// EmbeddingJob is one request to (re)compute the embedding of an article.
type EmbeddingJob struct {
	ID           uuid.UUID          `json:"id"`
	ArticleID    uuid.UUID          `json:"article_id"`
	Status       EmbeddingJobStatus `json:"status"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	ProcessedAt  *time.Time         `json:"processed_at,omitempty"`
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingJobStatus_CanTransitionTo(t *testing.T) {
	all := []EmbeddingJobStatus{
		EmbeddingJobPending, EmbeddingJobProcessing, EmbeddingJobCompleted, EmbeddingJobFailed,
	}

	legal := map[EmbeddingJobStatus][]EmbeddingJobStatus{
		EmbeddingJobPending:    {EmbeddingJobProcessing},
		EmbeddingJobProcessing: {EmbeddingJobCompleted, EmbeddingJobFailed},
	}

	for _, from := range all {
		for _, to := range all {
			want := false

			for _, ok := range legal[from] {
				if ok == to {
					want = true
				}
			}

			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestEmbeddingJobStatus_TerminalNeverReactivates(t *testing.T) {
	for _, s := range []EmbeddingJobStatus{EmbeddingJobCompleted, EmbeddingJobFailed} {
		assert.True(t, s.IsTerminal())
		assert.False(t, s.IsActive())
		assert.False(t, s.CanTransitionTo(EmbeddingJobPending))
		assert.False(t, s.CanTransitionTo(EmbeddingJobProcessing))
	}
}

func TestEmbeddingJobStatus_IsValid(t *testing.T) {
	assert.True(t, EmbeddingJobPending.IsValid())
	assert.True(t, EmbeddingJobFailed.IsValid())
	assert.False(t, EmbeddingJobStatus("retrying").IsValid())
}

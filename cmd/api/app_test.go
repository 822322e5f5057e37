package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/search/internal/config"
	"github.com/newsdesk/search/internal/googleai"
	"github.com/newsdesk/search/internal/openai"
)

func TestNewEmbedders(t *testing.T) {
	t.Run("no provider disables semantic search", func(t *testing.T) {
		emb, err := newEmbedders(context.Background(), &config.Config{})
		require.NoError(t, err)
		assert.Nil(t, emb)
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := newEmbedders(context.Background(), &config.Config{EmbeddingProvider: "cohere"})
		require.ErrorIs(t, err, errUnsupportedEmbeddingProvider)
	})

	t.Run("openai builds separate query and document clients", func(t *testing.T) {
		emb, err := newEmbedders(context.Background(), &config.Config{
			EmbeddingProvider:   embeddingProviderOpenAI,
			EmbeddingDimensions: 1536,
			EmbeddingRateLimit:  5,
			EmbeddingTimeout:    10 * time.Second,
		})
		require.NoError(t, err)
		require.NotNil(t, emb)

		assert.NotSame(t, emb.query, emb.document)
		assert.Equal(t, openai.DefaultModel, emb.model)
	})

	t.Run("google uses task-specific clients", func(t *testing.T) {
		emb, err := newEmbedders(context.Background(), &config.Config{
			EmbeddingProvider:        embeddingProviderGoogle,
			EmbeddingProviderAPIKey:  "test-key",
			EmbeddingDimensions:      768,
			EmbeddingTimeout:         10 * time.Second,
			EmbeddingDocumentRetries: 2,
		})
		require.NoError(t, err)
		require.NotNil(t, emb)

		assert.NotSame(t, emb.query, emb.document)
		assert.Equal(t, googleai.DefaultModel, emb.model)
	})

	t.Run("configured model wins", func(t *testing.T) {
		emb, err := newEmbedders(context.Background(), &config.Config{
			EmbeddingProvider:  embeddingProviderOpenAI,
			EmbeddingModel:     "text-embedding-3-large",
			EmbeddingRateLimit: 5,
			EmbeddingTimeout:   10 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "text-embedding-3-large", emb.model)
	})
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/newsdesk/search/internal/models"
)

// ErrEmbeddingNotFound is returned when an article has no embedding row.
var ErrEmbeddingNotFound = errors.New("embedding not found for article")

// EmbeddingsRepository handles data access for the article_embeddings table.
type EmbeddingsRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingsRepository creates a new embeddings repository.
func NewEmbeddingsRepository(db *pgxpool.Pool) *EmbeddingsRepository {
	return &EmbeddingsRepository{db: db}
}

// Upsert stores the embedding for an article, replacing any previous vector and model.
func (r *EmbeddingsRepository) Upsert(
	ctx context.Context, articleID uuid.UUID, model string, embedding []float32,
) error {
	now := time.Now()

	_, err := r.db.Exec(ctx, `
		INSERT INTO article_embeddings (article_id, embedding, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (article_id)
		DO UPDATE SET embedding = EXCLUDED.embedding, model = EXCLUDED.model, updated_at = EXCLUDED.updated_at`,
		articleID, pgvector.NewVector(embedding), model, now,
	)
	if err != nil {
		return fmt.Errorf("embeddings upsert: %w", err)
	}

	return nil
}

// Get returns the stored embedding for an article regardless of model.
func (r *EmbeddingsRepository) Get(ctx context.Context, articleID uuid.UUID) (*models.Embedding, error) {
	var (
		e   models.Embedding
		vec pgvector.Vector
	)

	err := r.db.QueryRow(ctx, `
		SELECT article_id, embedding, model, created_at, updated_at
		FROM article_embeddings
		WHERE article_id = $1`, articleID,
	).Scan(&e.ArticleID, &vec, &e.Model, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmbeddingNotFound
		}

		return nil, fmt.Errorf("get embedding: %w", err)
	}

	e.Embedding = vec.Slice()

	return &e, nil
}

// HasAny reports whether at least one embedding exists for model.
func (r *EmbeddingsRepository) HasAny(ctx context.Context, model string) (bool, error) {
	var exists bool

	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM article_embeddings WHERE model = $1)`, model,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embeddings exist: %w", err)
	}

	return exists, nil
}

// SemanticCandidates returns the limit published articles nearest to queryEmbedding for model.
// Similarity is 1 - cosine distance, clamped to [0,1]. Candidates carry the article summary but no lexical rank.
func (r *EmbeddingsRepository) SemanticCandidates(
	ctx context.Context, model string, queryEmbedding []float32, limit int,
) ([]models.ArticleCandidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.slug, a.title, a.summary, a.read_time_minutes, a.published_at,
		       greatest(0, least(1, 1 - (e.embedding <=> $1))) AS score
		FROM article_embeddings e
		INNER JOIN articles a ON a.id = e.article_id
		WHERE e.model = $2
		  AND a.published_at IS NOT NULL
		  AND a.published_at <= now()
		ORDER BY e.embedding <=> $1, a.id
		LIMIT $3`, pgvector.NewVector(queryEmbedding), model, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic candidates: %w", err)
	}
	defer rows.Close()

	var candidates []models.ArticleCandidate

	for rows.Next() {
		var (
			c     models.ArticleCandidate
			score float64
		)

		if err := rows.Scan(
			&c.ArticleID, &c.Slug, &c.Title, &c.Summary, &c.ReadTimeMinutes, &c.PublishedAt, &score,
		); err != nil {
			return nil, fmt.Errorf("scan semantic candidate: %w", err)
		}

		c.SemanticRank = &score
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating semantic candidates: %w", err)
	}

	return candidates, nil
}

// SemanticScores returns the similarity of queryEmbedding to each of articleIDs that has an embedding for model.
// Articles without one are absent from the map.
func (r *EmbeddingsRepository) SemanticScores(
	ctx context.Context, model string, queryEmbedding []float32, articleIDs []uuid.UUID,
) (map[uuid.UUID]float64, error) {
	scores := make(map[uuid.UUID]float64, len(articleIDs))
	if len(articleIDs) == 0 {
		return scores, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT article_id, greatest(0, least(1, 1 - (embedding <=> $1)))
		FROM article_embeddings
		WHERE model = $2 AND article_id = ANY($3)`,
		pgvector.NewVector(queryEmbedding), model, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("semantic scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    uuid.UUID
			score float64
		)

		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan semantic score: %w", err)
		}

		scores[id] = score
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating semantic scores: %w", err)
	}

	return scores, nil
}

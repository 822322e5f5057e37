// Package repository provides data access for articles, their embeddings and the embedding job queue.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsdesk/search/internal/apperrors"
	"github.com/newsdesk/search/internal/models"
)

// ArticlesRepository reads the article corpus and its lexical index. It never writes articles.
type ArticlesRepository struct {
	db *pgxpool.Pool
}

// NewArticlesRepository creates a new articles repository.
func NewArticlesRepository(db *pgxpool.Pool) *ArticlesRepository {
	return &ArticlesRepository{db: db}
}

// GetByID retrieves a single article by ID, published or not.
func (r *ArticlesRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Article, error) {
	var a models.Article

	err := r.db.QueryRow(ctx, `
		SELECT id, slug, title, summary, body, read_time_minutes, published_at
		FROM articles
		WHERE id = $1`, id,
	).Scan(&a.ID, &a.Slug, &a.Title, &a.Summary, &a.Body, &a.ReadTimeMinutes, &a.PublishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("article")
		}

		return nil, fmt.Errorf("get article: %w", err)
	}

	return &a, nil
}

// LexicalCandidates runs search_articles and returns up to limit published matches for query, best first.
// Each candidate carries its lexical rank in [0,1) and a highlighted snippet.
func (r *ArticlesRepository) LexicalCandidates(
	ctx context.Context, query string, limit, offset int,
) ([]models.ArticleCandidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, slug, title, summary, snippet, rank, read_time_minutes, published_at
		FROM search_articles($1, $2, $3)`, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()

	var candidates []models.ArticleCandidate

	for rows.Next() {
		var (
			c       models.ArticleCandidate
			rank    float32
			snippet *string
		)

		if err := rows.Scan(
			&c.ArticleID, &c.Slug, &c.Title, &c.Summary, &snippet, &rank, &c.ReadTimeMinutes, &c.PublishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan lexical candidate: %w", err)
		}

		if snippet != nil {
			c.Snippet = *snippet
		}

		c.LexicalRank = float64(rank)
		c.LexicalMatch = true
		candidates = append(candidates, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lexical candidates: %w", err)
	}

	return candidates, nil
}

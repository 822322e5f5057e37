package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/ranking"
)

// DefaultCandidatePool is the number of lexical and semantic candidates gathered per query before ranking.
const DefaultCandidatePool = 200

// LexicalSource returns lexically matching published articles, best first.
type LexicalSource interface {
	LexicalCandidates(ctx context.Context, query string, limit, offset int) ([]models.ArticleCandidate, error)
}

// SemanticSource returns embedding-based candidates and scores for one model.
type SemanticSource interface {
	SemanticCandidates(ctx context.Context, model string, queryEmbedding []float32, limit int) ([]models.ArticleCandidate, error)
	SemanticScores(
		ctx context.Context, model string, queryEmbedding []float32, articleIDs []uuid.UUID,
	) (map[uuid.UUID]float64, error)
}

// RankParams is one ranking request. Vector is nil on the lexical-only path.
type RankParams struct {
	Query          string
	Vector         []float32
	Limit          int
	Offset         int
	SemanticWeight float64
}

// HybridRanker gathers lexical and semantic candidates and orders them with the ranking package.
type HybridRanker struct {
	lexical  LexicalSource
	semantic SemanticSource
	model    string
	pool     int
}

// NewHybridRanker creates a ranker. semantic may be nil when no embedding provider is configured;
// pool <= 0 uses DefaultCandidatePool.
func NewHybridRanker(lexical LexicalSource, semantic SemanticSource, model string, pool int) *HybridRanker {
	if pool <= 0 {
		pool = DefaultCandidatePool
	}

	return &HybridRanker{lexical: lexical, semantic: semantic, model: model, pool: pool}
}

// Rank returns one page of results and the search type that produced it. Semantic candidates are only
// fetched when a vector is present and the clamped weight is positive; otherwise the result is the
// lexical ordering and the search type is text. Offsets at or beyond ranking.MaxOffset return an empty
// page without touching the store.
func (r *HybridRanker) Rank(ctx context.Context, p RankParams) ([]models.SearchResult, models.SearchType, error) {
	weight := ranking.ClampWeight(p.SemanticWeight)
	limit := ranking.NormalizeLimit(&p.Limit)
	offset := ranking.NormalizeOffset(&p.Offset)
	semantic := len(p.Vector) > 0 && weight > 0 && r.semantic != nil

	if offset >= ranking.MaxOffset {
		return []models.SearchResult{}, ranking.EffectiveSearchType(semantic, weight), nil
	}

	pool := max(r.pool, offset+limit)

	lexical, err := r.lexical.LexicalCandidates(ctx, p.Query, pool, 0)
	if err != nil {
		return nil, models.SearchTypeText, fmt.Errorf("lexical candidates: %w", err)
	}

	candidates := lexical

	if semantic {
		nearest, err := r.semantic.SemanticCandidates(ctx, r.model, p.Vector, pool)
		if err != nil {
			return nil, models.SearchTypeText, fmt.Errorf("semantic candidates: %w", err)
		}

		ids := make([]uuid.UUID, 0, len(lexical))
		for _, c := range lexical {
			ids = append(ids, c.ArticleID)
		}

		scores, err := r.semantic.SemanticScores(ctx, r.model, p.Vector, ids)
		if err != nil {
			return nil, models.SearchTypeText, fmt.Errorf("semantic scores: %w", err)
		}

		candidates = ranking.Merge(lexical, nearest, scores)
	}

	params := ranking.Params{SemanticWeight: weight, Limit: limit, Offset: offset, Semantic: semantic}

	return ranking.Rank(candidates, params), ranking.EffectiveSearchType(semantic, weight), nil
}

package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/newsdesk/search/internal/embedding"
	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/observability"
	"github.com/newsdesk/search/internal/ranking"
	"github.com/newsdesk/search/pkg/cache"
)

// ErrCodeSearchUnavailable is the envelope error code when the backing store failed.
const ErrCodeSearchUnavailable = "search_unavailable"

const fallbackEmbedderFailed = "embedder_failed"

// Ranker orders candidates for one query.
type Ranker interface {
	Rank(ctx context.Context, p RankParams) ([]models.SearchResult, models.SearchType, error)
}

// AvailabilityChecker reports whether the semantic path can run.
type AvailabilityChecker interface {
	Probe(ctx context.Context) models.Availability
}

// SearchService is the search entry point. It picks the semantic or lexical path, degrades to lexical
// ranking whenever the semantic path cannot run, and always returns a well-formed envelope.
type SearchService struct {
	ranker        Ranker
	availability  AvailabilityChecker
	embedder      embedding.Client
	queryCache    *cache.Memo[string, []float32]
	defaultWeight float64
	metrics       observability.SearchMetrics
	cacheMetrics  observability.CacheMetrics
	logger        *slog.Logger
}

// SearchServiceParams configures SearchService. Embedder, QueryCache and the metrics may be nil.
type SearchServiceParams struct {
	Ranker        Ranker
	Availability  AvailabilityChecker
	Embedder      embedding.Client
	QueryCache    *cache.Memo[string, []float32]
	DefaultWeight float64
	Metrics       observability.SearchMetrics
	CacheMetrics  observability.CacheMetrics
	Logger        *slog.Logger
}

// NewSearchService creates a SearchService.
func NewSearchService(p SearchServiceParams) *SearchService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchService{
		ranker:        p.Ranker,
		availability:  p.Availability,
		embedder:      p.Embedder,
		queryCache:    p.QueryCache,
		defaultWeight: ranking.ClampWeight(p.DefaultWeight),
		metrics:       p.Metrics,
		cacheMetrics:  p.CacheMetrics,
		logger:        logger,
	}
}

// NewQueryEmbeddingCache returns a loader cache for query vectors keyed by case- and whitespace-folded query.
func NewQueryEmbeddingCache(size int) (*cache.Memo[string, []float32], error) {
	//nolint:wrapcheck // constructor error is already descriptive
	return cache.New[string, []float32](size, CanonicalQuery)
}

// CanonicalQuery folds case and collapses whitespace so equivalent queries share a cached vector.
func CanonicalQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// Search runs one query. It never returns an error: provider failures fall back to lexical ranking and
// backing-store failures yield an empty result with a search_unavailable error marker.
func (s *SearchService) Search(ctx context.Context, req models.SearchRequest) models.SearchResponse {
	start := time.Now()

	ctx, span := observability.Tracer().Start(ctx, "search.Search")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		s.record(ctx, models.SearchTypeText, "empty_query", 0, start)

		return models.SearchResponse{Data: []models.SearchResult{}, SearchType: models.SearchTypeText}
	}

	weight := s.defaultWeight
	if req.SemanticWeight != nil {
		weight = ranking.ClampWeight(*req.SemanticWeight)
	}

	params := RankParams{
		Query:          query,
		Limit:          ranking.NormalizeLimit(req.Limit),
		Offset:         ranking.NormalizeOffset(req.Offset),
		SemanticWeight: weight,
	}

	// A zero weight makes the vector irrelevant, so neither the probe nor the provider is consulted.
	if weight > 0 {
		vector, reason := s.semanticVector(ctx, query)
		if vector == nil {
			params.SemanticWeight = 0

			span.SetAttributes(attribute.String("search.fallback_reason", reason))

			if s.metrics != nil {
				s.metrics.RecordFallback(ctx, reason)
			}
		}

		params.Vector = vector
	}

	span.SetAttributes(
		attribute.Int("search.limit", params.Limit),
		attribute.Int("search.offset", params.Offset),
		attribute.Float64("search.semantic_weight", params.SemanticWeight),
	)

	results, searchType, err := s.ranker.Rank(ctx, params)
	if err != nil {
		searchType = ranking.EffectiveSearchType(params.Vector != nil, params.SemanticWeight)

		observability.FailSpan(span, err, "rank failed")
		s.logger.ErrorContext(ctx, "search: ranking failed", "search_type", searchType, "error", err)
		s.record(ctx, searchType, "unavailable", 0, start)

		return models.SearchResponse{
			Data: []models.SearchResult{},
			Error: &models.SearchErrorInfo{
				Code:    ErrCodeSearchUnavailable,
				Message: "search is temporarily unavailable",
			},
			SearchType: searchType,
		}
	}

	if results == nil {
		results = []models.SearchResult{}
	}

	span.SetAttributes(
		attribute.String("search.type", string(searchType)),
		attribute.Int("search.results", len(results)),
	)
	s.record(ctx, searchType, "ok", len(results), start)

	return models.SearchResponse{Data: results, SearchType: searchType}
}

// semanticVector returns the query vector, or nil and the fallback reason when the semantic path cannot run.
func (s *SearchService) semanticVector(ctx context.Context, query string) ([]float32, string) {
	if s.embedder == nil {
		return nil, string(models.AvailabilityNoEmbeddingProvider)
	}

	if s.availability != nil {
		if a := s.availability.Probe(ctx); !a.SemanticEnabled {
			s.logger.DebugContext(ctx, "search: semantic path unavailable", "reason", a.Reason)

			return nil, string(a.Reason)
		}
	}

	ctx, span := observability.Tracer().Start(ctx, "search.QueryEmbedding")
	defer span.End()

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		observability.FailSpan(span, err, "query embedding failed")
		s.logger.WarnContext(ctx, "search: query embedding failed, falling back to lexical", "error", err)

		return nil, fallbackEmbedderFailed
	}

	if len(vector) == 0 {
		s.logger.WarnContext(ctx, "search: empty query embedding, falling back to lexical")

		return nil, fallbackEmbedderFailed
	}

	return vector, ""
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.queryCache == nil {
		//nolint:wrapcheck // errors already carry embedding.ErrEmbeddingUnavailable
		return s.embedder.CreateEmbedding(ctx, query)
	}

	vector, hit, err := s.queryCache.Load(ctx, query, s.embedder.CreateEmbedding)

	if s.cacheMetrics != nil {
		s.cacheMetrics.RecordLookup(ctx, observability.CacheQueryEmbedding, hit)
	}

	//nolint:wrapcheck // errors already carry embedding.ErrEmbeddingUnavailable
	return vector, err
}

func (s *SearchService) record(ctx context.Context, searchType models.SearchType, outcome string, n int, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordSearch(ctx, string(searchType), outcome, n, time.Since(start))
	}
}

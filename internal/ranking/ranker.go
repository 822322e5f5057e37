// Package ranking fuses lexical and semantic relevance signals into one ordered, paginated result list.
//
// The functions here are pure: candidate retrieval lives in the repository layer, so the blend
// formula, tie-break rules and pagination can be tested without a database.
package ranking

import (
	"bytes"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/newsdesk/search/internal/models"
)

const (
	// DefaultLimit is used when the caller does not specify a page size.
	DefaultLimit = 20
	// MaxLimit bounds the page size.
	MaxLimit = 100
	// MaxOffset bounds how deep a caller may page. Offsets at or past it yield an empty page.
	MaxOffset = 10_000
	// DefaultSemanticWeight is the blend weight used when the caller does not specify one.
	DefaultSemanticWeight = 0.5
)

// Params controls one ranking pass.
type Params struct {
	SemanticWeight float64
	Limit          int
	Offset         int
	// Semantic is true when a query vector was available for this pass.
	Semantic bool
}

// ClampWeight clamps w to [0,1]. NaN is treated as 0.
func ClampWeight(w float64) float64 {
	if math.IsNaN(w) || w < 0 {
		return 0
	}

	if w > 1 {
		return 1
	}

	return w
}

// NormalizeLimit returns limit when it is in (0, MaxLimit], DefaultLimit when it is nil or non-positive,
// and MaxLimit when it is larger.
func NormalizeLimit(limit *int) int {
	if limit == nil || *limit <= 0 {
		return DefaultLimit
	}

	return min(*limit, MaxLimit)
}

// NormalizeOffset returns offset, treating nil and negative values as zero and capping it at MaxOffset.
func NormalizeOffset(offset *int) int {
	if offset == nil || *offset < 0 {
		return 0
	}

	return min(*offset, MaxOffset)
}

// Combine returns the convex combination (1-w)*lexical + w*semantic. At w == 0 it returns lexical exactly.
func Combine(lexical, semantic, w float64) float64 {
	w = ClampWeight(w)
	if w == 0 {
		return lexical
	}

	return (1-w)*lexical + w*semantic
}

// EffectiveSearchType is semantic only when a query vector took part with a positive weight.
func EffectiveSearchType(semantic bool, w float64) models.SearchType {
	if semantic && ClampWeight(w) > 0 {
		return models.SearchTypeSemantic
	}

	return models.SearchTypeText
}

// Merge unions lexical and semantic candidates by article ID. Lexical fields win for articles present in both;
// semanticScores supplies the semantic rank of lexical candidates that were not in the semantic top list.
func Merge(
	lexical, semantic []models.ArticleCandidate, semanticScores map[uuid.UUID]float64,
) []models.ArticleCandidate {
	out := make([]models.ArticleCandidate, 0, len(lexical)+len(semantic))
	index := make(map[uuid.UUID]int, len(lexical)+len(semantic))

	for _, c := range lexical {
		if _, dup := index[c.ArticleID]; dup {
			continue
		}

		if score, ok := semanticScores[c.ArticleID]; ok && c.SemanticRank == nil {
			s := score
			c.SemanticRank = &s
		}

		index[c.ArticleID] = len(out)
		out = append(out, c)
	}

	for _, c := range semantic {
		if i, ok := index[c.ArticleID]; ok {
			if out[i].SemanticRank == nil && c.SemanticRank != nil {
				s := *c.SemanticRank
				out[i].SemanticRank = &s
			}

			continue
		}

		index[c.ArticleID] = len(out)
		out = append(out, c)
	}

	return out
}

// Rank scores candidates, orders them by combined rank (then most recent, then article ID) and returns the
// requested page. The input slice is not modified.
func Rank(candidates []models.ArticleCandidate, p Params) []models.SearchResult {
	w := ClampWeight(p.SemanticWeight)
	searchType := EffectiveSearchType(p.Semantic, w)
	hybrid := searchType == models.SearchTypeSemantic

	results := make([]models.SearchResult, 0, len(candidates))

	for _, c := range candidates {
		if !hybrid && !c.LexicalMatch {
			// Semantic-only candidates contribute nothing to a lexical ordering.
			continue
		}

		r := models.SearchResult{
			ArticleID:       c.ArticleID,
			Slug:            c.Slug,
			Title:           c.Title,
			SummarySnippet:  snippetFor(c),
			ReadTimeMinutes: c.ReadTimeMinutes,
			PublishedAt:     c.PublishedAt,
			LexicalRank:     c.LexicalRank,
			SearchType:      searchType,
		}

		if hybrid {
			semantic := 0.0
			if c.SemanticRank != nil {
				semantic = clampUnit(*c.SemanticRank)
			}

			r.SemanticRank = &semantic
			r.CombinedRank = Combine(c.LexicalRank, semantic, w)
		} else {
			r.CombinedRank = c.LexicalRank
		}

		results = append(results, r)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return less(results[i], results[j])
	})

	return paginate(results, p.Offset, p.Limit)
}

func less(a, b models.SearchResult) bool {
	if a.CombinedRank != b.CombinedRank {
		return a.CombinedRank > b.CombinedRank
	}

	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}

	return bytes.Compare(a.ArticleID[:], b.ArticleID[:]) < 0
}

func paginate(results []models.SearchResult, offset, limit int) []models.SearchResult {
	if offset < 0 {
		offset = 0
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	limit = min(limit, MaxLimit)

	if offset >= len(results) {
		return []models.SearchResult{}
	}

	end := min(offset+limit, len(results))

	return results[offset:end]
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}

	return math.Min(v, 1)
}

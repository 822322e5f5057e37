package models

import (
	"time"

	"github.com/google/uuid"
)

// SearchType reports which ranking path produced a result set.
type SearchType string

const (
	// SearchTypeText is lexical-only ranking (semantic weight 0 or semantic path unavailable).
	SearchTypeText SearchType = "text"
	// SearchTypeSemantic is hybrid ranking with a query embedding and a positive semantic weight.
	SearchTypeSemantic SearchType = "semantic"
)

// SearchRequest is the caller-facing search input. Nil optional fields take defaults.
type SearchRequest struct {
	Query          string   `json:"query"`
	Limit          *int     `json:"limit,omitempty"`
	Offset         *int     `json:"offset,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
}

// SearchResult is one ranked article. It is computed per query and never persisted.
type SearchResult struct {
	ArticleID       uuid.UUID  `json:"article_id"`
	Slug            string     `json:"slug"`
	Title           string     `json:"title"`
	SummarySnippet  string     `json:"summary_snippet"`
	ReadTimeMinutes int        `json:"read_time_minutes"`
	PublishedAt     time.Time  `json:"published_at"`
	LexicalRank     float64    `json:"lexical_rank"`
	SemanticRank    *float64   `json:"semantic_rank,omitempty"`
	CombinedRank    float64    `json:"combined_rank"`
	SearchType      SearchType `json:"search_type"`
}

// SearchErrorInfo is the recoverable error marker returned alongside an empty result set.
type SearchErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SearchResponse is the uniform search envelope. Data is never nil.
type SearchResponse struct {
	Data       []SearchResult   `json:"data"`
	Error      *SearchErrorInfo `json:"error"`
	SearchType SearchType       `json:"search_type"`
}

// ArticleCandidate is one article considered by the hybrid ranker, with the raw signals gathered for it.
type ArticleCandidate struct {
	ArticleID       uuid.UUID
	Slug            string
	Title           string
	Summary         string
	Snippet         string // highlighted excerpt; empty for semantic-only matches
	ReadTimeMinutes int
	PublishedAt     time.Time
	LexicalRank     float64
	LexicalMatch    bool
	SemanticRank    *float64 // nil when the article has no embedding for the current model
}

// AvailabilityReason explains an Availability verdict.
type AvailabilityReason string

// Availability reasons. Only AvailabilityOK enables the semantic path.
const (
	AvailabilityOK                  AvailabilityReason = "ok"
	AvailabilityNoEmbeddingProvider AvailabilityReason = "no_embedding_provider"
	AvailabilityEmbeddingsEmpty     AvailabilityReason = "embeddings_empty"
	AvailabilityProbeFailed         AvailabilityReason = "probe_failed"
)

// Availability reports whether semantic search can run right now.
type Availability struct {
	SemanticEnabled bool               `json:"semantic_enabled"`
	Reason          AvailabilityReason `json:"reason"`
	Model           string             `json:"model,omitempty"`
	CheckedAt       time.Time          `json:"checked_at"`
}

// Package observability provides OpenTelemetry metrics and tracing, and slog trace-context enrichment.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameSearchRequests   = "newsdesk_search_requests_total"
	MetricNameSearchDuration   = "newsdesk_search_duration_seconds"
	MetricNameSearchFallbacks  = "newsdesk_search_fallbacks_total"
	MetricNameSearchResults    = "newsdesk_search_results"
	MetricNameEmbeddingQueue   = "newsdesk_embedding_queue_depth"
	MetricNameRiverQueueDepth  = "newsdesk_river_queue_depth"
	MetricNameRequestBodyLimit = "newsdesk_request_body_too_large_total"
	MetricNameAuthFailures     = "newsdesk_api_auth_failures_total"

	MetricNameEmbeddingJobsEnqueued = "newsdesk_embedding_jobs_enqueued_total"
	MetricNameEmbeddingOutcomes     = "newsdesk_embedding_jobs_total"
	MetricNameEmbeddingWorkerErrors = "newsdesk_embedding_worker_errors_total"
	MetricNameEmbeddingDuration     = "newsdesk_embedding_job_duration_seconds"

	MetricNameCacheLookups = "newsdesk_cache_lookups_total"
)

// Attribute keys.
const (
	AttrReason     = "reason"
	AttrStatus     = "status"
	AttrSearchType = "search_type"
	AttrOutcome    = "outcome"
	AttrCache      = "cache"
	AttrResult     = "result"
	AttrSource     = "source"
)

// Cache names used as the cache attribute.
const (
	CacheQueryEmbedding = "query_embedding"
	CacheAvailability   = "availability"
)

// AllowedFallbackReasons for newsdesk_search_fallbacks_total. The first three match the
// availability probe reasons that disable the semantic path.
var AllowedFallbackReasons = map[string]bool{
	"no_embedding_provider": true,
	"embeddings_empty":      true,
	"probe_failed":          true,
	"embedder_failed":       true,
}

// AllowedSearchOutcomes for newsdesk_search_requests_total.
var AllowedSearchOutcomes = map[string]bool{
	"ok":          true,
	"empty_query": true,
	"unavailable": true,
}

// AllowedEmbeddingWorkerReasons for newsdesk_embedding_worker_errors_total.
var AllowedEmbeddingWorkerReasons = map[string]bool{
	"claim_failed":    true,
	"get_article":     true,
	"empty_input":     true,
	"provider_failed": true,
	"store_failed":    true,
	"finish_failed":   true,
	"drain_failed":    true,
	"job_panic":       true,
}

// AllowedEmbeddingOutcomeStatus reports whether status is a valid embedding job outcome label.
func AllowedEmbeddingOutcomeStatus(status string) bool {
	return status == "completed" || status == "failed"
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeSearchType keeps the search_type attribute to the two known values.
func NormalizeSearchType(searchType string) string {
	if searchType == "text" || searchType == "semantic" {
		return searchType
	}

	return "other"
}

// NormalizeCacheName returns name when it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	switch name {
	case CacheQueryEmbedding, CacheAvailability:
		return name
	default:
		return "other"
	}
}

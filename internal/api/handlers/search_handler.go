package handlers

import (
	"context"
	"net/http"

	"github.com/newsdesk/search/internal/api/response"
	"github.com/newsdesk/search/internal/api/validation"
	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/service"
)

// SearchService runs article searches.
type SearchService interface {
	Search(ctx context.Context, req models.SearchRequest) models.SearchResponse
}

// AvailabilityService reports whether semantic search can run.
type AvailabilityService interface {
	Probe(ctx context.Context) models.Availability
}

// SearchHandler handles article search and semantic availability requests.
type SearchHandler struct {
	service      SearchService
	availability AvailabilityService
}

// NewSearchHandler creates a search handler. availability may be nil, in which case
// GET /v1/search/availability reports no_embedding_provider.
func NewSearchHandler(service SearchService, availability AvailabilityService) *SearchHandler {
	return &SearchHandler{service: service, availability: availability}
}

// SearchBody is the body for POST /v1/search.
type SearchBody struct {
	Query          string   `json:"query"                     validate:"no_null_bytes"`
	Limit          *int     `json:"limit,omitempty"`
	Offset         *int     `json:"offset,omitempty"`
	SemanticWeight *float64 `json:"semantic_weight,omitempty"`
}

// SearchQueryParams are the query parameters for GET /v1/search.
type SearchQueryParams struct {
	Q              string   `form:"q"               validate:"no_null_bytes"`
	Limit          *int     `form:"limit"`
	Offset         *int     `form:"offset"`
	SemanticWeight *float64 `form:"semantic_weight"`
}

// Search handles POST /v1/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchBody

	if err := validation.BindJSON(r, &body); err != nil {
		validation.Respond(w, err)

		return
	}

	h.respond(w, r, models.SearchRequest{
		Query:          body.Query,
		Limit:          body.Limit,
		Offset:         body.Offset,
		SemanticWeight: body.SemanticWeight,
	})
}

// SearchGet handles GET /v1/search?q=&limit=&offset=&semantic_weight=.
func (h *SearchHandler) SearchGet(w http.ResponseWriter, r *http.Request) {
	var params SearchQueryParams

	// Unparseable pagination and weight values fall back to their defaults.
	if err := validation.BindQuery(r, &params, "limit", "offset", "semantic_weight"); err != nil {
		validation.Respond(w, err)

		return
	}

	h.respond(w, r, models.SearchRequest{
		Query:          params.Q,
		Limit:          params.Limit,
		Offset:         params.Offset,
		SemanticWeight: params.SemanticWeight,
	})
}

// respond writes the search envelope: 200 normally, 503 with the same envelope when the store failed.
func (h *SearchHandler) respond(w http.ResponseWriter, r *http.Request, req models.SearchRequest) {
	res := h.service.Search(r.Context(), req)

	status := http.StatusOK
	if res.Error != nil && res.Error.Code == service.ErrCodeSearchUnavailable {
		status = http.StatusServiceUnavailable
	}

	response.RespondJSON(w, status, res)
}

// Availability handles GET /v1/search/availability.
func (h *SearchHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if h.availability == nil {
		response.RespondJSON(w, http.StatusOK, models.Availability{
			SemanticEnabled: false,
			Reason:          models.AvailabilityNoEmbeddingProvider,
		})

		return
	}

	response.RespondJSON(w, http.StatusOK, h.availability.Probe(r.Context()))
}

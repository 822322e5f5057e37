// Package api wires HTTP routes for the search API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/newsdesk/search/internal/api/handlers"
	"github.com/newsdesk/search/internal/api/middleware"
	"github.com/newsdesk/search/internal/observability"
)

// RouterParams holds the handlers and settings for NewRouter. Embeddings is nil when no embedding
// provider is configured; its routes are not registered then.
type RouterParams struct {
	APIKey              string
	MaxRequestBodyBytes int64
	APIMetrics          observability.APIMetrics
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Health         *handlers.HealthHandler
	Search         *handlers.SearchHandler
	Embeddings     *handlers.EmbeddingsHandler
}

// NewRouter returns the route tree: /health, /ready and /metrics are public, everything under /v1 requires
// the API key.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", p.Health.Check)
	r.Get("/ready", p.Health.Ready)

	if p.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.MetricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(p.APIKey, p.APIMetrics))
		r.Use(middleware.MaxBody(p.MaxRequestBodyBytes, p.APIMetrics))

		r.Post("/search", p.Search.Search)
		r.Get("/search", p.Search.SearchGet)
		r.Get("/search/availability", p.Search.Availability)

		if p.Embeddings != nil {
			r.Post("/embeddings", p.Embeddings.Embed)
			r.Post("/embeddings/jobs", p.Embeddings.EnqueueJob)
			r.Get("/embeddings/jobs/{id}", p.Embeddings.GetJob)
		}
	})

	return r
}

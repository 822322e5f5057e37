package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/newsdesk/search/internal/api/handlers"
	"github.com/newsdesk/search/internal/models"
)

type stubSearch struct{ calls int }

func (s *stubSearch) Search(context.Context, models.SearchRequest) models.SearchResponse {
	s.calls++

	return models.SearchResponse{Data: []models.SearchResult{}, SearchType: models.SearchTypeText}
}

func newTestRouter(search *stubSearch, maxBody int64) http.Handler {
	return NewRouter(RouterParams{
		APIKey:              "secret",
		MaxRequestBodyBytes: maxBody,
		Health:              handlers.NewHealthHandler(nil),
		Search:              handlers.NewSearchHandler(search, nil),
	})
}

func TestRouter(t *testing.T) {
	search := &stubSearch{}
	router := newTestRouter(search, 1024)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		auth   bool
		want   int
	}{
		{name: "health is public", method: http.MethodGet, path: "/health", want: http.StatusOK},
		{name: "search requires key", method: http.MethodGet, path: "/v1/search?q=agi", want: http.StatusUnauthorized},
		{name: "get search", method: http.MethodGet, path: "/v1/search?q=agi", auth: true, want: http.StatusOK},
		{
			name: "post search", method: http.MethodPost, path: "/v1/search", body: `{"query":"agi"}`,
			auth: true, want: http.StatusOK,
		},
		{
			name: "availability", method: http.MethodGet, path: "/v1/search/availability",
			auth: true, want: http.StatusOK,
		},
		{
			name: "embeddings not registered without provider", method: http.MethodPost, path: "/v1/embeddings",
			body: `{}`, auth: true, want: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			if tt.auth {
				req.Header.Set("Authorization", "Bearer secret")
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}

	assert.Equal(t, 2, search.calls)
}

func TestRouter_BodyLimit(t *testing.T) {
	search := &stubSearch{}
	router := newTestRouter(search, 16)

	req := httptest.NewRequest(http.MethodPost, "/v1/search",
		bytes.NewBufferString(`{"query":"a query that is far too long for the limit"}`))
	req.Header.Set("Authorization", "Bearer secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, search.calls)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubSearch{}, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "not mounted without a handler")

	router := NewRouter(RouterParams{
		APIKey: "secret",
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("newsdesk_search_requests_total 1\n"))
		}),
		Health: handlers.NewHealthHandler(nil),
		Search: handlers.NewSearchHandler(&stubSearch{}, nil),
	})

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "public, no API key")
	assert.Contains(t, rec.Body.String(), "newsdesk_search_requests_total")
}

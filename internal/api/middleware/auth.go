// Package middleware provides HTTP middleware for the search API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/newsdesk/search/internal/api/response"
	"github.com/newsdesk/search/internal/observability"
)

const apiKeyHeader = "X-API-Key"

// Auth validates the static API key sent as "Authorization: Bearer <key>" or in the X-API-Key header.
// metrics may be nil.
func Auth(apiKey string, metrics observability.APIMetrics) func(http.Handler) http.Handler {
	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := requestAPIKey(r)
			if !ok {
				if metrics != nil {
					metrics.RecordAuthFailure(r.Context(), observability.AuthMissingKey)
				}

				response.RespondUnauthorized(w, "Missing API key. Expected: Authorization: Bearer <api-key>")

				return
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(key), expected) != 1 {
				if metrics != nil {
					metrics.RecordAuthFailure(r.Context(), observability.AuthInvalidKey)
				}

				response.RespondUnauthorized(w, "Invalid API key")

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func requestAPIKey(r *http.Request) (string, bool) {
	if key := r.Header.Get(apiKeyHeader); key != "" {
		return key, true
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	scheme, key, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(key) == "" {
		return "", false
	}

	return strings.TrimSpace(key), true
}

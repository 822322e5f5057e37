package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/newsdesk/search/internal/observability"
)

const (
	requestIDHeader = "X-Request-ID"
	// maxRequestIDLen bounds client-supplied IDs; they end up in every log line of the request.
	maxRequestIDLen = 128
)

// RequestID runs first in the chain. A client X-Request-ID is kept when it is a short run of visible ASCII;
// otherwise a UUIDv7 is generated. The ID is stored in the context for logging and echoed in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !validRequestID(id) {
			id = uuid.Must(uuid.NewV7()).String()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), observability.RequestIDKey, id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}

	for i := range len(id) {
		if c := id[i]; c < '!' || c > '~' {
			return false
		}
	}

	return true
}

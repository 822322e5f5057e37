package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/newsdesk/search/internal/api/response"
	"github.com/newsdesk/search/internal/observability"
)

// MaxBody limits request bodies to maxBytes. Requests whose body overflows the limit get 413, whatever the
// handler wrote, so a decode error is not misreported as 400. maxBytes <= 0 disables the limit; metrics may be nil.
func MaxBody(maxBytes int64, metrics observability.APIMetrics) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)

				return
			}

			body := &limitedBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxBytes)}
			r.Body = body

			buf := &bufferedResponse{ResponseWriter: w}
			next.ServeHTTP(buf, r)

			if body.exceeded {
				if metrics != nil {
					metrics.RecordRequestBodyTooLarge(r.Context())
				}

				response.RespondError(w, http.StatusRequestEntityTooLarge,
					"Request Entity Too Large", "request body exceeds maximum allowed size")

				return
			}

			buf.flush()
		})
	}
}

// limitedBody notes when the wrapped MaxBytesReader hit its limit.
type limitedBody struct {
	io.ReadCloser

	exceeded bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.exceeded = true
	}

	return n, err //nolint:wrapcheck // io.EOF must reach the decoder unwrapped
}

// bufferedResponse holds the handler's response until the body limit outcome is known.
type bufferedResponse struct {
	http.ResponseWriter

	status int
	buf    bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	return b.buf.Write(p) //nolint:wrapcheck // in-memory buffer
}

func (b *bufferedResponse) flush() {
	if b.status != 0 {
		b.ResponseWriter.WriteHeader(b.status)
	}

	_, _ = b.buf.WriteTo(b.ResponseWriter)
}

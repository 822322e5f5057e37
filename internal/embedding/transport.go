package embedding

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	retryWaitMin = 250 * time.Millisecond
	retryWaitMax = 2 * time.Second
)

// RetryingHTTPClient returns an HTTP client for provider SDKs that retries connection errors, 429s and 5xx
// responses up to retries times, honoring Retry-After. It returns nil for retries <= 0 so the SDK keeps
// its default transport. The caller's context deadline bounds the whole sequence.
func RetryingHTTPClient(retries int, logger *slog.Logger) *http.Client {
	if retries <= 0 {
		return nil
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = nil

	if logger != nil {
		rc.Logger = logger
	}

	return rc.StandardClient()
}

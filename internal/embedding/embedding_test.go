package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnavailable(t *testing.T) {
	require.NoError(t, Unavailable(nil))

	cause := errors.New("boom")
	err := Unavailable(cause)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, cause)

	assert.Same(t, err, Unavailable(err), "already-marked errors are not wrapped twice")
}

func TestWithTimeout_DetachesFromCallerCancellation(t *testing.T) {
	var sawCanceled bool

	client := WithTimeout(Func(func(ctx context.Context, _ string) ([]float32, error) {
		sawCanceled = ctx.Err() != nil
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)

		return []float32{1}, nil
	}), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vec, err := client.CreateEmbedding(ctx, "query")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.False(t, sawCanceled)
}

func TestWithTimeout_DeadlineExceededIsUnavailable(t *testing.T) {
	client := WithTimeout(Func(func(ctx context.Context, _ string) ([]float32, error) {
		<-ctx.Done()

		return nil, ctx.Err()
	}), 10*time.Millisecond)

	_, err := client.CreateEmbedding(context.Background(), "query")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWithRateLimit(t *testing.T) {
	calls := 0
	client := WithRateLimit(Func(func(context.Context, string) ([]float32, error) {
		calls++

		return []float32{0.5}, nil
	}), 0)

	for range 5 {
		_, err := client.CreateEmbedding(context.Background(), "x")
		require.NoError(t, err)
	}

	assert.Equal(t, 5, calls)

	limited := WithRateLimit(Func(func(context.Context, string) ([]float32, error) {
		return []float32{0.5}, nil
	}), 0.001)

	_, err := limited.CreateEmbedding(context.Background(), "first")
	require.NoError(t, err, "burst admits the first call")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = limited.CreateEmbedding(ctx, "second")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestWithLimiter_SharedBudget(t *testing.T) {
	ok := Func(func(context.Context, string) ([]float32, error) { return []float32{1}, nil })
	lim := NewLimiter(0.001)

	query, document := WithLimiter(ok, lim), WithLimiter(ok, lim)

	_, err := document.CreateEmbedding(context.Background(), "article")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = query.CreateEmbedding(ctx, "query")
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable, "the document call used the shared token")
}

func TestRetryingHTTPClient(t *testing.T) {
	assert.Nil(t, RetryingHTTPClient(0, nil))

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	client := RetryingHTTPClient(2, nil)
	require.NotNil(t, client)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

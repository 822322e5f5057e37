package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/search/internal/embedding"
	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/observability"
)

type jobsFixture struct {
	jobs     *mockJobsRepo
	articles *mockArticles
	store    *mockEmbeddingWriter
	embedder *mockEmbeddingClient
	notifier *mockNotifier
	stored   int
	svc      *EmbeddingJobsService
}

func newJobsFixture(t *testing.T, articles ...*models.Article) *jobsFixture {
	t.Helper()

	f := &jobsFixture{
		jobs:     &mockJobsRepo{},
		articles: &mockArticles{articles: map[uuid.UUID]*models.Article{}},
		store:    &mockEmbeddingWriter{},
		embedder: &mockEmbeddingClient{},
		notifier: &mockNotifier{},
	}

	for _, a := range articles {
		f.articles.articles[a.ID] = a
	}

	f.svc = NewEmbeddingJobsService(EmbeddingJobsServiceParams{
		Jobs:       f.jobs,
		Articles:   f.articles,
		Embeddings: f.store,
		Embedder:   f.embedder,
		Model:      "text-embedding-3-small",
		Notifier:   f.notifier,
		OnStored:   func() { f.stored++ },
	})

	return f
}

func publishedArticle(title string) *models.Article {
	at := time.Now().Add(-time.Hour)

	return &models.Article{
		ID: uuid.New(), Slug: strings.ToLower(title), Title: title,
		Summary: "summary of " + title, Body: "body", PublishedAt: &at,
	}
}

func TestEmbeddingJobsService_EnqueueIsIdempotentWhileActive(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)

	first, created, err := f.svc.Enqueue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.EmbeddingJobPending, first.Status)

	second, created, err := f.svc.Enqueue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 1, f.notifier.calls, "only new jobs schedule a drain")
}

func TestEmbeddingJobsService_EnqueueSurvivesNotifierFailure(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)
	f.notifier.err = errors.New("river down")

	job, created, err := f.svc.Enqueue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotNil(t, job)
}

func TestEmbeddingJobsService_EnqueueError(t *testing.T) {
	f := newJobsFixture(t)
	f.jobs.enqueueErr = errors.New("db down")

	_, _, err := f.svc.Enqueue(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Zero(t, f.notifier.calls)
}

func TestEmbeddingJobsService_TriggerProcessesSynchronously(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)

	res, err := f.svc.Trigger(context.Background(), a.ID)
	require.NoError(t, err)

	assert.True(t, res.Processed)
	assert.Equal(t, models.EmbeddingJobCompleted, res.Job.Status)
	assert.Equal(t, 2, res.Dimensions)
	assert.Equal(t, []float32{0.6, 0.8}, f.store.stored[a.ID])
	assert.Equal(t, "text-embedding-3-small", f.store.model)
	assert.Equal(t, 1, f.stored)
	assert.Equal(t, []string{"AGI\n\nsummary of AGI\n\nbody"}, f.embedder.calls)
}

func TestEmbeddingJobsService_TriggerWhileAnotherWorkerHoldsTheJob(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)

	_, _, err := f.svc.Enqueue(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = f.jobs.ClaimNext(context.Background())
	require.NoError(t, err)

	res, err := f.svc.Trigger(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, res.Processed)
	assert.Zero(t, f.embedder.callCount())
}

func TestEmbeddingJobsService_EnqueueSourceDistinguishesTriggers(t *testing.T) {
	queued, triggered := publishedArticle("AGI"), publishedArticle("Robotics")
	f := newJobsFixture(t, queued, triggered)
	metrics := &mockEmbeddingMetrics{}
	f.svc.metrics = metrics

	_, _, err := f.svc.Enqueue(context.Background(), queued.ID)
	require.NoError(t, err)

	_, err = f.svc.Trigger(context.Background(), triggered.ID)
	require.NoError(t, err)

	// Re-triggering a completed article inserts a fresh job.
	_, err = f.svc.Trigger(context.Background(), triggered.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		observability.EnqueueSourceRequest, observability.EnqueueSourceTrigger, observability.EnqueueSourceTrigger,
	}, metrics.sources)
}

func TestEmbeddingJobsService_ProviderFailureFailsJob(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)
	f.embedder.createFunc = func(context.Context, string) ([]float32, error) {
		return nil, embedding.Unavailable(errors.New("status 500"))
	}

	res, err := f.svc.Trigger(context.Background(), a.ID)
	require.Error(t, err)
	require.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)

	require.NotNil(t, res)
	assert.True(t, res.Processed)
	assert.Equal(t, models.EmbeddingJobFailed, res.Job.Status)
	require.NotNil(t, res.Job.ErrorMessage)
	assert.Contains(t, *res.Job.ErrorMessage, "status 500")
	assert.Empty(t, f.store.stored)
	assert.Zero(t, f.stored)

	// A failed job no longer blocks a new one.
	_, created, err := f.svc.Enqueue(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEmbeddingJobsService_EmptyArticleFailsJob(t *testing.T) {
	a := publishedArticle("x")
	a.Title, a.Summary, a.Body = " ", "", "\n"
	f := newJobsFixture(t, a)

	res, err := f.svc.Trigger(context.Background(), a.ID)
	require.ErrorIs(t, err, ErrEmptyArticleText)
	assert.Equal(t, models.EmbeddingJobFailed, res.Job.Status)
	assert.Zero(t, f.embedder.callCount())
}

func TestEmbeddingJobsService_StoreFailureFailsJob(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)
	f.store.err = errors.New("disk full")

	res, err := f.svc.Trigger(context.Background(), a.ID)
	require.Error(t, err)
	assert.Equal(t, models.EmbeddingJobFailed, res.Job.Status)
}

func TestEmbeddingJobsService_DrainProcessesOldestFirst(t *testing.T) {
	articles := []*models.Article{publishedArticle("one"), publishedArticle("two"), publishedArticle("three")}
	f := newJobsFixture(t, articles...)

	for _, a := range articles {
		_, _, err := f.svc.Enqueue(context.Background(), a.ID)
		require.NoError(t, err)
	}

	n, err := f.svc.Drain(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.store.stored, 2)
	assert.Contains(t, f.store.stored, articles[0].ID)
	assert.Contains(t, f.store.stored, articles[1].ID)

	n, err = f.svc.Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmbeddingJobsService_DrainContinuesPastFailedJobs(t *testing.T) {
	articles := []*models.Article{publishedArticle("one"), publishedArticle("two")}
	f := newJobsFixture(t, articles...)
	f.embedder.createFunc = func(_ context.Context, input string) ([]float32, error) {
		if strings.HasPrefix(input, "one") {
			return nil, embedding.Unavailable(errors.New("timeout"))
		}

		return []float32{1, 0}, nil
	}

	for _, a := range articles {
		_, _, err := f.svc.Enqueue(context.Background(), a.ID)
		require.NoError(t, err)
	}

	n, err := f.svc.Drain(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, f.store.stored, articles[1].ID)
}

func TestEmbeddingJobsService_DrainStopsWhenFinishFails(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)
	f.embedder.createFunc = func(context.Context, string) ([]float32, error) {
		return nil, embedding.Unavailable(errors.New("timeout"))
	}
	f.jobs.failErr = errors.New("db down")

	_, _, err := f.svc.Enqueue(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = f.svc.Drain(context.Background(), 10)
	require.Error(t, err)
}

func TestEmbeddingJobsService_DrainHonoursCancellation(t *testing.T) {
	f := newJobsFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := f.svc.Drain(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestEmbeddingJobsService_TerminalWritesOutliveCancellation(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	f.embedder.createFunc = func(context.Context, string) ([]float32, error) {
		cancel()

		return []float32{1, 0}, nil
	}

	res, err := f.svc.Trigger(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmbeddingJobCompleted, res.Job.Status)
}

func TestEmbeddingJobsService_ConcurrentDrainsProcessEachJobOnce(t *testing.T) {
	articles := make([]*models.Article, 20)
	for i := range articles {
		articles[i] = publishedArticle("article")
	}

	f := newJobsFixture(t, articles...)

	for _, a := range articles {
		_, _, err := f.svc.Enqueue(context.Background(), a.ID)
		require.NoError(t, err)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			n, err := f.svc.Drain(context.Background(), 100)
			assert.NoError(t, err)

			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Equal(t, 20, total)
	assert.Equal(t, 20, f.embedder.callCount())
}

func TestEmbeddingJobsService_FailStale(t *testing.T) {
	a := publishedArticle("AGI")
	f := newJobsFixture(t, a)

	_, _, err := f.svc.Enqueue(context.Background(), a.ID)
	require.NoError(t, err)

	claimed, err := f.jobs.ClaimNext(context.Background())
	require.NoError(t, err)

	n, err := f.svc.FailStale(context.Background(), time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.FailStale(context.Background(), time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := f.svc.Get(context.Background(), claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EmbeddingJobFailed, job.Status)
}

func TestEmbeddingJobsService_Backfill(t *testing.T) {
	articles := []*models.Article{publishedArticle("one"), publishedArticle("two"), publishedArticle("three")}
	f := newJobsFixture(t, articles...)
	f.jobs.missing = []uuid.UUID{articles[0].ID, articles[1].ID, articles[2].ID}

	_, _, err := f.svc.Enqueue(context.Background(), articles[0].ID)
	require.NoError(t, err)

	n, err := f.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "articles with an active job are skipped")
	assert.Equal(t, 2, f.notifier.calls)

	n, err = f.svc.Backfill(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, f.notifier.calls)
}

func TestBuildEmbeddingInput(t *testing.T) {
	tests := []struct {
		name     string
		article  models.Article
		maxRunes int
		want     string
	}{
		{
			name:    "joins non-empty parts",
			article: models.Article{Title: " Title ", Summary: "", Body: "Body"},
			want:    "Title\n\nBody",
		},
		{
			name:    "empty article",
			article: models.Article{Title: "  ", Body: "\t"},
			want:    "",
		},
		{
			name:     "truncates by runes",
			article:  models.Article{Title: "Zürich", Body: "ünïcode"},
			maxRunes: 7,
			want:     "Zürich",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildEmbeddingInput(&tt.article, tt.maxRunes))
		})
	}
}

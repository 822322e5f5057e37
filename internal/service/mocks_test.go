package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/repository"
)

type mockEmbeddingClient struct {
	mu         sync.Mutex
	calls      []string
	createFunc func(ctx context.Context, input string) ([]float32, error)
}

func (m *mockEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, input)
	m.mu.Unlock()

	if m.createFunc != nil {
		return m.createFunc(ctx, input)
	}

	return []float32{0.6, 0.8}, nil
}

func (m *mockEmbeddingClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.calls)
}

type mockRanker struct {
	calls    []RankParams
	rankFunc func(ctx context.Context, p RankParams) ([]models.SearchResult, models.SearchType, error)
}

func (m *mockRanker) Rank(ctx context.Context, p RankParams) ([]models.SearchResult, models.SearchType, error) {
	m.calls = append(m.calls, p)

	if m.rankFunc != nil {
		return m.rankFunc(ctx, p)
	}

	st := models.SearchTypeText
	if p.Vector != nil && p.SemanticWeight > 0 {
		st = models.SearchTypeSemantic
	}

	return []models.SearchResult{{ArticleID: uuid.New(), SearchType: st}}, st, nil
}

type mockAvailability struct {
	calls int
	avail models.Availability
}

func (m *mockAvailability) Probe(context.Context) models.Availability {
	m.calls++

	return m.avail
}

type mockPresence struct {
	calls   int
	hasAny  bool
	err     error
	lastArg string
}

func (m *mockPresence) HasAny(_ context.Context, model string) (bool, error) {
	m.calls++
	m.lastArg = model

	return m.hasAny, m.err
}

type mockLexicalSource struct {
	calls      int
	lastLimit  int
	candidates []models.ArticleCandidate
	err        error
}

func (m *mockLexicalSource) LexicalCandidates(
	_ context.Context, _ string, limit, _ int,
) ([]models.ArticleCandidate, error) {
	m.calls++
	m.lastLimit = limit

	if m.err != nil {
		return nil, m.err
	}

	if limit < len(m.candidates) {
		return m.candidates[:limit], nil
	}

	return m.candidates, nil
}

type mockSemanticSource struct {
	candidateCalls int
	scoreCalls     int
	candidates     []models.ArticleCandidate
	scores         map[uuid.UUID]float64
	err            error
}

func (m *mockSemanticSource) SemanticCandidates(
	context.Context, string, []float32, int,
) ([]models.ArticleCandidate, error) {
	m.candidateCalls++

	return m.candidates, m.err
}

func (m *mockSemanticSource) SemanticScores(
	_ context.Context, _ string, _ []float32, ids []uuid.UUID,
) (map[uuid.UUID]float64, error) {
	m.scoreCalls++

	if m.err != nil {
		return nil, m.err
	}

	out := make(map[uuid.UUID]float64)

	for _, id := range ids {
		if s, ok := m.scores[id]; ok {
			out[id] = s
		}
	}

	return out, nil
}

type mockSearchMetrics struct {
	fallbacks []string
	outcomes  []string
}

func (m *mockSearchMetrics) RecordSearch(_ context.Context, _, outcome string, _ int, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

func (m *mockSearchMetrics) RecordFallback(_ context.Context, reason string) {
	m.fallbacks = append(m.fallbacks, reason)
}

type mockEmbeddingMetrics struct {
	mu      sync.Mutex
	sources []string
}

func (m *mockEmbeddingMetrics) RecordEnqueued(_ context.Context, source string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for range n {
		m.sources = append(m.sources, source)
	}
}

func (m *mockEmbeddingMetrics) RecordJobFinished(context.Context, string, time.Duration) {}
func (m *mockEmbeddingMetrics) RecordAbandoned(context.Context, int64)                   {}
func (m *mockEmbeddingMetrics) RecordWorkerError(context.Context, string)                {}

// mockJobsRepo is an in-memory queue with the same transition rules as the Postgres repository.
type mockJobsRepo struct {
	mu         sync.Mutex
	jobs       []*models.EmbeddingJob
	missing    []uuid.UUID
	enqueueErr error
	failErr    error
	claimErr   error
	failCalls  []string
}

func (m *mockJobsRepo) Enqueue(_ context.Context, articleID uuid.UUID) (*models.EmbeddingJob, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enqueueErr != nil {
		return nil, false, m.enqueueErr
	}

	for _, j := range m.jobs {
		if j.ArticleID == articleID && j.Status.IsActive() {
			c := *j

			return &c, false, nil
		}
	}

	j := &models.EmbeddingJob{
		ID: uuid.New(), ArticleID: articleID, Status: models.EmbeddingJobPending, CreatedAt: time.Now(),
	}
	m.jobs = append(m.jobs, j)
	c := *j

	return &c, true, nil
}

func (m *mockJobsRepo) claim(match func(*models.EmbeddingJob) bool) (*models.EmbeddingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claimErr != nil {
		return nil, m.claimErr
	}

	for _, j := range m.jobs {
		if j.Status == models.EmbeddingJobPending && match(j) {
			now := time.Now()
			j.Status = models.EmbeddingJobProcessing
			j.ProcessedAt = &now
			c := *j

			return &c, nil
		}
	}

	return nil, repository.ErrNoPendingJob
}

func (m *mockJobsRepo) ClaimNext(context.Context) (*models.EmbeddingJob, error) {
	return m.claim(func(*models.EmbeddingJob) bool { return true })
}

func (m *mockJobsRepo) ClaimForArticle(_ context.Context, articleID uuid.UUID) (*models.EmbeddingJob, error) {
	return m.claim(func(j *models.EmbeddingJob) bool { return j.ArticleID == articleID })
}

func (m *mockJobsRepo) finish(jobID uuid.UUID, to models.EmbeddingJobStatus, msg *string) (*models.EmbeddingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.ID == jobID {
			if !j.Status.CanTransitionTo(to) {
				return nil, repository.ErrInvalidJobTransition
			}

			j.Status = to
			j.ErrorMessage = msg
			c := *j

			return &c, nil
		}
	}

	return nil, repository.ErrInvalidJobTransition
}

func (m *mockJobsRepo) Complete(_ context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error) {
	return m.finish(jobID, models.EmbeddingJobCompleted, nil)
}

func (m *mockJobsRepo) Fail(_ context.Context, jobID uuid.UUID, msg string) (*models.EmbeddingJob, error) {
	m.mu.Lock()
	m.failCalls = append(m.failCalls, msg)
	failErr := m.failErr
	m.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}

	return m.finish(jobID, models.EmbeddingJobFailed, &msg)
}

func (m *mockJobsRepo) FailStale(_ context.Context, before time.Time, msg string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64

	for _, j := range m.jobs {
		if j.Status == models.EmbeddingJobProcessing && j.ProcessedAt != nil && j.ProcessedAt.Before(before) {
			j.Status = models.EmbeddingJobFailed
			j.ErrorMessage = &msg
			n++
		}
	}

	return n, nil
}

func (m *mockJobsRepo) Get(_ context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, j := range m.jobs {
		if j.ID == jobID {
			c := *j

			return &c, nil
		}
	}

	return nil, repository.ErrNoPendingJob
}

func (m *mockJobsRepo) ListArticlesMissingEmbeddings(_ context.Context, _ string, limit int) ([]uuid.UUID, error) {
	if limit < len(m.missing) {
		return m.missing[:limit], nil
	}

	return m.missing, nil
}

type mockArticles struct {
	articles map[uuid.UUID]*models.Article
	err      error
}

func (m *mockArticles) GetByID(_ context.Context, id uuid.UUID) (*models.Article, error) {
	if m.err != nil {
		return nil, m.err
	}

	a, ok := m.articles[id]
	if !ok {
		return nil, repository.ErrEmbeddingNotFound
	}

	return a, nil
}

type mockEmbeddingWriter struct {
	mu     sync.Mutex
	stored map[uuid.UUID][]float32
	model  string
	err    error
}

func (m *mockEmbeddingWriter) Upsert(_ context.Context, articleID uuid.UUID, model string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	if m.stored == nil {
		m.stored = make(map[uuid.UUID][]float32)
	}

	m.stored[articleID] = vec
	m.model = model

	return nil
}

type mockNotifier struct {
	calls int
	err   error
}

func (m *mockNotifier) NotifyEnqueued(context.Context) error {
	m.calls++

	return m.err
}

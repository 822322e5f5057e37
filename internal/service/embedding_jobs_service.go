package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/newsdesk/search/internal/apperrors"
	"github.com/newsdesk/search/internal/embedding"
	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/observability"
	"github.com/newsdesk/search/internal/repository"
)

// DefaultMaxInputRunes bounds the text sent to the embedding provider per article.
const DefaultMaxInputRunes = 8000

// ErrEmptyArticleText is recorded on jobs whose article has no title, summary or body text.
var ErrEmptyArticleText = apperrors.Unprocessable("article has no text to embed")

// EmbeddingJobsRepository is the persistence side of the embedding job queue.
type EmbeddingJobsRepository interface {
	Enqueue(ctx context.Context, articleID uuid.UUID) (*models.EmbeddingJob, bool, error)
	ClaimNext(ctx context.Context) (*models.EmbeddingJob, error)
	ClaimForArticle(ctx context.Context, articleID uuid.UUID) (*models.EmbeddingJob, error)
	Complete(ctx context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error)
	Fail(ctx context.Context, jobID uuid.UUID, errorMessage string) (*models.EmbeddingJob, error)
	FailStale(ctx context.Context, startedBefore time.Time, errorMessage string) (int64, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error)
	ListArticlesMissingEmbeddings(ctx context.Context, model string, limit int) ([]uuid.UUID, error)
}

// ArticleReader loads articles for embedding.
type ArticleReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Article, error)
}

// EmbeddingWriter stores article embeddings.
type EmbeddingWriter interface {
	Upsert(ctx context.Context, articleID uuid.UUID, model string, embedding []float32) error
}

// EnqueueNotifier is told when a new job was inserted so a drain can be scheduled.
type EnqueueNotifier interface {
	NotifyEnqueued(ctx context.Context) error
}

// TriggerResult is the outcome of a synchronous embedding request.
type TriggerResult struct {
	Job *models.EmbeddingJob
	// Processed is false when another worker already holds the job; it stays queued.
	Processed  bool
	Dimensions int
}

// EmbeddingJobsService runs the embedding job lifecycle: enqueue, claim, embed, store, finish.
type EmbeddingJobsService struct {
	jobs          EmbeddingJobsRepository
	articles      ArticleReader
	embeddings    EmbeddingWriter
	embedder      embedding.Client
	model         string
	maxInputRunes int
	notifier      EnqueueNotifier
	onStored      func()
	metrics       observability.EmbeddingMetrics
	logger        *slog.Logger
}

// EmbeddingJobsServiceParams configures EmbeddingJobsService. Notifier, OnStored and Metrics may be nil.
type EmbeddingJobsServiceParams struct {
	Jobs          EmbeddingJobsRepository
	Articles      ArticleReader
	Embeddings    EmbeddingWriter
	Embedder      embedding.Client
	Model         string
	MaxInputRunes int
	Notifier      EnqueueNotifier
	// OnStored runs after an embedding is stored (e.g. to refresh the availability probe).
	OnStored func()
	Metrics  observability.EmbeddingMetrics
	Logger   *slog.Logger
}

// NewEmbeddingJobsService creates an EmbeddingJobsService.
func NewEmbeddingJobsService(p EmbeddingJobsServiceParams) *EmbeddingJobsService {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRunes := p.MaxInputRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxInputRunes
	}

	return &EmbeddingJobsService{
		jobs:          p.Jobs,
		articles:      p.Articles,
		embeddings:    p.Embeddings,
		embedder:      p.Embedder,
		model:         p.Model,
		maxInputRunes: maxRunes,
		notifier:      p.Notifier,
		onStored:      p.OnStored,
		metrics:       p.Metrics,
		logger:        logger,
	}
}

// Enqueue inserts a pending job for the article, or returns its active job. created reports whether a
// row was inserted. A drain is scheduled for new jobs; scheduling failures are logged since the
// periodic drain picks the job up anyway.
func (s *EmbeddingJobsService) Enqueue(
	ctx context.Context, articleID uuid.UUID,
) (job *models.EmbeddingJob, created bool, err error) {
	job, created, err = s.enqueue(ctx, articleID, observability.EnqueueSourceRequest)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.notify(ctx)
	}

	return job, created, nil
}

func (s *EmbeddingJobsService) enqueue(
	ctx context.Context, articleID uuid.UUID, source string,
) (*models.EmbeddingJob, bool, error) {
	job, created, err := s.jobs.Enqueue(ctx, articleID)
	if err != nil {
		return nil, false, fmt.Errorf("enqueue embedding job: %w", err)
	}

	if created {
		if s.metrics != nil {
			s.metrics.RecordEnqueued(ctx, source, 1)
		}

		s.logger.InfoContext(ctx, "embedding: job enqueued", "job_id", job.ID, "article_id", articleID)
	}

	return job, created, nil
}

func (s *EmbeddingJobsService) notify(ctx context.Context) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.NotifyEnqueued(ctx); err != nil {
		s.logger.WarnContext(ctx, "embedding: schedule drain failed", "error", err)
	}
}

// Trigger enqueues a job for the article and, when this caller can claim it, processes it synchronously.
// A processing failure is returned as an error alongside the failed job.
func (s *EmbeddingJobsService) Trigger(ctx context.Context, articleID uuid.UUID) (*TriggerResult, error) {
	job, _, err := s.enqueue(ctx, articleID, observability.EnqueueSourceTrigger)
	if err != nil {
		return nil, err
	}

	claimed, err := s.jobs.ClaimForArticle(ctx, articleID)
	if err != nil {
		if errors.Is(err, repository.ErrNoPendingJob) {
			// Another worker holds it. Make sure a drain will run if it was only just inserted.
			s.notify(ctx)

			return &TriggerResult{Job: job}, nil
		}

		return nil, fmt.Errorf("claim embedding job: %w", err)
	}

	finished, dims, err := s.process(ctx, claimed)

	return &TriggerResult{Job: finished, Processed: true, Dimensions: dims}, err
}

// ProcessNext claims the oldest pending job and processes it. It reports false when the queue was empty.
// A job that fails to embed is recorded as failed and is not an error here.
func (s *EmbeddingJobsService) ProcessNext(ctx context.Context) (bool, error) {
	job, err := s.jobs.ClaimNext(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNoPendingJob) {
			return false, nil
		}

		if s.metrics != nil {
			s.metrics.RecordWorkerError(ctx, "claim_failed")
		}

		return false, fmt.Errorf("claim embedding job: %w", err)
	}

	if _, _, err := s.process(ctx, job); err != nil && isFinishError(err) {
		return true, err
	}

	return true, nil
}

// Drain processes up to maxJobs pending jobs and returns how many were claimed.
func (s *EmbeddingJobsService) Drain(ctx context.Context, maxJobs int) (int, error) {
	processed := 0

	for processed < maxJobs {
		if err := ctx.Err(); err != nil {
			return processed, fmt.Errorf("drain interrupted: %w", err)
		}

		ok, err := s.ProcessNext(ctx)
		if err != nil {
			return processed, err
		}

		if !ok {
			break
		}

		processed++
	}

	return processed, nil
}

// FailStale fails jobs that have been processing since before cutoff, e.g. after a worker crash.
// This is a forward transition; the article can then be re-enqueued.
func (s *EmbeddingJobsService) FailStale(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.jobs.FailStale(ctx, cutoff, "processing abandoned")
	if err != nil {
		return 0, fmt.Errorf("fail stale embedding jobs: %w", err)
	}

	if n > 0 {
		s.logger.WarnContext(ctx, "embedding: failed abandoned jobs", "count", n)

		if s.metrics != nil {
			s.metrics.RecordAbandoned(ctx, n)
		}
	}

	return n, nil
}

// Get returns a job by ID.
func (s *EmbeddingJobsService) Get(ctx context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get embedding job: %w", err)
	}

	return job, nil
}

// Backfill enqueues jobs for up to limit published articles missing an embedding for the model.
// It returns the number of jobs inserted.
func (s *EmbeddingJobsService) Backfill(ctx context.Context, limit int) (int, error) {
	ids, err := s.jobs.ListArticlesMissingEmbeddings(ctx, s.model, limit)
	if err != nil {
		return 0, fmt.Errorf("list articles missing embeddings: %w", err)
	}

	inserted := 0

	for _, id := range ids {
		_, created, err := s.enqueue(ctx, id, observability.EnqueueSourceBackfill)
		if err != nil {
			return inserted, err
		}

		if created {
			inserted++
		}
	}

	if inserted > 0 {
		s.notify(ctx)
	}

	return inserted, nil
}

// finishError marks failures to record a job's terminal state; the job may be left processing.
type finishError struct{ err error }

func (e *finishError) Error() string { return e.err.Error() }
func (e *finishError) Unwrap() error { return e.err }

func isFinishError(err error) bool {
	var fe *finishError

	return errors.As(err, &fe)
}

// process embeds a claimed job's article and moves the job to completed or failed. It returns the finished
// job, the vector size on success, and the cause on failure.
func (s *EmbeddingJobsService) process(ctx context.Context, job *models.EmbeddingJob) (*models.EmbeddingJob, int, error) {
	ctx, span := observability.Tracer().Start(ctx, "embedding.ProcessJob")
	defer span.End()

	start := time.Now()
	logger := s.logger.With("job_id", job.ID, "article_id", job.ArticleID)

	vector, reason, err := s.embedArticle(ctx, job.ArticleID)
	if err != nil {
		observability.FailSpan(span, err, reason)

		return s.fail(ctx, logger, job, reason, err, start)
	}

	// Terminal writes outlive caller cancellation so a claimed job is not stranded in processing.
	finishCtx := context.WithoutCancel(ctx)

	if err := s.embeddings.Upsert(finishCtx, job.ArticleID, s.model, vector); err != nil {
		return s.fail(ctx, logger, job, "store_failed", fmt.Errorf("store embedding: %w", err), start)
	}

	done, err := s.jobs.Complete(finishCtx, job.ID)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordWorkerError(ctx, "finish_failed")
		}

		logger.ErrorContext(ctx, "embedding: complete job failed", "error", err)

		return job, 0, &finishError{err: fmt.Errorf("complete embedding job: %w", err)}
	}

	if s.onStored != nil {
		s.onStored()
	}

	if s.metrics != nil {
		s.metrics.RecordJobFinished(ctx, string(models.EmbeddingJobCompleted), time.Since(start))
	}

	logger.InfoContext(ctx, "embedding: stored", "dimensions", len(vector), "duration", time.Since(start))

	return done, len(vector), nil
}

func (s *EmbeddingJobsService) embedArticle(ctx context.Context, articleID uuid.UUID) ([]float32, string, error) {
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return nil, "get_article", fmt.Errorf("load article: %w", err)
	}

	input := BuildEmbeddingInput(article, s.maxInputRunes)
	if input == "" {
		return nil, "empty_input", ErrEmptyArticleText
	}

	vector, err := s.embedder.CreateEmbedding(ctx, input)
	if err != nil {
		return nil, "provider_failed", fmt.Errorf("create embedding: %w", err)
	}

	return vector, "", nil
}

func (s *EmbeddingJobsService) fail(
	ctx context.Context, logger *slog.Logger, job *models.EmbeddingJob, reason string, cause error, start time.Time,
) (*models.EmbeddingJob, int, error) {
	if s.metrics != nil {
		s.metrics.RecordWorkerError(ctx, reason)
	}

	logger.WarnContext(ctx, "embedding: job failed", "reason", reason, "error", cause)

	failed, err := s.jobs.Fail(context.WithoutCancel(ctx), job.ID, cause.Error())
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordWorkerError(ctx, "finish_failed")
		}

		logger.ErrorContext(ctx, "embedding: fail job failed", "error", err)

		return job, 0, &finishError{err: fmt.Errorf("fail embedding job: %w", errors.Join(cause, err))}
	}

	if s.metrics != nil {
		s.metrics.RecordJobFinished(ctx, string(models.EmbeddingJobFailed), time.Since(start))
	}

	return failed, 0, cause
}

// BuildEmbeddingInput joins the article's title, summary and body with blank lines and truncates the result
// to maxRunes runes. It returns "" when the article has no text.
func BuildEmbeddingInput(a *models.Article, maxRunes int) string {
	parts := make([]string, 0, 3)

	for _, p := range []string{a.Title, a.Summary, a.Body} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	input := strings.Join(parts, "\n\n")

	if maxRunes > 0 && utf8.RuneCountInString(input) > maxRunes {
		input = strings.TrimSpace(string([]rune(input)[:maxRunes]))
	}

	return input
}

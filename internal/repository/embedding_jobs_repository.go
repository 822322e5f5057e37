package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsdesk/search/internal/apperrors"
	"github.com/newsdesk/search/internal/models"
)

var (
	// ErrNoPendingJob is returned by the claim operations when there is nothing to claim.
	ErrNoPendingJob = errors.New("no pending embedding job")
	// ErrInvalidJobTransition is returned when a job is not in the state the transition requires.
	ErrInvalidJobTransition = apperrors.Conflict("invalid embedding job transition")
)

// pgForeignKeyViolation is the SQLSTATE for foreign_key_violation.
const pgForeignKeyViolation = "23503"

// enqueueAttempts bounds the insert/lookup race where the active job finishes between the two statements.
const enqueueAttempts = 3

const jobColumns = `id, article_id, status, error_message, created_at, processed_at`

// EmbeddingJobsRepository is the persistence side of the embedding job queue.
// All transitions are conditional updates, so concurrent workers never observe or cause a backward move.
type EmbeddingJobsRepository struct {
	db *pgxpool.Pool
}

// NewEmbeddingJobsRepository creates a new embedding jobs repository.
func NewEmbeddingJobsRepository(db *pgxpool.Pool) *EmbeddingJobsRepository {
	return &EmbeddingJobsRepository{db: db}
}

func scanJob(row pgx.Row) (*models.EmbeddingJob, error) {
	var job models.EmbeddingJob

	if err := row.Scan(
		&job.ID, &job.ArticleID, &job.Status, &job.ErrorMessage, &job.CreatedAt, &job.ProcessedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	return &job, nil
}

// Enqueue inserts a pending job for the article. When the article already has a pending or processing job,
// that job is returned and created is false. Returns a NotFoundError when the article does not exist.
func (r *EmbeddingJobsRepository) Enqueue(
	ctx context.Context, articleID uuid.UUID,
) (job *models.EmbeddingJob, created bool, err error) {
	for range enqueueAttempts {
		job, err = scanJob(r.db.QueryRow(ctx, `
			INSERT INTO embedding_jobs (article_id)
			VALUES ($1)
			ON CONFLICT (article_id) WHERE status IN ('pending', 'processing') DO NOTHING
			RETURNING `+jobColumns, articleID))
		if err == nil {
			return job, true, nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, false, apperrors.NotFound("article")
		}

		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("enqueue embedding job: %w", err)
		}

		job, err = r.activeForArticle(ctx, articleID)
		if err == nil {
			return job, false, nil
		}

		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, false, fmt.Errorf("load active embedding job: %w", err)
		}
	}

	return nil, false, fmt.Errorf("enqueue embedding job for article %s: active job changed concurrently", articleID)
}

func (r *EmbeddingJobsRepository) activeForArticle(ctx context.Context, articleID uuid.UUID) (*models.EmbeddingJob, error) {
	return scanJob(r.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM embedding_jobs
		WHERE article_id = $1 AND status IN ('pending', 'processing')`, articleID))
}

// ClaimNext atomically moves the oldest pending job to processing and stamps processed_at.
// Rows locked by another claimer are skipped, so no two callers receive the same job.
// Returns ErrNoPendingJob when the queue is empty.
func (r *EmbeddingJobsRepository) ClaimNext(ctx context.Context) (*models.EmbeddingJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `
		UPDATE embedding_jobs
		SET status = 'processing', processed_at = clock_timestamp()
		WHERE status = 'pending'
		  AND id = (
		    SELECT id FROM embedding_jobs
		    WHERE status = 'pending'
		    ORDER BY created_at, id
		    LIMIT 1
		    FOR UPDATE SKIP LOCKED
		  )
		RETURNING `+jobColumns))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPendingJob
		}

		return nil, fmt.Errorf("claim embedding job: %w", err)
	}

	return job, nil
}

// ClaimForArticle is ClaimNext restricted to one article's pending job.
func (r *EmbeddingJobsRepository) ClaimForArticle(ctx context.Context, articleID uuid.UUID) (*models.EmbeddingJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `
		UPDATE embedding_jobs
		SET status = 'processing', processed_at = clock_timestamp()
		WHERE status = 'pending'
		  AND id = (
		    SELECT id FROM embedding_jobs
		    WHERE status = 'pending' AND article_id = $1
		    ORDER BY created_at, id
		    LIMIT 1
		    FOR UPDATE SKIP LOCKED
		  )
		RETURNING `+jobColumns, articleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPendingJob
		}

		return nil, fmt.Errorf("claim embedding job for article: %w", err)
	}

	return job, nil
}

// Complete moves a processing job to completed.
func (r *EmbeddingJobsRepository) Complete(ctx context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error) {
	return r.finish(ctx, jobID, models.EmbeddingJobCompleted, nil)
}

// Fail moves a processing job to failed and records errorMessage. The job is not retried.
func (r *EmbeddingJobsRepository) Fail(
	ctx context.Context, jobID uuid.UUID, errorMessage string,
) (*models.EmbeddingJob, error) {
	return r.finish(ctx, jobID, models.EmbeddingJobFailed, &errorMessage)
}

func (r *EmbeddingJobsRepository) finish(
	ctx context.Context, jobID uuid.UUID, status models.EmbeddingJobStatus, errorMessage *string,
) (*models.EmbeddingJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `
		UPDATE embedding_jobs
		SET status = $2, error_message = $3, processed_at = clock_timestamp()
		WHERE id = $1 AND status = 'processing'
		RETURNING `+jobColumns, jobID, status, errorMessage))
	if err == nil {
		return job, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mark embedding job %s: %w", status, err)
	}

	// Distinguish a missing job from one in the wrong state.
	current, getErr := r.Get(ctx, jobID)
	if getErr != nil {
		return nil, getErr
	}

	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidJobTransition, current.Status, status)
}

// FailStale moves jobs that have been processing since before startedBefore to failed and returns how many
// were moved. It recovers jobs whose worker died between claim and finish.
func (r *EmbeddingJobsRepository) FailStale(
	ctx context.Context, startedBefore time.Time, errorMessage string,
) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE embedding_jobs
		SET status = 'failed', error_message = $2, processed_at = clock_timestamp()
		WHERE status = 'processing' AND processed_at < $1`, startedBefore, errorMessage)
	if err != nil {
		return 0, fmt.Errorf("fail stale embedding jobs: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Get retrieves a job by ID.
func (r *EmbeddingJobsRepository) Get(ctx context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error) {
	job, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM embedding_jobs WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("embedding job")
		}

		return nil, fmt.Errorf("get embedding job: %w", err)
	}

	return job, nil
}

// CountPending returns the number of pending jobs.
func (r *EmbeddingJobsRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64

	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM embedding_jobs WHERE status = 'pending'`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending embedding jobs: %w", err)
	}

	return n, nil
}

// ListArticlesMissingEmbeddings returns up to limit published articles that have no embedding for model
// and no active job, oldest first.
func (r *EmbeddingJobsRepository) ListArticlesMissingEmbeddings(
	ctx context.Context, model string, limit int,
) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id FROM articles a
		WHERE a.published_at IS NOT NULL
		  AND a.published_at <= now()
		  AND NOT EXISTS (
		    SELECT 1 FROM article_embeddings e
		    WHERE e.article_id = a.id AND e.model = $1
		  )
		  AND NOT EXISTS (
		    SELECT 1 FROM embedding_jobs j
		    WHERE j.article_id = a.id AND j.status IN ('pending', 'processing')
		  )
		ORDER BY a.published_at, a.id
		LIMIT $2`, model, limit)
	if err != nil {
		return nil, fmt.Errorf("list articles missing embeddings: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan article id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating articles missing embeddings: %w", err)
	}

	return ids, nil
}

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/newsdesk/search/internal/api/response"
	"github.com/newsdesk/search/internal/api/validation"
	"github.com/newsdesk/search/internal/apperrors"
	"github.com/newsdesk/search/internal/embedding"
	"github.com/newsdesk/search/internal/models"
	"github.com/newsdesk/search/internal/service"
)

// EmbeddingJobsService is the embedding job queue as seen by the API.
type EmbeddingJobsService interface {
	Enqueue(ctx context.Context, articleID uuid.UUID) (*models.EmbeddingJob, bool, error)
	Trigger(ctx context.Context, articleID uuid.UUID) (*service.TriggerResult, error)
	Get(ctx context.Context, jobID uuid.UUID) (*models.EmbeddingJob, error)
}

// EmbeddingsHandler handles embedding generation requests.
type EmbeddingsHandler struct {
	service EmbeddingJobsService
}

// NewEmbeddingsHandler creates an embeddings handler.
func NewEmbeddingsHandler(service EmbeddingJobsService) *EmbeddingsHandler {
	return &EmbeddingsHandler{service: service}
}

// EmbedArticleRequest is the body for POST /v1/embeddings and POST /v1/embeddings/jobs.
type EmbedArticleRequest struct {
	ArticleID string `json:"article_id" validate:"required,uuid"`
}

// EmbedArticleResponse is the result of POST /v1/embeddings.
type EmbedArticleResponse struct {
	Success             bool       `json:"success"`
	ArticleID           *uuid.UUID `json:"article_id,omitempty"`
	JobID               *uuid.UUID `json:"job_id,omitempty"`
	EmbeddingDimensions *int       `json:"embedding_dimensions,omitempty"`
	Error               string     `json:"error,omitempty"`
}

// Embed handles POST /v1/embeddings. The job is processed synchronously when it can be claimed here (200);
// when another worker holds it, it stays queued (202).
func (h *EmbeddingsHandler) Embed(w http.ResponseWriter, r *http.Request) {
	articleID, ok := decodeArticleID(w, r, true)
	if !ok {
		return
	}

	res, err := h.service.Trigger(r.Context(), articleID)
	if err != nil && (res == nil || res.Job == nil) {
		status, msg := embedErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "embedding: trigger failed", "article_id", articleID, "error", err)
		}

		response.RespondJSON(w, status, EmbedArticleResponse{ArticleID: &articleID, Error: msg})

		return
	}

	jobID := res.Job.ID

	if err != nil {
		status, msg := embedErrorStatus(err)
		response.RespondJSON(w, status, EmbedArticleResponse{ArticleID: &articleID, JobID: &jobID, Error: msg})

		return
	}

	if !res.Processed {
		response.RespondJSON(w, http.StatusAccepted, EmbedArticleResponse{
			Success: true, ArticleID: &articleID, JobID: &jobID,
		})

		return
	}

	dims := res.Dimensions
	response.RespondJSON(w, http.StatusOK, EmbedArticleResponse{
		Success: true, ArticleID: &articleID, JobID: &jobID, EmbeddingDimensions: &dims,
	})
}

// EnqueueJob handles POST /v1/embeddings/jobs. It only enqueues; a drain processes the job later.
func (h *EmbeddingsHandler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	articleID, ok := decodeArticleID(w, r, false)
	if !ok {
		return
	}

	job, _, err := h.service.Enqueue(r.Context(), articleID)
	if err != nil {
		respondServiceError(w, r, err, "embedding: enqueue failed", "article_id", articleID)

		return
	}

	response.RespondJSON(w, http.StatusAccepted, job)
}

// GetJob handles GET /v1/embeddings/jobs/{id}.
func (h *EmbeddingsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.RespondBadRequest(w, "Invalid job ID format")

		return
	}

	job, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		respondServiceError(w, r, err, "embedding: get job failed", "job_id", jobID)

		return
	}

	response.RespondJSON(w, http.StatusOK, job)
}

// decodeArticleID reads {article_id}. Errors are written as {success:false} for the synchronous endpoint
// and as problem details otherwise.
func decodeArticleID(w http.ResponseWriter, r *http.Request, envelope bool) (uuid.UUID, bool) {
	var req EmbedArticleRequest

	if err := validation.BindJSON(r, &req); err != nil {
		if envelope {
			response.RespondJSON(w, http.StatusBadRequest, EmbedArticleResponse{Error: err.Error()})
		} else {
			validation.Respond(w, err)
		}

		return uuid.Nil, false
	}

	return uuid.MustParse(req.ArticleID), true
}

// respondServiceError writes application errors as problem details with their own status and message,
// and anything else as a logged 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string, logAttrs ...any) {
	status := apperrors.Status(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), logMsg, append(logAttrs, "error", err)...)
		response.RespondInternalServerError(w, "An unexpected error occurred")

		return
	}

	response.RespondError(w, status, http.StatusText(status), apperrors.PublicMessage(err, ""))
}

func embedErrorStatus(err error) (int, string) {
	if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
		return http.StatusBadGateway, "embedding provider unavailable"
	}

	status := apperrors.Status(err)

	return status, apperrors.PublicMessage(err, "embedding failed")
}

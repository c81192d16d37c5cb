package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jobboard/server/internal/api/middleware"
	"github.com/jobboard/server/internal/api/render"
	"github.com/jobboard/server/internal/domain/jobs"
	"github.com/jobboard/server/internal/metrics"
)

const (
	jobPostedMessage      = "Job posted successfully"
	appliedMessage        = "Applied successfully"
	alreadyAppliedMessage = "Already applied"
	jobNotFoundMessage    = "Job not found"
	unknownUserMessage    = "Access Denied"
)

type JobService interface {
	Create(ctx context.Context, postedBy, title, description string) (jobs.Job, error)
	List(ctx context.Context) ([]jobs.Job, error)
	Apply(ctx context.Context, jobID, userID string) (jobs.ApplyResult, error)
}

type JobsHandler struct {
	jobs      JobService
	validator *validator.Validate
}

func NewJobsHandler(jobService JobService) *JobsHandler {
	return &JobsHandler{jobs: jobService, validator: newValidator()}
}

type createJobRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=10000"`
}

type createJobResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type jobResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	PostedBy    string   `json:"postedBy"`
	Applicants  []string `json:"applicants"`
}

func toJobResponse(job jobs.Job) jobResponse {
	applicants := job.Applicants
	if applicants == nil {
		applicants = []string{}
	}
	return jobResponse{
		ID:          job.ID,
		Title:       job.Title,
		Description: job.Description,
		PostedBy:    job.PostedBy,
		Applicants:  applicants,
	}
}

// Create handles POST /jobs.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		render.Message(w, r, http.StatusUnauthorized, unknownUserMessage, nil)
		return
	}

	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		render.Error(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		render.Error(w, r, http.StatusBadRequest, validationError(err))
		return
	}

	job, err := h.jobs.Create(r.Context(), userID, req.Title, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrInvalidInput):
			render.Error(w, r, http.StatusBadRequest, err)
		case errors.Is(err, jobs.ErrUnknownUser):
			metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
			render.Message(w, r, http.StatusUnauthorized, unknownUserMessage, err)
		default:
			render.Error(w, r, http.StatusInternalServerError, err)
		}
		return
	}

	render.JSON(w, r, http.StatusCreated, createJobResponse{Message: jobPostedMessage, ID: job.ID})
}

// List handles GET /jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.jobs.List(r.Context())
	if err != nil {
		render.Error(w, r, http.StatusInternalServerError, err)
		return
	}

	out := make([]jobResponse, 0, len(list))
	for _, job := range list {
		out = append(out, toJobResponse(job))
	}
	render.JSON(w, r, http.StatusOK, out)
}

// Apply handles POST /jobs/{id}/apply.
func (h *JobsHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		render.Message(w, r, http.StatusUnauthorized, unknownUserMessage, nil)
		return
	}

	result, err := h.jobs.Apply(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			render.Message(w, r, http.StatusNotFound, jobNotFoundMessage, err)
		case errors.Is(err, jobs.ErrUnknownUser):
			metrics.AuthFailures.WithLabelValues("unknown_user").Inc()
			render.Message(w, r, http.StatusUnauthorized, unknownUserMessage, err)
		default:
			render.Error(w, r, http.StatusInternalServerError, err)
		}
		return
	}

	if !result.Added {
		render.Message(w, r, http.StatusOK, alreadyAppliedMessage, nil)
		return
	}
	render.Message(w, r, http.StatusOK, appliedMessage, nil)
}

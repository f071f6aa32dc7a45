package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/atmoslabs/simbatch/internal/errors"
	"github.com/atmoslabs/simbatch/internal/server/middleware"
	"github.com/atmoslabs/simbatch/pkg/job"
	"github.com/atmoslabs/simbatch/pkg/jobstore"
	"github.com/atmoslabs/simbatch/pkg/orchestrator"
)

// Jobs exposes the job lifecycle over HTTP.
type Jobs struct {
	orch *orchestrator.Orchestrator
	log  *zap.Logger
}

func NewJobs(orch *orchestrator.Orchestrator, log *zap.Logger) *Jobs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Jobs{orch: orch, log: log}
}

// SubmitResponse is the POST /jobs body.
type SubmitResponse struct {
	JobID  string     `json:"job_id"`
	Status job.Status `json:"status"`
}

// ListResponse is the GET /jobs body.
type ListResponse struct {
	Jobs          []job.Job `json:"jobs"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

// Submit handles POST /jobs.
func (h *Jobs) Submit(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerID(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var spec job.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		apperrors.Write(w, http.StatusBadRequest, apperrors.CodeBadRequest,
			"malformed job spec: "+err.Error(), requestID)
		return
	}

	j, err := h.orch.Submit(r.Context(), caller, spec)
	if err != nil {
		h.log.Warn("submit rejected",
			zap.String("caller", caller),
			zap.String("request_id", requestID),
			zap.Error(err))
		apperrors.RespondWithError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(SubmitResponse{JobID: j.ID, Status: j.Status})
}

// List handles GET /jobs.
func (h *Jobs) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerID(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	opts := jobstore.ListOptions{
		PageToken: r.URL.Query().Get("pageToken"),
	}
	if s := r.URL.Query().Get("status"); s != "" {
		status := job.Status(s)
		if !status.Valid() {
			apperrors.Write(w, http.StatusBadRequest, apperrors.CodeBadRequest,
				"unknown status filter "+strconv.Quote(s), requestID)
			return
		}
		opts.Status = status
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			apperrors.Write(w, http.StatusBadRequest, apperrors.CodeBadRequest,
				"limit must be a non-negative integer", requestID)
			return
		}
		opts.Limit = n
	}

	jobs, next, err := h.orch.List(r.Context(), caller, opts)
	if err != nil {
		h.log.Error("list jobs", zap.String("caller", caller), zap.Error(err))
		apperrors.RespondWithError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ListResponse{Jobs: jobs, NextPageToken: next})
}

// Get handles GET /jobs/{id}.
func (h *Jobs) Get(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerID(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	j, err := h.orch.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		apperrors.RespondWithError(w, requestID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(j)
}

// Cancel handles POST /jobs/{id}/cancel.
func (h *Jobs) Cancel(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerID(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	outcome, err := h.orch.Cancel(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		apperrors.RespondWithError(w, requestID, err)
		return
	}

	// TooLate is a successful no-op: the job finished on its own terms
	// while the cancel was in flight, and the body shows where it landed.
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(SubmitResponse{JobID: outcome.Job.ID, Status: outcome.Job.Status})
}

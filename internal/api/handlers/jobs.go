package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/ckr-digital/ridgeline/internal/api"
	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/go-chi/chi/v5"
)

type JobService interface {
	GetJob(ctx context.Context, id string) (*domain.EmbeddingJob, error)
	ListJobs(ctx context.Context, input service.ListJobsInput) (*service.ListJobsOutput, error)
	Overview(ctx context.Context, limit int) (*service.JobOverview, error)
	RequestCancel(ctx context.Context, id string) error
}

type JobHandler struct {
	svc JobService
}

func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{svc: svc}
}

type JobResponse struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"`
	FileKey         string            `json:"file_key,omitempty"`
	Status          string            `json:"status"`
	TotalChunks     int32             `json:"total_chunks"`
	ProcessedChunks int32             `json:"processed_chunks"`
	Progress        int               `json:"progress"`
	ErrorLog        []domain.JobError `json:"error_log"`
	CancelRequested bool              `json:"cancel_requested"`
	CreatedAt       string            `json:"created_at"`
	StartedAt       string            `json:"started_at,omitempty"`
	CompletedAt     string            `json:"completed_at,omitempty"`
}

func jobToResponse(j *domain.EmbeddingJob) *JobResponse {
	resp := &JobResponse{
		ID:              j.ID,
		Type:            string(j.Type),
		FileKey:         j.FileKey,
		Status:          string(j.Status),
		TotalChunks:     j.TotalChunks,
		ProcessedChunks: j.ProcessedChunks,
		Progress:        j.Progress(),
		ErrorLog:        j.ErrorLog,
		CancelRequested: j.CancelRequested,
		CreatedAt:       j.CreatedAt.Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		resp.StartedAt = j.StartedAt.Format(time.RFC3339)
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.svc.GetJob(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, jobToResponse(job))
}

type JobListResponse struct {
	Items   []*JobResponse `json:"items"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 0
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	input := service.ListJobsInput{
		Status: domain.JobStatus(status),
		Cursor: cursor,
		Limit:  limit,
	}

	output, err := h.svc.ListJobs(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*JobResponse, len(output.Items))
	for i, j := range output.Items {
		responses[i] = jobToResponse(j)
	}

	api.Success(w, http.StatusOK, JobListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}

type JobOverviewResponse struct {
	Active    []*JobResponse `json:"active"`
	Completed []*JobResponse `json:"completed"`
	Failed    []*JobResponse `json:"failed"`
}

func (h *JobHandler) Overview(w http.ResponseWriter, r *http.Request) {
	limitStr := r.URL.Query().Get("limit")
	limit := 0
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	overview, err := h.svc.Overview(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, JobOverviewResponse{
		Active:    jobsToResponses(overview.Active),
		Completed: jobsToResponses(overview.Completed),
		Failed:    jobsToResponses(overview.Failed),
	})
}

func jobsToResponses(jobs []*domain.EmbeddingJob) []*JobResponse {
	responses := make([]*JobResponse, len(jobs))
	for i, j := range jobs {
		responses[i] = jobToResponse(j)
	}
	return responses
}

func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.RequestCancel(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancel_requested"})
}

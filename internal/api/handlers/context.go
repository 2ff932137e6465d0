package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ckr-digital/ridgeline/internal/api"
	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/go-chi/chi/v5"
)

type ContextService interface {
	BuildContext(ctx context.Context, input service.BuildInput) *service.BuildResult
	Assign(ctx context.Context, a *domain.KnowledgeAssignment) error
	Unassign(ctx context.Context, functionName, fileKey string) error
	ListAssignments(ctx context.Context, functionName string) ([]*domain.KnowledgeAssignment, error)
}

type ContextHandler struct {
	svc ContextService
}

func NewContextHandler(svc ContextService) *ContextHandler {
	return &ContextHandler{svc: svc}
}

type BuildContextRequest struct {
	CustomPrompt string `json:"custom_prompt"`
}

func (h *ContextHandler) Build(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")
	if function == "" {
		api.Error(w, http.StatusBadRequest, "function is required")
		return
	}

	var req BuildContextRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result := h.svc.BuildContext(r.Context(), service.BuildInput{
		Function:     function,
		CustomPrompt: req.CustomPrompt,
	})

	api.Success(w, http.StatusOK, result)
}

type AssignRequest struct {
	FileKey   string `json:"file_key"`
	LoadOrder int32  `json:"load_order"`
	Required  bool   `json:"required"`
}

type AssignmentResponse struct {
	FunctionName string `json:"function_name"`
	FileKey      string `json:"file_key"`
	LoadOrder    int32  `json:"load_order"`
	Required     bool   `json:"required"`
}

func assignmentToResponse(a *domain.KnowledgeAssignment) *AssignmentResponse {
	return &AssignmentResponse{
		FunctionName: a.FunctionName,
		FileKey:      a.FileKey,
		LoadOrder:    a.LoadOrder,
		Required:     a.Required,
	}
}

func (h *ContextHandler) Assign(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")
	if function == "" {
		api.Error(w, http.StatusBadRequest, "function is required")
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.FileKey == "" {
		api.Error(w, http.StatusBadRequest, "file_key is required")
		return
	}

	assignment := &domain.KnowledgeAssignment{
		FunctionName: function,
		FileKey:      req.FileKey,
		LoadOrder:    req.LoadOrder,
		Required:     req.Required,
	}

	if err := h.svc.Assign(r.Context(), assignment); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, assignmentToResponse(assignment))
}

func (h *ContextHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")
	fileKey := chi.URLParam(r, "fileKey")
	if function == "" || fileKey == "" {
		api.Error(w, http.StatusBadRequest, "function and file_key are required")
		return
	}

	if err := h.svc.Unassign(r.Context(), function, fileKey); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"function_name": function, "file_key": fileKey, "status": "unassigned"})
}

type AssignmentListResponse struct {
	Items []*AssignmentResponse `json:"items"`
}

func (h *ContextHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	function := chi.URLParam(r, "function")
	if function == "" {
		api.Error(w, http.StatusBadRequest, "function is required")
		return
	}

	assignments, err := h.svc.ListAssignments(r.Context(), function)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*AssignmentResponse, len(assignments))
	for i, a := range assignments {
		responses[i] = assignmentToResponse(a)
	}

	api.Success(w, http.StatusOK, AssignmentListResponse{Items: responses})
}

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

type IngestService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
	GetFile(ctx context.Context, fileKey string) (*domain.KnowledgeFile, error)
	ListFiles(ctx context.Context) ([]*domain.KnowledgeFile, error)
	DeactivateFile(ctx context.Context, fileKey string) error
	ReembedFile(ctx context.Context, fileKey string) (*domain.EmbeddingJob, error)
}

type KnowledgeHandler struct {
	svc IngestService
}

func NewKnowledgeHandler(svc IngestService) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc}
}

type IngestRequest struct {
	FileKey  string `json:"file_key"`
	FileName string `json:"file_name"`
	Content  string `json:"content"`
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Priority int32  `json:"priority"`
}

type FileResponse struct {
	FileKey   string `json:"file_key"`
	FileName  string `json:"file_name"`
	Kind      string `json:"kind"`
	Category  string `json:"category"`
	Priority  int32  `json:"priority"`
	Active    bool   `json:"active"`
	Version   int32  `json:"version"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func fileToResponse(f *domain.KnowledgeFile) *FileResponse {
	return &FileResponse{
		FileKey:   f.FileKey,
		FileName:  f.FileName,
		Kind:      string(f.Kind),
		Category:  f.Category,
		Priority:  f.Priority,
		Active:    f.Active,
		Version:   f.Version,
		CreatedAt: f.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt: f.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

type IngestResponse struct {
	File       *FileResponse `json:"file"`
	ChunkCount int           `json:"chunk_count"`
	Unchanged  bool          `json:"unchanged"`
	Job        *JobResponse  `json:"job,omitempty"`
}

func (h *KnowledgeHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.FileKey == "" {
		api.Error(w, http.StatusBadRequest, "file_key is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	kind := domain.ContentKind(req.Kind)
	if req.Kind == "" {
		kind = domain.ContentKindText
	}

	input := service.IngestInput{
		FileKey:  req.FileKey,
		FileName: req.FileName,
		Content:  req.Content,
		Kind:     kind,
		Category: req.Category,
		Priority: req.Priority,
	}

	result, err := h.svc.Ingest(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := IngestResponse{
		File:       fileToResponse(result.File),
		ChunkCount: result.ChunkCount,
		Unchanged:  result.Unchanged,
	}
	if result.Job != nil {
		resp.Job = jobToResponse(result.Job)
	}

	status := http.StatusCreated
	if result.Unchanged {
		status = http.StatusOK
	}
	api.Success(w, status, resp)
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "fileKey")
	if fileKey == "" {
		api.Error(w, http.StatusBadRequest, "file_key is required")
		return
	}

	file, err := h.svc.GetFile(r.Context(), fileKey)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, fileToResponse(file))
}

type FileListResponse struct {
	Items []*FileResponse `json:"items"`
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.ListFiles(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*FileResponse, len(files))
	for i, f := range files {
		responses[i] = fileToResponse(f)
	}

	api.Success(w, http.StatusOK, FileListResponse{Items: responses})
}

func (h *KnowledgeHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "fileKey")
	if fileKey == "" {
		api.Error(w, http.StatusBadRequest, "file_key is required")
		return
	}

	if err := h.svc.DeactivateFile(r.Context(), fileKey); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"file_key": fileKey, "status": "deactivated"})
}

func (h *KnowledgeHandler) Reembed(w http.ResponseWriter, r *http.Request) {
	fileKey := chi.URLParam(r, "fileKey")

	job, err := h.svc.ReembedFile(r.Context(), fileKey)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, jobToResponse(job))
}

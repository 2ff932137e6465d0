package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ckr-digital/ridgeline/internal/api/handlers"
	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestResult), args.Error(1)
}

func (m *MockIngestService) GetFile(ctx context.Context, fileKey string) (*domain.KnowledgeFile, error) {
	args := m.Called(ctx, fileKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeFile), args.Error(1)
}

func (m *MockIngestService) ListFiles(ctx context.Context) ([]*domain.KnowledgeFile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeFile), args.Error(1)
}

func (m *MockIngestService) DeactivateFile(ctx context.Context, fileKey string) error {
	args := m.Called(ctx, fileKey)
	return args.Error(0)
}

func (m *MockIngestService) ReembedFile(ctx context.Context, fileKey string) (*domain.EmbeddingJob, error) {
	args := m.Called(ctx, fileKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingJob), args.Error(1)
}

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) GetJob(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingJob), args.Error(1)
}

func (m *MockJobService) ListJobs(ctx context.Context, input service.ListJobsInput) (*service.ListJobsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListJobsOutput), args.Error(1)
}

func (m *MockJobService) Overview(ctx context.Context, limit int) (*service.JobOverview, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.JobOverview), args.Error(1)
}

func (m *MockJobService) RequestCancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchOutput), args.Error(1)
}

type MockContextService struct {
	mock.Mock
}

func (m *MockContextService) BuildContext(ctx context.Context, input service.BuildInput) *service.BuildResult {
	args := m.Called(ctx, input)
	return args.Get(0).(*service.BuildResult)
}

func (m *MockContextService) Assign(ctx context.Context, a *domain.KnowledgeAssignment) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockContextService) Unassign(ctx context.Context, functionName, fileKey string) error {
	args := m.Called(ctx, functionName, fileKey)
	return args.Error(0)
}

func (m *MockContextService) ListAssignments(ctx context.Context, functionName string) ([]*domain.KnowledgeAssignment, error) {
	args := m.Called(ctx, functionName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeAssignment), args.Error(1)
}

type MockStatsService struct {
	mock.Mock
}

func (m *MockStatsService) Stats(ctx context.Context) (*service.KnowledgeStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.KnowledgeStats), args.Error(1)
}

func setupRouter() (http.Handler, *MockIngestService, *MockJobService, *MockSearchService, *MockContextService, *MockStatsService) {
	ingestSvc := new(MockIngestService)
	jobSvc := new(MockJobService)
	searchSvc := new(MockSearchService)
	contextSvc := new(MockContextService)
	statsSvc := new(MockStatsService)

	cfg := RouterConfig{
		KnowledgeHandler: handlers.NewKnowledgeHandler(ingestSvc),
		JobHandler:       handlers.NewJobHandler(jobSvc),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
		ContextHandler:   handlers.NewContextHandler(contextSvc),
		StatsHandler:     handlers.NewStatsHandler(statsSvc),
	}

	router := NewRouter(cfg)
	return router, ingestSvc, jobSvc, searchSvc, contextSvc, statsSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_FileRoutes(t *testing.T) {
	router, ingestSvc, _, _, _, _ := setupRouter()

	now := time.Now().UTC()
	file := &domain.KnowledgeFile{
		FileKey: "MKF_02", FileName: "Services", Kind: domain.ContentKindText,
		Active: true, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	ingestSvc.On("GetFile", mock.Anything, "MKF_02").Return(file, nil)

	req := httptest.NewRequest(http.MethodGet, "/knowledge/files/MKF_02", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	ingestSvc.AssertExpectations(t)
}

func TestRouter_JobRoutes(t *testing.T) {
	router, _, jobSvc, _, _, _ := setupRouter()

	job := &domain.EmbeddingJob{
		ID: "job-1", Type: domain.JobTypeFull, Status: domain.JobStatusPending,
		ErrorLog: []domain.JobError{}, CreatedAt: time.Now().UTC(),
	}
	jobSvc.On("GetJob", mock.Anything, "job-1").Return(job, nil)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	jobSvc.AssertExpectations(t)
}

func TestRouter_SearchRoute(t *testing.T) {
	router, _, _, searchSvc, _, _ := setupRouter()

	searchSvc.On("Search", mock.Anything, mock.Anything).Return(&service.SearchOutput{
		Query:   "ridge capping",
		Matches: []*service.SearchMatch{},
	}, nil)

	body := `{"query":"ridge capping"}`
	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	searchSvc.AssertExpectations(t)
}

func TestRouter_ContextRoute(t *testing.T) {
	router, _, _, _, contextSvc, _ := setupRouter()

	contextSvc.On("BuildContext", mock.Anything, service.BuildInput{Function: "quote-assistant"}).Return(&service.BuildResult{
		Function:    "quote-assistant",
		Text:        "ctx",
		GeneratedAt: time.Now().UTC(),
	})

	req := httptest.NewRequest(http.MethodPost, "/context/quote-assistant", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	contextSvc.AssertExpectations(t)
}

func TestRouter_BodyLimitEnforced(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodPost, "/search", bytes.NewReader([]byte(`{}`)))
	req.ContentLength = 10 * 1024 * 1024
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

// MockEmbedChunkRepository is a mock implementation of EmbedChunkRepository
type MockEmbedChunkRepository struct {
	mock.Mock
}

func (m *MockEmbedChunkRepository) ListUnembedded(ctx context.Context, fileKey string) ([]*domain.Chunk, error) {
	args := m.Called(ctx, fileKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockEmbedChunkRepository) SetEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	args := m.Called(ctx, chunkID, embedding)
	return args.Error(0)
}

func (m *MockEmbedChunkRepository) ClearEmbeddings(ctx context.Context, fileKey string) error {
	args := m.Called(ctx, fileKey)
	return args.Error(0)
}

// MockJobControl is a mock implementation of JobControl
type MockJobControl struct {
	mock.Mock
}

func (m *MockJobControl) GetJob(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingJob), args.Error(1)
}

func (m *MockJobControl) StartProcessing(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobControl) SetTotal(ctx context.Context, id string, total int32) error {
	args := m.Called(ctx, id, total)
	return args.Error(0)
}

func (m *MockJobControl) RecordProgress(ctx context.Context, id string, processed int32) error {
	args := m.Called(ctx, id, processed)
	return args.Error(0)
}

func (m *MockJobControl) RecordErrors(ctx context.Context, id string, entries []domain.JobError) error {
	args := m.Called(ctx, id, entries)
	return args.Error(0)
}

func (m *MockJobControl) Complete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobControl) Fail(ctx context.Context, id string, entries []domain.JobError) error {
	args := m.Called(ctx, id, entries)
	return args.Error(0)
}

func (m *MockJobControl) CancelRequested(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockEmbedder is a mock implementation of Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) Dimensions() int {
	args := m.Called()
	return args.Int(0)
}

func fastRunnerConfig() EmbedRunnerConfig {
	return EmbedRunnerConfig{BatchSize: 2, Concurrency: 2, MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func processingJob(jobType domain.JobType) *domain.EmbeddingJob {
	return &domain.EmbeddingJob{
		ID:      "job-1",
		Type:    jobType,
		FileKey: "MKF_01",
		Status:  domain.JobStatusProcessing,
	}
}

func TestEmbedRunner_RunJob_AllChunksEmbedded(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	snapshot := []*domain.Chunk{
		{ID: "MKF_01_chunk_0000", Content: "tiles"},
		{ID: "MKF_01_chunk_0001", Content: "gutters"},
	}
	vector := []float32{0.1, 0.2}

	chunks.On("ListUnembedded", mock.Anything, "MKF_01").Return(snapshot, nil)
	jobs.On("SetTotal", mock.Anything, "job-1", int32(2)).Return(nil)
	jobs.On("CancelRequested", mock.Anything, "job-1").Return(false, nil)
	embedder.On("GenerateEmbedding", mock.Anything, "tiles").Return(vector, nil)
	embedder.On("GenerateEmbedding", mock.Anything, "gutters").Return(vector, nil)
	chunks.On("SetEmbedding", mock.Anything, "MKF_01_chunk_0000", vector).Return(nil)
	chunks.On("SetEmbedding", mock.Anything, "MKF_01_chunk_0001", vector).Return(nil)
	jobs.On("RecordProgress", mock.Anything, "job-1", int32(2)).Return(nil)
	jobs.On("Complete", mock.Anything, "job-1").Return(nil)

	err := runner.RunJob(context.Background(), processingJob(domain.JobTypeFull))

	assert.NoError(t, err)
	chunks.AssertExpectations(t)
	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "Fail", mock.Anything, mock.Anything, mock.Anything)
}

func TestEmbedRunner_RunJob_EmptyChunkLoggedAndSkipped(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	snapshot := []*domain.Chunk{
		{ID: "MKF_01_chunk_0000", Content: "tiles"},
		{ID: "MKF_01_chunk_0001", Content: "   "},
	}
	vector := []float32{0.1}

	chunks.On("ListUnembedded", mock.Anything, "MKF_01").Return(snapshot, nil)
	jobs.On("SetTotal", mock.Anything, "job-1", int32(2)).Return(nil)
	jobs.On("CancelRequested", mock.Anything, "job-1").Return(false, nil)
	embedder.On("GenerateEmbedding", mock.Anything, "tiles").Return(vector, nil)
	chunks.On("SetEmbedding", mock.Anything, "MKF_01_chunk_0000", vector).Return(nil)
	jobs.On("RecordProgress", mock.Anything, "job-1", int32(1)).Return(nil)
	jobs.On("RecordErrors", mock.Anything, "job-1", mock.MatchedBy(func(entries []domain.JobError) bool {
		return len(entries) == 1 && entries[0].ChunkID == "MKF_01_chunk_0001"
	})).Return(nil)
	jobs.On("Complete", mock.Anything, "job-1").Return(nil)

	err := runner.RunJob(context.Background(), processingJob(domain.JobTypeFull))

	// Partial failure still completes: the job carries warnings instead.
	assert.NoError(t, err)
	jobs.AssertExpectations(t)
}

func TestEmbedRunner_RunJob_AllChunksFailing(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	snapshot := []*domain.Chunk{{ID: "MKF_01_chunk_0000", Content: "tiles"}}

	chunks.On("ListUnembedded", mock.Anything, "MKF_01").Return(snapshot, nil)
	jobs.On("SetTotal", mock.Anything, "job-1", int32(1)).Return(nil)
	jobs.On("CancelRequested", mock.Anything, "job-1").Return(false, nil)
	embedder.On("GenerateEmbedding", mock.Anything, "tiles").Return(nil, errors.New("rate limited"))
	jobs.On("RecordProgress", mock.Anything, "job-1", int32(0)).Return(nil)
	jobs.On("RecordErrors", mock.Anything, "job-1", mock.Anything).Return(nil)
	jobs.On("Fail", mock.Anything, "job-1", mock.MatchedBy(func(entries []domain.JobError) bool {
		return len(entries) == 1 && entries[0].Message == "no chunks could be embedded"
	})).Return(nil)

	err := runner.RunJob(context.Background(), processingJob(domain.JobTypeFull))

	assert.NoError(t, err)
	jobs.AssertExpectations(t)
	jobs.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	// Both retry attempts hit the embedder.
	embedder.AssertNumberOfCalls(t, "GenerateEmbedding", 2)
}

func TestEmbedRunner_RunJob_CancelledBetweenBatches(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	snapshot := []*domain.Chunk{{ID: "MKF_01_chunk_0000", Content: "tiles"}}

	chunks.On("ListUnembedded", mock.Anything, "MKF_01").Return(snapshot, nil)
	jobs.On("SetTotal", mock.Anything, "job-1", int32(1)).Return(nil)
	jobs.On("CancelRequested", mock.Anything, "job-1").Return(true, nil)
	jobs.On("Fail", mock.Anything, "job-1", mock.MatchedBy(func(entries []domain.JobError) bool {
		return len(entries) == 1 && entries[0].Message == "cancelled"
	})).Return(nil)

	err := runner.RunJob(context.Background(), processingJob(domain.JobTypeFull))

	assert.NoError(t, err)
	jobs.AssertExpectations(t)
	embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
}

func TestEmbedRunner_RunJob_ReembedClearsFirst(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	chunks.On("ClearEmbeddings", mock.Anything, "MKF_01").Return(nil)
	chunks.On("ListUnembedded", mock.Anything, "MKF_01").Return([]*domain.Chunk{}, nil)
	jobs.On("SetTotal", mock.Anything, "job-1", int32(0)).Return(nil)
	jobs.On("Complete", mock.Anything, "job-1").Return(nil)

	err := runner.RunJob(context.Background(), processingJob(domain.JobTypeReembed))

	assert.NoError(t, err)
	chunks.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestEmbedRunner_RunJob_NoChunksCompletesImmediately(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	chunks.On("ListUnembedded", mock.Anything, "MKF_01").Return([]*domain.Chunk{}, nil)
	jobs.On("SetTotal", mock.Anything, "job-1", int32(0)).Return(nil)
	jobs.On("Complete", mock.Anything, "job-1").Return(nil)

	err := runner.RunJob(context.Background(), processingJob(domain.JobTypeIncremental))

	assert.NoError(t, err)
	jobs.AssertExpectations(t)
}

func TestEmbedRunner_RunJob_RetriesTransientFailure(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	snapshot := []*domain.Chunk{{ID: "MKF_01_chunk_0000", Content: "tiles"}}
	vector := []float32{0.1}

	chunks.On("ListUnembedded", mock.Anything, "MKF_01").Return(snapshot, nil)
	jobs.On("SetTotal", mock.Anything, "job-1", int32(1)).Return(nil)
	jobs.On("CancelRequested", mock.Anything, "job-1").Return(false, nil)
	embedder.On("GenerateEmbedding", mock.Anything, "tiles").Return(nil, errors.New("timeout")).Once()
	embedder.On("GenerateEmbedding", mock.Anything, "tiles").Return(vector, nil).Once()
	chunks.On("SetEmbedding", mock.Anything, "MKF_01_chunk_0000", vector).Return(nil)
	jobs.On("RecordProgress", mock.Anything, "job-1", int32(1)).Return(nil)
	jobs.On("Complete", mock.Anything, "job-1").Return(nil)

	err := runner.RunJob(context.Background(), processingJob(domain.JobTypeFull))

	assert.NoError(t, err)
	embedder.AssertExpectations(t)
	jobs.AssertNotCalled(t, "RecordErrors", mock.Anything, mock.Anything, mock.Anything)
}

func TestEmbedRunner_RunJobNow_RequiresPending(t *testing.T) {
	chunks := new(MockEmbedChunkRepository)
	jobs := new(MockJobControl)
	embedder := new(MockEmbedder)
	runner := NewEmbedRunner(chunks, jobs, embedder, fastRunnerConfig())

	jobs.On("GetJob", mock.Anything, "job-1").Return(&domain.EmbeddingJob{
		ID:     "job-1",
		Status: domain.JobStatusCompleted,
	}, nil)

	err := runner.RunJobNow(context.Background(), "job-1")

	assert.Equal(t, domain.ErrInvalidJobTransition, err)
	jobs.AssertNotCalled(t, "StartProcessing", mock.Anything, mock.Anything)
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/pagination"
)

// MockJobRepository is a mock implementation of JobRepositoryInterface
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingJob), args.Error(1)
}

func (m *MockJobRepository) GetActiveByFile(ctx context.Context, fileKey string) (*domain.EmbeddingJob, error) {
	args := m.Called(ctx, fileKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingJob), args.Error(1)
}

func (m *MockJobRepository) ListWithCursor(ctx context.Context, status domain.JobStatus, cursor *pagination.Cursor, limit int) (*JobPage, error) {
	args := m.Called(ctx, status, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*JobPage), args.Error(1)
}

func (m *MockJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EmbeddingJob), args.Error(1)
}

func (m *MockJobRepository) SetTotal(ctx context.Context, id string, total int32) error {
	args := m.Called(ctx, id, total)
	return args.Error(0)
}

func (m *MockJobRepository) SetProcessed(ctx context.Context, id string, processed int32) error {
	args := m.Called(ctx, id, processed)
	return args.Error(0)
}

func (m *MockJobRepository) AppendErrors(ctx context.Context, id string, entries []domain.JobError) error {
	args := m.Called(ctx, id, entries)
	return args.Error(0)
}

func (m *MockJobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockJobRepository) RequestCancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockUUIDGenerator is a mock UUID generator for deterministic tests
type MockUUIDGenerator struct {
	mock.Mock
}

func (m *MockUUIDGenerator) NewString() string {
	args := m.Called()
	return args.String(0)
}

func TestJobTracker_CreateJob(t *testing.T) {
	mockRepo := new(MockJobRepository)
	mockUUID := new(MockUUIDGenerator)
	tracker := NewJobTrackerWithUUIDGen(mockRepo, mockUUID)

	mockUUID.On("NewString").Return("job-123")
	mockRepo.On("GetActiveByFile", mock.Anything, "MKF_01").Return(nil, domain.ErrJobNotFound)
	mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
		return j.ID == "job-123" &&
			j.Type == domain.JobTypeFull &&
			j.FileKey == "MKF_01" &&
			j.Status == domain.JobStatusPending
	})).Return(nil)

	job, err := tracker.CreateJob(context.Background(), domain.JobTypeFull, "MKF_01")

	assert.NoError(t, err)
	assert.Equal(t, "job-123", job.ID)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.NotNil(t, job.ErrorLog)
	mockRepo.AssertExpectations(t)
}

func TestJobTracker_CreateJob_DeduplicatesActiveJob(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	existing := &domain.EmbeddingJob{ID: "job-existing", FileKey: "MKF_01", Status: domain.JobStatusPending}
	mockRepo.On("GetActiveByFile", mock.Anything, "MKF_01").Return(existing, nil)

	job, err := tracker.CreateJob(context.Background(), domain.JobTypeIncremental, "MKF_01")

	assert.NoError(t, err)
	assert.Equal(t, "job-existing", job.ID)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestJobTracker_CreateJob_InvalidType(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	mockRepo.On("GetActiveByFile", mock.Anything, "MKF_01").Return(nil, domain.ErrJobNotFound)

	_, err := tracker.CreateJob(context.Background(), domain.JobType("bogus"), "MKF_01")

	assert.Error(t, err)
	mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestJobTracker_Complete_FromProcessing(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	job := &domain.EmbeddingJob{ID: "job-1", Status: domain.JobStatusProcessing}
	mockRepo.On("GetByID", mock.Anything, "job-1").Return(job, nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.JobStatusCompleted).Return(nil)

	err := tracker.Complete(context.Background(), "job-1")

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestJobTracker_Complete_FromPendingRejected(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	job := &domain.EmbeddingJob{ID: "job-1", Status: domain.JobStatusPending}
	mockRepo.On("GetByID", mock.Anything, "job-1").Return(job, nil)

	err := tracker.Complete(context.Background(), "job-1")

	assert.Equal(t, domain.ErrInvalidJobTransition, err)
	mockRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestJobTracker_TerminalStatesFrozen(t *testing.T) {
	tests := []struct {
		name string
		from domain.JobStatus
	}{
		{"completed is frozen", domain.JobStatusCompleted},
		{"failed is frozen", domain.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockJobRepository)
			tracker := NewJobTracker(mockRepo)

			job := &domain.EmbeddingJob{ID: "job-1", Status: tt.from, ErrorLog: []domain.JobError{{Message: "x"}}}
			mockRepo.On("GetByID", mock.Anything, "job-1").Return(job, nil)

			assert.Equal(t, domain.ErrInvalidJobTransition, tracker.Complete(context.Background(), "job-1"))
			assert.Equal(t, domain.ErrInvalidJobTransition, tracker.StartProcessing(context.Background(), "job-1"))
		})
	}
}

func TestJobTracker_Fail_AppendsErrorsFirst(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	entries := []domain.JobError{{Message: "boom"}}
	job := &domain.EmbeddingJob{ID: "job-1", Status: domain.JobStatusProcessing}

	mockRepo.On("AppendErrors", mock.Anything, "job-1", entries).Return(nil)
	mockRepo.On("GetByID", mock.Anything, "job-1").Return(job, nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.JobStatusFailed).Return(nil)

	err := tracker.Fail(context.Background(), "job-1", entries)

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestJobTracker_ListJobs_InvalidStatus(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	_, err := tracker.ListJobs(context.Background(), ListJobsInput{Status: "bogus"})

	assert.Equal(t, domain.ErrInvalidJobStatus, err)
}

func TestJobTracker_ListJobs_DefaultsLimit(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	page := &JobPage{Items: []*domain.EmbeddingJob{{ID: "job-1"}}, HasMore: false}
	mockRepo.On("ListWithCursor", mock.Anything, domain.JobStatus(""), (*pagination.Cursor)(nil), 20).Return(page, nil)

	out, err := tracker.ListJobs(context.Background(), ListJobsInput{})

	assert.NoError(t, err)
	assert.Len(t, out.Items, 1)
	mockRepo.AssertExpectations(t)
}

func TestJobTracker_Overview_Partitions(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	page := &JobPage{Items: []*domain.EmbeddingJob{
		{ID: "a", Status: domain.JobStatusPending},
		{ID: "b", Status: domain.JobStatusProcessing},
		{ID: "c", Status: domain.JobStatusCompleted},
		{ID: "d", Status: domain.JobStatusFailed, ErrorLog: []domain.JobError{{Message: "x"}}},
	}}
	mockRepo.On("ListWithCursor", mock.Anything, domain.JobStatus(""), (*pagination.Cursor)(nil), 50).Return(page, nil)

	overview, err := tracker.Overview(context.Background(), 0)

	assert.NoError(t, err)
	assert.Len(t, overview.Active, 2)
	assert.Len(t, overview.Completed, 1)
	assert.Len(t, overview.Failed, 1)
}

func TestJobTracker_RequestCancel_Passthrough(t *testing.T) {
	mockRepo := new(MockJobRepository)
	tracker := NewJobTracker(mockRepo)

	mockRepo.On("RequestCancel", mock.Anything, "job-1").Return(domain.ErrJobNotCancellable)

	err := tracker.RequestCancel(context.Background(), "job-1")

	assert.Equal(t, domain.ErrJobNotCancellable, err)
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/pagination"
	"github.com/ckr-digital/ridgeline/internal/telemetry"
)

// JobRepositoryInterface defines the repository interface for embedding job persistence
type JobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
	GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error)
	GetActiveByFile(ctx context.Context, fileKey string) (*domain.EmbeddingJob, error)
	ListWithCursor(ctx context.Context, status domain.JobStatus, cursor *pagination.Cursor, limit int) (*JobPage, error)
	ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error)
	SetTotal(ctx context.Context, id string, total int32) error
	SetProcessed(ctx context.Context, id string, processed int32) error
	AppendErrors(ctx context.Context, id string, entries []domain.JobError) error
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error
	RequestCancel(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

// JobPage is one page of a job listing.
type JobPage struct {
	Items      []*domain.EmbeddingJob
	NextCursor string
	HasMore    bool
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// JobTracker owns the embedding job lifecycle. All status writes go through
// it so the state machine holds everywhere: pending -> processing ->
// completed | failed, with terminal states frozen.
type JobTracker struct {
	repo    JobRepositoryInterface
	uuidGen UUIDGenerator
}

// NewJobTracker creates a new JobTracker instance
func NewJobTracker(repo JobRepositoryInterface) *JobTracker {
	return &JobTracker{repo: repo, uuidGen: &DefaultUUIDGenerator{}}
}

// NewJobTrackerWithUUIDGen creates a JobTracker with a custom UUID generator (for testing)
func NewJobTrackerWithUUIDGen(repo JobRepositoryInterface, uuidGen UUIDGenerator) *JobTracker {
	return &JobTracker{repo: repo, uuidGen: uuidGen}
}

// CreateJob queues a new pending job for a file. If the file already has a
// pending or processing job, that job is returned instead of queueing a
// duplicate.
func (t *JobTracker) CreateJob(ctx context.Context, jobType domain.JobType, fileKey string) (*domain.EmbeddingJob, error) {
	return t.createJob(ctx, t.repo, jobType, fileKey)
}

// CreateJobWith queues a job through a specific repository, letting callers
// run it inside a transaction.
func (t *JobTracker) CreateJobWith(ctx context.Context, repo JobRepositoryInterface, jobType domain.JobType, fileKey string) (*domain.EmbeddingJob, error) {
	return t.createJob(ctx, repo, jobType, fileKey)
}

func (t *JobTracker) createJob(ctx context.Context, repo JobRepositoryInterface, jobType domain.JobType, fileKey string) (*domain.EmbeddingJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "JobTracker.CreateJob", telemetry.SpanAttributes{
		FileKey:   fileKey,
		Operation: "create_job",
	})
	defer span.End()

	if existing, err := repo.GetActiveByFile(ctx, fileKey); err == nil {
		return existing, nil
	} else if err != domain.ErrJobNotFound {
		return nil, err
	}

	job := &domain.EmbeddingJob{
		ID:        t.uuidGen.NewString(),
		Type:      jobType,
		FileKey:   fileKey,
		Status:    domain.JobStatusPending,
		ErrorLog:  []domain.JobError{},
		CreatedAt: time.Now().UTC(),
	}
	if err := domain.ValidateEmbeddingJob(job); err != nil {
		return nil, err
	}
	if err := repo.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob retrieves a job by ID
func (t *JobTracker) GetJob(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	return t.repo.GetByID(ctx, id)
}

type ListJobsInput struct {
	Status domain.JobStatus
	Cursor string
	Limit  int
}

type ListJobsOutput struct {
	Items   []*domain.EmbeddingJob
	Cursor  string
	HasMore bool
}

// ListJobs pages jobs newest first, optionally filtered by status.
func (t *JobTracker) ListJobs(ctx context.Context, input ListJobsInput) (*ListJobsOutput, error) {
	if input.Status != "" && !domain.ValidJobStatus(input.Status) {
		return nil, domain.ErrInvalidJobStatus
	}

	cursor, _ := pagination.DecodeCursor(input.Cursor)
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	page, err := t.repo.ListWithCursor(ctx, input.Status, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListJobsOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}

// JobOverview partitions recent jobs by where they are in the lifecycle.
type JobOverview struct {
	Active    []*domain.EmbeddingJob
	Completed []*domain.EmbeddingJob
	Failed    []*domain.EmbeddingJob
}

// Overview fetches recent jobs and buckets them for the dashboard view.
func (t *JobTracker) Overview(ctx context.Context, limit int) (*JobOverview, error) {
	if limit <= 0 {
		limit = 50
	}
	page, err := t.repo.ListWithCursor(ctx, "", nil, limit)
	if err != nil {
		return nil, err
	}

	groups := lo.GroupBy(page.Items, func(j *domain.EmbeddingJob) domain.JobStatus {
		if !j.Status.Terminal() {
			return domain.JobStatusProcessing
		}
		return j.Status
	})

	return &JobOverview{
		Active:    groups[domain.JobStatusProcessing],
		Completed: groups[domain.JobStatusCompleted],
		Failed:    groups[domain.JobStatusFailed],
	}, nil
}

// ClaimPending atomically claims up to limit pending jobs for processing.
func (t *JobTracker) ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error) {
	return t.repo.ClaimPending(ctx, limit)
}

// StartProcessing moves a pending job to processing. Claimed jobs are
// already processing and skip this.
func (t *JobTracker) StartProcessing(ctx context.Context, id string) error {
	return t.transition(ctx, id, domain.JobStatusProcessing)
}

// SetTotal records how many chunks the running job will process.
func (t *JobTracker) SetTotal(ctx context.Context, id string, total int32) error {
	return t.repo.SetTotal(ctx, id, total)
}

// RecordProgress advances the processed-chunk counter. The repository keeps
// it monotonic and capped at the total.
func (t *JobTracker) RecordProgress(ctx context.Context, id string, processed int32) error {
	return t.repo.SetProcessed(ctx, id, processed)
}

// RecordErrors appends per-chunk failures to the job's error log.
func (t *JobTracker) RecordErrors(ctx context.Context, id string, entries []domain.JobError) error {
	return t.repo.AppendErrors(ctx, id, entries)
}

// Complete moves a processing job to completed. A non-empty error log means
// the job completed with warnings; it is still completed, not failed.
func (t *JobTracker) Complete(ctx context.Context, id string) error {
	return t.transition(ctx, id, domain.JobStatusCompleted)
}

// Fail moves a job to failed, appending the given entries first so a failed
// job always carries at least one error.
func (t *JobTracker) Fail(ctx context.Context, id string, entries []domain.JobError) error {
	if len(entries) > 0 {
		if err := t.repo.AppendErrors(ctx, id, entries); err != nil {
			return err
		}
	}
	return t.transition(ctx, id, domain.JobStatusFailed)
}

// RequestCancel flags a pending or processing job for cancellation. Terminal
// jobs are not cancellable.
func (t *JobTracker) RequestCancel(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "JobTracker.RequestCancel", telemetry.SpanAttributes{
		JobID:     id,
		Operation: "cancel_job",
	})
	defer span.End()

	return t.repo.RequestCancel(ctx, id)
}

// CancelRequested reports whether cancellation has been requested.
func (t *JobTracker) CancelRequested(ctx context.Context, id string) (bool, error) {
	return t.repo.CancelRequested(ctx, id)
}

func (t *JobTracker) transition(ctx context.Context, id string, to domain.JobStatus) error {
	job, err := t.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !domain.CanTransition(job.Status, to) {
		return domain.ErrInvalidJobTransition
	}
	return t.repo.UpdateStatus(ctx, id, to)
}

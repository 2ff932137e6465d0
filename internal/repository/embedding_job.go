package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/pagination"
	"github.com/ckr-digital/ridgeline/internal/service"
)

type EmbeddingJobRepository struct {
	db dbtx
}

func NewEmbeddingJobRepository(pool *pgxpool.Pool) *EmbeddingJobRepository {
	return &EmbeddingJobRepository{db: pool}
}

func NewEmbeddingJobRepositoryWithTx(tx pgx.Tx) *EmbeddingJobRepository {
	return &EmbeddingJobRepository{db: tx}
}

const embeddingJobColumns = `id, type, file_key, status, total_chunks, processed_chunks, error_log, cancel_requested, created_at, started_at, completed_at`

func (r *EmbeddingJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	errLog, err := marshalErrorLog(job.ErrorLog)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO embedding_jobs (`+embeddingJobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.Type, job.FileKey, job.Status, job.TotalChunks, job.ProcessedChunks,
		errLog, job.CancelRequested, job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	return err
}

func (r *EmbeddingJobRepository) GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+embeddingJobColumns+` FROM embedding_jobs WHERE id = $1`,
		id,
	)
	job, err := scanEmbeddingJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// GetActiveByFile returns the newest pending or processing job for a file,
// or ErrJobNotFound when none is in flight.
func (r *EmbeddingJobRepository) GetActiveByFile(ctx context.Context, fileKey string) (*domain.EmbeddingJob, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+embeddingJobColumns+` FROM embedding_jobs
		 WHERE file_key = $1 AND status IN ($2, $3)
		 ORDER BY created_at DESC
		 LIMIT 1`,
		fileKey, domain.JobStatusPending, domain.JobStatusProcessing,
	)
	job, err := scanEmbeddingJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// ListWithCursor pages jobs newest first, optionally filtered by status.
func (r *EmbeddingJobRepository) ListWithCursor(ctx context.Context, status domain.JobStatus, cursor *pagination.Cursor, limit int) (*service.JobPage, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + embeddingJobColumns + ` FROM embedding_jobs`
	args := []any{}
	next := func() string {
		return fmt.Sprintf("$%d", len(args)+1)
	}

	var conditions []string
	if status != "" {
		conditions = append(conditions, "status = "+next())
		args = append(args, status)
	}
	if cursor != nil {
		cond := fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)+1, len(args)+2)
		conditions = append(conditions, cond)
		args = append(args, cursor.Timestamp, cursor.LastID)
	}
	for i, c := range conditions {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT " + next()
	args = append(args, limit+1)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanEmbeddingJobRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	nextCursor := ""
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &service.JobPage{Items: items, NextCursor: nextCursor, HasMore: hasMore}, nil
}

// ClaimPending atomically moves up to limit pending jobs to processing,
// skipping rows locked by other workers.
func (r *EmbeddingJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM embedding_jobs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE embedding_jobs
		 SET status = $3,
		     started_at = NOW()
		 FROM cte
		 WHERE embedding_jobs.id = cte.id
		 RETURNING embedding_jobs.id, embedding_jobs.type, embedding_jobs.file_key, embedding_jobs.status,
		           embedding_jobs.total_chunks, embedding_jobs.processed_chunks, embedding_jobs.error_log,
		           embedding_jobs.cancel_requested, embedding_jobs.created_at, embedding_jobs.started_at,
		           embedding_jobs.completed_at`,
		domain.JobStatusPending, limit, domain.JobStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEmbeddingJobRows(rows)
}

// SetTotal records the chunk count the job will process.
func (r *EmbeddingJobRepository) SetTotal(ctx context.Context, id string, total int32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs SET total_chunks = $1 WHERE id = $2`,
		total, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// SetProcessed advances the processed counter. GREATEST keeps the counter
// monotonic even if updates land out of order.
func (r *EmbeddingJobRepository) SetProcessed(ctx context.Context, id string, processed int32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs
		 SET processed_chunks = GREATEST(processed_chunks, LEAST($1, total_chunks))
		 WHERE id = $2`,
		processed, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// AppendErrors appends entries to the job's error log.
func (r *EmbeddingJobRepository) AppendErrors(ctx context.Context, id string, entries []domain.JobError) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs SET error_log = error_log || $1::jsonb WHERE id = $2`,
		payload, id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// UpdateStatus moves a job to a new status, guarded against transitions out
// of a terminal state at the SQL level. Terminal statuses get completed_at.
func (r *EmbeddingJobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus) error {
	var completedAt *time.Time
	if status.Terminal() {
		now := time.Now().UTC()
		completedAt = &now
	}
	var startedAt any = nil
	if status == domain.JobStatusProcessing {
		now := time.Now().UTC()
		startedAt = &now
	}

	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs
		 SET status = $1,
		     started_at = COALESCE(started_at, $2),
		     completed_at = $3
		 WHERE id = $4 AND status NOT IN ($5, $6)`,
		status, startedAt, completedAt, id,
		domain.JobStatusCompleted, domain.JobStatusFailed,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		// Either missing or already terminal.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrInvalidJobTransition
	}
	return nil
}

// RequestCancel flags a non-terminal job for cancellation. The worker honors
// the flag between batches.
func (r *EmbeddingJobRepository) RequestCancel(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE embedding_jobs SET cancel_requested = TRUE
		 WHERE id = $1 AND status IN ($2, $3)`,
		id, domain.JobStatusPending, domain.JobStatusProcessing,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return domain.ErrJobNotCancellable
	}
	return nil
}

// CancelRequested reads the current cancellation flag.
func (r *EmbeddingJobRepository) CancelRequested(ctx context.Context, id string) (bool, error) {
	var requested bool
	err := r.db.QueryRow(ctx,
		`SELECT cancel_requested FROM embedding_jobs WHERE id = $1`,
		id,
	).Scan(&requested)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, err
	}
	return requested, nil
}

func marshalErrorLog(log []domain.JobError) ([]byte, error) {
	if log == nil {
		log = []domain.JobError{}
	}
	return json.Marshal(log)
}

func scanEmbeddingJob(row pgx.Row) (*domain.EmbeddingJob, error) {
	var job domain.EmbeddingJob
	var errLog []byte
	if err := row.Scan(&job.ID, &job.Type, &job.FileKey, &job.Status, &job.TotalChunks, &job.ProcessedChunks,
		&errLog, &job.CancelRequested, &job.CreatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
		return nil, err
	}
	if len(errLog) > 0 {
		if err := json.Unmarshal(errLog, &job.ErrorLog); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

func scanEmbeddingJobRows(rows pgx.Rows) ([]*domain.EmbeddingJob, error) {
	var jobs []*domain.EmbeddingJob
	for rows.Next() {
		job, err := scanEmbeddingJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

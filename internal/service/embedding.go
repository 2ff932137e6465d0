package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/telemetry"
)

// Embedder defines the interface for generating embeddings
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// EmbedChunkRepository defines the repository interface for embedding runs
type EmbedChunkRepository interface {
	ListUnembedded(ctx context.Context, fileKey string) ([]*domain.Chunk, error)
	SetEmbedding(ctx context.Context, chunkID string, embedding []float32) error
	ClearEmbeddings(ctx context.Context, fileKey string) error
}

// JobControl is the slice of the job tracker an embedding run needs.
type JobControl interface {
	GetJob(ctx context.Context, id string) (*domain.EmbeddingJob, error)
	StartProcessing(ctx context.Context, id string) error
	SetTotal(ctx context.Context, id string, total int32) error
	RecordProgress(ctx context.Context, id string, processed int32) error
	RecordErrors(ctx context.Context, id string, entries []domain.JobError) error
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id string, entries []domain.JobError) error
	CancelRequested(ctx context.Context, id string) (bool, error)
}

// EmbedRunnerConfig tunes batch size and concurrency of embedding runs.
type EmbedRunnerConfig struct {
	BatchSize    int
	Concurrency  int
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultEmbedRunnerConfig provides sane defaults for embedding runs.
func DefaultEmbedRunnerConfig() EmbedRunnerConfig {
	return EmbedRunnerConfig{
		BatchSize:    16,
		Concurrency:  4,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// EmbedRunner executes embedding jobs: it snapshots the chunks in scope,
// embeds them batch by batch, and drives the job through the tracker. A
// chunk that fails is logged and skipped; the run keeps going. Only a run
// that embeds nothing at all fails the job.
type EmbedRunner struct {
	chunks   EmbedChunkRepository
	jobs     JobControl
	embedder Embedder
	cfg      EmbedRunnerConfig
}

// NewEmbedRunner creates a new EmbedRunner instance
func NewEmbedRunner(chunks EmbedChunkRepository, jobs JobControl, embedder Embedder, cfg EmbedRunnerConfig) *EmbedRunner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedRunnerConfig().BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultEmbedRunnerConfig().Concurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultEmbedRunnerConfig().MaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultEmbedRunnerConfig().RetryBackoff
	}
	return &EmbedRunner{chunks: chunks, jobs: jobs, embedder: embedder, cfg: cfg}
}

// RunJob processes one claimed job to its terminal state. The job must
// already be in processing status. The returned error covers infrastructure
// failures only; per-chunk failures land in the job's error log.
func (r *EmbedRunner) RunJob(ctx context.Context, job *domain.EmbeddingJob) error {
	ctx, span := telemetry.StartSpan(ctx, "EmbedRunner.RunJob", telemetry.SpanAttributes{
		JobID:     job.ID,
		FileKey:   job.FileKey,
		Operation: "run_job",
	})
	defer span.End()

	if job.Type == domain.JobTypeReembed {
		if err := r.chunks.ClearEmbeddings(ctx, job.FileKey); err != nil {
			return r.failJob(ctx, job.ID, "", fmt.Sprintf("clearing embeddings: %v", err))
		}
	}

	// Snapshot the scope once. Chunks that fail keep a NULL embedding, so
	// re-querying mid-run would retry them forever.
	snapshot, err := r.chunks.ListUnembedded(ctx, job.FileKey)
	if err != nil {
		return r.failJob(ctx, job.ID, "", fmt.Sprintf("listing chunks: %v", err))
	}

	if err := r.jobs.SetTotal(ctx, job.ID, int32(len(snapshot))); err != nil {
		return err
	}

	if len(snapshot) == 0 {
		return r.jobs.Complete(ctx, job.ID)
	}

	pool, err := ants.NewPool(r.cfg.Concurrency)
	if err != nil {
		return r.failJob(ctx, job.ID, "", fmt.Sprintf("starting worker pool: %v", err))
	}
	defer pool.Release()

	var processed int32
	var succeeded int

	for start := 0; start < len(snapshot); start += r.cfg.BatchSize {
		cancelled, err := r.jobs.CancelRequested(ctx, job.ID)
		if err != nil {
			return err
		}
		if cancelled {
			return r.failJob(ctx, job.ID, "", "cancelled")
		}

		end := start + r.cfg.BatchSize
		if end > len(snapshot) {
			end = len(snapshot)
		}
		batch := snapshot[start:end]

		batchOK, batchErrs := r.embedBatch(ctx, pool, batch)
		succeeded += batchOK

		// Processed counts embedded chunks only; failures stay visible as
		// the gap between processed and total.
		processed += int32(batchOK)
		if err := r.jobs.RecordProgress(ctx, job.ID, processed); err != nil {
			return err
		}
		if len(batchErrs) > 0 {
			if err := r.jobs.RecordErrors(ctx, job.ID, batchErrs); err != nil {
				return err
			}
		}
	}

	if succeeded == 0 {
		return r.jobs.Fail(ctx, job.ID, []domain.JobError{{
			Message: "no chunks could be embedded",
			At:      time.Now().UTC(),
		}})
	}

	return r.jobs.Complete(ctx, job.ID)
}

// RunJobNow takes a pending job through its full lifecycle in the caller's
// goroutine, for CLI use and tests.
func (r *EmbedRunner) RunJobNow(ctx context.Context, jobID string) error {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPending {
		return domain.ErrInvalidJobTransition
	}
	if err := r.jobs.StartProcessing(ctx, job.ID); err != nil {
		return err
	}
	job.Status = domain.JobStatusProcessing
	return r.RunJob(ctx, job)
}

// embedBatch fans a batch out over the pool and collects results.
func (r *EmbedRunner) embedBatch(ctx context.Context, pool *ants.Pool, batch []*domain.Chunk) (int, []domain.JobError) {
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		succeeded int
		errs      []domain.JobError
	)

	record := func(chunkID, message string) {
		mu.Lock()
		errs = append(errs, domain.JobError{
			ChunkID: chunkID,
			Message: message,
			At:      time.Now().UTC(),
		})
		mu.Unlock()
	}

	for _, chunk := range batch {
		chunk := chunk
		wg.Add(1)
		task := func() {
			defer wg.Done()

			if strings.TrimSpace(chunk.Content) == "" {
				record(chunk.ID, "chunk content is empty")
				return
			}

			embedding, err := r.embedWithRetry(ctx, chunk.Content)
			if err != nil {
				record(chunk.ID, err.Error())
				return
			}

			if err := r.chunks.SetEmbedding(ctx, chunk.ID, embedding); err != nil {
				record(chunk.ID, fmt.Sprintf("storing embedding: %v", err))
				return
			}

			mu.Lock()
			succeeded++
			mu.Unlock()
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			record(chunk.ID, fmt.Sprintf("submitting to pool: %v", err))
		}
	}
	wg.Wait()

	return succeeded, errs
}

// embedWithRetry retries transient embedding failures with linear backoff.
func (r *EmbedRunner) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		embedding, err := r.embedder.GenerateEmbedding(ctx, text)
		if err == nil {
			return embedding, nil
		}
		lastErr = err

		if attempt < r.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	return nil, lastErr
}

func (r *EmbedRunner) failJob(ctx context.Context, jobID, chunkID, message string) error {
	log.Printf("embedding job %s failed: %s", jobID, message)
	return r.jobs.Fail(ctx, jobID, []domain.JobError{{
		ChunkID: chunkID,
		Message: message,
		At:      time.Now().UTC(),
	}})
}

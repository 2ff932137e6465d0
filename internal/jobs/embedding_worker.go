package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

// JobClaimer claims pending embedding jobs for processing.
type JobClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error)
}

// JobRunner drives one claimed job to a terminal state.
type JobRunner interface {
	RunJob(ctx context.Context, job *domain.EmbeddingJob) error
}

// EmbeddingWorker processes embedding jobs
type EmbeddingWorker struct {
	claimer    JobClaimer
	runner     JobRunner
	claimLimit int
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(claimer JobClaimer, runner JobRunner, claimLimit int) *EmbeddingWorker {
	if claimLimit <= 0 {
		claimLimit = 5
	}
	return &EmbeddingWorker{
		claimer:    claimer,
		runner:     runner,
		claimLimit: claimLimit,
	}
}

// ProcessJobs implements the JobProcessor interface. Claimed jobs are
// already in processing status; the runner takes each one to completed or
// failed, so a runner error here is infrastructure-level only.
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.claimer.ClaimPending(ctx, w.claimLimit)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d claimed embedding jobs", len(jobs))

	for _, job := range jobs {
		log.Printf("Processing job %s (%s) for file %q", job.ID, job.Type, job.FileKey)
		if err := w.runner.RunJob(ctx, job); err != nil {
			log.Printf("Error running job %s: %v", job.ID, err)
		}
	}

	return nil
}

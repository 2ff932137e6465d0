package domain

import (
	"fmt"
	"math"
	"time"
)

// JobType represents the kind of embedding run a job performs
type JobType string

const (
	// JobTypeFull embeds every pending chunk of a newly ingested file.
	JobTypeFull JobType = "full"
	// JobTypeIncremental embeds only chunks left unembedded after a re-ingest.
	JobTypeIncremental JobType = "incremental"
	// JobTypeReembed clears existing vectors in scope and recomputes them.
	JobTypeReembed JobType = "reembed"
)

// JobStatus represents the lifecycle state of an embedding job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether a status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job may move from one status to another.
// Job history is append-only: terminal states are frozen and any subsequent
// run over the same scope is a new job.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed
	}
	return false
}

// JobError is a structured entry in a job's error log. ChunkID is empty
// for job-level failures.
type JobError struct {
	ChunkID string    `json:"chunk_id,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// EmbeddingJob represents one ingestion/re-embedding run. A file key
// scopes the job to one file; an empty file key targets every pending
// chunk in the store.
type EmbeddingJob struct {
	ID              string
	Type            JobType
	FileKey         string
	Status          JobStatus
	TotalChunks     int32
	ProcessedChunks int32
	ErrorLog        []JobError
	CancelRequested bool
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Progress returns the job's completion percentage, rounded to the
// nearest whole percent for display.
func (j *EmbeddingJob) Progress() int {
	total := j.TotalChunks
	if total < 1 {
		total = 1
	}
	return int(math.Round(float64(j.ProcessedChunks) / float64(total) * 100))
}

// ValidateEmbeddingJob validates an EmbeddingJob instance
func ValidateEmbeddingJob(j *EmbeddingJob) error {
	if j == nil {
		return fmt.Errorf("embedding job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("embedding job ID is required")
	}

	if !isValidJobType(j.Type) {
		return fmt.Errorf("embedding job Type is invalid: %s", j.Type)
	}

	if !isValidJobStatus(j.Status) {
		return fmt.Errorf("embedding job Status is invalid: %s", j.Status)
	}

	if j.ProcessedChunks < 0 || j.TotalChunks < 0 {
		return fmt.Errorf("embedding job chunk counts cannot be negative")
	}

	if j.ProcessedChunks > j.TotalChunks {
		return fmt.Errorf("embedding job ProcessedChunks %d exceeds TotalChunks %d", j.ProcessedChunks, j.TotalChunks)
	}

	if j.Status == JobStatusFailed && len(j.ErrorLog) == 0 {
		return fmt.Errorf("failed embedding job must have a non-empty error log")
	}

	return nil
}

// ValidJobType checks if a JobType is one of the known values
func ValidJobType(t JobType) bool {
	return isValidJobType(t)
}

// ValidJobStatus checks if a JobStatus is one of the known values
func ValidJobStatus(s JobStatus) bool {
	return isValidJobStatus(s)
}

// isValidJobType checks if a JobType is valid
func isValidJobType(t JobType) bool {
	switch t {
	case JobTypeFull, JobTypeIncremental, JobTypeReembed:
		return true
	}
	return false
}

// isValidJobStatus checks if a JobStatus is valid
func isValidJobStatus(s JobStatus) bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

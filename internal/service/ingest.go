package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/telemetry"
)

// FileRepositoryInterface defines the repository interface for knowledge file persistence
type FileRepositoryInterface interface {
	Create(ctx context.Context, f *domain.KnowledgeFile) error
	GetByKey(ctx context.Context, fileKey string) (*domain.KnowledgeFile, error)
	Update(ctx context.Context, f *domain.KnowledgeFile) error
	List(ctx context.Context) ([]*domain.KnowledgeFile, error)
	ListActive(ctx context.Context) ([]*domain.KnowledgeFile, error)
	ListByCategory(ctx context.Context, category string) ([]*domain.KnowledgeFile, error)
	SetActive(ctx context.Context, fileKey string, active bool) error
}

// ChunkRepositoryInterface defines the repository interface for chunk persistence
type ChunkRepositoryInterface interface {
	UpsertChunks(ctx context.Context, fileKey string, chunks []domain.Chunk) error
	ListByFile(ctx context.Context, fileKey string) ([]*domain.Chunk, error)
	DeleteByFile(ctx context.Context, fileKey string) error
}

// ArchiveStore keeps an off-database copy of each ingested file version.
type ArchiveStore interface {
	ArchiveFile(ctx context.Context, f *domain.KnowledgeFile) (string, error)
}

// IngestService takes a source document from raw content to queued
// embedding job: upsert the file, split it into chunks, and create the job
// the worker will pick up. File, chunks and job land in one transaction.
type IngestService struct {
	txRunner TxRunner
	files    FileRepositoryInterface
	chunker  *Chunker
	tracker  *JobTracker
	archive  ArchiveStore
}

// NewIngestService creates a new IngestService instance
func NewIngestService(txRunner TxRunner, files FileRepositoryInterface, chunker *Chunker, tracker *JobTracker) *IngestService {
	return &IngestService{txRunner: txRunner, files: files, chunker: chunker, tracker: tracker}
}

// NewIngestServiceWithArchive creates an IngestService that also archives
// each ingested version to object storage.
func NewIngestServiceWithArchive(txRunner TxRunner, files FileRepositoryInterface, chunker *Chunker, tracker *JobTracker, archive ArchiveStore) *IngestService {
	return &IngestService{txRunner: txRunner, files: files, chunker: chunker, tracker: tracker, archive: archive}
}

// IngestInput represents the input for ingesting a knowledge file
type IngestInput struct {
	FileKey  string
	FileName string
	Content  string
	Kind     domain.ContentKind
	Category string
	Priority int32
}

// IngestResult describes what an ingest did.
type IngestResult struct {
	File       *domain.KnowledgeFile
	ChunkCount int
	Job        *domain.EmbeddingJob
	Unchanged  bool
}

// Ingest upserts a knowledge file, re-chunks it, and queues an embedding
// job. Re-ingesting unchanged content is a no-op on chunks and embeddings:
// chunk ids are a pure function of file key and position, and unchanged
// chunk content keeps its vector.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Ingest", telemetry.SpanAttributes{
		FileKey:   input.FileKey,
		Operation: "ingest",
	})
	defer span.End()

	now := time.Now().UTC()
	candidate := domain.NewKnowledgeFile(input.FileKey, input.FileName, input.Content, input.Kind, input.Category, input.Priority, now)
	if err := domain.ValidateKnowledgeFile(candidate); err != nil {
		return nil, err
	}

	chunks, err := s.chunker.Chunk(candidate)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{ChunkCount: len(chunks)}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		jobType := domain.JobTypeFull

		existing, err := repos.Files().GetByKey(ctx, input.FileKey)
		switch {
		case errors.Is(err, domain.ErrFileNotFound):
			if err := repos.Files().Create(ctx, candidate); err != nil {
				return err
			}
			result.File = candidate

		case err != nil:
			return err

		default:
			result.Unchanged = existing.Content == candidate.Content
			jobType = domain.JobTypeIncremental

			existing.FileName = candidate.FileName
			existing.Kind = candidate.Kind
			existing.Category = candidate.Category
			existing.Priority = candidate.Priority
			existing.Active = true
			existing.UpdatedAt = now
			if !result.Unchanged {
				existing.Content = candidate.Content
				existing.Version++
			}
			if err := repos.Files().Update(ctx, existing); err != nil {
				return err
			}
			result.File = existing
		}

		if err := repos.Chunks().UpsertChunks(ctx, input.FileKey, chunks); err != nil {
			return err
		}

		job, err := s.tracker.CreateJobWith(ctx, repos.Jobs(), jobType, input.FileKey)
		if err != nil {
			return err
		}
		result.Job = job
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Archive outside the transaction; a storage hiccup must not fail the
	// ingest.
	if s.archive != nil {
		if _, err := s.archive.ArchiveFile(ctx, result.File); err != nil {
			log.Printf("archive failed for %s v%d: %v", result.File.FileKey, result.File.Version, err)
			telemetry.CaptureError(ctx, err)
		}
	}

	return result, nil
}

// GetFile retrieves a knowledge file by key
func (s *IngestService) GetFile(ctx context.Context, fileKey string) (*domain.KnowledgeFile, error) {
	return s.files.GetByKey(ctx, fileKey)
}

// ListFiles retrieves all knowledge files
func (s *IngestService) ListFiles(ctx context.Context) ([]*domain.KnowledgeFile, error) {
	return s.files.List(ctx)
}

// DeactivateFile takes a file out of search and context assembly without
// deleting it or its chunks.
func (s *IngestService) DeactivateFile(ctx context.Context, fileKey string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.DeactivateFile", telemetry.SpanAttributes{
		FileKey:   fileKey,
		Operation: "deactivate",
	})
	defer span.End()

	return s.files.SetActive(ctx, fileKey, false)
}

// ReembedFile queues a re-embed job that clears and recomputes every vector
// of a file. An empty fileKey re-embeds the whole store.
func (s *IngestService) ReembedFile(ctx context.Context, fileKey string) (*domain.EmbeddingJob, error) {
	if fileKey != "" {
		if _, err := s.files.GetByKey(ctx, fileKey); err != nil {
			return nil, err
		}
	}
	return s.tracker.CreateJob(ctx, domain.JobTypeReembed, fileKey)
}

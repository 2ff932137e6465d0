package service

import (
	"context"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

// StatsChunkRepository defines the repository interface for chunk counts
type StatsChunkRepository interface {
	Counts(ctx context.Context) (total int64, embedded int64, err error)
	CountsByCategory(ctx context.Context) (map[string]int64, error)
}

// StatsFileRepository is the slice of the file repository stats needs.
type StatsFileRepository interface {
	List(ctx context.Context) ([]*domain.KnowledgeFile, error)
}

// KnowledgeStats summarizes the state of the store. ByCategory sums to
// TotalChunks.
type KnowledgeStats struct {
	TotalFiles       int              `json:"total_files"`
	ActiveFiles      int              `json:"active_files"`
	TotalChunks      int64            `json:"total_chunks"`
	EmbeddedChunks   int64            `json:"embedded_chunks"`
	UnembeddedChunks int64            `json:"unembedded_chunks"`
	ByCategory       map[string]int64 `json:"by_category"`
}

// StatsService reports store-level counts.
type StatsService struct {
	chunks StatsChunkRepository
	files  StatsFileRepository
}

// NewStatsService creates a new StatsService instance
func NewStatsService(chunks StatsChunkRepository, files StatsFileRepository) *StatsService {
	return &StatsService{chunks: chunks, files: files}
}

// Stats gathers file and chunk counts in one call.
func (s *StatsService) Stats(ctx context.Context) (*KnowledgeStats, error) {
	total, embedded, err := s.chunks.Counts(ctx)
	if err != nil {
		return nil, err
	}

	byCategory, err := s.chunks.CountsByCategory(ctx)
	if err != nil {
		return nil, err
	}

	files, err := s.files.List(ctx)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, f := range files {
		if f.Active {
			active++
		}
	}

	return &KnowledgeStats{
		TotalFiles:       len(files),
		ActiveFiles:      active,
		TotalChunks:      total,
		EmbeddedChunks:   embedded,
		UnembeddedChunks: total - embedded,
		ByCategory:       byCategory,
	}, nil
}

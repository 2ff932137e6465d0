package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/telemetry"
)

// SearchChunkRepository defines the repository interface for vector search
type SearchChunkRepository interface {
	SearchByEmbedding(ctx context.Context, embedding []float32, threshold float64, limit int) ([]*SearchMatch, error)
	EmbeddingDims(ctx context.Context) ([]int32, error)
}

// SearchMatch is one retrieved chunk with its similarity score.
type SearchMatch struct {
	ChunkID    string  `json:"chunk_id"`
	FileKey    string  `json:"file_key"`
	FileName   string  `json:"file_name"`
	Category   string  `json:"category"`
	Section    string  `json:"section,omitempty"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
	Citation   string  `json:"citation"`
}

const (
	DefaultSearchThreshold = 0.7
	DefaultSearchLimit     = 10
	MaxSearchLimit         = 50
)

// SearchService answers similarity queries over embedded chunks.
type SearchService struct {
	chunks   SearchChunkRepository
	embedder Embedder
}

// NewSearchService creates a new SearchService instance
func NewSearchService(chunks SearchChunkRepository, embedder Embedder) *SearchService {
	return &SearchService{chunks: chunks, embedder: embedder}
}

// SearchInput represents a similarity search request
type SearchInput struct {
	Query     string
	Threshold float64
	Limit     int
}

// SearchOutput represents a similarity search response. Zero matches is a
// valid outcome, not an error.
type SearchOutput struct {
	Query   string         `json:"query"`
	Matches []*SearchMatch `json:"matches"`
}

// Search embeds the query and returns chunks whose cosine similarity meets
// the threshold, most similar first.
func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	threshold := input.Threshold
	if threshold == 0 {
		threshold = DefaultSearchThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, domain.ErrInvalidThreshold
	}

	limit := input.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 0 || limit > MaxSearchLimit {
		return nil, domain.ErrInvalidLimit
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	// A query vector from a different model than the stored vectors would
	// produce garbage similarities; refuse instead.
	storedDims, err := s.chunks.EmbeddingDims(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range storedDims {
		if int(d) != len(embedding) {
			return nil, domain.ErrDimensionMismatch
		}
	}

	matches, err := s.chunks.SearchByEmbedding(ctx, embedding, threshold, limit)
	if err != nil {
		return nil, err
	}

	for _, m := range matches {
		m.Citation = Citation(m.FileKey, m.Section)
	}

	return &SearchOutput{Query: query, Matches: matches}, nil
}

// Citation formats a source reference for a retrieved chunk.
func Citation(fileKey, section string) string {
	if section == "" {
		return fmt.Sprintf("[%s]", fileKey)
	}
	return fmt.Sprintf("[%s § %s]", fileKey, section)
}

package domain

import (
	"fmt"
	"time"
)

// Chunk represents a retrievable unit derived from one knowledge file.
// The embedding vector is nil until the embedding worker has processed
// the chunk; it is never partially written.
type Chunk struct {
	ID            string
	FileKey       string
	Category      string
	Section       string
	Content       string
	Embedding     []float32
	EmbeddingDims int32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Embedded reports whether the chunk carries a complete embedding vector.
func (c *Chunk) Embedded() bool {
	return len(c.Embedding) > 0
}

// ChunkID derives the stable id for the n-th chunk of a file. Re-chunking
// unchanged content must yield identical ids, so the id is a pure function
// of the file key and the sequence index.
func ChunkID(fileKey string, index int) string {
	return fmt.Sprintf("%s_chunk_%04d", fileKey, index)
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.FileKey == "" {
		return fmt.Errorf("chunk FileKey is required")
	}

	if c.Content == "" {
		return fmt.Errorf("chunk Content is required")
	}

	if len(c.Embedding) > 0 && int32(len(c.Embedding)) != c.EmbeddingDims {
		return fmt.Errorf("chunk embedding length %d does not match EmbeddingDims %d", len(c.Embedding), c.EmbeddingDims)
	}

	return nil
}

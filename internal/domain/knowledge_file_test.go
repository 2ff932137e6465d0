package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestValidateKnowledgeFile tests knowledge file validation
func TestValidateKnowledgeFile(t *testing.T) {
	now := time.Now().UTC()

	valid := NewKnowledgeFile("MKF_01", "Brand Voice", "Educate, never upsell.", ContentKindText, "brand", 10, now)
	assert.NoError(t, ValidateKnowledgeFile(valid))
	assert.True(t, valid.Active)
	assert.Equal(t, int32(1), valid.Version)

	tests := []struct {
		name   string
		mutate func(f *KnowledgeFile)
	}{
		{"missing file key", func(f *KnowledgeFile) { f.FileKey = "" }},
		{"missing file name", func(f *KnowledgeFile) { f.FileName = "" }},
		{"missing content", func(f *KnowledgeFile) { f.Content = "" }},
		{"invalid content kind", func(f *KnowledgeFile) { f.Kind = "yaml" }},
		{"zero version", func(f *KnowledgeFile) { f.Version = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := *valid
			tt.mutate(&file)
			assert.Error(t, ValidateKnowledgeFile(&file))
		})
	}

	assert.Error(t, ValidateKnowledgeFile(nil))
}

// TestChunkID tests deterministic chunk id derivation
func TestChunkID(t *testing.T) {
	assert.Equal(t, "MKF_02_chunk_0000", ChunkID("MKF_02", 0))
	assert.Equal(t, "MKF_02_chunk_0012", ChunkID("MKF_02", 12))
	// Same inputs, same id
	assert.Equal(t, ChunkID("MKF_02", 3), ChunkID("MKF_02", 3))
}

// TestValidateChunk tests chunk validation
func TestValidateChunk(t *testing.T) {
	valid := &Chunk{
		ID:      ChunkID("MKF_02", 0),
		FileKey: "MKF_02",
		Content: "Ridge capping should be rebedded every 15-20 years.",
	}
	assert.NoError(t, ValidateChunk(valid))
	assert.False(t, valid.Embedded())

	embedded := *valid
	embedded.Embedding = []float32{0.1, 0.2, 0.3}
	embedded.EmbeddingDims = 3
	assert.NoError(t, ValidateChunk(&embedded))
	assert.True(t, embedded.Embedded())

	mismatched := embedded
	mismatched.EmbeddingDims = 4
	assert.Error(t, ValidateChunk(&mismatched))

	assert.Error(t, ValidateChunk(&Chunk{FileKey: "MKF_02", Content: "x"}))
	assert.Error(t, ValidateChunk(&Chunk{ID: "a", Content: "x"}))
	assert.Error(t, ValidateChunk(&Chunk{ID: "a", FileKey: "MKF_02"}))
	assert.Error(t, ValidateChunk(nil))
}

// TestInvariantFacts ensures the mandatory fact table stays non-empty and
// carries the identifiers every rendered context must contain.
func TestInvariantFacts(t *testing.T) {
	facts := InvariantFacts()
	assert.NotEmpty(t, facts)

	byLabel := map[string]string{}
	for _, f := range facts {
		byLabel[f.Label] = f.Value
	}
	assert.Equal(t, "39475055075", byLabel["ABN"])
	assert.Equal(t, "0435 900 909", byLabel["Phone"])
	assert.Equal(t, "info@callkaidsroofing.com.au", byLabel["Email"])
}

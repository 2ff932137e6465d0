package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/service"
)

// ChunkRepository handles persistence of chunks and their embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// UpsertChunks writes the current chunk set for a file. Chunks whose content
// is unchanged keep their embedding; changed content clears the vector so the
// next embedding job re-embeds only what moved. Chunks no longer present in
// the new set are deleted.
func (r *ChunkRepository) UpsertChunks(ctx context.Context, fileKey string, chunks []domain.Chunk) error {
	now := time.Now().UTC()

	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.ID)
		_, err := r.db.Exec(ctx,
			`INSERT INTO chunks (id, file_key, category, section, content, embedding, embedding_dims, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, NULL, 0, $6, $6)
			 ON CONFLICT (id) DO UPDATE SET
			     category = EXCLUDED.category,
			     section = EXCLUDED.section,
			     embedding = CASE WHEN chunks.content = EXCLUDED.content THEN chunks.embedding ELSE NULL END,
			     embedding_dims = CASE WHEN chunks.content = EXCLUDED.content THEN chunks.embedding_dims ELSE 0 END,
			     content = EXCLUDED.content,
			     updated_at = EXCLUDED.updated_at`,
			c.ID, fileKey, c.Category, c.Section, c.Content, now,
		)
		if err != nil {
			return err
		}
	}

	_, err := r.db.Exec(ctx,
		`DELETE FROM chunks WHERE file_key = $1 AND NOT (id = ANY($2))`,
		fileKey, ids,
	)
	return err
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, file_key, category, section, content, embedding, embedding_dims, created_at, updated_at
		 FROM chunks WHERE id = $1`,
		id,
	)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *ChunkRepository) ListByFile(ctx context.Context, fileKey string) ([]*domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, file_key, category, section, content, embedding, embedding_dims, created_at, updated_at
		 FROM chunks WHERE file_key = $1 ORDER BY id ASC`,
		fileKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// ListUnembedded returns chunks that still need a vector. An empty fileKey
// covers the whole store.
func (r *ChunkRepository) ListUnembedded(ctx context.Context, fileKey string) ([]*domain.Chunk, error) {
	query := `SELECT id, file_key, category, section, content, embedding, embedding_dims, created_at, updated_at
	          FROM chunks WHERE embedding IS NULL`
	args := []any{}
	if fileKey != "" {
		query += ` AND file_key = $1`
		args = append(args, fileKey)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// SetEmbedding stores a chunk's vector and its dimension in one statement.
func (r *ChunkRepository) SetEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chunks SET embedding = $1, embedding_dims = $2, updated_at = $3 WHERE id = $4`,
		pgvector.NewVector(embedding), len(embedding), time.Now().UTC(), chunkID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

// ClearEmbeddings wipes vectors so a re-embed starts clean. An empty
// fileKey covers the whole store.
func (r *ChunkRepository) ClearEmbeddings(ctx context.Context, fileKey string) error {
	query := `UPDATE chunks SET embedding = NULL, embedding_dims = 0, updated_at = $1`
	args := []any{time.Now().UTC()}
	if fileKey != "" {
		query += ` WHERE file_key = $2`
		args = append(args, fileKey)
	}
	_, err := r.db.Exec(ctx, query, args...)
	return err
}

func (r *ChunkRepository) DeleteByFile(ctx context.Context, fileKey string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE file_key = $1`, fileKey)
	return err
}

// SearchByEmbedding runs cosine similarity search over embedded chunks of
// active files. Similarity is 1 - cosine distance; rows below the threshold
// are filtered in SQL.
func (r *ChunkRepository) SearchByEmbedding(ctx context.Context, embedding []float32, threshold float64, limit int) ([]*service.SearchMatch, error) {
	if limit <= 0 {
		limit = 10
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.file_key, f.file_name, c.category, c.section, c.content,
		        1 - (c.embedding <=> $1) AS similarity
		 FROM chunks c
		 JOIN knowledge_files f ON f.file_key = c.file_key
		 WHERE c.embedding IS NOT NULL
		   AND f.active = TRUE
		   AND 1 - (c.embedding <=> $1) >= $2
		 ORDER BY similarity DESC, c.updated_at DESC
		 LIMIT $3`,
		vec, threshold, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.SearchMatch, 0)
	for rows.Next() {
		var m service.SearchMatch
		var section *string
		if err := rows.Scan(&m.ChunkID, &m.FileKey, &m.FileName, &m.Category, &section, &m.Content, &m.Similarity); err != nil {
			return nil, err
		}
		if section != nil {
			m.Section = *section
		}
		results = append(results, &m)
	}

	return results, rows.Err()
}

// EmbeddingDims returns the distinct vector dimensions currently stored.
// More than one entry means mixed-model embeddings are present.
func (r *ChunkRepository) EmbeddingDims(ctx context.Context) ([]int32, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT embedding_dims FROM chunks WHERE embedding IS NOT NULL ORDER BY embedding_dims`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dims []int32
	for rows.Next() {
		var d int32
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}

// Counts returns the total and embedded chunk counts.
func (r *ChunkRepository) Counts(ctx context.Context) (total int64, embedded int64, err error) {
	err = r.db.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM chunks`,
	).Scan(&total, &embedded)
	return total, embedded, err
}

// CountsByCategory returns per-category chunk counts. The sum over all
// categories equals the total count.
func (r *ChunkRepository) CountsByCategory(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT category, COUNT(*) FROM chunks GROUP BY category`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var category string
		var n int64
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var c domain.Chunk
	var section *string
	var vec *pgvector.Vector
	if err := row.Scan(&c.ID, &c.FileKey, &c.Category, &section, &c.Content, &vec, &c.EmbeddingDims, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if section != nil {
		c.Section = *section
	}
	if vec != nil {
		c.Embedding = vec.Slice()
	}
	return &c, nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var chunks []*domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

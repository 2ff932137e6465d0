package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

type KnowledgeFileRepository struct {
	db dbtx
}

func NewKnowledgeFileRepository(pool *pgxpool.Pool) *KnowledgeFileRepository {
	return &KnowledgeFileRepository{db: pool}
}

func NewKnowledgeFileRepositoryWithTx(tx pgx.Tx) *KnowledgeFileRepository {
	return &KnowledgeFileRepository{db: tx}
}

const knowledgeFileColumns = `file_key, file_name, content, kind, category, priority, active, version, created_at, updated_at`

func (r *KnowledgeFileRepository) Create(ctx context.Context, f *domain.KnowledgeFile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_files (`+knowledgeFileColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		f.FileKey, f.FileName, f.Content, f.Kind, f.Category, f.Priority, f.Active, f.Version, f.CreatedAt, f.UpdatedAt,
	)
	return err
}

func (r *KnowledgeFileRepository) GetByKey(ctx context.Context, fileKey string) (*domain.KnowledgeFile, error) {
	var f domain.KnowledgeFile
	err := r.db.QueryRow(ctx,
		`SELECT `+knowledgeFileColumns+` FROM knowledge_files WHERE file_key = $1`,
		fileKey,
	).Scan(&f.FileKey, &f.FileName, &f.Content, &f.Kind, &f.Category, &f.Priority, &f.Active, &f.Version, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFileNotFound
		}
		return nil, err
	}
	return &f, nil
}

func (r *KnowledgeFileRepository) Update(ctx context.Context, f *domain.KnowledgeFile) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_files
		 SET file_name = $1, content = $2, kind = $3, category = $4, priority = $5, active = $6, version = $7, updated_at = $8
		 WHERE file_key = $9`,
		f.FileName, f.Content, f.Kind, f.Category, f.Priority, f.Active, f.Version, f.UpdatedAt, f.FileKey,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

func (r *KnowledgeFileRepository) List(ctx context.Context) ([]*domain.KnowledgeFile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeFileColumns+` FROM knowledge_files ORDER BY priority ASC, file_key ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeFileRows(rows)
}

func (r *KnowledgeFileRepository) ListActive(ctx context.Context) ([]*domain.KnowledgeFile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeFileColumns+` FROM knowledge_files WHERE active = TRUE ORDER BY priority ASC, file_key ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeFileRows(rows)
}

func (r *KnowledgeFileRepository) ListByCategory(ctx context.Context, category string) ([]*domain.KnowledgeFile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+knowledgeFileColumns+` FROM knowledge_files WHERE category = $1 ORDER BY priority ASC, file_key ASC`,
		category,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKnowledgeFileRows(rows)
}

func (r *KnowledgeFileRepository) SetActive(ctx context.Context, fileKey string, active bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE knowledge_files SET active = $1, updated_at = $2 WHERE file_key = $3`,
		active, time.Now().UTC(), fileKey,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}
	return nil
}

func scanKnowledgeFileRows(rows pgx.Rows) ([]*domain.KnowledgeFile, error) {
	var files []*domain.KnowledgeFile
	for rows.Next() {
		var f domain.KnowledgeFile
		if err := rows.Scan(&f.FileKey, &f.FileName, &f.Content, &f.Kind, &f.Category, &f.Priority, &f.Active, &f.Version, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

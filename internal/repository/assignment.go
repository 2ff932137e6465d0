package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

// AssignmentRepository maps functions to the knowledge files they load.
type AssignmentRepository struct {
	db dbtx
}

func NewAssignmentRepository(pool *pgxpool.Pool) *AssignmentRepository {
	return &AssignmentRepository{db: pool}
}

func NewAssignmentRepositoryWithTx(tx pgx.Tx) *AssignmentRepository {
	return &AssignmentRepository{db: tx}
}

func (r *AssignmentRepository) Upsert(ctx context.Context, a *domain.KnowledgeAssignment) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_assignments (function_name, file_key, load_order, required)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (function_name, file_key) DO UPDATE SET
		     load_order = EXCLUDED.load_order,
		     required = EXCLUDED.required`,
		a.FunctionName, a.FileKey, a.LoadOrder, a.Required,
	)
	return err
}

func (r *AssignmentRepository) Delete(ctx context.Context, functionName, fileKey string) error {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM knowledge_assignments WHERE function_name = $1 AND file_key = $2`,
		functionName, fileKey,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrAssignmentNotFound
	}
	return nil
}

func (r *AssignmentRepository) ListByFunction(ctx context.Context, functionName string) ([]*domain.KnowledgeAssignment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT function_name, file_key, load_order, required
		 FROM knowledge_assignments
		 WHERE function_name = $1
		 ORDER BY load_order ASC, file_key ASC`,
		functionName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assignments []*domain.KnowledgeAssignment
	for rows.Next() {
		var a domain.KnowledgeAssignment
		if err := rows.Scan(&a.FunctionName, &a.FileKey, &a.LoadOrder, &a.Required); err != nil {
			return nil, err
		}
		assignments = append(assignments, &a)
	}
	return assignments, rows.Err()
}

// ListAssignedFiles resolves a function's assignments to the active files
// behind them, in load order.
func (r *AssignmentRepository) ListAssignedFiles(ctx context.Context, functionName string) ([]*domain.AssignedFile, error) {
	rows, err := r.db.Query(ctx,
		`SELECT a.load_order, a.required,
		        f.file_key, f.file_name, f.content, f.kind, f.category, f.priority, f.active, f.version, f.created_at, f.updated_at
		 FROM knowledge_assignments a
		 JOIN knowledge_files f ON f.file_key = a.file_key
		 WHERE a.function_name = $1 AND f.active = TRUE
		 ORDER BY a.load_order ASC, f.file_key ASC`,
		functionName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*domain.AssignedFile
	for rows.Next() {
		var af domain.AssignedFile
		f := &af.File
		if err := rows.Scan(&af.LoadOrder, &af.Required,
			&f.FileKey, &f.FileName, &f.Content, &f.Kind, &f.Category, &f.Priority, &f.Active, &f.Version, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		files = append(files, &af)
	}
	return files, rows.Err()
}

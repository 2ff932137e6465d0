//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/ckr-digital/ridgeline/internal/domain"
	"github.com/ckr-digital/ridgeline/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepoTest(t *testing.T) (context.Context, *pgxpool.Pool, func()) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	cleanup := func() {
		pool.Close()
		pc.Terminate(ctx)
	}
	return ctx, pool, cleanup
}

func newStoredFile(key string) *domain.KnowledgeFile {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.KnowledgeFile{
		FileKey:   key,
		FileName:  "Test File " + key,
		Content:   "# Heading\n\nSome content for " + key,
		Kind:      domain.ContentKindText,
		Category:  "services",
		Priority:  1,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestKnowledgeFileRepository_CreateAndGet(t *testing.T) {
	ctx, pool, cleanup := setupRepoTest(t)
	defer cleanup()

	repo := NewKnowledgeFileRepository(pool)

	f := newStoredFile("MKF_02")
	require.NoError(t, repo.Create(ctx, f))

	got, err := repo.GetByKey(ctx, "MKF_02")
	require.NoError(t, err)
	assert.Equal(t, f.FileKey, got.FileKey)
	assert.Equal(t, f.Content, got.Content)
	assert.Equal(t, int32(1), got.Version)
	assert.True(t, got.Active)
}

func TestKnowledgeFileRepository_GetByKey_NotFound(t *testing.T) {
	ctx, pool, cleanup := setupRepoTest(t)
	defer cleanup()

	repo := NewKnowledgeFileRepository(pool)

	_, err := repo.GetByKey(ctx, "MKF_99")
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestKnowledgeFileRepository_Update(t *testing.T) {
	ctx, pool, cleanup := setupRepoTest(t)
	defer cleanup()

	repo := NewKnowledgeFileRepository(pool)

	f := newStoredFile("MKF_02")
	require.NoError(t, repo.Create(ctx, f))

	f.Content = "# Heading\n\nUpdated content"
	f.Version = 2
	f.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.Update(ctx, f))

	got, err := repo.GetByKey(ctx, "MKF_02")
	require.NoError(t, err)
	assert.Equal(t, int32(2), got.Version)
	assert.Contains(t, got.Content, "Updated content")
}

func TestKnowledgeFileRepository_Update_NotFound(t *testing.T) {
	ctx, pool, cleanup := setupRepoTest(t)
	defer cleanup()

	repo := NewKnowledgeFileRepository(pool)

	f := newStoredFile("MKF_99")
	err := repo.Update(ctx, f)
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestKnowledgeFileRepository_ListOrdering(t *testing.T) {
	ctx, pool, cleanup := setupRepoTest(t)
	defer cleanup()

	repo := NewKnowledgeFileRepository(pool)

	high := newStoredFile("MKF_05")
	high.Priority = 5
	low := newStoredFile("MKF_00")
	low.Priority = 0
	mid := newStoredFile("MKF_02")
	mid.Priority = 2

	require.NoError(t, repo.Create(ctx, high))
	require.NoError(t, repo.Create(ctx, low))
	require.NoError(t, repo.Create(ctx, mid))

	files, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "MKF_00", files[0].FileKey)
	assert.Equal(t, "MKF_02", files[1].FileKey)
	assert.Equal(t, "MKF_05", files[2].FileKey)
}

func TestKnowledgeFileRepository_SetActiveAndListActive(t *testing.T) {
	ctx, pool, cleanup := setupRepoTest(t)
	defer cleanup()

	repo := NewKnowledgeFileRepository(pool)

	a := newStoredFile("MKF_00")
	b := newStoredFile("MKF_02")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	require.NoError(t, repo.SetActive(ctx, "MKF_02", false))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "MKF_00", active[0].FileKey)

	got, err := repo.GetByKey(ctx, "MKF_02")
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestKnowledgeFileRepository_ListByCategory(t *testing.T) {
	ctx, pool, cleanup := setupRepoTest(t)
	defer cleanup()

	repo := NewKnowledgeFileRepository(pool)

	a := newStoredFile("MKF_00")
	a.Category = "identity"
	b := newStoredFile("MKF_02")
	b.Category = "services"
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	files, err := repo.ListByCategory(ctx, "identity")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "MKF_00", files[0].FileKey)
}

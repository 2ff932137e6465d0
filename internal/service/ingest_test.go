package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ckr-digital/ridgeline/internal/domain"
)

// MockFileRepository is a mock implementation of FileRepositoryInterface
type MockFileRepository struct {
	mock.Mock
}

func (m *MockFileRepository) Create(ctx context.Context, f *domain.KnowledgeFile) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFileRepository) GetByKey(ctx context.Context, fileKey string) (*domain.KnowledgeFile, error) {
	args := m.Called(ctx, fileKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeFile), args.Error(1)
}

func (m *MockFileRepository) Update(ctx context.Context, f *domain.KnowledgeFile) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFileRepository) List(ctx context.Context) ([]*domain.KnowledgeFile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeFile), args.Error(1)
}

func (m *MockFileRepository) ListActive(ctx context.Context) ([]*domain.KnowledgeFile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeFile), args.Error(1)
}

func (m *MockFileRepository) ListByCategory(ctx context.Context, category string) ([]*domain.KnowledgeFile, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeFile), args.Error(1)
}

func (m *MockFileRepository) SetActive(ctx context.Context, fileKey string, active bool) error {
	args := m.Called(ctx, fileKey, active)
	return args.Error(0)
}

// MockChunkWriteRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkWriteRepository struct {
	mock.Mock
}

func (m *MockChunkWriteRepository) UpsertChunks(ctx context.Context, fileKey string, chunks []domain.Chunk) error {
	args := m.Called(ctx, fileKey, chunks)
	return args.Error(0)
}

func (m *MockChunkWriteRepository) ListByFile(ctx context.Context, fileKey string) ([]*domain.Chunk, error) {
	args := m.Called(ctx, fileKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockChunkWriteRepository) DeleteByFile(ctx context.Context, fileKey string) error {
	args := m.Called(ctx, fileKey)
	return args.Error(0)
}

// fakeTxRunner hands the same repositories to every transaction.
type fakeTxRunner struct {
	files  FileRepositoryInterface
	chunks ChunkRepositoryInterface
	jobs   JobRepositoryInterface
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	return fn(f)
}

func (f *fakeTxRunner) Files() FileRepositoryInterface   { return f.files }
func (f *fakeTxRunner) Chunks() ChunkRepositoryInterface { return f.chunks }
func (f *fakeTxRunner) Jobs() JobRepositoryInterface     { return f.jobs }

// MockArchiveStore is a mock implementation of ArchiveStore
type MockArchiveStore struct {
	mock.Mock
}

func (m *MockArchiveStore) ArchiveFile(ctx context.Context, f *domain.KnowledgeFile) (string, error) {
	args := m.Called(ctx, f)
	return args.String(0), args.Error(1)
}

func ingestFixture() (*MockFileRepository, *MockChunkWriteRepository, *MockJobRepository, *IngestService) {
	files := new(MockFileRepository)
	chunks := new(MockChunkWriteRepository)
	jobs := new(MockJobRepository)
	tx := &fakeTxRunner{files: files, chunks: chunks, jobs: jobs}
	tracker := NewJobTracker(jobs)
	svc := NewIngestService(tx, files, charChunker(DefaultChunkConfig()), tracker)
	return files, chunks, jobs, svc
}

func TestIngestService_Ingest_NewFile(t *testing.T) {
	files, chunks, jobs, svc := ingestFixture()

	files.On("GetByKey", mock.Anything, "MKF_01").Return(nil, domain.ErrFileNotFound)
	files.On("Create", mock.Anything, mock.MatchedBy(func(f *domain.KnowledgeFile) bool {
		return f.FileKey == "MKF_01" && f.Version == 1 && f.Active
	})).Return(nil)
	chunks.On("UpsertChunks", mock.Anything, "MKF_01", mock.Anything).Return(nil)
	jobs.On("GetActiveByFile", mock.Anything, "MKF_01").Return(nil, domain.ErrJobNotFound)
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
		return j.Type == domain.JobTypeFull && j.FileKey == "MKF_01"
	})).Return(nil)

	result, err := svc.Ingest(context.Background(), IngestInput{
		FileKey:  "MKF_01",
		FileName: "brand-voice.md",
		Content:  "Educate over upsell. Plain language always.",
		Kind:     domain.ContentKindText,
		Category: "identity",
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), result.File.Version)
	assert.Equal(t, 1, result.ChunkCount)
	assert.False(t, result.Unchanged)
	assert.Equal(t, domain.JobTypeFull, result.Job.Type)
	files.AssertExpectations(t)
	chunks.AssertExpectations(t)
	jobs.AssertExpectations(t)
}

func TestIngestService_Ingest_ChangedContentBumpsVersion(t *testing.T) {
	files, chunks, jobs, svc := ingestFixture()

	existing := &domain.KnowledgeFile{
		FileKey: "MKF_01", FileName: "brand-voice.md", Content: "Old content.",
		Kind: domain.ContentKindText, Category: "identity", Active: true, Version: 3,
	}

	files.On("GetByKey", mock.Anything, "MKF_01").Return(existing, nil)
	files.On("Update", mock.Anything, mock.MatchedBy(func(f *domain.KnowledgeFile) bool {
		return f.Version == 4 && f.Content == "New content entirely."
	})).Return(nil)
	chunks.On("UpsertChunks", mock.Anything, "MKF_01", mock.Anything).Return(nil)
	jobs.On("GetActiveByFile", mock.Anything, "MKF_01").Return(nil, domain.ErrJobNotFound)
	jobs.On("Create", mock.Anything, mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
		return j.Type == domain.JobTypeIncremental
	})).Return(nil)

	result, err := svc.Ingest(context.Background(), IngestInput{
		FileKey:  "MKF_01",
		FileName: "brand-voice.md",
		Content:  "New content entirely.",
		Kind:     domain.ContentKindText,
		Category: "identity",
	})

	require.NoError(t, err)
	assert.Equal(t, int32(4), result.File.Version)
	assert.False(t, result.Unchanged)
	files.AssertExpectations(t)
}

func TestIngestService_Ingest_UnchangedContentKeepsVersion(t *testing.T) {
	files, chunks, jobs, svc := ingestFixture()

	content := "Same content as before."
	existing := &domain.KnowledgeFile{
		FileKey: "MKF_01", FileName: "brand-voice.md", Content: content,
		Kind: domain.ContentKindText, Category: "identity", Active: true, Version: 2,
	}

	files.On("GetByKey", mock.Anything, "MKF_01").Return(existing, nil)
	files.On("Update", mock.Anything, mock.MatchedBy(func(f *domain.KnowledgeFile) bool {
		return f.Version == 2
	})).Return(nil)
	chunks.On("UpsertChunks", mock.Anything, "MKF_01", mock.Anything).Return(nil)
	jobs.On("GetActiveByFile", mock.Anything, "MKF_01").Return(nil, domain.ErrJobNotFound)
	jobs.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Ingest(context.Background(), IngestInput{
		FileKey:  "MKF_01",
		FileName: "brand-voice.md",
		Content:  content,
		Kind:     domain.ContentKindText,
		Category: "identity",
	})

	require.NoError(t, err)
	assert.True(t, result.Unchanged)
	assert.Equal(t, int32(2), result.File.Version)
}

func TestIngestService_Ingest_InvalidInput(t *testing.T) {
	_, _, _, svc := ingestFixture()

	_, err := svc.Ingest(context.Background(), IngestInput{
		FileKey: "MKF_01",
		Content: "no file name",
		Kind:    domain.ContentKindText,
	})

	assert.Error(t, err)
}

func TestIngestService_Ingest_TxErrorPropagates(t *testing.T) {
	files, chunks, jobs, svc := ingestFixture()

	files.On("GetByKey", mock.Anything, "MKF_01").Return(nil, domain.ErrFileNotFound)
	files.On("Create", mock.Anything, mock.Anything).Return(nil)
	chunks.On("UpsertChunks", mock.Anything, "MKF_01", mock.Anything).Return(errors.New("disk full"))

	_, err := svc.Ingest(context.Background(), IngestInput{
		FileKey:  "MKF_01",
		FileName: "brand-voice.md",
		Content:  "content",
		Kind:     domain.ContentKindText,
	})

	assert.Error(t, err)
	jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestService_Ingest_ArchiveFailureDoesNotFailIngest(t *testing.T) {
	files := new(MockFileRepository)
	chunks := new(MockChunkWriteRepository)
	jobs := new(MockJobRepository)
	archive := new(MockArchiveStore)
	tx := &fakeTxRunner{files: files, chunks: chunks, jobs: jobs}
	svc := NewIngestServiceWithArchive(tx, files, charChunker(DefaultChunkConfig()), NewJobTracker(jobs), archive)

	files.On("GetByKey", mock.Anything, "MKF_01").Return(nil, domain.ErrFileNotFound)
	files.On("Create", mock.Anything, mock.Anything).Return(nil)
	chunks.On("UpsertChunks", mock.Anything, "MKF_01", mock.Anything).Return(nil)
	jobs.On("GetActiveByFile", mock.Anything, "MKF_01").Return(nil, domain.ErrJobNotFound)
	jobs.On("Create", mock.Anything, mock.Anything).Return(nil)
	archive.On("ArchiveFile", mock.Anything, mock.Anything).Return("", errors.New("bucket unreachable"))

	result, err := svc.Ingest(context.Background(), IngestInput{
		FileKey:  "MKF_01",
		FileName: "brand-voice.md",
		Content:  "content",
		Kind:     domain.ContentKindText,
	})

	require.NoError(t, err)
	assert.NotNil(t, result.Job)
	archive.AssertExpectations(t)
}

func TestIngestService_Ingest_LargeFileProducesManyChunks(t *testing.T) {
	files, chunks, jobs, svc := ingestFixture()

	files.On("GetByKey", mock.Anything, "MKF_02").Return(nil, domain.ErrFileNotFound)
	files.On("Create", mock.Anything, mock.Anything).Return(nil)
	chunks.On("UpsertChunks", mock.Anything, "MKF_02", mock.MatchedBy(func(cs []domain.Chunk) bool {
		return len(cs) > 1
	})).Return(nil)
	jobs.On("GetActiveByFile", mock.Anything, "MKF_02").Return(nil, domain.ErrJobNotFound)
	jobs.On("Create", mock.Anything, mock.Anything).Return(nil)

	result, err := svc.Ingest(context.Background(), IngestInput{
		FileKey:  "MKF_02",
		FileName: "pricing.md",
		Content:  strings.Repeat("Ridge capping rebedding and repointing pricing details. ", 200),
		Kind:     domain.ContentKindText,
		Category: "pricing",
	})

	require.NoError(t, err)
	assert.Greater(t, result.ChunkCount, 1)
}

func TestIngestService_DeactivateFile(t *testing.T) {
	files, _, _, svc := ingestFixture()

	files.On("SetActive", mock.Anything, "MKF_01", false).Return(nil)

	assert.NoError(t, svc.DeactivateFile(context.Background(), "MKF_01"))
	files.AssertExpectations(t)
}

func TestIngestService_ReembedFile_UnknownFile(t *testing.T) {
	files, _, _, svc := ingestFixture()

	files.On("GetByKey", mock.Anything, "nope").Return(nil, domain.ErrFileNotFound)

	_, err := svc.ReembedFile(context.Background(), "nope")

	assert.Equal(t, domain.ErrFileNotFound, err)
}

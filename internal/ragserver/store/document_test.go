package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kart-io/ragserver/internal/model"
)

func newTestDocumentStore(t *testing.T) *GormDocumentStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Document{}))
	return NewGormDocumentStore(db)
}

func TestDocumentStoreCreateAndGet(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	doc := &model.Document{
		ID:          "doc1",
		Filename:    "guide.txt",
		ContentType: "text/plain",
		ByteSize:    1024,
		Hash:        "abc123",
	}
	require.NoError(t, s.Create(ctx, doc))

	got, err := s.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "guide.txt", got.Filename)
	// 新建文档默认 pending 状态
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestDocumentStoreFinalize(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc1", Filename: "a.txt"}))
	require.NoError(t, s.Finalize(ctx, "doc1", 12))

	got, err := s.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, 12, got.ChunkCount)

	assert.ErrorIs(t, s.Finalize(ctx, "missing", 1), ErrDocumentNotFound)
}

func TestDocumentStoreMarkFailed(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc1", Filename: "a.txt"}))
	require.NoError(t, s.MarkFailed(ctx, "doc1", "embedding provider unavailable"))

	got, err := s.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "embedding provider unavailable", got.FailReason)
}

func TestDocumentStoreListHidesFailed(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc1", Filename: "a.txt"}))
	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc2", Filename: "b.txt"}))
	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc3", Filename: "c.txt"}))
	require.NoError(t, s.Finalize(ctx, "doc1", 3))
	require.NoError(t, s.MarkFailed(ctx, "doc2", "boom"))

	docs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.NotEqual(t, model.StatusFailed, d.Status)
	}
}

func TestDocumentStoreGetByHash(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc1", Filename: "a.txt", Hash: "h1"}))

	// pending 状态不参与去重
	_, err := s.GetByHash(ctx, "h1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	require.NoError(t, s.Finalize(ctx, "doc1", 2))
	got, err := s.GetByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "doc1", got.ID)
}

func TestDocumentStoreDelete(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc1", Filename: "a.txt"}))
	require.NoError(t, s.Delete(ctx, "doc1"))

	_, err := s.Get(ctx, "doc1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "doc1"), ErrDocumentNotFound)
}

func TestDocumentStoreCountCompleted(t *testing.T) {
	s := newTestDocumentStore(t)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc1", Filename: "a.txt"}))
	require.NoError(t, s.Create(ctx, &model.Document{ID: "doc2", Filename: "b.txt"}))
	require.NoError(t, s.Finalize(ctx, "doc1", 1))

	count, err := s.CountCompleted(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

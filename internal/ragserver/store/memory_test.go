package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollection(t *testing.T, s *MemoryStore, dim int) string {
	t.Helper()
	name := "test_chunks"
	got, err := s.EnsureCollection(context.Background(), &CollectionConfig{
		Name:      name,
		Dimension: dim,
	})
	require.NoError(t, err)
	require.Equal(t, dim, got)
	return name
}

func TestMemoryStoreEnsureCollection(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	dim, err := s.EnsureCollection(ctx, &CollectionConfig{Name: "c1", Dimension: 4})
	require.NoError(t, err)
	assert.Equal(t, 4, dim)

	// 重复创建返回原有维度
	dim, err = s.EnsureCollection(ctx, &CollectionConfig{Name: "c1", Dimension: 8})
	require.NoError(t, err)
	assert.Equal(t, 4, dim)

	_, err = s.EnsureCollection(ctx, &CollectionConfig{Name: "bad", Dimension: 0})
	assert.Error(t, err)
}

func TestMemoryStoreUpsert(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	coll := newTestCollection(t, s, 3)

	tests := []struct {
		name    string
		chunks  []*Chunk
		wantErr bool
	}{
		{
			name: "正常写入",
			chunks: []*Chunk{
				{ID: "doc1_0", DocumentID: "doc1", Content: "hello", Embedding: []float32{1, 0, 0}},
				{ID: "doc1_1", DocumentID: "doc1", Content: "world", Embedding: []float32{0, 1, 0}},
			},
		},
		{
			name: "维度不匹配拒绝写入",
			chunks: []*Chunk{
				{ID: "doc2_0", DocumentID: "doc2", Embedding: []float32{1, 0}},
			},
			wantErr: true,
		},
		{
			name:   "空批次为空操作",
			chunks: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Upsert(ctx, coll, tt.chunks)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	count, err := s.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestMemoryStoreUpsertIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	coll := newTestCollection(t, s, 2)

	chunk := &Chunk{ID: "doc1_0", DocumentID: "doc1", Content: "v1", Embedding: []float32{1, 0}}
	require.NoError(t, s.Upsert(ctx, coll, []*Chunk{chunk}))

	// 相同 ID 重复写入覆盖而非追加
	chunk.Content = "v2"
	require.NoError(t, s.Upsert(ctx, coll, []*Chunk{chunk}))

	count, err := s.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	results, err := s.Search(ctx, coll, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "v2", results[0].Content)
}

func TestMemoryStoreSearch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	coll := newTestCollection(t, s, 2)

	require.NoError(t, s.Upsert(ctx, coll, []*Chunk{
		{ID: "doc1_0", DocumentID: "doc1", ChunkIndex: 0, Content: "east", Embedding: []float32{1, 0}},
		{ID: "doc1_1", DocumentID: "doc1", ChunkIndex: 1, Content: "north", Embedding: []float32{0, 1}},
		{ID: "doc2_0", DocumentID: "doc2", ChunkIndex: 0, Content: "west", Embedding: []float32{-1, 0}},
	}))

	results, err := s.Search(ctx, coll, []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 按归一化分数降序：同向 1.0，正交 0.5，反向 0.0
	assert.Equal(t, "east", results[0].Content)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, "north", results[1].Content)
	assert.InDelta(t, 0.5, results[1].Score, 1e-6)
	assert.Equal(t, "west", results[2].Content)
	assert.InDelta(t, 0.0, results[2].Score, 1e-6)

	// topK 截断
	results, err = s.Search(ctx, coll, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// 查询维度不匹配
	_, err = s.Search(ctx, coll, []float32{1, 0, 0}, 3, nil)
	assert.Error(t, err)
}

func TestMemoryStoreSearchFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	coll := newTestCollection(t, s, 2)

	require.NoError(t, s.Upsert(ctx, coll, []*Chunk{
		{ID: "doc1_0", DocumentID: "doc1", Section: "intro", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: "doc1_1", DocumentID: "doc1", Section: "body", ChunkIndex: 1, Embedding: []float32{1, 0}},
		{ID: "doc2_0", DocumentID: "doc2", Section: "intro", ChunkIndex: 0, Embedding: []float32{1, 0}},
	}))

	tests := []struct {
		name    string
		filter  map[string]string
		wantIDs []string
	}{
		{
			name:    "按文档过滤",
			filter:  map[string]string{"document_id": "doc1"},
			wantIDs: []string{"doc1_0", "doc1_1"},
		},
		{
			name:    "多条件与关系",
			filter:  map[string]string{"document_id": "doc1", "section": "intro"},
			wantIDs: []string{"doc1_0"},
		},
		{
			name:    "无匹配返回空",
			filter:  map[string]string{"document_id": "doc3"},
			wantIDs: []string{},
		},
		{
			name:    "未知字段不匹配",
			filter:  map[string]string{"color": "red"},
			wantIDs: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.Search(ctx, coll, []float32{1, 0}, 10, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(results))
			for _, r := range results {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMemoryStoreSearchDeterministicOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	coll := newTestCollection(t, s, 2)

	// 分数相同的块按 ChunkIndex 升序、写入顺序次之
	chunks := make([]*Chunk, 0, 6)
	for d := 0; d < 2; d++ {
		for i := 0; i < 3; i++ {
			docID := fmt.Sprintf("doc%d", d)
			chunks = append(chunks, &Chunk{
				ID:         fmt.Sprintf("%s_%d", docID, i),
				DocumentID: docID,
				ChunkIndex: i,
				Embedding:  []float32{1, 0},
			})
		}
	}
	require.NoError(t, s.Upsert(ctx, coll, chunks))

	first, err := s.Search(ctx, coll, []float32{1, 0}, 6, nil)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := s.Search(ctx, coll, []float32{1, 0}, 6, nil)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, "doc0_0", first[0].ID)
	assert.Equal(t, "doc1_2", first[5].ID)
}

func TestMemoryStoreDeleteByDocument(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	coll := newTestCollection(t, s, 2)

	require.NoError(t, s.Upsert(ctx, coll, []*Chunk{
		{ID: "doc1_0", DocumentID: "doc1", Embedding: []float32{1, 0}},
		{ID: "doc1_1", DocumentID: "doc1", Embedding: []float32{0, 1}},
		{ID: "doc2_0", DocumentID: "doc2", Embedding: []float32{1, 1}},
	}))

	require.NoError(t, s.DeleteByDocument(ctx, coll, "doc1"))

	count, err := s.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 删除不存在的文档不报错
	assert.NoError(t, s.DeleteByDocument(ctx, coll, "missing"))
	// 删除不存在的集合不报错
	assert.NoError(t, s.DeleteByDocument(ctx, "missing", "doc1"))
}

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/ragserver/internal/pkg/textutil"
	"github.com/kart-io/ragserver/pkg/component/milvus"
)

const chunkPrimaryKey = "chunk_id"

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client *milvus.Client
}

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client) *MilvusStore {
	return &MilvusStore{client: client}
}

// EnsureCollection 创建 Milvus 集合并返回实际向量维度。
func (s *MilvusStore) EnsureCollection(ctx context.Context, config *CollectionConfig) (int, error) {
	schema := &milvus.CollectionSchema{
		Name:        config.Name,
		Description: config.Description,
		Dimension:   config.Dimension,
		PrimaryKey:  chunkPrimaryKey,
		MetaFields: []milvus.MetaField{
			{Name: "document_id", DataType: entity.FieldTypeVarChar, MaxLen: 64},
			{Name: "source", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "section", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
		},
	}
	return s.client.EnsureCollection(ctx, schema)
}

// CollectionDimension 返回集合的向量维度；集合不存在时不创建。
func (s *MilvusStore) CollectionDimension(ctx context.Context, collection string) (int, bool, error) {
	return s.client.DescribeDimension(ctx, collection)
}

// Upsert 批量写入文档块到 Milvus，相同 chunk_id 覆盖。
func (s *MilvusStore) Upsert(ctx context.Context, collection string, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	metadata := map[string][]any{
		"document_id": make([]any, len(chunks)),
		"source":      make([]any, len(chunks)),
		"section":     make([]any, len(chunks)),
		"content":     make([]any, len(chunks)),
		"chunk_index": make([]any, len(chunks)),
	}

	for i, chunk := range chunks {
		ids[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		metadata["document_id"][i] = chunk.DocumentID
		metadata["source"][i] = chunk.Source
		metadata["section"][i] = chunk.Section
		metadata["content"][i] = chunk.Content
		metadata["chunk_index"][i] = int64(chunk.ChunkIndex)
	}

	data := &milvus.UpsertData{
		PrimaryKey: chunkPrimaryKey,
		IDs:        ids,
		Embeddings: embeddings,
		Metadata:   metadata,
	}

	if err := s.client.Upsert(ctx, collection, data); err != nil {
		return fmt.Errorf("failed to upsert into milvus: %w", err)
	}
	return nil
}

// DeleteByDocument 删除指定文档的全部块。
func (s *MilvusStore) DeleteByDocument(ctx context.Context, collection string, documentID string) error {
	expr := fmt.Sprintf("document_id == %q", documentID)
	if err := s.client.DeleteByExpr(ctx, collection, expr); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// Search 执行向量相似度搜索。
//
// Milvus 使用 COSINE 度量返回 [-1,1] 的原始分数，这里统一归一化到 [0,1]。
func (s *MilvusStore) Search(ctx context.Context, collection string, embedding []float32, topK int, filter map[string]string) ([]*SearchResult, error) {
	outputFields := []string{"document_id", "source", "section", "content", "chunk_index"}
	results, err := s.client.Search(ctx, collection, embedding, topK, filterExpr(filter), outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	searchResults := make([]*SearchResult, 0, len(results))
	for _, r := range results {
		sr := &SearchResult{
			ID:    r.ID,
			Score: float32(textutil.NormalizeCosineSimilarity(float64(r.Score))),
		}
		if v, ok := r.Metadata["document_id"].(string); ok {
			sr.DocumentID = v
		}
		if v, ok := r.Metadata["source"].(string); ok {
			sr.Source = v
		}
		if v, ok := r.Metadata["section"].(string); ok {
			sr.Section = v
		}
		if v, ok := r.Metadata["content"].(string); ok {
			sr.Content = v
		}
		if v, ok := r.Metadata["chunk_index"].(int64); ok {
			sr.ChunkIndex = int(v)
		}
		searchResults = append(searchResults, sr)
	}

	return searchResults, nil
}

// filterExpr 将精确匹配条件转换为 Milvus 布尔表达式，键排序保证确定性。
func filterExpr(filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, fmt.Sprintf("%s == %q", k, filter[k]))
	}
	return strings.Join(conds, " && ")
}

// Count 返回集合中的块数量。
func (s *MilvusStore) Count(ctx context.Context, collection string) (int64, error) {
	return s.client.GetCollectionStats(ctx, collection)
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// 确保 MilvusStore 实现了 VectorStore 接口。
var _ VectorStore = (*MilvusStore)(nil)

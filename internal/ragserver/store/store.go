package store

import (
	"context"

	"github.com/kart-io/ragserver/internal/model"
)

// Chunk 表示文档块。
type Chunk struct {
	// ID 文档块 ID，形如 "<documentID>_<chunkIndex>"，重复写入幂等覆盖。
	ID string
	// DocumentID 所属文档 ID。
	DocumentID string
	// Source 文档来源（文件名）。
	Source string
	// Section 所属章节。
	Section string
	// Content 文档内容。
	Content string
	// ChunkIndex 块在文档中的序号。
	ChunkIndex int
	// Embedding 嵌入向量。
	Embedding []float32
}

// SearchResult 表示检索结果。
type SearchResult struct {
	// ID 文档块 ID。
	ID string
	// DocumentID 所属文档 ID。
	DocumentID string
	// Source 文档来源。
	Source string
	// Section 所属章节。
	Section string
	// Content 文档内容。
	Content string
	// ChunkIndex 块在文档中的序号。
	ChunkIndex int
	// Score 归一化相似度分数，取值 [0,1]。
	Score float32
}

// CollectionConfig 集合配置。
type CollectionConfig struct {
	// Name 集合名称。
	Name string
	// Description 集合描述。
	Description string
	// Dimension 向量维度。
	Dimension int
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// EnsureCollection 创建集合（已存在则跳过），返回集合实际使用的向量维度。
	EnsureCollection(ctx context.Context, config *CollectionConfig) (int, error)

	// CollectionDimension 返回集合的向量维度，不产生任何写入；
	// 集合不存在时第二个返回值为 false。
	CollectionDimension(ctx context.Context, collection string) (int, bool, error)

	// Upsert 批量写入文档块，相同 ID 覆盖。
	Upsert(ctx context.Context, collection string, chunks []*Chunk) error

	// DeleteByDocument 删除指定文档的全部块。
	DeleteByDocument(ctx context.Context, collection string, documentID string) error

	// Search 向量相似度搜索，返回按分数降序排列的结果。
	// filter 为元数据精确匹配条件（与关系），在排序前生效，可以为 nil。
	Search(ctx context.Context, collection string, embedding []float32, topK int, filter map[string]string) ([]*SearchResult, error)

	// Count 返回集合中的块数量。
	Count(ctx context.Context, collection string) (int64, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}

// DocumentStore 定义文档元数据存储接口。
type DocumentStore interface {
	// Create 创建 pending 状态的文档记录。
	Create(ctx context.Context, doc *model.Document) error

	// Finalize 将文档标记为 completed 并记录块数量。
	Finalize(ctx context.Context, id string, chunkCount int) error

	// MarkFailed 将文档标记为 failed 并记录原因。
	MarkFailed(ctx context.Context, id string, reason string) error

	// Get 按 ID 获取文档。
	Get(ctx context.Context, id string) (*model.Document, error)

	// GetByHash 按内容哈希查找已完成的文档，用于去重。
	GetByHash(ctx context.Context, hash string) (*model.Document, error)

	// List 列出可见文档（不含 failed），按创建时间倒序。
	List(ctx context.Context) ([]*model.Document, error)

	// Delete 删除文档记录。
	Delete(ctx context.Context, id string) error

	// CountCompleted 返回 completed 状态的文档数量。
	CountCompleted(ctx context.Context) (int64, error)
}

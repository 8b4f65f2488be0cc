package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/kart-io/ragserver/internal/pkg/textutil"
)

// MemoryStore 实现进程内向量存储，用于本地开发与测试。
//
// 采用暴力余弦检索，数据不落盘，进程退出即丢失。
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	chunks    map[string]*memoryChunk
	nextSeq   int64
}

// memoryChunk 记录写入顺序，用于同分结果的最终平局。
type memoryChunk struct {
	Chunk
	seq int64
}

// NewMemoryStore 创建内存向量存储实例。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

// EnsureCollection 创建集合；已存在时返回集合原有维度。
func (s *MemoryStore) EnsureCollection(_ context.Context, config *CollectionConfig) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[config.Name]; ok {
		return c.dimension, nil
	}
	if config.Dimension <= 0 {
		return 0, fmt.Errorf("invalid collection dimension: %d", config.Dimension)
	}
	s.collections[config.Name] = &memoryCollection{
		dimension: config.Dimension,
		chunks:    make(map[string]*memoryChunk),
	}
	return config.Dimension, nil
}

// CollectionDimension 返回集合的向量维度；集合不存在时第二个返回值为 false。
func (s *MemoryStore) CollectionDimension(_ context.Context, collection string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, false, nil
	}
	return c.dimension, true, nil
}

// Upsert 批量写入文档块，相同 ID 覆盖。
func (s *MemoryStore) Upsert(_ context.Context, collection string, chunks []*Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s does not exist", collection)
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) != c.dimension {
			return fmt.Errorf("embedding dimension %d does not match collection dimension %d",
				len(chunk.Embedding), c.dimension)
		}
	}
	for _, chunk := range chunks {
		// 覆盖写入保留原有序号，保持检索顺序稳定。
		seq := c.nextSeq
		if existing, ok := c.chunks[chunk.ID]; ok {
			seq = existing.seq
		} else {
			c.nextSeq++
		}
		c.chunks[chunk.ID] = &memoryChunk{Chunk: *chunk, seq: seq}
	}
	return nil
}

// DeleteByDocument 删除指定文档的全部块。
func (s *MemoryStore) DeleteByDocument(_ context.Context, collection string, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	for id, chunk := range c.chunks {
		if chunk.DocumentID == documentID {
			delete(c.chunks, id)
		}
	}
	return nil
}

// Search 暴力余弦检索，返回归一化分数降序的前 topK 条结果。
// filter 为元数据精确匹配条件，在打分前生效。
// 分数相同时按 ChunkIndex 升序、写入顺序次之，保证结果确定。
func (s *MemoryStore) Search(_ context.Context, collection string, embedding []float32, topK int, filter map[string]string) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", collection)
	}
	if len(embedding) != c.dimension {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d",
			len(embedding), c.dimension)
	}

	type scored struct {
		result *SearchResult
		seq    int64
	}
	matches := make([]scored, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		if !matchFilter(&chunk.Chunk, filter) {
			continue
		}
		score := textutil.NormalizeCosineSimilarity(
			textutil.CosineSimilarity(embedding, chunk.Embedding))
		matches = append(matches, scored{
			result: &SearchResult{
				ID:         chunk.ID,
				DocumentID: chunk.DocumentID,
				Source:     chunk.Source,
				Section:    chunk.Section,
				Content:    chunk.Content,
				ChunkIndex: chunk.ChunkIndex,
				Score:      float32(score),
			},
			seq: chunk.seq,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].result.Score != matches[j].result.Score {
			return matches[i].result.Score > matches[j].result.Score
		}
		if matches[i].result.ChunkIndex != matches[j].result.ChunkIndex {
			return matches[i].result.ChunkIndex < matches[j].result.ChunkIndex
		}
		return matches[i].seq < matches[j].seq
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	results := make([]*SearchResult, len(matches))
	for i, m := range matches {
		results[i] = m.result
	}
	return results, nil
}

// matchFilter 判断块是否满足全部精确匹配条件。未知字段视为不匹配。
func matchFilter(chunk *Chunk, filter map[string]string) bool {
	for field, want := range filter {
		var got string
		switch field {
		case "document_id":
			got = chunk.DocumentID
		case "source":
			got = chunk.Source
		case "section":
			got = chunk.Section
		case "chunk_index":
			got = strconv.Itoa(chunk.ChunkIndex)
		default:
			return false
		}
		if got != want {
			return false
		}
	}
	return true
}

// Count 返回集合中的块数量。
func (s *MemoryStore) Count(_ context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	return int64(len(c.chunks)), nil
}

// Close 释放资源（内存实现为空操作）。
func (s *MemoryStore) Close(_ context.Context) error {
	return nil
}

var _ VectorStore = (*MemoryStore)(nil)

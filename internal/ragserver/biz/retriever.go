package biz

import (
	"context"

	"github.com/kart-io/logger"

	"github.com/kart-io/ragserver/internal/ragserver/store"
	"github.com/kart-io/ragserver/pkg/llm"
	"github.com/kart-io/ragserver/pkg/utils/errors"
)

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// Collection 集合名称。
	Collection string
	// TopK 返回的结果数量。
	TopK int
	// MinScore 最低归一化相似度，低于该值的结果被丢弃。
	MinScore float64
}

// Retriever 负责文档检索。
type Retriever struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	config        *RetrieverConfig
}

// NewRetriever 创建检索器实例。
func NewRetriever(vectorStore store.VectorStore, embedProvider llm.EmbeddingProvider, config *RetrieverConfig) *Retriever {
	// 复制配置，避免默认值写回调用方共享的结构体。
	cfg := *config
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Retriever{
		store:         vectorStore,
		embedProvider: embedProvider,
		config:        &cfg,
	}
}

// Retrieve 检索与问题相关的文档块，返回按分数降序排列的结果。
//
// 嵌入供应商维度与集合维度不一致时直接拒绝，避免返回无意义的相似度。
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]*store.SearchResult, error) {
	embedding, err := r.embedProvider.EmbedSingle(ctx, question)
	if err != nil {
		return nil, errors.ErrRAGEmbeddingUnavailable.WithCause(err)
	}

	// 查询路径只读：集合不存在视为零结果，不创建集合。
	collectionDim, exists, err := r.store.CollectionDimension(ctx, r.config.Collection)
	if err != nil {
		return nil, errors.ErrRAGQueryFailed.WithCause(err)
	}
	if !exists {
		logger.Debugw("collection does not exist, returning no results",
			"collection", r.config.Collection)
		return nil, nil
	}
	if len(embedding) != collectionDim {
		return nil, errors.ErrRAGDimensionMismatch.WithMessagef(
			"query embedding dimension %d does not match collection dimension %d",
			len(embedding), collectionDim)
	}

	results, err := r.store.Search(ctx, r.config.Collection, embedding, r.config.TopK, nil)
	if err != nil {
		return nil, errors.ErrRAGQueryFailed.WithCause(err)
	}

	// 分数过滤
	filtered := results[:0]
	for _, res := range results {
		if float64(res.Score) >= r.config.MinScore {
			filtered = append(filtered, res)
		}
	}

	logger.Debugw("retrieval completed",
		"question_length", len(question),
		"candidates", len(results),
		"above_threshold", len(filtered))
	return filtered, nil
}

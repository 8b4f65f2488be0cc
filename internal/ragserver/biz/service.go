package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/ragserver/internal/model"
	"github.com/kart-io/ragserver/internal/ragserver/store"
	"github.com/kart-io/ragserver/pkg/llm"
	"github.com/kart-io/ragserver/pkg/pool"
	"github.com/kart-io/ragserver/pkg/utils/errors"
)

// Service 定义知识库服务接口。
type Service interface {
	// Ingest 导入一篇文档。
	Ingest(ctx context.Context, filename, contentType string, content []byte) (*model.Document, error)
	// Query 执行检索增强问答。
	Query(ctx context.Context, question string) (*model.QueryResult, error)
	// ListDocuments 列出可见文档。
	ListDocuments(ctx context.Context) ([]*model.Document, error)
	// GetDocument 获取单篇文档。
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	// DeleteDocument 删除文档及其向量块。
	DeleteDocument(ctx context.Context, id string) error
	// GetStats 获取知识库统计信息。
	GetStats(ctx context.Context) (*model.KnowledgeBaseStats, error)
}

// ServiceConfig 知识库服务配置。
type ServiceConfig struct {
	IngesterConfig   *IngesterConfig
	RetrieverConfig  *RetrieverConfig
	GeneratorConfig  *GeneratorConfig
	QueryCacheConfig *QueryCacheConfig
}

// KnowledgeService 组合 Ingester、Retriever 和 Generator 提供完整的知识库服务。
type KnowledgeService struct {
	ingester      *Ingester
	retriever     *Retriever
	generator     *Generator
	cache         *QueryCache
	vectors       store.VectorStore
	documents     store.DocumentStore
	embedProvider llm.EmbeddingProvider
	chatProvider  llm.ChatProvider
	collection    string
	background    *pool.Pool
}

// NewKnowledgeService 创建知识库服务实例。
// background 池用于缓存回写等异步任务，可以为 nil。
func NewKnowledgeService(
	vectors store.VectorStore,
	documents store.DocumentStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	cache *QueryCache,
	background *pool.Pool,
	config *ServiceConfig,
) *KnowledgeService {
	return &KnowledgeService{
		ingester:      NewIngester(vectors, documents, embedProvider, config.IngesterConfig),
		retriever:     NewRetriever(vectors, embedProvider, config.RetrieverConfig),
		generator:     NewGenerator(chatProvider, config.GeneratorConfig),
		cache:         cache,
		vectors:       vectors,
		documents:     documents,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
		collection:    config.IngesterConfig.Collection,
		background:    background,
	}
}

// Ingest 导入一篇文档，成功后清除查询缓存。
func (s *KnowledgeService) Ingest(ctx context.Context, filename, contentType string, content []byte) (*model.Document, error) {
	doc, err := s.ingester.Ingest(ctx, filename, contentType, content)
	if err != nil {
		return nil, err
	}
	s.invalidateCacheAsync()
	return doc, nil
}

// Query 执行检索增强问答。
func (s *KnowledgeService) Query(ctx context.Context, question string) (*model.QueryResult, error) {
	// 1. 尝试缓存
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, question); err == nil && cached != nil {
			cached.Cached = true
			return cached, nil
		}
	}

	// 2. 检索
	results, err := s.retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}

	// 3. 生成
	result, err := s.generator.Generate(ctx, question, results)
	if err != nil {
		return nil, err
	}

	// 4. 异步写缓存；上下文不足的固定答案不进缓存
	if s.cache != nil && !result.InsufficientContext {
		s.setCacheAsync(question, result)
	}

	return result, nil
}

// setCacheAsync 将查询结果异步写入缓存，池不可用时降级到 goroutine。
func (s *KnowledgeService) setCacheAsync(question string, result *model.QueryResult) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.cache.Set(ctx, question, result)
	}
	s.submitBackground(task)
}

// invalidateCacheAsync 异步清除查询缓存。
func (s *KnowledgeService) invalidateCacheAsync() {
	if s.cache == nil {
		return
	}
	s.submitBackground(func() {
		ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
		defer cancel()
		_ = s.cache.Invalidate(ctx)
	})
}

func (s *KnowledgeService) submitBackground(task func()) {
	if s.background != nil {
		if err := s.background.Submit(task); err == nil {
			return
		} else {
			logger.Warnw("background pool unavailable, falling back to goroutine", "error", err.Error())
		}
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("background task panic", "error", r)
			}
		}()
		task()
	}()
}

// ListDocuments 列出可见文档（不含 failed）。
func (s *KnowledgeService) ListDocuments(ctx context.Context) ([]*model.Document, error) {
	docs, err := s.documents.List(ctx)
	if err != nil {
		return nil, errors.ErrRAGDatabase.WithCause(err)
	}
	return docs, nil
}

// GetDocument 获取单篇文档。
func (s *KnowledgeService) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		if err == store.ErrDocumentNotFound {
			return nil, errors.ErrRAGDocumentNotFound.WithMessagef("document %s not found", id)
		}
		return nil, errors.ErrRAGDatabase.WithCause(err)
	}
	return doc, nil
}

// DeleteDocument 删除文档及其向量块，成功后清除查询缓存。
func (s *KnowledgeService) DeleteDocument(ctx context.Context, id string) error {
	if err := s.ingester.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateCacheAsync()
	return nil
}

// GetStats 获取知识库统计信息。
func (s *KnowledgeService) GetStats(ctx context.Context) (*model.KnowledgeBaseStats, error) {
	chunkCount, err := s.vectors.Count(ctx, s.collection)
	if err != nil {
		return nil, errors.ErrRAGStatsUnavailable.WithCause(err)
	}
	docCount, err := s.documents.CountCompleted(ctx)
	if err != nil {
		return nil, errors.ErrRAGStatsUnavailable.WithCause(err)
	}

	return &model.KnowledgeBaseStats{
		DocumentCount: docCount,
		ChunkCount:    chunkCount,
		Collection:    s.collection,
		Embedding:     s.embedProvider.Name(),
		Dimension:     s.embedProvider.Dimension(),
	}, nil
}

// 确保 KnowledgeService 实现了 Service 接口。
var _ Service = (*KnowledgeService)(nil)

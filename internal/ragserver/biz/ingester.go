package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/ragserver/internal/model"
	"github.com/kart-io/ragserver/internal/pkg/textutil"
	"github.com/kart-io/ragserver/internal/ragserver/store"
	"github.com/kart-io/ragserver/pkg/llm"
	"github.com/kart-io/ragserver/pkg/utils/errors"
	"github.com/kart-io/ragserver/pkg/utils/id"
)

// rollbackTimeout 回收补偿操作的独立超时。
// 导入失败时原请求上下文可能已取消，补偿必须在新上下文中完成。
const rollbackTimeout = 30 * time.Second

// IngesterConfig 导入器配置。
type IngesterConfig struct {
	// Collection 集合名称。
	Collection string
	// ChunkSize 文本块大小。
	ChunkSize int
	// ChunkOverlap 块重叠大小。
	ChunkOverlap int
	// BatchSize 每批嵌入并写入的块数量。
	BatchSize int
}

// Ingester 负责文档导入。
//
// 导入流程保证文档要么完整可检索，要么对检索完全不可见：
// 任何中间失败都会回收已写入的向量块并将文档标记为 failed。
type Ingester struct {
	vectors       store.VectorStore
	documents     store.DocumentStore
	embedProvider llm.EmbeddingProvider
	config        *IngesterConfig
}

// NewIngester 创建导入器实例。
func NewIngester(
	vectors store.VectorStore,
	documents store.DocumentStore,
	embedProvider llm.EmbeddingProvider,
	config *IngesterConfig,
) *Ingester {
	// 复制配置，避免默认值写回调用方共享的结构体。
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Ingester{
		vectors:       vectors,
		documents:     documents,
		embedProvider: embedProvider,
		config:        &cfg,
	}
}

// Ingest 导入一篇文档：清洗、分块、嵌入并写入向量存储。
//
// 内容与已完成文档重复时直接返回已有文档，不重复导入。
func (i *Ingester) Ingest(ctx context.Context, filename, contentType string, content []byte) (*model.Document, error) {
	text := textutil.CleanText(string(content))
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrRAGEmptyDocument.WithMessagef("document %q contains no usable text", filename)
	}

	// 内容哈希去重
	hash := textutil.HashString(text)
	if existing, err := i.documents.GetByHash(ctx, hash); err == nil {
		logger.Infow("duplicate document detected, skipping ingest",
			"filename", filename, "existing_id", existing.ID)
		return existing, nil
	}

	doc := &model.Document{
		ID:          id.NewULID(),
		Filename:    filename,
		ContentType: contentType,
		ByteSize:    int64(len(content)),
		Hash:        hash,
		Status:      model.StatusPending,
	}
	if err := i.documents.Create(ctx, doc); err != nil {
		return nil, errors.ErrRAGDatabase.WithCause(err)
	}

	chunkCount, err := i.ingestChunks(ctx, doc, text)
	if err != nil {
		i.rollback(doc.ID, err)
		return nil, err
	}

	if err := i.documents.Finalize(ctx, doc.ID, chunkCount); err != nil {
		wrapped := errors.ErrRAGDatabase.WithCause(err)
		i.rollback(doc.ID, wrapped)
		return nil, wrapped
	}

	doc.Status = model.StatusCompleted
	doc.ChunkCount = chunkCount
	logger.Infow("document ingested",
		"document_id", doc.ID, "filename", filename, "chunks", chunkCount)
	return doc, nil
}

// ingestChunks 分块、嵌入并批量写入，返回写入的块数量。
func (i *Ingester) ingestChunks(ctx context.Context, doc *model.Document, text string) (int, error) {
	chunks := textutil.SplitIntoChunks(text, i.config.ChunkSize, i.config.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, errors.ErrRAGEmptyDocument.WithMessagef("document %q produced no chunks", doc.Filename)
	}
	sections := textutil.ExtractSections(chunks)

	// 集合维度必须与嵌入供应商维度一致，不一致直接拒绝导入
	providerDim := i.embedProvider.Dimension()
	collectionDim, err := i.vectors.EnsureCollection(ctx, &store.CollectionConfig{
		Name:        i.config.Collection,
		Description: "knowledge base chunks",
		Dimension:   providerDim,
	})
	if err != nil {
		return 0, errors.ErrRAGIndexWriteFailed.WithCause(err)
	}
	if collectionDim != providerDim {
		return 0, errors.ErrRAGDimensionMismatch.WithMessagef(
			"collection dimension %d does not match provider %s dimension %d",
			collectionDim, i.embedProvider.Name(), providerDim)
	}

	for start := 0; start < len(chunks); start += i.config.BatchSize {
		end := start + i.config.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		embeddings, err := i.embedProvider.Embed(ctx, batch)
		if err != nil {
			return 0, errors.ErrRAGEmbeddingUnavailable.WithCause(err)
		}
		if len(embeddings) != len(batch) {
			return 0, errors.ErrRAGEmbeddingUnavailable.WithMessagef(
				"provider returned %d embeddings for %d chunks", len(embeddings), len(batch))
		}
		for _, emb := range embeddings {
			if len(emb) != providerDim {
				return 0, errors.ErrRAGDimensionMismatch.WithMessagef(
					"provider returned embedding of dimension %d, expected %d", len(emb), providerDim)
			}
		}

		records := make([]*store.Chunk, len(batch))
		for j, content := range batch {
			idx := start + j
			records[j] = &store.Chunk{
				ID:         fmt.Sprintf("%s_%d", doc.ID, idx),
				DocumentID: doc.ID,
				Source:     doc.Filename,
				Section:    textutil.TruncateString(sections[idx], 250),
				Content:    textutil.TruncateString(content, 65000),
				ChunkIndex: idx,
				Embedding:  embeddings[j],
			}
		}

		if err := i.vectors.Upsert(ctx, i.config.Collection, records); err != nil {
			return 0, errors.ErrRAGIndexWriteFailed.WithCause(err)
		}
		logger.Debugw("ingested chunk batch",
			"document_id", doc.ID, "from", start, "to", end)
	}

	return len(chunks), nil
}

// rollback 回收已写入的向量块并将文档标记为 failed。
// 使用独立上下文执行，补偿失败仅记录日志。
func (i *Ingester) rollback(documentID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	if err := i.vectors.DeleteByDocument(ctx, i.config.Collection, documentID); err != nil {
		logger.Errorw("failed to roll back document chunks",
			"document_id", documentID, "error", err.Error())
	}
	if err := i.documents.MarkFailed(ctx, documentID, cause.Error()); err != nil {
		logger.Errorw("failed to mark document as failed",
			"document_id", documentID, "error", err.Error())
	}
	logger.Warnw("document ingest rolled back",
		"document_id", documentID, "cause", cause.Error())
}

// Delete 删除文档及其全部向量块。
// 先回收向量块再删除元数据，保证不会留下孤儿块。
func (i *Ingester) Delete(ctx context.Context, documentID string) error {
	if _, err := i.documents.Get(ctx, documentID); err != nil {
		if err == store.ErrDocumentNotFound {
			return errors.ErrRAGDocumentNotFound.WithMessagef("document %s not found", documentID)
		}
		return errors.ErrRAGDatabase.WithCause(err)
	}

	if err := i.vectors.DeleteByDocument(ctx, i.config.Collection, documentID); err != nil {
		return errors.ErrRAGIndexWriteFailed.WithCause(err)
	}
	if err := i.documents.Delete(ctx, documentID); err != nil {
		return errors.ErrRAGDatabase.WithCause(err)
	}

	logger.Infow("document deleted", "document_id", documentID)
	return nil
}

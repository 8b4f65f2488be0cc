package biz

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/ragserver/internal/model"
	"github.com/kart-io/ragserver/internal/ragserver/store"
	"github.com/kart-io/ragserver/pkg/llm"
	"github.com/kart-io/ragserver/pkg/llm/local"
	"github.com/kart-io/ragserver/pkg/utils/errors"
)

const testDimension = 32

// === 测试用的 fake 实现 ===

// fakeChatProvider 记录收到的提示词并返回固定答案。
type fakeChatProvider struct {
	answer  string
	err     error
	prompts []string
}

func (f *fakeChatProvider) Chat(_ context.Context, messages []llm.Message) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if len(messages) > 0 {
		f.prompts = append(f.prompts, messages[len(messages)-1].Content)
	}
	return f.answer, nil
}

func (f *fakeChatProvider) Generate(_ context.Context, prompt string, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.prompts = append(f.prompts, prompt)
	return f.answer, nil
}

func (f *fakeChatProvider) Name() string { return "fake-chat" }

var _ llm.ChatProvider = (*fakeChatProvider)(nil)

// flakyEmbeddingProvider 在第 failAt 次 Embed 调用时失败（从 1 计数）。
type flakyEmbeddingProvider struct {
	inner  llm.EmbeddingProvider
	failAt int
	calls  int
}

func (f *flakyEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	return f.inner.Embed(ctx, texts)
}

func (f *flakyEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return f.inner.EmbedSingle(ctx, text)
}

func (f *flakyEmbeddingProvider) Dimension() int { return f.inner.Dimension() }
func (f *flakyEmbeddingProvider) Name() string   { return f.inner.Name() }

// failingVectorStore 在第 failAt 次 Upsert 调用时失败（从 1 计数）。
type failingVectorStore struct {
	store.VectorStore
	failAt int
	calls  int
}

func (f *failingVectorStore) Upsert(ctx context.Context, collection string, chunks []*store.Chunk) error {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return fmt.Errorf("vector index write failed")
	}
	return f.VectorStore.Upsert(ctx, collection, chunks)
}

// === 测试装配 ===

type testEnv struct {
	service   *KnowledgeService
	vectors   store.VectorStore
	documents store.DocumentStore
	chat      *fakeChatProvider
}

func newTestEnv(t *testing.T, vectors store.VectorStore, embed llm.EmbeddingProvider) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Document{}))
	documents := store.NewGormDocumentStore(db)

	chat := &fakeChatProvider{answer: "The sky is blue."}

	svc := NewKnowledgeService(vectors, documents, embed, chat, nil, nil, &ServiceConfig{
		IngesterConfig: &IngesterConfig{
			Collection:   "test_chunks",
			ChunkSize:    200,
			ChunkOverlap: 40,
			BatchSize:    2,
		},
		RetrieverConfig: &RetrieverConfig{
			Collection: "test_chunks",
			TopK:       5,
			MinScore:   0.5,
		},
		GeneratorConfig: &GeneratorConfig{
			SystemPrompt:  "Context:\n{{context}}\nQuestion: {{question}}\nAnswer:",
			ContextBudget: 6000,
		},
	})

	return &testEnv{service: svc, vectors: vectors, documents: documents, chat: chat}
}

func newLocalEmbedder(t *testing.T) llm.EmbeddingProvider {
	t.Helper()
	p, err := local.New(local.Config{Dimension: testDimension})
	require.NoError(t, err)
	return p
}

// === 场景测试 ===

func TestConstructorsKeepCallerConfig(t *testing.T) {
	// 默认值只写入内部副本，调用方共享的配置不被修改
	ingCfg := &IngesterConfig{Collection: "c", ChunkSize: 100, ChunkOverlap: 10}
	ing := NewIngester(store.NewMemoryStore(), nil, nil, ingCfg)
	assert.Equal(t, 0, ingCfg.BatchSize)
	assert.Equal(t, 32, ing.config.BatchSize)

	retCfg := &RetrieverConfig{Collection: "c"}
	ret := NewRetriever(store.NewMemoryStore(), nil, retCfg)
	assert.Equal(t, 0, retCfg.TopK)
	assert.Equal(t, 5, ret.config.TopK)
}

func TestIngestAndQuery(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), newLocalEmbedder(t))
	ctx := context.Background()

	content := "The sky is blue during a clear day. Grass is green in spring.\n\n" +
		"Oceans cover most of the planet and appear deep blue from space."
	doc, err := env.service.Ingest(ctx, "nature.txt", "text/plain", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, doc.Status)
	assert.Greater(t, doc.ChunkCount, 0)

	// chunk_count 与索引中该文档实际可检索的块数一致
	probe, err := env.service.embedProvider.EmbedSingle(ctx, "probe")
	require.NoError(t, err)
	indexed, err := env.vectors.Search(ctx, "test_chunks", probe, 100,
		map[string]string{"document_id": doc.ID})
	require.NoError(t, err)
	assert.Len(t, indexed, doc.ChunkCount)

	result, err := env.service.Query(ctx, "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", result.Answer)
	assert.False(t, result.InsufficientContext)
	require.NotEmpty(t, result.Sources)
	for _, src := range result.Sources {
		assert.Equal(t, doc.ID, src.DocumentID)
		assert.Equal(t, "nature.txt", src.Source)
		assert.GreaterOrEqual(t, src.Score, float32(0.5))
	}

	// 提示词包含检索到的上下文与问题
	require.NotEmpty(t, env.chat.prompts)
	prompt := env.chat.prompts[0]
	assert.Contains(t, prompt, "What color is the sky?")
	assert.Contains(t, prompt, "nature.txt")
}

func TestQueryInsufficientContext(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), newLocalEmbedder(t))
	ctx := context.Background()

	// 知识库为空：返回固定答案，不调用生成后端
	result, err := env.service.Query(ctx, "What color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, InsufficientContextAnswer, result.Answer)
	assert.True(t, result.InsufficientContext)
	assert.Empty(t, result.Sources)
	assert.Empty(t, env.chat.prompts)
}

func TestIngestEmptyDocument(t *testing.T) {
	env := newTestEnv(t, store.NewMemoryStore(), newLocalEmbedder(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
	}{
		{"完全为空", ""},
		{"仅空白字符", "   \n\n\t  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Ingest(ctx, "empty.txt", "text/plain", []byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrRAGEmptyDocument)
		})
	}

	// 空文档不产生可见记录
	docs, err := env.service.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestRollbackOnEmbedFailure(t *testing.T) {
	flaky := &flakyEmbeddingProvider{inner: newLocalEmbedder(t), failAt: 2}
	memory := store.NewMemoryStore()
	env := newTestEnv(t, memory, flaky)
	ctx := context.Background()

	// 内容足够长，切出超过一个批次（BatchSize=2）
	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString(fmt.Sprintf("Paragraph number %d talks about a different topic entirely.\n\n", i))
	}

	_, err := env.service.Ingest(ctx, "big.txt", "text/plain", []byte(sb.String()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGEmbeddingUnavailable)
	require.GreaterOrEqual(t, flaky.calls, 2)

	// 第一批已写入的块被回收，知识库对检索完全不可见
	count, err := memory.Count(ctx, "test_chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// failed 文档不出现在列表中
	docs, err := env.service.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIngestRollbackOnIndexWriteFailure(t *testing.T) {
	memory := store.NewMemoryStore()
	failing := &failingVectorStore{VectorStore: memory, failAt: 2}
	env := newTestEnv(t, failing, newLocalEmbedder(t))
	ctx := context.Background()

	var sb strings.Builder
	for i := 0; i < 20; i++ {
		sb.WriteString(fmt.Sprintf("Paragraph number %d talks about a different topic entirely.\n\n", i))
	}

	_, err := env.service.Ingest(ctx, "big.txt", "text/plain", []byte(sb.String()))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGIndexWriteFailed)

	count, err := memory.Count(ctx, "test_chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestIngestDuplicateContent(t *testing.T) {
	memory := store.NewMemoryStore()
	env := newTestEnv(t, memory, newLocalEmbedder(t))
	ctx := context.Background()

	content := "Some unique knowledge base content about penguins.\n\nPenguins cannot fly."
	first, err := env.service.Ingest(ctx, "penguins.txt", "text/plain", []byte(content))
	require.NoError(t, err)

	// 相同内容重复导入返回已有文档
	second, err := env.service.Ingest(ctx, "penguins-copy.txt", "text/plain", []byte(content))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	count, err := memory.Count(ctx, "test_chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(first.ChunkCount), count)
}

func TestDeleteDocument(t *testing.T) {
	memory := store.NewMemoryStore()
	env := newTestEnv(t, memory, newLocalEmbedder(t))
	ctx := context.Background()

	doc, err := env.service.Ingest(ctx, "a.txt", "text/plain",
		[]byte("Document one content about apples.\n\nApples grow on trees."))
	require.NoError(t, err)
	other, err := env.service.Ingest(ctx, "b.txt", "text/plain",
		[]byte("Document two content about oranges.\n\nOranges are citrus fruit."))
	require.NoError(t, err)

	require.NoError(t, env.service.DeleteDocument(ctx, doc.ID))

	// 仅删除目标文档的块
	count, err := memory.Count(ctx, "test_chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(other.ChunkCount), count)

	_, err = env.service.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, errors.ErrRAGDocumentNotFound)

	// 删除不存在的文档
	err = env.service.DeleteDocument(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrRAGDocumentNotFound)
}

func TestQueryDimensionMismatch(t *testing.T) {
	memory := store.NewMemoryStore()
	env := newTestEnv(t, memory, newLocalEmbedder(t))
	ctx := context.Background()

	_, err := env.service.Ingest(ctx, "a.txt", "text/plain",
		[]byte("Knowledge about stars.\n\nStars are made of plasma."))
	require.NoError(t, err)

	// 换用不同维度的嵌入供应商查询同一集合
	otherDim, err2 := local.New(local.Config{Dimension: testDimension * 2})
	require.NoError(t, err2)
	mismatched := NewKnowledgeService(memory, env.documents, otherDim, env.chat, nil, nil, &ServiceConfig{
		IngesterConfig:  &IngesterConfig{Collection: "test_chunks", ChunkSize: 200, ChunkOverlap: 40, BatchSize: 2},
		RetrieverConfig: &RetrieverConfig{Collection: "test_chunks", TopK: 5, MinScore: 0.5},
		GeneratorConfig: &GeneratorConfig{SystemPrompt: "{{context}} {{question}}", ContextBudget: 6000},
	})

	_, err = mismatched.Query(ctx, "What are stars made of?")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGDimensionMismatch)
}

func TestGetStats(t *testing.T) {
	memory := store.NewMemoryStore()
	env := newTestEnv(t, memory, newLocalEmbedder(t))
	ctx := context.Background()

	doc, err := env.service.Ingest(ctx, "a.txt", "text/plain",
		[]byte("Alpha content.\n\nBeta content follows here."))
	require.NoError(t, err)

	stats, err := env.service.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DocumentCount)
	assert.Equal(t, int64(doc.ChunkCount), stats.ChunkCount)
	assert.Equal(t, "test_chunks", stats.Collection)
	assert.Equal(t, testDimension, stats.Dimension)
}

package biz

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/ragserver/internal/ragserver/store"
	"github.com/kart-io/ragserver/pkg/utils/errors"
)

func makeResults(contents ...string) []*store.SearchResult {
	results := make([]*store.SearchResult, len(contents))
	for i, c := range contents {
		results[i] = &store.SearchResult{
			ID:         fmt.Sprintf("doc1_%d", i),
			DocumentID: "doc1",
			Source:     "guide.txt",
			Section:    "Overview",
			Content:    c,
			ChunkIndex: i,
			Score:      float32(1.0 - float64(i)*0.1),
		}
	}
	return results
}

func TestGeneratorInsufficientContext(t *testing.T) {
	chat := &fakeChatProvider{answer: "should not be called"}
	g := NewGenerator(chat, &GeneratorConfig{
		SystemPrompt:  "{{context}} {{question}}",
		ContextBudget: 1000,
	})

	result, err := g.Generate(context.Background(), "anything", nil)
	require.NoError(t, err)
	assert.True(t, result.InsufficientContext)
	assert.Equal(t, InsufficientContextAnswer, result.Answer)
	// 生成后端未被调用
	assert.Empty(t, chat.prompts)
}

func TestGeneratorPromptTemplate(t *testing.T) {
	chat := &fakeChatProvider{answer: "blue"}
	g := NewGenerator(chat, &GeneratorConfig{
		SystemPrompt:  "Context:\n{{context}}\nQuestion: {{question}}\nAnswer:",
		ContextBudget: 1000,
	})

	result, err := g.Generate(context.Background(), "What color?", makeResults("The sky is blue."))
	require.NoError(t, err)
	assert.Equal(t, "blue", result.Answer)
	require.Len(t, chat.prompts, 1)

	prompt := chat.prompts[0]
	assert.Contains(t, prompt, "The sky is blue.")
	assert.Contains(t, prompt, "What color?")
	assert.Contains(t, prompt, "guide.txt")
	// 占位符全部被替换
	assert.NotContains(t, prompt, "{{context}}")
	assert.NotContains(t, prompt, "{{question}}")

	require.Len(t, result.Sources, 1)
	assert.Equal(t, "doc1", result.Sources[0].DocumentID)
}

func TestGeneratorContextBudget(t *testing.T) {
	tests := []struct {
		name     string
		budget   int
		contents []string
		wantKept int
	}{
		{
			name:     "预算充足保留全部",
			budget:   10000,
			contents: []string{strings.Repeat("a", 100), strings.Repeat("b", 100), strings.Repeat("c", 100)},
			wantKept: 3,
		},
		{
			name:     "预算不足丢弃尾部整块",
			budget:   300,
			contents: []string{strings.Repeat("a", 100), strings.Repeat("b", 100), strings.Repeat("c", 100)},
			wantKept: 2,
		},
		{
			name:     "预算再小也保留首块",
			budget:   10,
			contents: []string{strings.Repeat("a", 100), strings.Repeat("b", 100)},
			wantKept: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &fakeChatProvider{answer: "ok"}
			g := NewGenerator(chat, &GeneratorConfig{
				SystemPrompt:  "{{context}}|{{question}}",
				ContextBudget: tt.budget,
			})

			result, err := g.Generate(context.Background(), "q", makeResults(tt.contents...))
			require.NoError(t, err)
			assert.Len(t, result.Sources, tt.wantKept)

			// 保留的是分数最高的前缀块
			for i, src := range result.Sources {
				assert.Equal(t, i, src.ChunkIndex)
			}
		})
	}
}

func TestGeneratorBackendFailure(t *testing.T) {
	chat := &fakeChatProvider{err: fmt.Errorf("model overloaded")}
	g := NewGenerator(chat, &GeneratorConfig{
		SystemPrompt:  "{{context}} {{question}}",
		ContextBudget: 1000,
	})

	_, err := g.Generate(context.Background(), "q", makeResults("content"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGGenerationUnavailable)
}

func TestGeneratorCancelledContext(t *testing.T) {
	chat := &fakeChatProvider{answer: "ok"}
	g := NewGenerator(chat, &GeneratorConfig{
		SystemPrompt:  "{{context}} {{question}}",
		ContextBudget: 1000,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "q", makeResults("content"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRAGQueryTimeout)
}

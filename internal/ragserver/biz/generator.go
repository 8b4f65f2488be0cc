package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/ragserver/internal/model"
	"github.com/kart-io/ragserver/internal/ragserver/store"
	"github.com/kart-io/ragserver/pkg/llm"
	"github.com/kart-io/ragserver/pkg/utils/errors"
)

// InsufficientContextAnswer 检索无结果时返回的固定答案，不调用生成后端。
const InsufficientContextAnswer = "I don't have enough information to answer this question. " +
	"Please upload relevant documents first."

// GeneratorConfig 生成器配置。
type GeneratorConfig struct {
	// SystemPrompt 系统提示词模板，含 {{context}} 与 {{question}} 占位符。
	SystemPrompt string
	// ContextBudget 提示词中检索上下文的最大字符数。
	ContextBudget int
}

// Generator 负责答案生成。
type Generator struct {
	chatProvider llm.ChatProvider
	config       *GeneratorConfig
}

// NewGenerator 创建生成器实例。
func NewGenerator(chatProvider llm.ChatProvider, config *GeneratorConfig) *Generator {
	return &Generator{
		chatProvider: chatProvider,
		config:       config,
	}
}

// Generate 根据检索结果生成答案。
//
// 无检索结果时返回固定答案并标记 InsufficientContext，不消耗生成后端。
func (g *Generator) Generate(ctx context.Context, question string, results []*store.SearchResult) (*model.QueryResult, error) {
	if len(results) == 0 {
		return &model.QueryResult{
			Answer:              InsufficientContextAnswer,
			Sources:             []model.ChunkSource{},
			InsufficientContext: true,
		}, nil
	}

	if ctx.Err() != nil {
		return nil, errors.ErrRAGQueryTimeout.WithCause(ctx.Err())
	}

	used := g.buildContext(results)
	prompt := strings.ReplaceAll(g.config.SystemPrompt, "{{context}}", g.formatContext(used))
	prompt = strings.ReplaceAll(prompt, "{{question}}", question)

	logger.Debugw("calling chat provider",
		"provider", g.chatProvider.Name(),
		"context_chunks", len(used),
		"prompt_length", len(prompt))
	answer, err := g.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		return nil, errors.ErrRAGGenerationUnavailable.WithCause(err)
	}

	sources := make([]model.ChunkSource, len(used))
	for i, res := range used {
		sources[i] = model.ChunkSource{
			DocumentID: res.DocumentID,
			ChunkIndex: res.ChunkIndex,
			Source:     res.Source,
			Section:    res.Section,
			Content:    res.Content,
			Score:      res.Score,
		}
	}

	return &model.QueryResult{
		Answer:  answer,
		Sources: sources,
	}, nil
}

// buildContext 在上下文预算内选取检索结果。
// 按分数降序整块纳入，放不下的整块丢弃；预算再小也至少保留首块。
func (g *Generator) buildContext(results []*store.SearchResult) []*store.SearchResult {
	if g.config.ContextBudget <= 0 {
		return results
	}

	used := make([]*store.SearchResult, 0, len(results))
	total := 0
	for _, res := range results {
		size := len(g.formatChunk(len(used)+1, res))
		if total+size > g.config.ContextBudget && len(used) > 0 {
			logger.Debugw("context budget reached, dropping tail chunks",
				"kept", len(used), "dropped", len(results)-len(used))
			break
		}
		used = append(used, res)
		total += size
	}
	return used
}

func (g *Generator) formatChunk(ordinal int, res *store.SearchResult) string {
	return fmt.Sprintf("[%d] From %s - %s:\n%s\n\n", ordinal, res.Source, res.Section, res.Content)
}

func (g *Generator) formatContext(results []*store.SearchResult) string {
	var b strings.Builder
	for i, res := range results {
		b.WriteString(g.formatChunk(i+1, res))
	}
	return b.String()
}

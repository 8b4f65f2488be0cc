// Package local 提供进程内确定性 Embedding 供应商。
//
// 基于特征哈希的词袋向量：分词后将每个词哈希到固定维度的桶中累加，
// 最后做 L2 归一化。无网络依赖，相同输入总是产生相同向量，适合
// 离线部署和测试环境。语义质量低于真实模型，仅按词面重合度检索。
package local

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/kart-io/ragserver/pkg/llm"
)

// DefaultDimension 默认向量维度。
const DefaultDimension = 384

// Provider 进程内 Embedding 供应商。
type Provider struct {
	dimension int
}

// Config 本地供应商配置。
type Config struct {
	// Dimension 向量维度，零值时使用 DefaultDimension。
	Dimension int
}

// New 创建本地 Embedding 供应商。
func New(cfg Config) (*Provider, error) {
	dim := cfg.Dimension
	if dim == 0 {
		dim = DefaultDimension
	}
	if dim < 8 {
		return nil, fmt.Errorf("local embedding dimension too small: %d", dim)
	}
	return &Provider{dimension: dim}, nil
}

// Embed 为多个文本生成向量嵌入。
func (p *Provider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.embed(text)
	}
	return vectors, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (p *Provider) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	return p.embed(text), nil
}

// Dimension 返回向量维度。
func (p *Provider) Dimension() int {
	return p.dimension
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return "local"
}

func (p *Provider) embed(text string) []float32 {
	vec := make([]float32, p.dimension)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%p.dimension]++
	}

	// L2 归一化，使余弦相似度等价于点积
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// tokenize 小写化并按非字母数字字符切分。
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func init() {
	llm.RegisterEmbeddingProvider("local", func(config map[string]any) (llm.EmbeddingProvider, error) {
		cfg := Config{}
		if v, ok := config["dimension"].(int); ok {
			cfg.Dimension = v
		}
		if v, ok := config["dimension"].(float64); ok {
			cfg.Dimension = int(v)
		}
		return New(cfg)
	})
}

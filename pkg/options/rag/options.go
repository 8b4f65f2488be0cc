// Package rag provides retrieval pipeline configuration options.
package rag

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/ragserver/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// DefaultSystemPrompt is the default prompt template for answering queries.
// The {{context}} and {{question}} placeholders are filled at query time.
const DefaultSystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
Use only the following context to answer the question. If the context does not
contain the answer, say that you do not know.

Context:
{{context}}

Question: {{question}}

Answer:`

// Options contains retrieval and generation configuration.
type Options struct {
	// Collection is the name of the vector collection.
	Collection string `json:"collection" mapstructure:"collection"`

	// ChunkSize is the maximum chunk size in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between adjacent chunks in characters.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// BatchSize is the number of chunks embedded and written per batch.
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// TopK is the number of results to return from similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// MinScore 检索结果的最低归一化相似度（0~1），低于该值的片段被丢弃。
	MinScore float64 `json:"min-score" mapstructure:"min-score"`

	// ContextBudget is the maximum number of characters of retrieved
	// context included in a prompt.
	ContextBudget int `json:"context-budget" mapstructure:"context-budget"`

	// SystemPrompt is the prompt template used for generation.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`

	// CacheTTL is how long query answers stay cached. Zero disables caching.
	CacheTTL time.Duration `json:"cache-ttl" mapstructure:"cache-ttl"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Collection:    "rag_chunks",
		ChunkSize:     800,
		ChunkOverlap:  200,
		BatchSize:     32,
		TopK:          5,
		MinScore:      0,
		ContextBudget: 6000,
		SystemPrompt:  DefaultSystemPrompt,
		CacheTTL:      10 * time.Minute,
	}
}

// AddFlags adds flags for retrieval options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"rag.collection", o.Collection, "Vector collection name.")
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"rag.chunk-size", o.ChunkSize, "Maximum chunk size in characters.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"rag.chunk-overlap", o.ChunkOverlap, "Overlap between adjacent chunks.")
	fs.IntVar(&o.BatchSize, options.Join(prefixes...)+"rag.batch-size", o.BatchSize, "Chunks embedded and written per batch.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"rag.top-k", o.TopK, "Number of results from similarity search.")
	fs.Float64Var(&o.MinScore, options.Join(prefixes...)+"rag.min-score", o.MinScore, "Minimum normalized similarity score in [0,1].")
	fs.IntVar(&o.ContextBudget, options.Join(prefixes...)+"rag.context-budget", o.ContextBudget, "Maximum characters of context in a prompt.")
	fs.DurationVar(&o.CacheTTL, options.Join(prefixes...)+"rag.cache-ttl", o.CacheTTL, "Query answer cache TTL (0 disables).")
}

// Validate validates the retrieval options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("collection is required"))
	}
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 || o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap must be in [0, chunk-size)"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch-size must be positive"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.MinScore < 0 || o.MinScore > 1 {
		errs = append(errs, fmt.Errorf("min-score must be in [0,1]"))
	}
	if o.ContextBudget <= 0 {
		errs = append(errs, fmt.Errorf("context-budget must be positive"))
	}
	if o.SystemPrompt != "" && !strings.Contains(o.SystemPrompt, "{{question}}") {
		errs = append(errs, fmt.Errorf("system-prompt must contain {{question}} placeholder"))
	}
	return errs
}

// Complete completes the retrieval options with defaults.
func (o *Options) Complete() error {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	return nil
}

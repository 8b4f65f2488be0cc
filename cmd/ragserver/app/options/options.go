// Package options contains flags and options for initializing the knowledge base server.
package options

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/ragserver/internal/ragserver"
	dbopts "github.com/kart-io/ragserver/pkg/options/database"
	httpopts "github.com/kart-io/ragserver/pkg/options/http"
	llmopts "github.com/kart-io/ragserver/pkg/options/llm"
	logopts "github.com/kart-io/ragserver/pkg/options/logger"
	milvusopts "github.com/kart-io/ragserver/pkg/options/milvus"
	ragopts "github.com/kart-io/ragserver/pkg/options/rag"
	redisopts "github.com/kart-io/ragserver/pkg/options/redis"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// DatabaseOptions contains document metadata store configuration.
	DatabaseOptions *dbopts.Options `json:"db" mapstructure:"db"`

	// RedisOptions contains query cache configuration.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// MilvusOptions contains Milvus database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// RAGOptions contains retrieval pipeline configuration.
	RAGOptions *ragopts.Options `json:"rag" mapstructure:"rag"`

	// VectorBackend selects the vector store backend (milvus|memory).
	VectorBackend string `json:"vector-backend" mapstructure:"vector-backend"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		DatabaseOptions:  dbopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		RAGOptions:       ragopts.NewOptions(),
		VectorBackend:    ragserver.VectorBackendMilvus,
		ShutdownTimeout:  30 * time.Second,
	}
}

// AddFlags registers all server option flags on the given FlagSet.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	o.HTTPOptions.AddFlags(fs)
	o.LogOptions.AddFlags(fs)
	o.DatabaseOptions.AddFlags(fs)
	o.RedisOptions.AddFlags(fs)
	o.MilvusOptions.AddFlags(fs)
	o.EmbeddingOptions.AddFlags(fs, "embedding.")
	o.ChatOptions.AddFlags(fs, "chat.")
	o.RAGOptions.AddFlags(fs)

	fs.StringVar(&o.VectorBackend, "vector-backend", o.VectorBackend,
		"Vector store backend (milvus|memory)")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout,
		"Timeout for graceful shutdown")
}

// Complete fills in defaults derived from other options.
func (o *ServerOptions) Complete() error {
	if err := o.RAGOptions.Complete(); err != nil {
		return err
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return err
	}
	return o.ChatOptions.Complete()
}

// Validate checks all options for consistency.
func (o *ServerOptions) Validate() error {
	var errs []error

	errs = append(errs, o.HTTPOptions.Validate())
	errs = append(errs, o.LogOptions.Validate())
	errs = append(errs, o.DatabaseOptions.Validate())
	errs = append(errs, o.RedisOptions.Validate())
	errs = append(errs, o.MilvusOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)
	errs = append(errs, o.RAGOptions.Validate()...)

	switch o.VectorBackend {
	case ragserver.VectorBackendMilvus, ragserver.VectorBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("vector-backend must be one of [milvus memory], got %q", o.VectorBackend))
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("shutdown-timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Config builds a ragserver.Config based on ServerOptions.
func (o *ServerOptions) Config() (*ragserver.Config, error) {
	return &ragserver.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		DatabaseOptions:  o.DatabaseOptions,
		RedisOptions:     o.RedisOptions,
		MilvusOptions:    o.MilvusOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		RAGOptions:       o.RAGOptions,
		VectorBackend:    o.VectorBackend,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}

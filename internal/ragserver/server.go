// Package ragserver provides the knowledge base server implementation.
package ragserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/ragserver/internal/model"
	"github.com/kart-io/ragserver/internal/ragserver/biz"
	"github.com/kart-io/ragserver/internal/ragserver/handler"
	"github.com/kart-io/ragserver/internal/ragserver/router"
	"github.com/kart-io/ragserver/internal/ragserver/store"
	"github.com/kart-io/ragserver/pkg/app"
	"github.com/kart-io/ragserver/pkg/component/database"
	"github.com/kart-io/ragserver/pkg/component/milvus"
	"github.com/kart-io/ragserver/pkg/llm"
	"github.com/kart-io/ragserver/pkg/llm/resilience"
	"github.com/kart-io/ragserver/pkg/pool"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/ragserver/pkg/llm/local"
	_ "github.com/kart-io/ragserver/pkg/llm/ollama"
	_ "github.com/kart-io/ragserver/pkg/llm/openai"

	dbopts "github.com/kart-io/ragserver/pkg/options/database"
	httpopts "github.com/kart-io/ragserver/pkg/options/http"
	llmopts "github.com/kart-io/ragserver/pkg/options/llm"
	logopts "github.com/kart-io/ragserver/pkg/options/logger"
	milvusopts "github.com/kart-io/ragserver/pkg/options/milvus"
	ragopts "github.com/kart-io/ragserver/pkg/options/rag"
	redisopts "github.com/kart-io/ragserver/pkg/options/redis"
)

// Name is the name of the application.
const Name = "ragserver"

// Vector store backends.
const (
	VectorBackendMilvus = "milvus"
	VectorBackendMemory = "memory"
)

// cacheKeyPrefix namespaces query cache entries in Redis.
const cacheKeyPrefix = "ragserver:query:"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions      *httpopts.Options
	LogOptions       *logopts.Options
	DatabaseOptions  *dbopts.Options
	RedisOptions     *redisopts.Options
	MilvusOptions    *milvusopts.Options
	EmbeddingOptions *llmopts.ProviderOptions
	ChatOptions      *llmopts.ProviderOptions
	RAGOptions       *ragopts.Options
	VectorBackend    string
	ShutdownTimeout  time.Duration
}

// Server represents the knowledge base server.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	closers         []func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	printBanner(cfg)

	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting knowledge base service...")

	var closers []func()

	// 2. 初始化文档元数据存储
	dbClient, err := database.NewWithContext(ctx, cfg.DatabaseOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	closers = append(closers, func() { _ = dbClient.Close() })
	if err := dbClient.DB().WithContext(ctx).AutoMigrate(&model.Document{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database schema: %w", err)
	}
	documentStore := store.NewGormDocumentStore(dbClient.DB())
	logger.Infow("Document store initialized", "driver", cfg.DatabaseOptions.Driver)

	// 3. 初始化向量存储
	vectorStore, vectorClosers, err := cfg.newVectorStore()
	if err != nil {
		return nil, err
	}
	closers = append(closers, vectorClosers...)

	// 4. 初始化 LLM 供应商（带重试和熔断）
	embedInner, err := llm.NewEmbeddingProvider(cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	embedProvider := resilience.NewResilientEmbeddingProvider(embedInner, nil, nil)
	logger.Infow("Embedding provider initialized",
		"provider", cfg.EmbeddingOptions.Provider,
		"model", cfg.EmbeddingOptions.Model,
		"dimension", embedProvider.Dimension(),
	)

	chatInner, err := llm.NewChatProvider(cfg.ChatOptions.Provider, cfg.ChatOptions.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	chatProvider := resilience.NewResilientChatProvider(chatInner, nil, nil)
	logger.Infow("Chat provider initialized",
		"provider", cfg.ChatOptions.Provider,
		"model", cfg.ChatOptions.Model,
	)

	// 5. 初始化 Redis 查询缓存（失败时降级为无缓存）
	queryCache, redisClose := cfg.newQueryCache(ctx)
	if redisClose != nil {
		closers = append(closers, redisClose)
	}

	// 6. 初始化后台任务池（缓存回写等）
	background, err := pool.New("background", pool.BackgroundConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize background pool: %w", err)
	}
	closers = append(closers, func() { background.Release() })

	// 7. 初始化 Biz 层
	serviceConfig := &biz.ServiceConfig{
		IngesterConfig: &biz.IngesterConfig{
			Collection:   cfg.RAGOptions.Collection,
			ChunkSize:    cfg.RAGOptions.ChunkSize,
			ChunkOverlap: cfg.RAGOptions.ChunkOverlap,
			BatchSize:    cfg.RAGOptions.BatchSize,
		},
		RetrieverConfig: &biz.RetrieverConfig{
			Collection: cfg.RAGOptions.Collection,
			TopK:       cfg.RAGOptions.TopK,
			MinScore:   cfg.RAGOptions.MinScore,
		},
		GeneratorConfig: &biz.GeneratorConfig{
			SystemPrompt:  cfg.RAGOptions.SystemPrompt,
			ContextBudget: cfg.RAGOptions.ContextBudget,
		},
		QueryCacheConfig: &biz.QueryCacheConfig{
			Enabled:   queryCache != nil,
			TTL:       cfg.RAGOptions.CacheTTL,
			KeyPrefix: cacheKeyPrefix,
		},
	}
	service := biz.NewKnowledgeService(vectorStore, documentStore, embedProvider, chatProvider, queryCache, background, serviceConfig)
	logger.Infow("Knowledge service initialized",
		"collection", cfg.RAGOptions.Collection,
		"cache.enabled", queryCache != nil,
	)

	// 8. 初始化 HTTP 层
	if !cfg.LogOptions.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, handler.New(service, cfg.HTTPOptions.MaxUploadBytes))

	srv := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("Knowledge base service is ready")
	return &Server{
		srv:             srv,
		shutdownTimeout: cfg.ShutdownTimeout,
		closers:         closers,
	}, nil
}

// newVectorStore builds the vector store for the configured backend.
func (cfg *Config) newVectorStore() (store.VectorStore, []func(), error) {
	switch cfg.VectorBackend {
	case VectorBackendMilvus:
		milvusClient, err := milvus.New(cfg.MilvusOptions)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		logger.Infow("Milvus vector store initialized", "address", cfg.MilvusOptions.Address)
		closer := func() { _ = milvusClient.Close(context.Background()) }
		return store.NewMilvusStore(milvusClient), []func(){closer}, nil
	case VectorBackendMemory:
		// 内存后端仅用于本地开发，进程退出后数据丢失。
		logger.Warn("Using in-memory vector store, data will not survive a restart")
		return store.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// newQueryCache builds the Redis query cache. Connection failures disable the
// cache instead of failing startup.
func (cfg *Config) newQueryCache(ctx context.Context) (*biz.QueryCache, func()) {
	if !cfg.RedisOptions.Enabled {
		logger.Info("Query cache is disabled")
		return nil, nil
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisOptions.Addr(),
		Password:     cfg.RedisOptions.Password,
		DB:           cfg.RedisOptions.Database,
		MaxRetries:   cfg.RedisOptions.MaxRetries,
		DialTimeout:  cfg.RedisOptions.DialTimeout,
		ReadTimeout:  cfg.RedisOptions.ReadTimeout,
		WriteTimeout: cfg.RedisOptions.WriteTimeout,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warnw("failed to connect to redis, query cache will be disabled", "error", err.Error())
		_ = redisClient.Close()
		return nil, nil
	}

	queryCache := biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
		Enabled:   true,
		TTL:       cfg.RAGOptions.CacheTTL,
		KeyPrefix: cacheKeyPrefix,
	})
	logger.Infow("Query cache initialized",
		"addr", cfg.RedisOptions.Addr(),
		"ttl", cfg.RAGOptions.CacheTTL,
	)
	return queryCache, func() { _ = redisClient.Close() }
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		// 按创建的相反顺序释放资源。
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

func printBanner(cfg *Config) {
	fmt.Printf("Starting %s...\n", Name)
	fmt.Printf("  Embedding: %s (%s)\n", cfg.EmbeddingOptions.Provider, cfg.EmbeddingOptions.Model)
	fmt.Printf("  Chat: %s (%s)\n", cfg.ChatOptions.Provider, cfg.ChatOptions.Model)
	fmt.Printf("  Vector backend: %s\n", cfg.VectorBackend)
}

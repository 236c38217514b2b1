// Package container はアプリケーション全体の依存関係を組み立てる。
package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/legal-rag/internal/core/chunk"
	"github.com/jinford/legal-rag/internal/core/ingest"
	"github.com/jinford/legal-rag/internal/core/retrieval"
	"github.com/jinford/legal-rag/internal/core/vector"
	"github.com/jinford/legal-rag/internal/infra/gemini"
	"github.com/jinford/legal-rag/internal/infra/memory"
	"github.com/jinford/legal-rag/internal/infra/openai"
	"github.com/jinford/legal-rag/internal/infra/pgvector"
	"github.com/jinford/legal-rag/internal/infra/postgres"
	"github.com/jinford/legal-rag/internal/infra/qdrant"
	"github.com/jinford/legal-rag/internal/platform/config"
	"github.com/jinford/legal-rag/internal/platform/database"
)

// ServiceContainer は core/infra の依存関係を保持する。
type ServiceContainer struct {
	IngestService *ingest.IngestService
	SearchService *retrieval.SearchService
	AnswerService *retrieval.AnswerService
	Dispatcher    *ingest.Dispatcher
	DocumentRepo  ingest.Repository
	VectorStore   vector.Store

	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  embedderIface
	store     vector.Store
	generator retrieval.Generator
	chats     retrieval.ChatRepository
	docs      ingest.Repository
}

// embedderIface は ingest と retrieval 双方の Embedder 要件を束ねる
type embedderIface interface {
	ingest.Embedder
	retrieval.Embedder
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder embedderIface) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerVectorStore はベクトルストアを差し替える
func WithContainerVectorStore(store vector.Store) ContainerOption {
	return func(opts *containerOptions) {
		opts.store = store
	}
}

// WithContainerGenerator は回答生成クライアントを差し替える
func WithContainerGenerator(generator retrieval.Generator) ContainerOption {
	return func(opts *containerOptions) {
		opts.generator = generator
	}
}

// WithContainerChatRepository はチャットリポジトリを差し替える
func WithContainerChatRepository(chats retrieval.ChatRepository) ContainerOption {
	return func(opts *containerOptions) {
		opts.chats = chats
	}
}

// WithContainerDocumentRepository はドキュメントリポジトリを差し替える
func WithContainerDocumentRepository(docs ingest.Repository) ContainerOption {
	return func(opts *containerOptions) {
		opts.docs = docs
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	if err := postgres.Migrate(ctx, db.Pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマ適用に失敗しました: %w", err)
	}

	c, err := NewContainerWithDB(ctx, cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する。
func NewContainerWithDB(ctx context.Context, cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		embedder = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
	}

	// VectorStore
	store := options.store
	if store == nil {
		var err error
		store, err = newVectorStore(cfg, db)
		if err != nil {
			return nil, err
		}
	}

	// Chunker
	chunker, err := chunk.NewChunker(&chunk.ChunkerConfig{
		WindowSize: cfg.Chunking.WindowSize,
		Overlap:    cfg.Chunking.Overlap,
		Strategy:   chunk.Strategy(cfg.Chunking.Strategy),
	})
	if err != nil {
		return nil, fmt.Errorf("Chunker 初期化に失敗しました: %w", err)
	}

	// Repository (PostgreSQL)
	docRepo := options.docs
	if docRepo == nil {
		docRepo = postgres.NewDocumentRepository(db.Pool)
	}
	chatRepo := options.chats
	if chatRepo == nil {
		chatRepo = postgres.NewChatRepository(db.Pool)
	}

	// Generator (OpenAI or Gemini)
	generator := options.generator
	if generator == nil {
		generator, err = newGenerator(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	// IngestService
	ingestService := ingest.NewIngestService(
		docRepo,
		chunker,
		embedder,
		store,
		ingest.WithIngestLogger(options.logger),
	)

	// Dispatcher（バックグラウンド取り込みワーカー）
	dispatcher := ingest.NewDispatcher(ctx, ingestService, &ingest.DispatcherConfig{
		WorkerCount: cfg.Ingest.Workers,
		QueueSize:   cfg.Ingest.QueueSize,
	}, options.logger)

	// SearchService / AnswerService
	searchService := retrieval.NewSearchService(embedder, store, retrieval.WithSearchLogger(options.logger))
	answerService := retrieval.NewAnswerService(searchService, generator, chatRepo, retrieval.WithAnswerLogger(options.logger))

	return &ServiceContainer{
		IngestService: ingestService,
		SearchService: searchService,
		AnswerService: answerService,
		Dispatcher:    dispatcher,
		DocumentRepo:  docRepo,
		VectorStore:   store,
		logger:        options.logger,
		database:      db,
	}, nil
}

// newVectorStore は設定のプロバイダ識別子からベクトルストアを生成する。
func newVectorStore(cfg *config.Config, db *database.Database) (vector.Store, error) {
	switch cfg.VectorStore.Provider {
	case config.VectorStoreMemory:
		return memory.NewStore(), nil
	case config.VectorStoreQdrant:
		return qdrant.NewStore(qdrant.Config{
			URL:        cfg.VectorStore.QdrantURL,
			APIKey:     cfg.VectorStore.QdrantKey,
			Collection: cfg.VectorStore.Collection,
		}), nil
	case config.VectorStorePgvector:
		if db == nil {
			return nil, fmt.Errorf("pgvector ストアにはデータベース接続が必要です")
		}
		return pgvector.NewStore(db.Pool, cfg.VectorStore.Collection), nil
	default:
		return nil, fmt.Errorf("unknown vector store provider: %q", cfg.VectorStore.Provider)
	}
}

// newGenerator は設定のプロバイダ識別子から回答生成クライアントを生成する。
func newGenerator(ctx context.Context, cfg *config.Config) (retrieval.Generator, error) {
	switch cfg.LLMProvider {
	case config.LLMProviderOpenAI:
		client, err := openai.NewClient(cfg.OpenAI.APIKey, openai.WithModel(cfg.OpenAI.LLMModel))
		if err != nil {
			return nil, fmt.Errorf("OpenAI クライアント初期化に失敗しました: %w", err)
		}
		return client, nil
	case config.LLMProviderGemini:
		client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, gemini.WithModel(cfg.Gemini.Model))
		if err != nil {
			return nil, fmt.Errorf("Gemini クライアント初期化に失敗しました: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.LLMProvider)
	}
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	if c.Dispatcher != nil {
		c.Dispatcher.Close()
	}
	if c.database != nil {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// Database はデータベースを返す。
func (c *ServiceContainer) Database() *database.Database {
	if c == nil {
		return nil
	}
	return c.database
}

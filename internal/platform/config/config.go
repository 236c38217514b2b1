// Package config は環境変数と .env ファイルからアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// ベクトルストアのプロバイダ識別子
const (
	VectorStoreMemory   = "memory"
	VectorStoreQdrant   = "qdrant"
	VectorStorePgvector = "pgvector"
)

// LLMプロバイダ識別子
const (
	LLMProviderOpenAI = "openai"
	LLMProviderGemini = "gemini"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings + 回答生成）
	OpenAI OpenAIConfig

	// Gemini設定（回答生成の代替プロバイダ）
	Gemini GeminiConfig

	// 回答生成に使うLLMプロバイダ（"openai" or "gemini"）
	LLMProvider string

	// ベクトルストア設定
	VectorStore VectorStoreConfig

	// チャンク分割設定
	Chunking ChunkingConfig

	// 取り込みワーカー設定
	Ingest IngestConfig

	// HTTPサーバ設定
	Server ServerConfig

	// ログ設定
	LogLevel  string
	LogFormat string
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	LLMModel           string
}

// GeminiConfig はGemini API設定
type GeminiConfig struct {
	APIKey string
	Model  string
}

// VectorStoreConfig はベクトルストア設定
type VectorStoreConfig struct {
	Provider   string // "memory", "qdrant", "pgvector"
	QdrantURL  string
	QdrantKey  string
	Collection string
}

// ChunkingConfig はチャンク分割設定
type ChunkingConfig struct {
	WindowSize int
	Overlap    int
	Strategy   string // "window" or "section"
}

// IngestConfig は取り込みワーカー設定
type IngestConfig struct {
	Workers   int
	QueueSize int
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Host string
	Port int
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "legalrag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "legalrag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			LLMModel:           getEnv("OPENAI_LLM_MODEL", "gpt-4o-mini"),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		LLMProvider: getEnv("LLM_PROVIDER", LLMProviderOpenAI),
		VectorStore: VectorStoreConfig{
			Provider:   getEnv("VECTOR_STORE_PROVIDER", VectorStoreMemory),
			QdrantURL:  getEnv("QDRANT_URL", "http://localhost:6333"),
			QdrantKey:  getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("VECTOR_COLLECTION", "legal_chunks"),
		},
		Chunking: ChunkingConfig{
			WindowSize: getEnvAsInt("CHUNK_WINDOW_SIZE", 1000),
			Overlap:    getEnvAsInt("CHUNK_OVERLAP", 200),
			Strategy:   getEnv("CHUNK_STRATEGY", "window"),
		},
		Ingest: IngestConfig{
			Workers:   getEnvAsInt("INGEST_WORKERS", 4),
			QueueSize: getEnvAsInt("INGEST_QUEUE_SIZE", 64),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8000),
		},
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は設定値の整合性を確認します
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case LLMProviderOpenAI, LLMProviderGemini:
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.LLMProvider)
	}

	switch c.VectorStore.Provider {
	case VectorStoreMemory, VectorStoreQdrant, VectorStorePgvector:
	default:
		return fmt.Errorf("unknown vector store provider: %q", c.VectorStore.Provider)
	}

	if c.Chunking.WindowSize <= 0 {
		return fmt.Errorf("chunk window size must be positive, got %d", c.Chunking.WindowSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.WindowSize {
		return fmt.Errorf("chunk overlap must be in [0, window size), got %d", c.Chunking.Overlap)
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

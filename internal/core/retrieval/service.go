package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/legal-rag/internal/core/vector"
)

// Embedder はクエリのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchService はベクトル検索のビジネスロジックを提供する
type SearchService struct {
	embedder Embedder
	store    vector.Store
	logger   *slog.Logger
}

type searchServiceOptions struct {
	logger *slog.Logger
}

// SearchServiceOption は SearchService のオプション設定
type SearchServiceOption func(*searchServiceOptions)

// WithSearchLogger は SearchService にロガーを設定する
func WithSearchLogger(logger *slog.Logger) SearchServiceOption {
	return func(o *searchServiceOptions) {
		o.logger = logger
	}
}

// NewSearchService は新しいSearchServiceを作成する
func NewSearchService(embedder Embedder, store vector.Store, opts ...SearchServiceOption) *SearchService {
	options := searchServiceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &SearchService{
		embedder: embedder,
		store:    store,
		logger:   options.logger,
	}
}

// ClampLimit は検索件数を [MinLimit, MaxLimit] に収める。
// 0以下はデフォルト値として扱う。
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit < MinLimit {
		return MinLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Search はクエリに類似するチャンクをスコア降順で返す。
// Embedding・インデックスいずれの失敗も ErrRetrieval に分類される。
func (s *SearchService) Search(ctx context.Context, query string, limit int) ([]*RetrievalResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit = ClampLimit(limit)

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to embed query: %v", ErrRetrieval, err)
	}

	matches, err := s.store.Search(ctx, queryVector, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: index search failed: %v", ErrRetrieval, err)
	}

	s.logger.Info("search completed", "query", query, "limit", limit, "hits", len(matches))

	results := make([]*RetrievalResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, matchToResult(m))
	}
	return results, nil
}

// matchToResult はインデックスのヒットをAPI向けの結果へ変換する。
// Embedding と既に表出しているフィールドは Metadata に含めない。
func matchToResult(m *vector.Match) *RetrievalResult {
	page := m.Page
	if page <= 0 {
		page = 1
	}

	meta := map[string]any{
		"id":         m.Chunk.ID,
		"section":    m.Chunk.Section,
		"chunkIndex": m.Chunk.ChunkIndex,
		"version":    m.Chunk.Version,
		"filename":   m.Chunk.Filename,
		"tokenCount": m.Chunk.TokenCount,
	}
	if m.Chunk.EffectiveDate != "" {
		meta["effectiveDate"] = m.Chunk.EffectiveDate
	}
	if m.Chunk.URL != "" {
		meta["url"] = m.Chunk.URL
	}

	return &RetrievalResult{
		Text:     m.Chunk.Text,
		Source:   m.Chunk.Source,
		Score:    m.Score,
		Page:     page,
		Metadata: meta,
	}
}

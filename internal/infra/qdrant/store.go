// Package qdrant は Qdrant REST API への最小クライアントを実装する。
// コレクションはコサイン距離で遅延作成され、ポイントIDはチャンクの
// 論理IDから UUIDv5 で決定的に導出される。
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/legal-rag/internal/core/chunk"
	"github.com/jinford/legal-rag/internal/core/vector"
)

const (
	// DefaultCollection はデフォルトのコレクション名
	DefaultCollection = "legal_chunks"
	// DefaultTimeout はHTTP呼び出しのデフォルトタイムアウト
	DefaultTimeout = 15 * time.Second
)

// pointIDNamespace はチャンクID→ポイントIDの UUIDv5 名前空間。
// 固定値なので同じチャンクIDは常に同じポイントIDになる。
var pointIDNamespace = uuid.MustParse("1b671a64-40d5-491e-99b0-da01ff1f3341")

// Config は Store の接続設定
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// Store は Qdrant をバックエンドとするベクトルインデックス
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	dimension int
}

// NewStore は新しいStoreを作成する
func NewStore(cfg Config) *Store {
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID はチャンクの論理IDから決定的なポイントIDを導出する。
// 再取り込み時に同一チャンクが上書きされることを保証する。
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(chunkID)).String()
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection はコレクションを必要なら作成する。
// 既存コレクションの次元が一致すれば何もせず、食い違う場合は
// ErrSchemaConflict を返す。
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	var info collectionInfo
	status, err := s.getJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, s.collection), &info)
	if err != nil {
		return err
	}

	switch status {
	case http.StatusOK:
		existing := info.Result.Config.Params.Vectors.Size
		if existing != dimension {
			return fmt.Errorf("%w: collection %q has dimension %d, requested %d", vector.ErrSchemaConflict, s.collection, existing, dimension)
		}
		s.dimension = dimension
		return nil
	case http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.doJSON(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.url, s.collection), body, nil); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
		s.dimension = dimension
		return nil
	default:
		return fmt.Errorf("qdrant returned unexpected status %d for collection info", status)
	}
}

// Upsert はチャンクをポイントとして書き込む。
// ベクトル長の検証はリクエスト送信前に行い、部分書き込みを避ける。
func (s *Store) Upsert(ctx context.Context, chunks []*vector.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, ec := range chunks {
		if s.dimension > 0 && len(ec.Embedding) != s.dimension {
			return fmt.Errorf("%w: got vector of length %d, collection dimension is %d", vector.ErrDimensionMismatch, len(ec.Embedding), s.dimension)
		}
	}

	points := make([]map[string]any, len(chunks))
	for i, ec := range chunks {
		points[i] = map[string]any{
			"id":      PointID(ec.Chunk.ID),
			"vector":  ec.Embedding,
			"payload": chunkPayload(ec.Chunk),
		}
	}

	body := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPut, url, body, nil); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

type searchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search は類似ポイントをスコア降順で検索する
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]*vector.Match, error) {
	if limit <= 0 {
		limit = 5
	}

	body := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var resp searchResponse
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	matches := make([]*vector.Match, 0, len(resp.Result))
	for _, hit := range resp.Result {
		c := payloadChunk(hit.Payload)
		matches = append(matches, &vector.Match{
			Chunk: c,
			Score: hit.Score,
			Page:  c.Page,
		})
	}
	return matches, nil
}

// DeleteBySource はペイロードの source が一致する全ポイントを削除する。
// ストア内部のポイントIDではなく論理フィールドでフィルタする。
func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "source",
					"match": map[string]any{"value": source},
				},
			},
		},
	}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, body, nil); err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}

// DeleteByIDs は論理チャンクIDで指定されたポイントだけを削除する。
// チャンクIDはポイントIDへ決定的に変換してから送る。
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	points := make([]string, len(ids))
	for i, id := range ids {
		points[i] = PointID(id)
	}
	body := map[string]any{"points": points}

	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, s.collection)
	if err := s.doJSON(ctx, http.MethodPost, url, body, nil); err != nil {
		return fmt.Errorf("failed to delete points by id: %w", err)
	}
	return nil
}

// chunkPayload はチャンクをQdrantペイロードへ変換する（Embeddingは含めない）
func chunkPayload(c *chunk.Chunk) map[string]any {
	payload := map[string]any{
		"id":          c.ID,
		"source":      c.Source,
		"section":     c.Section,
		"text":        c.Text,
		"chunk_index": c.ChunkIndex,
		"version":     c.Version,
		"filename":    c.Filename,
		"token_count": c.TokenCount,
	}
	if c.EffectiveDate != "" {
		payload["effective_date"] = c.EffectiveDate
	}
	if c.URL != "" {
		payload["url"] = c.URL
	}
	if c.Page > 0 {
		payload["page"] = c.Page
	}
	return payload
}

// payloadChunk はQdrantペイロードをチャンクへ戻す
func payloadChunk(payload map[string]any) *chunk.Chunk {
	c := &chunk.Chunk{}
	if v, ok := payload["id"].(string); ok {
		c.ID = v
	}
	if v, ok := payload["source"].(string); ok {
		c.Source = v
	}
	if v, ok := payload["section"].(string); ok {
		c.Section = v
	}
	if v, ok := payload["text"].(string); ok {
		c.Text = v
	}
	if v, ok := payload["chunk_index"].(float64); ok {
		c.ChunkIndex = int(v)
	}
	if v, ok := payload["version"].(string); ok {
		c.Version = v
	}
	if v, ok := payload["effective_date"].(string); ok {
		c.EffectiveDate = v
	}
	if v, ok := payload["url"].(string); ok {
		c.URL = v
	}
	if v, ok := payload["filename"].(string); ok {
		c.Filename = v
	}
	if v, ok := payload["token_count"].(float64); ok {
		c.TokenCount = int(v)
	}
	if v, ok := payload["page"].(float64); ok {
		c.Page = int(v)
	}
	return c
}

// getJSON はGETリクエストを送り、200/404以外はエラーにせずステータスを返す
func (s *Store) getJSON(ctx context.Context, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// doJSON はJSONボディ付きリクエストを送り、2xx以外をエラーにする
func (s *Store) doJSON(ctx context.Context, method, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode qdrant response: %w", err)
		}
	}
	return nil
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

// インターフェース実装の確認
var _ vector.Store = (*Store)(nil)

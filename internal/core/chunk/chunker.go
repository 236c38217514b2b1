package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Chunk は法令ドキュメントから切り出した検索単位を表す。
// ID は (パス, チャンク番号, テキスト) から決定的に導出されるため、
// 同一ソースを再取り込みしても同じ ID 列になる。
type Chunk struct {
	ID            string `json:"id"`
	Source        string `json:"source"`
	Section       string `json:"section"`
	Text          string `json:"text"`
	ChunkIndex    int    `json:"chunkIndex"`
	Version       string `json:"version"`
	EffectiveDate string `json:"effectiveDate,omitempty"`
	URL           string `json:"url,omitempty"`
	Filename      string `json:"filename"`
	TokenCount    int    `json:"tokenCount"`
	Page          int    `json:"page,omitempty"`
}

// Metadata はチャンクに引き継ぐドキュメント由来のメタデータ
type Metadata struct {
	Source        string
	Filename      string
	Version       string
	EffectiveDate string
	URL           string
}

// Chunker はテキストをチャンク列に分割する
type Chunker interface {
	Chunk(path, text string, meta Metadata) ([]*Chunk, error)
}

// Strategy はチャンク分割の方式を表す
type Strategy string

const (
	// StrategyWindow は固定長スライディングウィンドウ方式
	StrategyWindow Strategy = "window"
	// StrategySection は見出し単位の構造チャンク方式
	StrategySection Strategy = "section"
)

const (
	// DefaultWindowSize はデフォルトのウィンドウ幅（文字数）
	DefaultWindowSize = 1000
	// DefaultOverlap はデフォルトのオーバーラップ（文字数）
	DefaultOverlap = 200
	// SectionUnknown は構造メタデータが無い場合のセクション名
	SectionUnknown = "Unknown"
)

// ChunkerConfig はチャンク分割の設定
type ChunkerConfig struct {
	WindowSize int      // ウィンドウ幅（文字数）
	Overlap    int      // オーバーラップ（文字数、WindowSize 未満）
	Strategy   Strategy // 分割方式
}

// DefaultChunkerConfig はデフォルトのチャンク設定を返す
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		WindowSize: DefaultWindowSize,
		Overlap:    DefaultOverlap,
		Strategy:   StrategyWindow,
	}
}

// Validate は設定値の整合性を検証する
func (c *ChunkerConfig) Validate() error {
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: windowSize must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.Overlap)
	}
	if c.Overlap >= c.WindowSize {
		return fmt.Errorf("%w: overlap %d must be smaller than windowSize %d", ErrInvalidConfig, c.Overlap, c.WindowSize)
	}
	switch c.Strategy {
	case "", StrategyWindow, StrategySection:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, c.Strategy)
	}
	return nil
}

// NewChunker は設定に応じたChunkerを作成する
func NewChunker(cfg *ChunkerConfig) (Chunker, error) {
	if cfg == nil {
		cfg = DefaultChunkerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Strategy {
	case StrategySection:
		return NewSectionChunker(cfg)
	default:
		return NewWindowChunker(cfg)
	}
}

// ChunkID は (パス, チャンク番号, テキスト) から決定的なチャンクIDを導出する
func ChunkID(path string, index int, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d_%s", path, index, text)))
	return hex.EncodeToString(sum[:])
}

// TokenCounter はトークン数のカウントを提供する
type TokenCounter struct {
	encoder *tiktoken.Tiktoken
}

// NewTokenCounter は cl100k_base エンコーダを使う TokenCounter を作成する。
// text-embedding-3-small / gpt-4o-mini と互換のエンコーディング。
func NewTokenCounter() (*TokenCounter, error) {
	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoder: %w", err)
	}
	return &TokenCounter{encoder: encoder}, nil
}

// Count はテキストのトークン数を返す
func (t *TokenCounter) Count(text string) int {
	return len(t.encoder.Encode(text, nil, nil))
}

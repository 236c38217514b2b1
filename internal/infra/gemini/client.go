// Package gemini は Google Gemini を使用した回答生成クライアントを提供する。
// LLM_PROVIDER=gemini のときにプロバイダファクトリから選択される。
package gemini

import (
	"context"
	"fmt"
	"time"

	"github.com/jinford/legal-rag/internal/core/retrieval"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

const (
	// DefaultModel はデフォルトで使用するGeminiモデル
	DefaultModel = "gemini-1.5-flash"

	// DefaultTimeout はAPI呼び出しのデフォルトタイムアウト
	DefaultTimeout = 60 * time.Second
)

// Client は Gemini API を使用した回答生成クライアント
type Client struct {
	llm     *googleai.GoogleAI
	model   string
	timeout time.Duration
}

type clientOptions struct {
	model   string
	timeout time.Duration
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithModel はモデル名を上書きする
func WithModel(model string) ClientOption {
	return func(o *clientOptions) {
		o.model = model
	}
}

// WithTimeout はAPI呼び出しのタイムアウトを上書きする
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = timeout
	}
}

// NewClient は新しい Client を作成する
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key not set")
	}

	options := clientOptions{
		model:   DefaultModel,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(options.model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		llm:     llm,
		model:   options.model,
		timeout: options.timeout,
	}, nil
}

// ModelName はモデル名を返す
func (c *Client) ModelName() string {
	return c.model
}

// GenerateAnswer は検索済みコンテキストに基づいて回答を生成する。
// Gemini にはシステムプロンプトとユーザープロンプトを結合した
// 単一プロンプトとして渡す。
func (c *Client) GenerateAnswer(ctx context.Context, question string, contexts []*retrieval.RetrievalResult) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := retrieval.SystemPrompt + "\n\n" + retrieval.BuildUserPrompt(question, contexts)

	answer, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt,
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	return answer, nil
}

// インターフェース実装の確認
var _ retrieval.Generator = (*Client)(nil)

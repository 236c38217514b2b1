package retrieval

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

const (
	// DefaultLimit は検索件数のデフォルト
	DefaultLimit = 5
	// MinLimit は検索件数の下限
	MinLimit = 1
	// MaxLimit は検索件数の上限
	MaxLimit = 20
)

// RetrievalResult はベクトル検索の1ヒットを表す。
// Metadata には text/source/score/page と Embedding を除く
// ペイロード項目がすべて入る。
type RetrievalResult struct {
	Text     string         `json:"text"`
	Source   string         `json:"source"`
	Score    float64        `json:"score"`
	Page     int            `json:"page"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AnswerParams は質問応答のパラメータを表す
type AnswerParams struct {
	Question string                // ユーザーの質問文
	ChatID   mo.Option[uuid.UUID]  // 既存チャットID（省略時は新規作成）
	Limit    int                   // チャンク検索の上限（デフォルト: 5）
}

// AnswerResult は質問応答の結果を表す
type AnswerResult struct {
	Answer    string    // LLMによる回答
	ChatID    uuid.UUID // 回答を保存したチャットID
	Citations []string  // 回答の根拠チャンクの出典（重複排除済み）
}

// Chat は1つの会話スレッドを表す
type Chat struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message はチャット内の1メッセージを表す
type Message struct {
	ID        int64     `json:"id"`
	ChatID    uuid.UUID `json:"chatID"`
	Role      string    `json:"role"` // "user" または "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

package retrieval

import (
	"context"

	"github.com/google/uuid"
)

// ChatRepository はチャットとメッセージの永続化を提供する
type ChatRepository interface {
	// CreateChat は新しいチャットを作成する
	CreateChat(ctx context.Context, chat *Chat) error

	// GetChat は ID でチャットを取得する。
	// 存在しない場合は ErrChatNotFound を返す。
	GetChat(ctx context.Context, id uuid.UUID) (*Chat, error)

	// AppendMessage はチャットにメッセージを追加する
	AppendMessage(ctx context.Context, msg *Message) error

	// ListMessages はチャットのメッセージを作成順で返す
	ListMessages(ctx context.Context, chatID uuid.UUID) ([]*Message, error)
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/legal-rag/internal/core/retrieval"
)

// ChatRepository は core/retrieval.ChatRepository を実装する PostgreSQL リポジトリ。
type ChatRepository struct {
	pool *pgxpool.Pool
}

// NewChatRepository は新しい ChatRepository を返す。
func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{pool: pool}
}

var _ retrieval.ChatRepository = (*ChatRepository)(nil)

func (r *ChatRepository) CreateChat(ctx context.Context, chat *retrieval.Chat) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chats (id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`,
		UUIDToPgtype(chat.ID), chat.Title, TimeToPgtype(chat.CreatedAt), TimeToPgtype(chat.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetChat(ctx context.Context, id uuid.UUID) (*retrieval.Chat, error) {
	var (
		chatID    pgtype.UUID
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
		chat      retrieval.Chat
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, created_at, updated_at FROM chats WHERE id = $1`,
		UUIDToPgtype(id),
	).Scan(&chatID, &chat.Title, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, retrieval.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.ID = PgtypeToUUID(chatID)
	chat.CreatedAt = PgtypeToTime(createdAt)
	chat.UpdatedAt = PgtypeToTime(updatedAt)
	return &chat, nil
}

func (r *ChatRepository) AppendMessage(ctx context.Context, msg *retrieval.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		id        int64
		createdAt pgtype.Timestamptz
	)
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (chat_id, role, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		UUIDToPgtype(msg.ChatID), msg.Role, msg.Content,
	).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, UUIDToPgtype(msg.ChatID)); err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}

	msg.ID = id
	msg.CreatedAt = PgtypeToTime(createdAt)
	return nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, chatID uuid.UUID) ([]*retrieval.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, chat_id, role, content, created_at
		FROM messages WHERE chat_id = $1 ORDER BY id`,
		UUIDToPgtype(chatID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*retrieval.Message, 0)
	for rows.Next() {
		var (
			id        pgtype.UUID
			createdAt pgtype.Timestamptz
			msg       retrieval.Message
		)
		if err := rows.Scan(&msg.ID, &id, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ChatID = PgtypeToUUID(id)
		msg.CreatedAt = PgtypeToTime(createdAt)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}

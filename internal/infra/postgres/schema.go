package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements は起動時に適用するDDL。
// すべて冪等なのでアプリケーションの再起動で安全に再実行できる。
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id          UUID PRIMARY KEY,
		filename    TEXT NOT NULL,
		title       TEXT NOT NULL,
		fingerprint TEXT NOT NULL UNIQUE,
		status      TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id         UUID PRIMARY KEY,
		title      TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		chat_id    UUID NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS messages_chat_id_idx ON messages (chat_id, id)`,
}

// Migrate はメタデータ用のテーブルを作成する
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

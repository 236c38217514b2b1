// Package pgvector は PostgreSQL + pgvector 拡張をバックエンドとする
// ベクトルインデックスを実装する。チャンクIDを主キーとすることで
// 再取り込み時の上書きを保証する。
package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/jinford/legal-rag/internal/core/chunk"
	"github.com/jinford/legal-rag/internal/core/vector"
)

// DefaultTable はデフォルトのテーブル名
const DefaultTable = "legal_chunks"

// Store は pgvector をバックエンドとするベクトルインデックス
type Store struct {
	pool  *pgxpool.Pool
	table string

	dimension int
}

// NewStore は新しいStoreを作成する
func NewStore(pool *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{pool: pool, table: table}
}

var _ vector.Store = (*Store)(nil)

// EnsureCollection は拡張とテーブルを必要なら作成する。
// 既存テーブルのベクトル次元が食い違う場合は ErrSchemaConflict を返す。
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createStmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id             TEXT PRIMARY KEY,
			source         TEXT NOT NULL,
			section        TEXT NOT NULL DEFAULT 'Unknown',
			content        TEXT NOT NULL,
			chunk_index    INTEGER NOT NULL,
			version        TEXT NOT NULL DEFAULT '',
			effective_date TEXT NOT NULL DEFAULT '',
			url            TEXT NOT NULL DEFAULT '',
			filename       TEXT NOT NULL DEFAULT '',
			token_count    INTEGER NOT NULL DEFAULT 0,
			page           INTEGER NOT NULL DEFAULT 0,
			embedding      vector(%d) NOT NULL
		)`, s.table, dimension)
	if _, err := s.pool.Exec(ctx, createStmt); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// 既存テーブルだった場合は宣言された次元を確認する
	var existing int
	err := s.pool.QueryRow(ctx, `
		SELECT coalesce(atttypmod, -1)
		FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`, s.table).Scan(&existing)
	if err != nil {
		return fmt.Errorf("failed to inspect table schema: %w", err)
	}
	if existing > 0 && existing != dimension {
		return fmt.Errorf("%w: table %q has dimension %d, requested %d", vector.ErrSchemaConflict, s.table, existing, dimension)
	}

	indexStmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)", s.table, s.table)
	if _, err := s.pool.Exec(ctx, indexStmt); err != nil {
		return fmt.Errorf("failed to create source index: %w", err)
	}

	s.dimension = dimension
	return nil
}

// Upsert はチャンクを書き込む。同じIDの行は上書きされる。
// ベクトル長の検証は書き込み前に全件行い、部分書き込みを避ける。
func (s *Store) Upsert(ctx context.Context, chunks []*vector.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, ec := range chunks {
		if s.dimension > 0 && len(ec.Embedding) != s.dimension {
			return fmt.Errorf("%w: got vector of length %d, table dimension is %d", vector.ErrDimensionMismatch, len(ec.Embedding), s.dimension)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, source, section, content, chunk_index, version, effective_date, url, filename, token_count, page, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			source = EXCLUDED.source,
			section = EXCLUDED.section,
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			version = EXCLUDED.version,
			effective_date = EXCLUDED.effective_date,
			url = EXCLUDED.url,
			filename = EXCLUDED.filename,
			token_count = EXCLUDED.token_count,
			page = EXCLUDED.page,
			embedding = EXCLUDED.embedding`, s.table)

	for _, ec := range chunks {
		c := ec.Chunk
		if _, err := tx.Exec(ctx, stmt,
			c.ID, c.Source, c.Section, c.Text, c.ChunkIndex,
			c.Version, c.EffectiveDate, c.URL, c.Filename, c.TokenCount, c.Page,
			pgv.NewVector(ec.Embedding),
		); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Search はコサイン類似度の降順で上位limit件を返す
func (s *Store) Search(ctx context.Context, queryVector []float32, limit int) ([]*vector.Match, error) {
	if limit <= 0 {
		limit = 5
	}

	stmt := fmt.Sprintf(`
		SELECT id, source, section, content, chunk_index, version, effective_date, url, filename, token_count, page,
			1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, stmt, pgv.NewVector(queryVector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]*vector.Match, 0, limit)
	for rows.Next() {
		c := &chunk.Chunk{}
		var score float64
		if err := rows.Scan(
			&c.ID, &c.Source, &c.Section, &c.Text, &c.ChunkIndex,
			&c.Version, &c.EffectiveDate, &c.URL, &c.Filename, &c.TokenCount, &c.Page,
			&score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		matches = append(matches, &vector.Match{
			Chunk: c,
			Score: score,
			Page:  c.Page,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunks: %w", err)
	}
	return matches, nil
}

// DeleteByIDs は論理チャンクIDで指定された行だけを削除する
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", s.table)
	if _, err := s.pool.Exec(ctx, stmt, ids); err != nil {
		return fmt.Errorf("failed to delete chunks by id: %w", err)
	}
	return nil
}

// DeleteBySource は source が一致する全チャンクを削除する
func (s *Store) DeleteBySource(ctx context.Context, source string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE source = $1", s.table)
	if _, err := s.pool.Exec(ctx, stmt, source); err != nil {
		return fmt.Errorf("failed to delete chunks by source: %w", err)
	}
	return nil
}

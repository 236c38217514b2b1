package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/legal-rag/internal/core/ingest"
)

// DocumentRepository は core/ingest.Repository を実装する PostgreSQL リポジトリ。
type DocumentRepository struct {
	pool *pgxpool.Pool
}

// NewDocumentRepository は新しい DocumentRepository を返す。
func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

var _ ingest.Repository = (*DocumentRepository)(nil)

func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *ingest.Document) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (id, filename, title, fingerprint, status, chunk_count, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		UUIDToPgtype(doc.ID), doc.Filename, doc.Title, doc.Fingerprint,
		string(doc.Status), doc.ChunkCount, TimeToPgtype(doc.UploadedAt),
	)
	if err != nil {
		// fingerprint の一意制約違反は並行アップロードの合図なので
		// ドメインのエラーに写像する
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: fingerprint %s", ingest.ErrDuplicateDocument, doc.Fingerprint)
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) CompleteDocument(ctx context.Context, id uuid.UUID, chunkCount int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $2, chunk_count = $3 WHERE id = $1`,
		UUIDToPgtype(id), string(ingest.StatusCompleted), chunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to complete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) FailDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $2 WHERE id = $1`,
		UUIDToPgtype(id), string(ingest.StatusFailed),
	)
	if err != nil {
		return fmt.Errorf("failed to mark document as failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) GetDocumentByFingerprint(ctx context.Context, fingerprint string) (*ingest.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, filename, title, fingerprint, status, chunk_count, uploaded_at
		FROM documents WHERE fingerprint = $1`, fingerprint)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingest.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document by fingerprint: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (*ingest.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, filename, title, fingerprint, status, chunk_count, uploaded_at
		FROM documents WHERE id = $1`, UUIDToPgtype(id))

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ingest.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*ingest.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, filename, title, fingerprint, status, chunk_count, uploaded_at
		FROM documents ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]*ingest.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

func (r *DocumentRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*ingest.Document, error) {
	var (
		id         pgtype.UUID
		status     string
		uploadedAt pgtype.Timestamptz
		doc        ingest.Document
	)
	if err := row.Scan(&id, &doc.Filename, &doc.Title, &doc.Fingerprint, &status, &doc.ChunkCount, &uploadedAt); err != nil {
		return nil, err
	}
	doc.ID = PgtypeToUUID(id)
	doc.Status = ingest.DocumentStatus(status)
	doc.UploadedAt = PgtypeToTime(uploadedAt)
	return &doc, nil
}

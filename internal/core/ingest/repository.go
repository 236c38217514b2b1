package ingest

import (
	"context"

	"github.com/google/uuid"
)

// Repository はドキュメントメタデータの永続化を提供する。
// 取り込みコアが依存するのは Fingerprint の一意性のみで、
// 内部表現には依存しない。
type Repository interface {
	// CreateDocument は processing 状態のレコードを作成する
	CreateDocument(ctx context.Context, doc *Document) error

	// CompleteDocument はレコードを completed にしチャンク数を記録する
	CompleteDocument(ctx context.Context, id uuid.UUID, chunkCount int) error

	// FailDocument はレコードを failed にする
	FailDocument(ctx context.Context, id uuid.UUID) error

	// GetDocumentByFingerprint は内容ハッシュが一致するレコードを返す。
	// 存在しない場合は ErrDocumentNotFound を返す。
	GetDocumentByFingerprint(ctx context.Context, fingerprint string) (*Document, error)

	// GetDocument は ID でレコードを取得する
	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)

	// ListDocuments はアップロード日時の降順で全レコードを返す
	ListDocuments(ctx context.Context) ([]*Document, error)

	// DeleteDocument はレコードを削除する
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// Package vector はベクトルインデックスの抽象契約を定義する。
// 具象実装は internal/infra/{qdrant,pgvector,memory} が提供する。
package vector

import (
	"context"

	"github.com/jinford/legal-rag/internal/core/chunk"
)

// EmbeddedChunk は Embedding を付与したチャンクを表す。
// Embedding の無いチャンクがインデックスに入ることはない。
type EmbeddedChunk struct {
	Chunk     *chunk.Chunk
	Embedding []float32
}

// Match は類似検索の1ヒットを表す
type Match struct {
	Chunk *chunk.Chunk
	Score float64
	Page  int
}

// Store はベクトルインデックスへの操作を提供する。
//
// 実装はストレージ側ポイントIDをチャンクの論理IDから決定的に導出する
// こと。同一ドキュメントの再取り込みは重複登録ではなく上書きになる。
// 距離はコサイン類似度、Search の結果はスコア降順（同点は挿入順）で
// limit 件以下を返す。
type Store interface {
	// EnsureCollection はコレクションを必要なら作成する。
	// 既存コレクションと次元が一致する場合は何度呼んでも成功し、
	// 次元が食い違う場合は ErrSchemaConflict を返す。
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert はチャンク列をベクトルとペイロード付きで書き込む。
	// いずれかのベクトル長がコレクション次元と一致しない場合は
	// ErrDimensionMismatch を返し、部分書き込みは行わない。
	Upsert(ctx context.Context, chunks []*EmbeddedChunk) error

	// Search は類似チャンクをスコア降順で検索する
	Search(ctx context.Context, queryVector []float32, limit int) ([]*Match, error)

	// DeleteBySource はペイロードの source が一致する全ポイントを削除する。
	// ストア内部のポイントIDには依存しない。
	DeleteBySource(ctx context.Context, source string) error

	// DeleteByIDs は論理チャンクIDで指定されたポイントだけを削除する。
	// 存在しないIDは無視する。失敗した取り込みの掃除など、削除範囲を
	// 特定のチャンク集合に限定したい場合に使う。
	DeleteByIDs(ctx context.Context, ids []string) error
}

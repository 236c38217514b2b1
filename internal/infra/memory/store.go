// Package memory はブルートフォースのコサイン類似度によるインメモリ
// ベクトルストアを提供する。テストとローカル開発用。
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jinford/legal-rag/internal/core/chunk"
	"github.com/jinford/legal-rag/internal/core/vector"
)

type entry struct {
	chunk     *chunk.Chunk
	embedding []float32
	seq       int // 挿入順（同点スコアの安定ソート用）
}

// Store はインメモリのベクトルインデックス
type Store struct {
	mu        sync.RWMutex
	dimension int
	points    map[string]*entry // チャンクIDがそのままポイントID
	nextSeq   int
}

// NewStore は新しいStoreを作成する
func NewStore() *Store {
	return &Store{
		points: make(map[string]*entry),
	}
}

// EnsureCollection は次元を固定する。既に異なる次元で初期化済みの場合は
// ErrSchemaConflict を返す。
func (s *Store) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		s.dimension = dimension
		return nil
	}
	if s.dimension != dimension {
		return fmt.Errorf("%w: collection has dimension %d, requested %d", vector.ErrSchemaConflict, s.dimension, dimension)
	}
	return nil
}

// Upsert はチャンクを登録する。ポイントIDはチャンクの論理IDなので、
// 同一チャンクの再登録は重複ではなく上書きになる。
func (s *Store) Upsert(_ context.Context, chunks []*vector.EmbeddedChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 部分書き込みを避けるため、先に全ベクトルを検証する
	for _, ec := range chunks {
		if len(ec.Embedding) != s.dimension {
			return fmt.Errorf("%w: got vector of length %d, collection dimension is %d", vector.ErrDimensionMismatch, len(ec.Embedding), s.dimension)
		}
	}

	for _, ec := range chunks {
		if existing, ok := s.points[ec.Chunk.ID]; ok {
			// 上書きは元の挿入順を保つ
			existing.chunk = ec.Chunk
			existing.embedding = ec.Embedding
			continue
		}
		s.points[ec.Chunk.ID] = &entry{
			chunk:     ec.Chunk,
			embedding: ec.Embedding,
			seq:       s.nextSeq,
		}
		s.nextSeq++
	}
	return nil
}

// Search はコサイン類似度の降順で検索する。同点は挿入順。
func (s *Store) Search(_ context.Context, queryVector []float32, limit int) ([]*vector.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}

	entries := make([]*entry, 0, len(s.points))
	for _, e := range s.points {
		entries = append(entries, e)
	}

	scores := make(map[int]float64, len(entries))
	for _, e := range entries {
		scores[e.seq] = cosineSimilarity(e.embedding, queryVector)
	}

	sort.Slice(entries, func(i, j int) bool {
		si, sj := scores[entries[i].seq], scores[entries[j].seq]
		if si != sj {
			return si > sj
		}
		return entries[i].seq < entries[j].seq
	})

	if limit > len(entries) {
		limit = len(entries)
	}

	matches := make([]*vector.Match, 0, limit)
	for _, e := range entries[:limit] {
		matches = append(matches, &vector.Match{
			Chunk: e.chunk,
			Score: scores[e.seq],
			Page:  e.chunk.Page,
		})
	}
	return matches, nil
}

// DeleteBySource はペイロードの source が一致する全ポイントを削除する
func (s *Store) DeleteBySource(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.points {
		if e.chunk.Source == source {
			delete(s.points, id)
		}
	}
	return nil
}

// DeleteByIDs は論理チャンクIDで指定されたポイントだけを削除する
func (s *Store) DeleteByIDs(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.points, id)
	}
	return nil
}

// Count は登録済みポイント数を返す（テスト用）
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// インターフェース実装の確認
var _ vector.Store = (*Store)(nil)

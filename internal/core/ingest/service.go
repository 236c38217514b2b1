package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jinford/legal-rag/internal/core/chunk"
	"github.com/jinford/legal-rag/internal/core/vector"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)

	// BatchEmbed はバッチでEmbeddingを生成する。
	// 戻り値は入力と同じ順序・同じ件数で、部分的な結果を返すことはない。
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はベクトル次元数を返す
	Dimension() int

	// MaxBatchSize は1回のバッチに載せられる最大件数を返す
	MaxBatchSize() int
}

// IngestService はドキュメント取り込みのユースケースを提供する。
// 同一内容（SHA-256 指紋が一致）のドキュメントは再処理せず既存レコードを
// 返すため、取り込みは内容単位で高々1回になる。
type IngestService struct {
	repo      Repository
	extractor *Extractor
	chunker   chunk.Chunker
	embedder  Embedder
	store     vector.Store
	logger    *slog.Logger
}

type ingestServiceOptions struct {
	logger *slog.Logger
}

// IngestServiceOption は IngestService のオプション設定
type IngestServiceOption func(*ingestServiceOptions)

// WithIngestLogger は IngestService にロガーを設定する
func WithIngestLogger(logger *slog.Logger) IngestServiceOption {
	return func(o *ingestServiceOptions) {
		o.logger = logger
	}
}

// NewIngestService は新しいIngestServiceを作成する
func NewIngestService(
	repo Repository,
	chunker chunk.Chunker,
	embedder Embedder,
	store vector.Store,
	opts ...IngestServiceOption,
) *IngestService {
	options := ingestServiceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &IngestService{
		repo:      repo,
		extractor: NewExtractor(),
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		logger:    options.logger,
	}
}

// Fingerprint は生バイト列の内容指紋（SHA-256）を返す
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Begin は重複判定とレコード作成を行う。
// 既存の指紋と一致した場合は既存レコードと dedup=true を返し、
// それ以外は processing 状態の新規レコードを返す。
func (s *IngestService) Begin(ctx context.Context, data []byte, filename string) (*Document, bool, error) {
	fingerprint := Fingerprint(data)

	existing, err := s.repo.GetDocumentByFingerprint(ctx, fingerprint)
	if err == nil {
		s.logger.Info("duplicate content detected, skipping ingestion",
			"documentID", existing.ID.String(),
			"filename", filename,
		)
		return existing, true, nil
	}
	if !errors.Is(err, ErrDocumentNotFound) {
		return nil, false, fmt.Errorf("failed to look up fingerprint: %w", err)
	}

	doc := &Document{
		ID:          uuid.New(),
		Filename:    filename,
		Title:       titleFromFilename(filename),
		Fingerprint: fingerprint,
		Status:      StatusProcessing,
		UploadedAt:  time.Now(),
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		// 同じ指紋のアップロードが並行していた場合、指紋照会をすり抜けて
		// 一意制約で弾かれることがある。先行レコードに合流して重複扱いにする。
		if errors.Is(err, ErrDuplicateDocument) {
			existing, getErr := s.repo.GetDocumentByFingerprint(ctx, fingerprint)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to look up fingerprint after duplicate create: %w", getErr)
			}
			s.logger.Info("concurrent duplicate upload detected, joining existing document",
				"documentID", existing.ID.String(),
				"filename", filename,
			)
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("failed to create document record: %w", err)
	}

	return doc, false, nil
}

// Process は抽出→チャンク化→Embedding→インデックス登録を実行する。
// 失敗時はレコードを failed にし、この試行が書いた可能性のあるポイント
// だけを掃除してからエラーを返す。completed のまま中途半端な状態に
// なることはない。
func (s *IngestService) Process(ctx context.Context, doc *Document, data []byte) (int, error) {
	chunkCount, staleIDs, err := s.process(ctx, doc, data)
	if err != nil {
		if failErr := s.repo.FailDocument(ctx, doc.ID); failErr != nil {
			s.logger.Error("failed to mark document as failed",
				"documentID", doc.ID.String(), "error", failErr)
		}
		// source 単位の削除は、同名ファイルの完了済みドキュメントの
		// ポイントまで巻き込む。消すのはこの試行のチャンクIDに限る。
		if len(staleIDs) > 0 {
			if delErr := s.store.DeleteByIDs(ctx, staleIDs); delErr != nil {
				s.logger.Error("failed to clean up index points",
					"documentID", doc.ID.String(), "error", delErr)
			}
		}
		return 0, err
	}

	if err := s.repo.CompleteDocument(ctx, doc.ID, chunkCount); err != nil {
		return 0, fmt.Errorf("failed to complete document record: %w", err)
	}

	s.logger.Info("document ingested",
		"documentID", doc.ID.String(),
		"filename", doc.Filename,
		"chunks", chunkCount,
	)
	return chunkCount, nil
}

// process はパイプライン本体を実行する。Upsert が失敗した場合のみ、
// 部分的に書かれた可能性のあるチャンクIDを staleIDs として返す。
// それより前の失敗ではインデックスには何も書かれていない。
func (s *IngestService) process(ctx context.Context, doc *Document, data []byte) (count int, staleIDs []string, err error) {
	pages, err := s.extractor.Extract(doc.Filename, data)
	if err != nil {
		return 0, nil, err
	}

	meta := chunk.Metadata{
		Source:   doc.Filename,
		Filename: doc.Filename,
		Version:  time.Now().Format("2006-01"),
	}

	chunks, err := s.chunkPages(doc.Filename, pages, meta)
	if err != nil {
		return 0, nil, err
	}

	embedded, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return 0, nil, err
	}

	if err := s.store.EnsureCollection(ctx, s.embedder.Dimension()); err != nil {
		return 0, nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	if err := s.store.Upsert(ctx, embedded); err != nil {
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		return 0, ids, fmt.Errorf("failed to upsert chunks: %w", err)
	}

	return len(embedded), nil, nil
}

// chunkPages はページ列をチャンク化し、ドキュメント全体で連番の
// ChunkIndex とページ番号を割り当てる。
func (s *IngestService) chunkPages(path string, pages []Page, meta chunk.Metadata) ([]*chunk.Chunk, error) {
	var all []*chunk.Chunk
	for _, page := range pages {
		pagePath := path
		if len(pages) > 1 {
			pagePath = fmt.Sprintf("%s#page=%d", path, page.Number)
		}

		chunks, err := s.chunker.Chunk(pagePath, page.Text, meta)
		if err != nil {
			return nil, fmt.Errorf("failed to chunk page %d: %w", page.Number, err)
		}
		for _, c := range chunks {
			c.Page = page.Number
			c.ChunkIndex = len(all)
			all = append(all, c)
		}
	}
	return all, nil
}

// embedChunks はチャンク本文をバッチ単位でEmbeddingに変換して付与する。
// バッチは MaxBatchSize ごとに区切り、結果は位置対応で突き合わせる。
func (s *IngestService) embedChunks(ctx context.Context, chunks []*chunk.Chunk) ([]*vector.EmbeddedChunk, error) {
	batchSize := s.embedder.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	embedded := make([]*vector.EmbeddedChunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingProvider, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingProvider, len(vectors), len(batch))
		}

		for i, c := range batch {
			embedded = append(embedded, &vector.EmbeddedChunk{
				Chunk:     c,
				Embedding: vectors[i],
			})
		}
	}

	return embedded, nil
}

// Ingest は1ドキュメントを同期的に取り込む
func (s *IngestService) Ingest(ctx context.Context, data []byte, filename string) (*IngestResult, error) {
	doc, dedup, err := s.Begin(ctx, data, filename)
	if err != nil {
		return nil, err
	}
	if dedup {
		return &IngestResult{
			DocumentID:   doc.ID,
			ChunkCount:   doc.ChunkCount,
			Deduplicated: true,
		}, nil
	}

	chunkCount, err := s.Process(ctx, doc, data)
	if err != nil {
		return nil, err
	}

	return &IngestResult{
		DocumentID: doc.ID,
		ChunkCount: chunkCount,
	}, nil
}

// ProcessFile は一時ファイルからドキュメントを取り込む。
// ファイルは成功・失敗どちらの経路でも削除される。
func (s *IngestService) ProcessFile(ctx context.Context, doc *Document, path string) (int, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Error("failed to remove uploaded file", "path", path, "error", err)
		}
	}()

	data, err := os.ReadFile(path)
	if err != nil {
		if failErr := s.repo.FailDocument(ctx, doc.ID); failErr != nil {
			s.logger.Error("failed to mark document as failed",
				"documentID", doc.ID.String(), "error", failErr)
		}
		return 0, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	return s.Process(ctx, doc, data)
}

// Delete はドキュメントのレコードとインデックス上の全ポイントを削除する
func (s *IngestService) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteBySource(ctx, doc.Filename); err != nil {
		return fmt.Errorf("failed to delete index points: %w", err)
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	s.logger.Info("document deleted", "documentID", id.String(), "filename", doc.Filename)
	return nil
}

// List はドキュメント一覧を返す
func (s *IngestService) List(ctx context.Context) ([]*Document, error) {
	return s.repo.ListDocuments(ctx)
}

// Get はドキュメントを1件取得する
func (s *IngestService) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// titleFromFilename はファイル名から表示用タイトルを導出する
func titleFromFilename(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.TrimSpace(base)
}

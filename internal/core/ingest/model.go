package ingest

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus は取り込み処理の進行状態を表す
type DocumentStatus string

const (
	// StatusProcessing は取り込み処理中
	StatusProcessing DocumentStatus = "processing"
	// StatusCompleted は取り込み完了
	StatusCompleted DocumentStatus = "completed"
	// StatusFailed は取り込み失敗
	StatusFailed DocumentStatus = "failed"
)

// Document は取り込んだドキュメントの永続メタデータを表す。
// Fingerprint は生バイト列の SHA-256 で、内容単位の重複排除キーになる。
type Document struct {
	ID          uuid.UUID      `json:"id"`
	Filename    string         `json:"filename"`
	Title       string         `json:"title"`
	Fingerprint string         `json:"fingerprint"`
	Status      DocumentStatus `json:"status"`
	ChunkCount  int            `json:"chunkCount"`
	UploadedAt  time.Time      `json:"uploadedAt"`
}

// IngestResult は1ドキュメントの取り込み結果を表す
type IngestResult struct {
	DocumentID   uuid.UUID // ドキュメントID
	ChunkCount   int       // 登録したチャンク数
	Deduplicated bool      // 既存内容と一致し再処理をスキップしたか
}

// Page は抽出済みテキストの1ページを表す
type Page struct {
	Number int    // 1始まりのページ番号
	Text   string // ページ本文
}

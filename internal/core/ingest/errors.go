package ingest

import "errors"

var (
	// ErrUnsupportedFormat は対応していないファイル形式の場合に返される
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtraction はテキスト抽出に失敗した場合に返される
	ErrExtraction = errors.New("text extraction failed")

	// ErrEmbeddingProvider はEmbeddingプロバイダ呼び出しが失敗した場合に返される
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrDocumentNotFound はドキュメントレコードが存在しない場合に返される
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDuplicateDocument は同一指紋のレコードが既に存在する場合に返される。
	// 並行アップロードで指紋照会とレコード作成の間に割り込まれたケース。
	ErrDuplicateDocument = errors.New("duplicate document")

	// ErrDispatcherClosed は停止済みディスパッチャへの投入時に返される
	ErrDispatcherClosed = errors.New("ingest dispatcher closed")
)

package ingest

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// supportedExtensions は取り込み対象として受け付ける拡張子のセット。
// プレーンテキスト系のみ対応し、それ以外は ErrUnsupportedFormat で拒否する。
var supportedExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
}

// Extractor はアップロードされたバイト列からテキストを抽出する。
// 改ページ（form feed, \f）で区切られた入力はページ単位に分解され、
// ページ番号がチャンクの出所情報として引き継がれる。
type Extractor struct{}

// NewExtractor は新しいExtractorを作成する
func NewExtractor() *Extractor {
	return &Extractor{}
}

// SupportedFormat はファイル名の拡張子が取り込み対象かどうかを返す。
// アップロード受付時に非対応形式を同期的に弾くために使う。
func SupportedFormat(filename string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Extract はファイル名と生バイト列からページ列を抽出する。
// 抽出に失敗したドキュメントはチャンクを一切生成しない。
func (e *Extractor) Extract(filename string, data []byte) ([]Page, error) {
	if !SupportedFormat(filename) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, strings.ToLower(filepath.Ext(filename)))
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrExtraction, filename)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrExtraction, filename)
	}

	text := string(data)

	var pages []Page
	for _, raw := range strings.Split(text, "\f") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pages = append(pages, Page{
			Number: len(pages) + 1,
			Text:   raw,
		})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s has no textual content", ErrExtraction, filename)
	}

	return pages, nil
}

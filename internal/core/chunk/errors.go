package chunk

import "errors"

var (
	// ErrInvalidConfig はチャンク設定が不正な場合に返される
	ErrInvalidConfig = errors.New("invalid chunker config")

	// ErrEmptyText はチャンク対象のテキストが空の場合に返される
	ErrEmptyText = errors.New("empty text")
)

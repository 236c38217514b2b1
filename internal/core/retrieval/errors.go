package retrieval

import "errors"

var (
	// ErrRetrieval はEmbedding生成またはインデックス検索が失敗した場合に返される
	ErrRetrieval = errors.New("retrieval failed")

	// ErrGeneration はLLMによる回答生成が失敗した場合に返される
	ErrGeneration = errors.New("answer generation failed")

	// ErrChatNotFound は指定されたチャットが存在しない場合に返される
	ErrChatNotFound = errors.New("chat not found")

	// ErrEmptyQuery はクエリが空の場合に返される
	ErrEmptyQuery = errors.New("query is required")
)

package vector

import "errors"

var (
	// ErrDimensionMismatch はベクトル長がコレクション次元と一致しない場合に返される
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrSchemaConflict は既存コレクションの次元設定と食い違う場合に返される
	ErrSchemaConflict = errors.New("collection schema conflict")
)

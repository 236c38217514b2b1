package chunk

import "fmt"

// WindowChunker は固定長スライディングウィンドウでテキストを分割する。
// 開始位置は windowSize - overlap ずつ進み、開始位置がテキスト長に達した
// 時点で打ち切る。overlap == 0 のときは重複のない分割になる。
type WindowChunker struct {
	windowSize int
	overlap    int
	counter    *TokenCounter
}

// NewWindowChunker は新しいWindowChunkerを作成する
func NewWindowChunker(cfg *ChunkerConfig) (*WindowChunker, error) {
	if cfg == nil {
		cfg = DefaultChunkerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	counter, err := NewTokenCounter()
	if err != nil {
		return nil, err
	}

	return &WindowChunker{
		windowSize: cfg.WindowSize,
		overlap:    cfg.Overlap,
		counter:    counter,
	}, nil
}

// Chunk はテキストを重複付きウィンドウ列に分割する。
// ウィンドウ境界はルーン単位で扱うため、マルチバイト文字の途中で
// 切れることはない。最終チャンクのみ windowSize より短くなりうる。
func (c *WindowChunker) Chunk(path, text string, meta Metadata) ([]*Chunk, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyText, path)
	}

	runes := []rune(text)
	step := c.windowSize - c.overlap

	var chunks []*Chunk
	for start, index := 0, 0; start < len(runes); start, index = start+step, index+1 {
		end := start + c.windowSize
		if end > len(runes) {
			end = len(runes)
		}
		window := string(runes[start:end])

		chunks = append(chunks, &Chunk{
			ID:            ChunkID(path, index, window),
			Source:        meta.Source,
			Section:       SectionUnknown,
			Text:          window,
			ChunkIndex:    index,
			Version:       meta.Version,
			EffectiveDate: meta.EffectiveDate,
			URL:           meta.URL,
			Filename:      meta.Filename,
			TokenCount:    c.counter.Count(window),
		})

		// 末尾に到達したウィンドウで打ち切る。オーバーラップ分だけを
		// 含む冗長な最終チャンクを作らない。
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

var _ Chunker = (*WindowChunker)(nil)

package chunk

import (
	"fmt"
	"strings"
)

// SectionChunker は見出し行（# 始まり）を境界としてテキストを分割する。
// ID 導出とカバレッジの不変条件は WindowChunker と同一で、見出しの無い
// テキストは単一セクション（Section = "Unknown"）として扱われる。
// ウィンドウ幅を超えるセクションはウィンドウ方式で再分割する。
type SectionChunker struct {
	windowSize int
	overlap    int
	counter    *TokenCounter
}

// NewSectionChunker は新しいSectionChunkerを作成する
func NewSectionChunker(cfg *ChunkerConfig) (*SectionChunker, error) {
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

	return &SectionChunker{
		windowSize: cfg.WindowSize,
		overlap:    cfg.Overlap,
		counter:    counter,
	}, nil
}

type section struct {
	heading string
	text    string
}

// Chunk はテキストをセクション単位で分割する
func (c *SectionChunker) Chunk(path, text string, meta Metadata) ([]*Chunk, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyText, path)
	}

	sections := splitSections(text)

	// チャンク番号はドキュメント全体を通して 0 始まりの連番
	var chunks []*Chunk
	index := 0
	for _, sec := range sections {
		heading := sec.heading
		if heading == "" {
			heading = SectionUnknown
		}

		for _, window := range c.windows(sec.text) {
			chunks = append(chunks, &Chunk{
				ID:            ChunkID(path, index, window),
				Source:        meta.Source,
				Section:       heading,
				Text:          window,
				ChunkIndex:    index,
				Version:       meta.Version,
				EffectiveDate: meta.EffectiveDate,
				URL:           meta.URL,
				Filename:      meta.Filename,
				TokenCount:    c.counter.Count(window),
			})
			index++
		}
	}

	return chunks, nil
}

// windows はセクション本文をウィンドウ幅に収まる断片列へ分割する
func (c *SectionChunker) windows(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.windowSize {
		return []string{text}
	}

	step := c.windowSize - c.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + c.windowSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitSections は見出し行ごとにテキストを区切る。
// 見出し行自体もセクション本文に含めてカバレッジを保つ。
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	current := section{}
	var buf []string

	flush := func() {
		if len(buf) == 0 {
			return
		}
		current.text = strings.Join(buf, "\n")
		sections = append(sections, current)
		buf = nil
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			current = section{heading: strings.TrimSpace(strings.TrimLeft(trimmed, "#"))}
		}
		buf = append(buf, line)
	}
	flush()

	return sections
}

var _ Chunker = (*SectionChunker)(nil)

package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID_Deterministic(t *testing.T) {
	id1 := ChunkID("act.txt", 0, "first chunk")
	id2 := ChunkID("act.txt", 0, "first chunk")
	assert.Equal(t, id1, id2)

	// パス・番号・本文のいずれが変わってもIDは変わる
	assert.NotEqual(t, id1, ChunkID("other.txt", 0, "first chunk"))
	assert.NotEqual(t, id1, ChunkID("act.txt", 1, "first chunk"))
	assert.NotEqual(t, id1, ChunkID("act.txt", 0, "second chunk"))

	// SHA-256 の16進表現
	assert.Len(t, id1, 64)
}

func TestChunkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChunkerConfig
		wantErr bool
	}{
		{
			name: "デフォルト設定は有効",
			cfg:  *DefaultChunkerConfig(),
		},
		{
			name: "オーバーラップゼロは有効",
			cfg:  ChunkerConfig{WindowSize: 100, Overlap: 0, Strategy: StrategyWindow},
		},
		{
			name:    "ウィンドウ幅ゼロは無効",
			cfg:     ChunkerConfig{WindowSize: 0, Overlap: 0},
			wantErr: true,
		},
		{
			name:    "負のオーバーラップは無効",
			cfg:     ChunkerConfig{WindowSize: 100, Overlap: -1},
			wantErr: true,
		},
		{
			name:    "オーバーラップがウィンドウ幅以上は無効",
			cfg:     ChunkerConfig{WindowSize: 100, Overlap: 100},
			wantErr: true,
		},
		{
			name:    "未知の分割方式は無効",
			cfg:     ChunkerConfig{WindowSize: 100, Overlap: 10, Strategy: "semantic"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWindowChunker_Offsets(t *testing.T) {
	chunker, err := NewWindowChunker(&ChunkerConfig{WindowSize: 1000, Overlap: 200, Strategy: StrategyWindow})
	require.NoError(t, err)

	text := strings.Repeat("a", 2500)
	chunks, err := chunker.Chunk("act.txt", text, Metadata{Source: "act.txt", Filename: "act.txt"})
	require.NoError(t, err)

	// 2500文字 / ウィンドウ1000 / 重複200 → 開始位置 0, 800, 1600 の3チャンク
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 1000)
	assert.Len(t, chunks[1].Text, 1000)
	assert.Len(t, chunks[2].Text, 900)

	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, "act.txt", c.Source)
		assert.Equal(t, SectionUnknown, c.Section)
		assert.NotEmpty(t, c.ID)
		assert.Greater(t, c.TokenCount, 0)
	}
}

func TestWindowChunker_Coverage(t *testing.T) {
	chunker, err := NewWindowChunker(&ChunkerConfig{WindowSize: 10, Overlap: 3, Strategy: StrategyWindow})
	require.NoError(t, err)

	text := "abcdefghijklmnopqrstuvwxyz"
	chunks, err := chunker.Chunk("doc.txt", text, Metadata{Source: "doc.txt"})
	require.NoError(t, err)

	// 隣接チャンクの重複を考慮しても、全文字がいずれかのチャンクに含まれる
	step := 10 - 3
	for i, c := range chunks {
		start := i * step
		end := start + len([]rune(c.Text))
		assert.Equal(t, text[start:end], c.Text)
	}
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last.Text))
}

func TestWindowChunker_ShortText(t *testing.T) {
	chunker, err := NewWindowChunker(&ChunkerConfig{WindowSize: 1000, Overlap: 200, Strategy: StrategyWindow})
	require.NoError(t, err)

	chunks, err := chunker.Chunk("short.txt", "short text", Metadata{Source: "short.txt"})
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
}

func TestWindowChunker_ZeroOverlap(t *testing.T) {
	chunker, err := NewWindowChunker(&ChunkerConfig{WindowSize: 5, Overlap: 0, Strategy: StrategyWindow})
	require.NoError(t, err)

	chunks, err := chunker.Chunk("doc.txt", "aaaaabbbbbccccc", Metadata{Source: "doc.txt"})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, "aaaaa", chunks[0].Text)
	assert.Equal(t, "bbbbb", chunks[1].Text)
	assert.Equal(t, "ccccc", chunks[2].Text)
}

func TestWindowChunker_EmptyText(t *testing.T) {
	chunker, err := NewWindowChunker(nil)
	require.NoError(t, err)

	_, err = chunker.Chunk("empty.txt", "", Metadata{})
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestWindowChunker_RuneSafety(t *testing.T) {
	chunker, err := NewWindowChunker(&ChunkerConfig{WindowSize: 4, Overlap: 1, Strategy: StrategyWindow})
	require.NoError(t, err)

	// マルチバイト文字の途中でウィンドウが切れないこと
	text := "第一条この法律は施行する"
	chunks, err := chunker.Chunk("law.txt", text, Metadata{Source: "law.txt"})
	require.NoError(t, err)

	for _, c := range chunks {
		assert.True(t, strings.Contains(text, c.Text))
		assert.LessOrEqual(t, len([]rune(c.Text)), 4)
	}
}

func TestWindowChunker_SameTextReingestYieldsSameIDs(t *testing.T) {
	chunker, err := NewWindowChunker(&ChunkerConfig{WindowSize: 8, Overlap: 2, Strategy: StrategyWindow})
	require.NoError(t, err)

	text := strings.Repeat("legal text ", 20)
	first, err := chunker.Chunk("act.txt", text, Metadata{Source: "act.txt"})
	require.NoError(t, err)
	second, err := chunker.Chunk("act.txt", text, Metadata{Source: "act.txt"})
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestSectionChunker_Headings(t *testing.T) {
	chunker, err := NewSectionChunker(&ChunkerConfig{WindowSize: 1000, Overlap: 200, Strategy: StrategySection})
	require.NoError(t, err)

	text := "preamble text\n# Article 1\nbody one\n## Article 2\nbody two"
	chunks, err := chunker.Chunk("act.md", text, Metadata{Source: "act.md"})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	// 見出しの無い先頭部分は Unknown セクション
	assert.Equal(t, SectionUnknown, chunks[0].Section)
	assert.Equal(t, "Article 1", chunks[1].Section)
	assert.Equal(t, "Article 2", chunks[2].Section)

	// チャンク番号はドキュメント全体で連番
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
	}
}

func TestSectionChunker_OversizeSectionFallsBackToWindows(t *testing.T) {
	chunker, err := NewSectionChunker(&ChunkerConfig{WindowSize: 10, Overlap: 2, Strategy: StrategySection})
	require.NoError(t, err)

	text := "# Long\n" + strings.Repeat("x", 30)
	chunks, err := chunker.Chunk("act.md", text, Metadata{Source: "act.md"})
	require.NoError(t, err)

	// ウィンドウ幅を超えるセクションは再分割され、見出しは引き継がれる
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, "Long", c.Section)
		assert.LessOrEqual(t, len([]rune(c.Text)), 10)
	}
}

func TestSectionChunker_NoHeadings(t *testing.T) {
	chunker, err := NewSectionChunker(&ChunkerConfig{WindowSize: 1000, Overlap: 200, Strategy: StrategySection})
	require.NoError(t, err)

	chunks, err := chunker.Chunk("plain.txt", "no headings at all", Metadata{Source: "plain.txt"})
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, SectionUnknown, chunks[0].Section)
	assert.Equal(t, "no headings at all", chunks[0].Text)
}

func TestNewChunker_StrategySelection(t *testing.T) {
	windowChunker, err := NewChunker(&ChunkerConfig{WindowSize: 100, Overlap: 10, Strategy: StrategyWindow})
	require.NoError(t, err)
	assert.IsType(t, &WindowChunker{}, windowChunker)

	sectionChunker, err := NewChunker(&ChunkerConfig{WindowSize: 100, Overlap: 10, Strategy: StrategySection})
	require.NoError(t, err)
	assert.IsType(t, &SectionChunker{}, sectionChunker)

	_, err = NewChunker(&ChunkerConfig{WindowSize: 100, Overlap: 10, Strategy: "unknown"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

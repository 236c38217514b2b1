package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildContextText(t *testing.T) {
	t.Run("空の結果はプレースホルダ", func(t *testing.T) {
		assert.Equal(t, "(no context available)", BuildContextText(nil))
	})

	t.Run("出典付きブロックを連結する", func(t *testing.T) {
		results := []*RetrievalResult{
			{Source: "act.txt", Text: "first"},
			{Source: "code.txt", Text: "second"},
		}
		got := BuildContextText(results)
		assert.Equal(t, "Source: act.txt\nContent: first\n\nSource: code.txt\nContent: second", got)
	})
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt("what is the penalty?", []*RetrievalResult{
		{Source: "act.txt", Text: "the penalty is a fine"},
	})

	assert.True(t, strings.HasPrefix(prompt, "Context:\n"))
	assert.Contains(t, prompt, "Source: act.txt")
	assert.Contains(t, prompt, "Question: what is the penalty?")
}

func TestExtractCitations(t *testing.T) {
	tests := []struct {
		name    string
		results []*RetrievalResult
		want    []string
	}{
		{
			name: "初出順で重複を除く",
			results: []*RetrievalResult{
				{Source: "act.txt"},
				{Source: "code.txt"},
				{Source: "act.txt"},
			},
			want: []string{"act.txt", "code.txt"},
		},
		{
			name:    "空の結果は空スライス",
			results: nil,
			want:    []string{},
		},
		{
			name: "出典なしはUnknown",
			results: []*RetrievalResult{
				{Source: ""},
				{Source: ""},
			},
			want: []string{"Unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCitations(tt.results)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

package retrieval

import (
	"fmt"
	"strings"
)

// SystemPrompt はRAG回答生成のシステムプロンプト。
// コンテキスト外の知識で回答しないことをプロンプト契約として課す。
const SystemPrompt = `You are a legal assistant for statutory law.
Answer the user's question based ONLY on the provided context.
Cite the source for every claim.
If the answer is not in the context, say you don't know.`

// BuildContextText は検索結果をプロンプトに埋め込むコンテキスト文字列へ整形する。
// 検索結果が空でも空コンテキストとしてそのままLLMへ渡し、
// 「情報がない」と答えさせる（呼び出し経路を分岐させない）。
func BuildContextText(results []*RetrievalResult) string {
	if len(results) == 0 {
		return "(no context available)"
	}

	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("Source: %s\nContent: %s", r.Source, r.Text))
	}
	return strings.Join(blocks, "\n\n")
}

// BuildUserPrompt はコンテキストと質問からユーザープロンプトを構築する
func BuildUserPrompt(question string, results []*RetrievalResult) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	sb.WriteString(BuildContextText(results))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(question)
	sb.WriteString("\n")
	return sb.String()
}

// ExtractCitations は回答の根拠として渡したチャンクの出典を重複なしで返す。
// 順序は初出順で、検索結果が空なら空のスライスを返す（nil にはしない）。
func ExtractCitations(results []*RetrievalResult) []string {
	citations := make([]string, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		source := r.Source
		if source == "" {
			source = "Unknown"
		}
		if seen[source] {
			continue
		}
		seen[source] = true
		citations = append(citations, source)
	}
	return citations
}

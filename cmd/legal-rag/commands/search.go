package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/legal-rag/internal/core/retrieval"
)

// SearchAction はナレッジベースを検索するコマンドのアクション
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	query := cmd.String("query")
	limit := int(cmd.Int("limit"))
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	results, err := appCtx.Container.SearchService.Search(ctx, query, retrieval.ClampLimit(limit))
	if err != nil {
		return fmt.Errorf("検索に失敗: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("該当するチャンクはありません")
		return nil
	}

	for i, res := range results {
		fmt.Printf("--- [%d] score=%.4f source=%s page=%d ---\n", i+1, res.Score, res.Source, res.Page)
		fmt.Println(res.Text)
		fmt.Println()
	}
	return nil
}

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

// DocumentIngestAction はローカルファイルを同期的に取り込むコマンドのアクション
func DocumentIngestAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("ファイルの読み込みに失敗: %w", err)
	}

	result, err := appCtx.Container.IngestService.Ingest(ctx, data, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("取り込みに失敗: %w", err)
	}

	if result.Deduplicated {
		fmt.Printf("既に取り込み済みです: %s (document: %s)\n", path, result.DocumentID)
		return nil
	}
	fmt.Printf("取り込み完了: %s (document: %s, chunks: %d)\n", path, result.DocumentID, result.ChunkCount)
	return nil
}

// DocumentListAction はドキュメント一覧を表示するコマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Container.IngestService.List(ctx)
	if err != nil {
		return fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}

	if len(docs) == 0 {
		fmt.Println("ドキュメントはありません")
		return nil
	}

	for _, doc := range docs {
		fmt.Printf("%s  %-10s  chunks=%-4d  %s\n", doc.ID, doc.Status, doc.ChunkCount, doc.Filename)
	}
	return nil
}

// DocumentDeleteAction はドキュメントと関連チャンクを削除するコマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	idStr := cmd.String("id")
	envFile := cmd.String("env")

	id, err := uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("不正なドキュメントID: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Container.IngestService.Delete(ctx, id); err != nil {
		return fmt.Errorf("削除に失敗: %w", err)
	}

	fmt.Printf("削除しました: %s\n", id)
	return nil
}

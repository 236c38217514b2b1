package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/legal-rag/cmd/legal-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 構造化ログの設定
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "legal-rag",
		Usage: "法令ドキュメント向け RAG 基盤（取り込み・検索・QA）",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "HTTP APIサーバを起動",
				Flags:  []cli.Flag{envFlag},
				Action: commands.ServerAction,
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "ingest",
						Usage: "ローカルファイルを取り込み",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "file",
								Usage:    "取り込むファイルパス",
								Required: true,
							},
						},
						Action: commands.DocumentIngestAction,
					},
					{
						Name:   "list",
						Usage:  "ドキュメント一覧を表示",
						Flags:  []cli.Flag{envFlag},
						Action: commands.DocumentListAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントと関連チャンクを削除",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						},
						Action: commands.DocumentDeleteAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "ナレッジベースを検索",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "query",
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "取得件数（1〜20）",
						Value: 5,
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:  "ask",
				Usage: "質問に対してRAGベースの回答を生成",
				Flags: []cli.Flag{
					envFlag,
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "chat",
						Usage: "既存チャットID（継続する場合）",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "コンテキストに使うチャンク数（1〜20）",
						Value: 5,
					},
				},
				Action: commands.AskAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

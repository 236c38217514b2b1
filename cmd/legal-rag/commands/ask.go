package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/legal-rag/internal/core/retrieval"
)

// AskAction は質問に対してRAGベースの回答を生成するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	question := cmd.String("question")
	chatIDStr := cmd.String("chat")
	limit := int(cmd.Int("limit"))
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	params := retrieval.AnswerParams{
		Question: question,
		Limit:    retrieval.ClampLimit(limit),
	}
	if chatIDStr != "" {
		chatID, err := uuid.Parse(chatIDStr)
		if err != nil {
			return fmt.Errorf("不正なチャットID: %w", err)
		}
		params.ChatID = mo.Some(chatID)
	}

	result, err := appCtx.Container.AnswerService.Answer(ctx, params)
	if err != nil {
		return fmt.Errorf("回答の生成に失敗: %w", err)
	}

	fmt.Println(result.Answer)
	fmt.Println()
	fmt.Printf("chat: %s\n", result.ChatID)
	if len(result.Citations) > 0 {
		fmt.Printf("citations: %s\n", strings.Join(result.Citations, ", "))
	}
	return nil
}

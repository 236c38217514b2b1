package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/legal-rag/internal/interface/httpapi"
)

// ServerAction はHTTP APIサーバを起動するコマンドのアクション
func ServerAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	handler := httpapi.NewHandler(
		appCtx.Container.IngestService,
		appCtx.Container.Dispatcher,
		appCtx.Container.SearchService,
		appCtx.Container.AnswerService,
		appCtx.Logger(),
	)

	addr := fmt.Sprintf("%s:%d", appCtx.Config.Server.Host, appCtx.Config.Server.Port)
	server := httpapi.NewServer(addr, handler, httpapi.WithServerLogger(appCtx.Logger()))

	return server.Start(ctx)
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-assist/internal/app"
	"github.com/spec-kit/ticket-assist/internal/config"
	"github.com/spec-kit/ticket-assist/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:          "ticketctl",
	Short:        "Operate the ticket-assist service",
	Long:         `Maintenance commands: run migrations, rerun workflows by hand and mint development tokens.`,
	SilenceUsage: true,
}

// bootstrap loads configuration and builds the application without starting
// workers or the HTTP server.
func bootstrap(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	cleanup := func() {
		application.Close(ctx)
		_ = logger.Sync()
	}
	return application, cleanup, nil
}

func commandLogger(application *app.App, cmd *cobra.Command) *zap.Logger {
	return application.Logger.With(zap.String("command", cmd.CommandPath()))
}

package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/licensebot/licensebot/internal/app"
	"github.com/licensebot/licensebot/internal/config"
	"github.com/licensebot/licensebot/internal/observability"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot, the role reconciler and the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(config.RequireDatabase | config.RequireWeb | config.RequireDiscord)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, lp, err := observability.NewLogger(ctx, cfg, os.Stdout)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			a, err := app.Build(ctx, cfg, logger, lp)
			if err != nil {
				if lp != nil {
					_ = lp.Shutdown(context.Background())
				}
				logger.Error("startup failed", "error", err)
				return err
			}
			return a.Run(ctx)
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/licensebot/licensebot/internal/config"
	"github.com/licensebot/licensebot/internal/database"
	"github.com/licensebot/licensebot/internal/repository"
	"github.com/licensebot/licensebot/internal/service"
)

type options struct {
	configPath string
	envFile    string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "licensebot",
		Short:         "Discord license bot and admin dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile == "" {
				return nil
			}
			return LoadEnvFile(opts.envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional YAML config file; environment variables override it")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment (empty to skip)")

	cmd.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newLicensesCommand(opts),
		newKeygenCommand(),
		newHashPasswordCommand(),
	)
	return cmd
}

func (o *options) load(req config.Requirement) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(req); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openDatabase connects and migrates for the one-shot admin commands.
func (o *options) openDatabase() (*gorm.DB, error) {
	cfg, err := o.load(config.RequireDatabase)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database, nil)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

func (o *options) withLicenses(ctx context.Context, fn func(context.Context, *service.LicenseService) error) error {
	db, err := o.openDatabase()
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	licenses := service.NewLicenseService(repository.NewLicenseRepository(db), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return fn(ctx, licenses)
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := opts.openDatabase()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return err
		},
	}
}

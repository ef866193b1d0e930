package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hanabi-live/hanabi-server-go/internal/config"
	"github.com/hanabi-live/hanabi-server-go/internal/logging"
	"github.com/hanabi-live/hanabi-server-go/internal/repository"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.DSN == "" {
				return errors.New("database.dsn is not configured")
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer logger.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, err := repository.NewDB(ctx, cfg.Database, logger.Logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return repository.Migrate(ctx, db, logger.Logger)
		},
	}
}

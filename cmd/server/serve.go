package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hanabi-live/hanabi-server-go/internal/app"
	"github.com/hanabi-live/hanabi-server-go/internal/config"
	"github.com/hanabi-live/hanabi-server-go/internal/logging"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	v, err := config.New(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Close()

	logger.Info("starting hanabi server",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("config", configPath),
	)

	config.Watch(v, logger.Logger, func(next *config.Config) {
		if err := logger.SetLevel(next.Logging.Level); err != nil {
			logger.Warn("ignoring log level change", zap.Error(err))
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := app.New(ctx, cfg, logger.Logger, version)
	if err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return err
	}
	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

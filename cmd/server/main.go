package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "hanabi-server",
		Short: "Hanabi game server",
		Long: `hanabi-server hosts cooperative Hanabi games over WebSocket.

It keeps one session per account, runs every table's actions
through its own queue, and exposes an admin gRPC service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to configuration file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		migrateCmd(&configPath),
		replayCmd(),
		tokenCmd(&configPath),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

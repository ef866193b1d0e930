package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hanabi-live/hanabi-server-go/internal/auth"
	"github.com/hanabi-live/hanabi-server-go/internal/config"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

func tokenCmd(configPath *string) *cobra.Command {
	var (
		userID   int
		username string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed login token",
		Long:  `Issue a token signed with the configured secret, for local testing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			if userID <= 0 || username == "" {
				return errors.New("--user-id and --username are required")
			}
			token, err := auth.NewTokenAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer).
				Issue(user.Identity{UserID: userID, Username: username}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().IntVar(&userID, "user-id", 0, "Account ID")
	cmd.Flags().StringVar(&username, "username", "", "Account name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}

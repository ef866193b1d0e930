package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          INTEGER PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		settings    JSONB NOT NULL DEFAULT '{}'::jsonb
	)`,
	`CREATE TABLE IF NOT EXISTS user_friends (
		user_id     INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		friend_id   INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, friend_id)
	)`,
	`CREATE TABLE IF NOT EXISTS games (
		id            UUID PRIMARY KEY,
		table_id      INTEGER NOT NULL,
		name          TEXT NOT NULL,
		variant       TEXT NOT NULL,
		seed          TEXT NOT NULL DEFAULT '',
		score         INTEGER NOT NULL,
		end_condition TEXT NOT NULL,
		started_at    TIMESTAMPTZ NOT NULL,
		ended_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS game_participants (
		game_id     UUID NOT NULL REFERENCES games (id) ON DELETE CASCADE,
		user_id     INTEGER NOT NULL,
		seat        INTEGER NOT NULL,
		PRIMARY KEY (game_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS game_participants_user_id_idx ON game_participants (user_id)`,
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement %d failed: %w", i, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	logger.Info("database schema up to date", zap.Int("statements", len(schema)))
	return nil
}

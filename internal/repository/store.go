package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hanabi-live/hanabi-server-go/internal/table"
	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// Store reads user data for the welcome payload and records finished games.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store on pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureUser inserts the user if it is not known yet and keeps the
// username current.
func (s *Store) EnsureUser(ctx context.Context, identity user.Identity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username`,
		identity.UserID, identity.Username)
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", identity.UserID, err)
	}
	return nil
}

// GameCount returns how many games the user has finished.
func (s *Store) GameCount(ctx context.Context, userID int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM game_participants WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count games for user %d: %w", userID, err)
	}
	return n, nil
}

// CreatedAt returns when the account was created.
func (s *Store) CreatedAt(ctx context.Context, userID int) (time.Time, error) {
	var created time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM users WHERE id = $1`, userID).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return created, nil
}

// Settings returns the user's stored client settings.
func (s *Store) Settings(ctx context.Context, userID int) (json.RawMessage, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT settings FROM users WHERE id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings for user %d: %w", userID, err)
	}
	return json.RawMessage(raw), nil
}

// Friends returns the usernames the user has befriended.
func (s *Store) Friends(ctx context.Context, userID int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT u.username FROM user_friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY u.username`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load friends for user %d: %w", userID, err)
	}
	friends, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan friends for user %d: %w", userID, err)
	}
	return friends, nil
}

// RecordGame stores a finished game and its participants in one transaction.
func (s *Store) RecordGame(ctx context.Context, rec table.GameRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO games (id, table_id, name, variant, seed, score, end_condition, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.GameID, rec.TableID, rec.Name, rec.Variant, rec.Seed, rec.Score,
		rec.EndCondition, rec.StartedAt, rec.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to insert game %s: %w", rec.GameID, err)
	}

	batch := &pgx.Batch{}
	for seat, id := range rec.PlayerIDs {
		batch.Queue(`INSERT INTO game_participants (game_id, user_id, seat) VALUES ($1, $2, $3)`,
			rec.GameID, id, seat)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert participants of game %s: %w", rec.GameID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit game %s: %w", rec.GameID, err)
	}
	return nil
}

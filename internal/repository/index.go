package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanabi-live/hanabi-server-go/internal/config"
)

const defaultKeyPrefix = "hanabi:"

// NewRedisClient creates a client for cfg.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        10,
		MinIdleConns:    2,
		ConnMaxIdleTime: 5 * time.Minute,
	})
}

// TableIndex records which tables each user belongs to as a Redis set per
// user, so any server process can answer the lookup.
type TableIndex struct {
	client redis.UniversalClient
	prefix string
}

// NewTableIndex creates an index. An empty prefix uses "hanabi:".
func NewTableIndex(client redis.UniversalClient, prefix string) *TableIndex {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &TableIndex{client: client, prefix: prefix}
}

func (i *TableIndex) key(userID int) string {
	return i.prefix + "user:" + strconv.Itoa(userID) + ":tables"
}

// Add records that userID belongs to tableID.
func (i *TableIndex) Add(ctx context.Context, tableID, userID int) error {
	if err := i.client.SAdd(ctx, i.key(userID), tableID).Err(); err != nil {
		return fmt.Errorf("failed to index table %d for user %d: %w", tableID, userID, err)
	}
	return nil
}

// Remove forgets that userID belongs to tableID.
func (i *TableIndex) Remove(ctx context.Context, tableID, userID int) error {
	if err := i.client.SRem(ctx, i.key(userID), tableID).Err(); err != nil {
		return fmt.Errorf("failed to unindex table %d for user %d: %w", tableID, userID, err)
	}
	return nil
}

// TablesContainingUser returns the indexed tables of userID in ascending order.
func (i *TableIndex) TablesContainingUser(ctx context.Context, userID int) ([]int, error) {
	members, err := i.client.SMembers(ctx, i.key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read tables of user %d: %w", userID, err)
	}
	ids := make([]int, 0, len(members))
	for _, m := range members {
		id, err := strconv.Atoi(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt table id %q for user %d: %w", m, userID, err)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Ping checks the connection.
func (i *TableIndex) Ping(ctx context.Context) error {
	return i.client.Ping(ctx).Err()
}

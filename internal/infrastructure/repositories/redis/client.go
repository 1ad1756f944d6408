package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// ClientOptions describes the Redis instance that backs call history.
type ClientOptions struct {
	Address    string
	Password   string
	DB         int
	PoolSize   int
	HistoryKey string
}

// NewHistoryClient connects to Redis and brings the history key up to the
// current schema. The history store issues one short pipeline per ended call,
// so a single idle connection is kept warm.
func NewHistoryClient(opts ClientOptions, logger *zap.SugaredLogger) (*redis.Client, error) {
	if opts.HistoryKey == "" {
		return nil, fmt.Errorf("history key must not be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("history redis at %s unreachable: %w", opts.Address, err)
	}

	if err := Migrate(ctx, client, opts.HistoryKey, logger); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("history schema migration failed: %w", err)
	}

	if logger != nil {
		version, _ := getSchemaVersion(ctx, client, opts.HistoryKey)
		logger.Infow("history redis ready",
			"address", opts.Address,
			"db", opts.DB,
			"key", opts.HistoryKey,
			"schema_version", version,
		)
	}
	return client, nil
}

// CheckHistoryKey reports whether Redis answers and the history key still
// holds a list. Anything else under the key would make every archive fail.
func CheckHistoryKey(ctx context.Context, client *redis.Client, historyKey string) error {
	kind, err := client.Type(ctx, historyKey).Result()
	if err != nil {
		return fmt.Errorf("history redis unreachable: %w", err)
	}
	if kind != "none" && kind != "list" {
		return fmt.Errorf("history key %s holds a %s, want list", historyKey, kind)
	}
	return nil
}

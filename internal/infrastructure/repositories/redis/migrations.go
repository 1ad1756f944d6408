package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const currentSchemaVersion = 1

// Migration upgrades the keys owned by the history store.
type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client, historyKey string) error
}

func schemaVersionKey(historyKey string) string {
	return historyKey + ":schema:version"
}

// Migrate runs every migration newer than the stored schema version.
func Migrate(ctx context.Context, client *redis.Client, historyKey string, logger *zap.SugaredLogger) error {
	currentVersion, err := getSchemaVersion(ctx, client, historyKey)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		if logger != nil {
			logger.Debugw("schema is up to date", "version", currentVersion)
		}
		return nil
	}

	for _, migration := range getMigrations() {
		if migration.Version <= currentVersion {
			continue
		}
		if logger != nil {
			logger.Infow("running migration", "version", migration.Version, "key", historyKey)
		}
		if err := migration.Up(ctx, client, historyKey); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := setSchemaVersion(ctx, client, historyKey, migration.Version); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client, historyKey string) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey(historyKey)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func setSchemaVersion(ctx context.Context, client *redis.Client, historyKey string, version int) error {
	return client.Set(ctx, schemaVersionKey(historyKey), version, 0).Err()
}

func getMigrations() []Migration {
	return []Migration{
		{
			// history must be a list; anything else under the key would make LPUSH fail
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client, historyKey string) error {
				kind, err := client.Type(ctx, historyKey).Result()
				if err != nil {
					return err
				}
				if kind != "none" && kind != "list" {
					return client.Del(ctx, historyKey).Err()
				}
				return nil
			},
		},
	}
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"confline/internal/core/domain"
	"confline/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisHistoryRepository stores ended conferences as a capped JSON list,
// newest at the head.
type RedisHistoryRepository struct {
	client *redis.Client
	key    string
	limit  int
}

func NewRedisHistoryRepository(client *redis.Client, key string, limit int) ports.HistoryStore {
	if limit <= 0 {
		limit = domain.HistoryLimit
	}
	return &RedisHistoryRepository{
		client: client,
		key:    key,
		limit:  limit,
	}
}

// appendAttempts bounds retries when another writer touches the key mid-append.
const appendAttempts = 3

// Append pushes conf to the head and drops any older entry with the same id,
// so the capped list always holds distinct conferences.
func (r *RedisHistoryRepository) Append(ctx context.Context, conf *domain.Conference) error {
	data, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal conference: %w", err)
	}

	replace := func(tx *redis.Tx) error {
		raw, err := tx.LRange(ctx, r.key, 0, -1).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			stale := make(map[string]bool)
			for _, item := range raw {
				if !stale[item] && entryID(item) == conf.ID {
					stale[item] = true
					pipe.LRem(ctx, r.key, 0, item)
				}
			}
			pipe.LPush(ctx, r.key, data)
			pipe.LTrim(ctx, r.key, 0, int64(r.limit-1))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < appendAttempts; attempt++ {
		err = r.client.Watch(ctx, replace, r.key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to append history in Redis: %w", err)
	}
	return nil
}

func entryID(item string) domain.ConferenceID {
	var head struct {
		ID domain.ConferenceID `json:"id"`
	}
	if err := json.Unmarshal([]byte(item), &head); err != nil {
		return ""
	}
	return head.ID
}

// List skips entries that no longer decode. Entries written before Append
// replaced duplicates are still collapsed to the newest one per id.
func (r *RedisHistoryRepository) List(ctx context.Context) ([]*domain.Conference, error) {
	raw, err := r.client.LRange(ctx, r.key, 0, int64(r.limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history from Redis: %w", err)
	}

	seen := make(map[domain.ConferenceID]bool, len(raw))
	out := make([]*domain.Conference, 0, len(raw))
	for _, item := range raw {
		var conf domain.Conference
		if err := json.Unmarshal([]byte(item), &conf); err != nil {
			continue
		}
		if seen[conf.ID] {
			continue
		}
		seen[conf.ID] = true
		out = append(out, &conf)
	}
	return out, nil
}

func (r *RedisHistoryRepository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear history in Redis: %w", err)
	}
	return nil
}

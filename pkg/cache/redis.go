package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/recon-engine/pkg/models"
)

// DefaultRedisKeyPrefix namespaces compiled query keys.
const DefaultRedisKeyPrefix = "recon:compiled:"

// RedisCache is a CompiledQueryCache stored as JSON values in Redis.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

var _ CompiledQueryCache = (*RedisCache)(nil)

// NewRedisCache creates a cache over client. An empty prefix uses
// DefaultRedisKeyPrefix.
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*models.CompiledQuery, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read compiled query: %w", err)
	}

	var q models.CompiledQuery
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false, fmt.Errorf("failed to decode compiled query: %w", err)
	}
	return &q, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, q *models.CompiledQuery, ttl time.Duration) error {
	if ttl <= 0 || q == nil {
		return nil
	}

	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to encode compiled query: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store compiled query: %w", err)
	}
	return nil
}

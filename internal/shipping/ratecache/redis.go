package ratecache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"wishwell/internal/shipping"
)

const redisKeyPrefix = "wishwell:quotes:"

// Redis caches quotes in Redis so quote reuse survives process restarts and is
// shared across instances. Cache failures degrade to a live quote, never an
// error.
type Redis struct {
	client   redis.Cmdable
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewRedis creates a Redis-backed quote cache.
func NewRedis(client redis.Cmdable, cacheTTL time.Duration, logger *slog.Logger) *Redis {
	return &Redis{client: client, cacheTTL: cacheTTL, logger: logger}
}

func (c *Redis) Get(ctx context.Context, key string) ([]shipping.Rate, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("quote cache read failed", "error", err)
		}
		return nil, false
	}
	var rates []shipping.Rate
	if err := json.Unmarshal(raw, &rates); err != nil {
		c.logger.Warn("quote cache entry corrupt, dropping", "key", key, "error", err)
		c.client.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	return rates, true
}

func (c *Redis) Set(ctx context.Context, key string, rates []shipping.Rate) {
	if len(rates) == 0 {
		return
	}
	raw, err := json.Marshal(rates)
	if err != nil {
		c.logger.Warn("quote cache marshal failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.cacheTTL).Err(); err != nil {
		c.logger.Warn("quote cache write failed", "error", err)
	}
}

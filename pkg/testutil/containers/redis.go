//go:build integration

package containers

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer wraps a testcontainers Redis instance.
type RedisContainer struct {
	Container testcontainers.Container
	Addr      string
	Client    *redis.Client
}

var (
	redisOnce      sync.Once
	redisSingleton *RedisContainer
	redisErr       error
)

// GetRedis returns the shared Redis container, starting it on first use.
// Suites share one instance and isolate themselves with FlushAll.
func GetRedis(t *testing.T) *RedisContainer {
	t.Helper()

	redisOnce.Do(func() {
		ctx := context.Background()

		container, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			redisErr = fmt.Errorf("start redis container: %w", err)
			return
		}

		url, err := container.ConnectionString(ctx)
		if err != nil {
			_ = container.Terminate(ctx)
			redisErr = fmt.Errorf("redis connection string: %w", err)
			return
		}
		opts, err := redis.ParseURL(url)
		if err != nil {
			_ = container.Terminate(ctx)
			redisErr = fmt.Errorf("parse redis url: %w", err)
			return
		}

		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			_ = container.Terminate(ctx)
			redisErr = fmt.Errorf("ping redis: %w", err)
			return
		}

		redisSingleton = &RedisContainer{Container: container, Addr: opts.Addr, Client: client}
	})

	if redisErr != nil {
		t.Fatalf("redis container: %v", redisErr)
	}
	return redisSingleton
}

// FlushAll removes every key; call between tests for isolation.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}

package ratecache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wishwell/internal/platform/logger"
	"wishwell/internal/shipping"
)

func sampleRates() []shipping.Rate {
	return []shipping.Rate{
		{ID: "ground", Title: "Ground", Price: 650, DeliveryDays: 5},
		{ID: "express", Title: "Express", Price: 1800, DeliveryDays: 1},
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips within the TTL", func(t *testing.T) {
		c := NewMemory(time.Minute)
		c.Set(ctx, "k", sampleRates())

		rates, ok := c.Get(ctx, "k")
		require.True(t, ok)
		assert.Len(t, rates, 2)
	})

	t.Run("expires past the TTL", func(t *testing.T) {
		c := NewMemory(time.Millisecond)
		c.Set(ctx, "k", sampleRates())
		time.Sleep(5 * time.Millisecond)

		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	})

	t.Run("misses on unknown keys", func(t *testing.T) {
		c := NewMemory(time.Minute)
		_, ok := c.Get(ctx, "absent")
		assert.False(t, ok)
	})

	t.Run("ignores empty rate lists", func(t *testing.T) {
		c := NewMemory(time.Minute)
		c.Set(ctx, "k", nil)
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	})
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedis(client, time.Minute, logger.Discard())

	t.Run("round trips through redis", func(t *testing.T) {
		c.Set(ctx, "k", sampleRates())

		rates, ok := c.Get(ctx, "k")
		require.True(t, ok)
		require.Len(t, rates, 2)
		assert.Equal(t, "ground", rates[0].ID)
	})

	t.Run("entries expire with the TTL", func(t *testing.T) {
		c.Set(ctx, "ttl", sampleRates())
		mr.FastForward(2 * time.Minute)

		_, ok := c.Get(ctx, "ttl")
		assert.False(t, ok)
	})

	t.Run("drops corrupt entries", func(t *testing.T) {
		require.NoError(t, mr.Set(redisKeyPrefix+"bad", "{not json"))

		_, ok := c.Get(ctx, "bad")
		assert.False(t, ok)
		assert.False(t, mr.Exists(redisKeyPrefix+"bad"), "corrupt entry should be deleted")
	})

	t.Run("degrades to a miss when redis is down", func(t *testing.T) {
		mr.Close()
		_, ok := c.Get(ctx, "k")
		assert.False(t, ok)
	})
}

package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lance631/InfoMatrix/internal/metrics"
	"github.com/lance631/InfoMatrix/internal/pkg/log"

	"github.com/redis/go-redis/v9"
)

// Размер порции ключей при SCAN/DEL.
const scanBatch = 100

type redisCache struct {
	rdb *redis.Client
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.CacheRequests.WithLabelValues(metrics.CacheMiss).Inc()
			return nil, false
		}

		metrics.CacheRequests.WithLabelValues(metrics.CacheError).Inc()
		log.From(ctx).Debug("cache_get_failed",
			slog.String("key", key),
			slog.String("err", err.Error()))
		return nil, false
	}

	metrics.CacheRequests.WithLabelValues(metrics.CacheHit).Inc()
	return b, true
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		log.From(ctx).Debug("cache_set_failed",
			slog.String("key", key),
			slog.String("err", err.Error()))
	}
}

func (c *redisCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		log.From(ctx).Debug("cache_invalidate_failed",
			slog.Int("keys", len(keys)),
			slog.String("err", err.Error()))
	}
}

// InvalidateByPrefix обходит ключи через SCAN (без блокирующего KEYS)
// и удаляет их порциями.
func (c *redisCache) InvalidateByPrefix(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		iter := c.rdb.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()

		keys := make([]string, 0, scanBatch)
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
			if len(keys) >= scanBatch {
				c.Invalidate(ctx, keys...)
				keys = keys[:0]
			}
		}
		if err := iter.Err(); err != nil {
			log.From(ctx).Debug("cache_scan_failed",
				slog.String("prefix", prefix),
				slog.String("err", err.Error()))
			continue
		}

		c.Invalidate(ctx, keys...)
	}
}

func (c *redisCache) Reachable(ctx context.Context) bool {
	return c.rdb.Ping(ctx).Err() == nil
}

func (c *redisCache) Close() error { return c.rdb.Close() }

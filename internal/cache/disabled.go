package cache

import (
	"context"
	"time"

	"github.com/lance631/InfoMatrix/internal/metrics"
)

// disabled — реализация без бэкенда: постоянный деградированный режим
// (cache.url не задан). Все чтения — промах, записи — no-op.
type disabled struct{}

// Disabled возвращает кэш-заглушку.
func Disabled() Cache { return disabled{} }

func (disabled) Get(ctx context.Context, key string) ([]byte, bool) {
	metrics.CacheRequests.WithLabelValues(metrics.CacheDisabled).Inc()
	return nil, false
}

func (disabled) Set(context.Context, string, []byte, time.Duration) {}

func (disabled) Invalidate(context.Context, ...string) {}

func (disabled) InvalidateByPrefix(context.Context, ...string) {}

func (disabled) Reachable(context.Context) bool { return false }

func (disabled) Close() error { return nil }

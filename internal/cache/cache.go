// cache — кэш ответов чтения поверх Redis.
//
// Ключевое свойство слоя — деградация вместо отказа: недоступность бэкенда
// никогда не выходит наружу ошибкой. Get при сбое возвращает промах,
// Set/Invalidate молча пропускаются (с записью в лог и метрику), и сервис
// продолжает отвечать напрямую из БД. Меняется только латентность ответов,
// но не их содержимое.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lance631/InfoMatrix/internal/pkg/log"

	"github.com/redis/go-redis/v9"
)

// Cache — контракт кэша агрегатов выдачи.
type Cache interface {
	// Get возвращает значение и признак его наличия в кэше.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set сохраняет значение с заданным TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Invalidate удаляет перечисленные ключи.
	Invalidate(ctx context.Context, keys ...string)
	// InvalidateByPrefix удаляет все ключи с перечисленными префиксами.
	InvalidateByPrefix(ctx context.Context, prefixes ...string)
	// Reachable сообщает, доступен ли бэкенд кэша на момент вызова.
	Reachable(ctx context.Context) bool
	// Close закрывает клиент.
	Close() error
}

// Ключи и префиксы кэшируемых агрегатов.
// Выборки постов параметризованы, поэтому живут под общим префиксом:
// консервативная инвалидация после цикла обновления удаляет их все разом.
const (
	postsPrefix   = "posts:"
	KeyStats      = "stats"
	KeyCategories = "categories"
)

// PostsKey детерминированно кодирует параметры выборки списка постов.
func PostsKey(sourceID, category string, limit, offset int) string {
	return fmt.Sprintf("%ssource=%s|category=%s|limit=%d|offset=%d",
		postsPrefix, sourceID, category, limit, offset)
}

// AggregatePrefixes — префиксы всех кэшируемых агрегатов.
func AggregatePrefixes() []string {
	return []string{postsPrefix, KeyStats, KeyCategories}
}

// New создаёт кэш по URL Redis (например, redis://:pass@host:6379/0).
//
// Поведение по конфигурации:
//   - пустой URL — штатный запуск без кэша (Disabled), не ошибка;
//   - некорректный URL — ошибка конфигурации;
//   - валидный URL с недоступным бэкендом — клиент сохраняется, сервис
//     стартует в деградированном режиме: Redis может подняться позже.
func New(ctx context.Context, redisURL string) (Cache, error) {
	const op = "cache.New"

	if redisURL == "" {
		log.From(ctx).Warn("cache_disabled",
			slog.String("reason", "empty cache url"))
		return Disabled(), nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.From(ctx).Warn("cache_unreachable_on_start",
			slog.String("err", err.Error()))
	}

	return &redisCache{rdb: rdb}, nil
}

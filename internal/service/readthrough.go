package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lance631/InfoMatrix/internal/cache"
	"github.com/lance631/InfoMatrix/internal/pkg/log"
)

// readThrough — единая точка политики кэширования чтений: значение берётся
// из кэша, при промахе загружается из источника истины и кладётся обратно
// с TTL.
//
// Деградация кэша не влияет на результат: сбой Get — это промах, битая
// запись перечитывается из БД и перезаписывается, Set при недоступном
// бэкенде молча пропускается слоем кэша. Ответ всегда эквивалентен ответу
// из БД с точностью до TTL.
func readThrough[T any](ctx context.Context, c cache.Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if raw, ok := c.Get(ctx, key); ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			log.From(ctx).Debug("cache_hit", slog.String("key", key))
			return cached, nil
		}
		log.From(ctx).Warn("cache_entry_corrupted", slog.String("key", key))
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if raw, err := json.Marshal(value); err == nil {
		c.Set(ctx, key, raw, ttl)
	}

	return value, nil
}

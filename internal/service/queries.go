package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lance631/InfoMatrix/internal/cache"
	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/pkg/log"
	"github.com/lance631/InfoMatrix/internal/storage"
)

// PostQuery — параметры выборки постов.
// Пустые строковые поля означают «без фильтра».
type PostQuery struct {
	SourceID string
	Category string
	Limit    int
	Offset   int
}

// normalize приводит параметры выборки к серверным границам.
//
// Правила:
//   - limit == 0 -> cfg.Limits.Default;
//   - limit > max -> cfg.Limits.Max;
//   - limit < 0 или offset < 0 -> ErrInvalidArgument.
func (s *Service) normalize(q PostQuery) (PostQuery, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return PostQuery{}, ErrInvalidArgument
	}

	if q.Limit == 0 {
		q.Limit = s.cfg.Limits.Default
	}
	if s.cfg.Limits.Max > 0 && q.Limit > s.cfg.Limits.Max {
		q.Limit = s.cfg.Limits.Max
	}

	return q, nil
}

// ListPosts возвращает посты по фильтру через кэш.
//
// Неизвестный источник или категория — пустой список, не ошибка:
// фильтры равноправны с отсутствием данных. Результат никогда не nil.
func (s *Service) ListPosts(ctx context.Context, q PostQuery) ([]models.Post, error) {
	const op = "service.queries.ListPosts"

	q, err := s.normalize(q)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg := log.From(ctx)
	lg.Info("list_posts_request",
		slog.String("op", op),
		slog.String("source", q.SourceID),
		slog.String("category", q.Category),
		slog.Int("limit", q.Limit),
		slog.Int("offset", q.Offset),
	)

	key := cache.PostsKey(q.SourceID, q.Category, q.Limit, q.Offset)
	posts, err := readThrough(ctx, s.cache, key, s.cfg.Cache.TTL, func(ctx context.Context) ([]models.Post, error) {
		items, err := s.storage.ListPosts(ctx, storage.PostFilter{
			SourceID: q.SourceID,
			Category: q.Category,
			Limit:    q.Limit,
			Offset:   q.Offset,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if items == nil {
			items = []models.Post{}
		}
		return items, nil
	})
	if err != nil {
		lg.Error("list_posts_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("list_posts_ok",
		slog.String("op", op),
		slog.Int("items", len(posts)),
	)

	return posts, nil
}

// Categories возвращает отсортированный список категорий источников из БД
// через кэш. Результат никогда не nil.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	const op = "service.queries.Categories"

	categories, err := readThrough(ctx, s.cache, cache.KeyCategories, s.cfg.Cache.TTL, func(ctx context.Context) ([]string, error) {
		items, err := s.storage.Categories(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if items == nil {
			items = []string{}
		}
		return items, nil
	})
	if err != nil {
		log.From(ctx).Error("categories_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return categories, nil
}

// ListSources возвращает источники в порядке конфигурации.
// Список статичен в рамках процесса — БД и кэш не участвуют.
func (s *Service) ListSources() []models.Source {
	out := make([]models.Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// statsSnapshot — кэшируемая часть статистики (данные БД).
// Доступность кэша и TTL добавляются поверх снимка на каждом запросе.
type statsSnapshot struct {
	TotalPosts      int64            `json:"total_posts"`
	TotalSources    int64            `json:"total_sources"`
	PostsByCategory map[string]int64 `json:"posts_by_category"`
}

// Stats возвращает агрегированную статистику сервиса.
// Счётчики идут через кэш; признак доступности кэша живой и отражает
// состояние бэкенда на момент запроса.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	const op = "service.queries.Stats"

	snap, err := readThrough(ctx, s.cache, cache.KeyStats, s.cfg.Cache.TTL, func(ctx context.Context) (statsSnapshot, error) {
		var (
			snap statsSnapshot
			err  error
		)

		if snap.TotalPosts, err = s.storage.CountPosts(ctx); err != nil {
			return statsSnapshot{}, fmt.Errorf("count_posts: %w: %v", ErrStorageUnavailable, err)
		}
		if snap.TotalSources, err = s.storage.CountSources(ctx); err != nil {
			return statsSnapshot{}, fmt.Errorf("count_sources: %w: %v", ErrStorageUnavailable, err)
		}
		if snap.PostsByCategory, err = s.storage.PostsByCategory(ctx); err != nil {
			return statsSnapshot{}, fmt.Errorf("posts_by_category: %w: %v", ErrStorageUnavailable, err)
		}
		if snap.PostsByCategory == nil {
			snap.PostsByCategory = map[string]int64{}
		}

		return snap, nil
	})
	if err != nil {
		log.From(ctx).Error("stats_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.Stats{
		TotalPosts:      snap.TotalPosts,
		TotalSources:    snap.TotalSources,
		PostsByCategory: snap.PostsByCategory,
		CacheReachable:  s.cache.Reachable(ctx),
		CacheTTL:        s.cfg.Cache.TTL,
	}, nil
}

// Health возвращает сводное состояние зависимостей.
//
// Правила сведения: отказ БД — unhealthy (сервис не может отвечать),
// недоступный или не настроенный кэш — degraded (сервис работает
// напрямую из БД). Метод не возвращает ошибку: сбой зависимостей —
// это содержимое ответа, а не отказ проверки.
func (s *Service) Health(ctx context.Context) models.Health {
	health := models.Health{Status: models.StatusHealthy}

	if err := s.storage.Ping(ctx); err != nil {
		health.Status = models.StatusUnhealthy
		health.Database = models.ComponentHealth{
			Status:  models.ComponentDisconnected,
			Message: "database unreachable",
		}
	} else {
		health.Database = models.ComponentHealth{Status: models.ComponentConnected}
	}

	switch {
	case s.cfg.Cache.URL == "":
		if health.Status == models.StatusHealthy {
			health.Status = models.StatusDegraded
		}
		health.Cache = models.ComponentHealth{
			Status:  models.ComponentDisabled,
			Message: "cache is not configured, serving from database",
		}
	case s.cache.Reachable(ctx):
		health.Cache = models.ComponentHealth{Status: models.ComponentConnected}
	default:
		if health.Status == models.StatusHealthy {
			health.Status = models.StatusDegraded
		}
		health.Cache = models.ComponentHealth{
			Status:  models.ComponentDisconnected,
			Message: "cache unreachable, serving from database",
		}
	}

	return health
}

// service содержит бизнес-логику InfoMatrix: оркестрацию циклов обновления
// источников и читающие запросы с кэшированием.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lance631/InfoMatrix/internal/cache"
	"github.com/lance631/InfoMatrix/internal/config"
	"github.com/lance631/InfoMatrix/internal/fetch"
	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/storage"
)

var (
	// ErrInvalidArgument — некорректные входные аргументы запроса.
	// Транспорт: 400 invalid_argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrRefreshInProgress — цикл обновления уже выполняется; повторный
	// запуск отклоняется, а не ставится в очередь.
	// Транспорт: 409 refresh_in_progress.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrStorageUnavailable — отказ БД, единственного источника истины.
	// Кэш при этом не используется как замена: устаревший ответ хуже ошибки.
	// Транспорт: 503 storage_unavailable.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Fetcher загружает документы источников. Реализация: internal/fetch.
//
// Контракт: сбой одного источника не влияет на остальные; канал закрывается
// после завершения всех начатых загрузок; отмена ctx прекращает выдачу
// новых запросов.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []models.Source) <-chan fetch.Outcome
}

// Parser разбирает документ фида в доменные посты. Реализация: internal/feed.
type Parser interface {
	Parse(ctx context.Context, source models.Source, body []byte, now time.Time) ([]models.Post, error)
}

// Service — бизнес-логика агрегатора.
// Безопасен для конкурентного использования.
type Service struct {
	storage storage.Storage
	cache   cache.Cache
	fetcher Fetcher
	parser  Parser
	cfg     config.Config

	// Источники в порядке конфигурации; список статичен в рамках процесса.
	sources []models.Source

	// Взаимное исключение циклов обновления (single-flight).
	mu         sync.Mutex
	refreshing bool
}

// New создаёт сервис поверх хранилища, кэша и конвейера загрузки.
func New(st storage.Storage, c cache.Cache, f Fetcher, p Parser, cfg config.Config) *Service {
	sources := make([]models.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, models.Source{
			ID:          s.ID,
			Name:        s.Name,
			URL:         s.URL,
			SiteURL:     s.SiteURL,
			Category:    s.Category,
			Description: s.Description,
		})
	}

	return &Service{
		storage: st,
		cache:   c,
		fetcher: f,
		parser:  p,
		cfg:     cfg,
		sources: sources,
	}
}

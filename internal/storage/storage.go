// storage определяет контракты доступа к БД для InfoMatrix.
package storage

import (
	"context"
	"errors"

	"github.com/lance631/InfoMatrix/internal/models"
)

var (
	// ErrNotFound — сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (например, два источника
	// с одинаковым rss_url). Для вставки постов конфликт не ошибка:
	// SavePosts молча пропускает дубликаты.
	ErrAlreadyExists = errors.New("already exists")
)

// PostFilter — параметры выборки постов.
// Пустые строковые поля означают «без фильтра».
type PostFilter struct {
	SourceID string
	Category string
	Limit    int
	Offset   int
}

// SourceStorage описывает операции над сущностью models.Source.
type SourceStorage interface {
	// UpsertSources синхронизирует записи источников со статической
	// конфигурацией: новые вставляются, существующие обновляются по id.
	UpsertSources(ctx context.Context, sources []models.Source) error
	// Categories возвращает отсортированный список непустых категорий источников.
	Categories(ctx context.Context) ([]string, error)
	// CountSources возвращает число источников.
	CountSources(ctx context.Context) (int64, error)
}

// PostStorage описывает операции над сущностью models.Post.
type PostStorage interface {
	// SavePosts — единственная точка вставки постов.
	// Дубликаты по ключу (source_id, link) пропускаются на уровне БД
	// (conflict-ignore); возвращается число реально вставленных строк.
	SavePosts(ctx context.Context, posts []models.Post) (int64, error)
	// ListPosts возвращает посты по фильтру, отсортированные по
	// published_at DESC (NULL-даты в конце), затем fetched_at DESC, id.
	ListPosts(ctx context.Context, filter PostFilter) ([]models.Post, error)
	// CountPosts возвращает общее число постов.
	CountPosts(ctx context.Context) (int64, error)
	// PostsByCategory возвращает распределение постов по категориям источников.
	// Категории без постов присутствуют в карте со значением 0.
	PostsByCategory(ctx context.Context) (map[string]int64, error)
}

// Storage задаёт контракт доступа к хранилищу.
type Storage interface {
	SourceStorage
	PostStorage
	// Ping проверяет доступность БД (для health-проверки).
	Ping(ctx context.Context) error
	Close()
}

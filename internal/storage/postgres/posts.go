package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/storage"

	"github.com/jackc/pgx/v5"
)

// SavePosts сохраняет пачку постов, пропуская дубликаты.
//
// Единственная точка вставки постов. Уникальность пары (source_id, link)
// обеспечивается ограничением БД; конфликт любой уникальности (включая
// первичный ключ при гонке параллельных циклов) гасится ON CONFLICT DO
// NOTHING. Возвращает число реально вставленных строк: повторный прогон
// по тем же фидам даёт 0.
func (s *Storage) SavePosts(ctx context.Context, posts []models.Post) (int64, error) {
	const op = "storage.postgres.SavePosts"

	if len(posts) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range posts {
		var published *time.Time
		if p.PublishedAt != nil {
			t := p.PublishedAt.UTC()
			published = &t
		}

		batch.Queue(`
		INSERT INTO posts (id, source_id, title, link, summary, content, image_url, author, published_at, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING
		`, p.ID, p.SourceID, p.Title, p.Link, p.Summary, p.Content,
			p.ImageURL, p.Author, published, p.FetchedAt.UTC())
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			return 0, fmt.Errorf("%s: batch item %d: %w", op, i, err)
		}
		inserted += tag.RowsAffected()
	}

	return inserted, nil
}

// ListPosts возвращает посты по фильтру вместе с именем и категорией
// источника (категория наследуется от источника через JOIN, а не хранится
// в постах — переименование источника сразу видно во всей выдаче).
// Сортировка фиксирована: published_at DESC NULLS LAST, fetched_at DESC, id —
// посты без известной даты публикации всегда в конце выдачи.
func (s *Storage) ListPosts(ctx context.Context, filter storage.PostFilter) ([]models.Post, error) {
	const op = "storage.postgres.ListPosts"

	limit := filter.Limit
	if limit <= 0 {
		// Защита от нуля/отрицательного значения.
		limit = 1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.Query(ctx, `
	SELECT p.id, p.source_id, s.name, s.category, p.title, p.link, p.summary, p.content, p.image_url, p.author, p.published_at, p.fetched_at
	FROM posts p
	JOIN sources s ON s.id = p.source_id
	WHERE ($1 = '' OR p.source_id = $1)
	  AND ($2 = '' OR s.category = $2)
	ORDER BY p.published_at DESC NULLS LAST, p.fetched_at DESC, p.id
	LIMIT $3 OFFSET $4
	`, filter.SourceID, filter.Category, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		if scanErr := rows.Scan(
			&post.ID,
			&post.SourceID,
			&post.SourceName,
			&post.Category,
			&post.Title,
			&post.Link,
			&post.Summary,
			&post.Content,
			&post.ImageURL,
			&post.Author,
			&post.PublishedAt,
			&post.FetchedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, scanErr)
		}

		// Нормализация в UTC.
		if post.PublishedAt != nil {
			t := post.PublishedAt.UTC()
			post.PublishedAt = &t
		}
		post.FetchedAt = post.FetchedAt.UTC()

		posts = append(posts, post)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, rows.Err())
	}

	return posts, nil
}

// CountPosts возвращает общее число постов.
func (s *Storage) CountPosts(ctx context.Context) (int64, error) {
	const op = "storage.postgres.CountPosts"

	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// PostsByCategory возвращает распределение постов по категориям источников.
// Категории без постов присутствуют со значением 0.
func (s *Storage) PostsByCategory(ctx context.Context) (map[string]int64, error) {
	const op = "storage.postgres.PostsByCategory"

	rows, err := s.db.Query(ctx, `
	SELECT s.category, COUNT(p.id)
	FROM sources s
	LEFT JOIN posts p ON p.source_id = s.id
	WHERE s.category <> ''
	GROUP BY s.category
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	byCategory := make(map[string]int64)
	for rows.Next() {
		var (
			category string
			count    int64
		)
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		byCategory[category] = count
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, rows.Err())
	}

	return byCategory, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/storage"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// UpsertSources синхронизирует записи источников с конфигурацией.
//
// Политика обновления:
//   - name/rss_url/site_url/category/description — всегда из конфигурации;
//   - created_at — не меняется, updated_at — обновляется.
//
// Два разных id с одинаковым rss_url нарушают уникальность rss_url:
// возвращается storage.ErrAlreadyExists (ошибка конфигурации).
func (s *Storage) UpsertSources(ctx context.Context, sources []models.Source) error {
	const op = "storage.postgres.UpsertSources"

	if len(sources) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, src := range sources {
		batch.Queue(`
		INSERT INTO sources (id, name, rss_url, site_url, category, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET
		name = EXCLUDED.name,
		rss_url = EXCLUDED.rss_url,
		site_url = EXCLUDED.site_url,
		category = EXCLUDED.category,
		description = EXCLUDED.description,
		updated_at = now()
		`, src.ID, src.Name, src.URL, src.SiteURL, src.Category, src.Description)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return fmt.Errorf("%s: batch item %d: %w", op, i, storage.ErrAlreadyExists)
			}

			return fmt.Errorf("%s: batch item %d: %w", op, i, err)
		}
	}

	return nil
}

// Categories возвращает отсортированный список непустых категорий.
func (s *Storage) Categories(ctx context.Context) ([]string, error) {
	const op = "storage.postgres.Categories"

	rows, err := s.db.Query(ctx, `
	SELECT DISTINCT category
	FROM sources
	WHERE category <> ''
	ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		categories = append(categories, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, rows.Err())
	}

	return categories, nil
}

// CountSources возвращает число источников.
func (s *Storage) CountSources(ctx context.Context) (int64, error) {
	const op = "storage.postgres.CountSources"

	var n int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM sources`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

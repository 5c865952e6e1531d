package postgres

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/storage"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты для пакета postgres:
// — поднимают реальный PostgreSQL через testcontainers-go (образ postgres:16-alpine);
// — применяют миграции из ./migrations;
// — проверяют:
//    UpsertSources: вставку, обновление по id и конфликт по rss_url;
//    SavePosts: подсчёт вставленных строк, пропуск дубликатов (в т.ч. внутри пачки),
//    NULL published_at;
//    ListPosts: сортировку published_at DESC NULLS LAST, фильтры и limit/offset;
//    счётчики и распределение по категориям.

// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// repoRootFromThisFile — определяет корень репозитория относительно текущего файла тестов.
// Используется для поиска SQL-миграций в каталоге ./migrations независимо от текущего рабочего каталога.
func repoRootFromThisFile() string {
	// internal/storage/postgres/... -> подняться на 3 уровня до корня.
	_, thisFile, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(thisFile), "..", "..", ".."))
}

// readMigration — читает содержимое SQL-миграции из подкаталога ./migrations.
func readMigration(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(repoRootFromThisFile(), "migrations", name)
	b, err := os.ReadFile(path)
	require.NoError(t, err, "read migration %s", path)
	return string(b)
}

// startPostgres — поднимает PostgreSQL через testcontainers-go,
// применяет миграции и возвращает инициализированное хранилище и функцию очистки.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
func startPostgres(t *testing.T) (*Storage, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	// применяем миграции.
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, readMigration(t, "1_init.up.sql"))
	require.NoError(t, err)

	st, err := New(ctx, dsn)
	require.NoError(t, err)

	cleanup := func() {
		st.Close()
		_ = c.Terminate(context.Background())
	}
	return st, cleanup
}

func timePtr(t time.Time) *time.Time { return &t }

func testSources() []models.Source {
	return []models.Source{
		{ID: "alpha", Name: "Alpha Blog", URL: "https://alpha.example/rss.xml", Category: "AI"},
		{ID: "beta", Name: "Beta Engineering", URL: "https://beta.example/feed.atom", SiteURL: "https://beta.example", Category: "Cloud"},
		{ID: "gamma", Name: "Gamma Notes", URL: "https://gamma.example/rss", Category: "AI"},
	}
}

func mkPost(sourceID, link, title string, published *time.Time, fetched time.Time) models.Post {
	return models.Post{
		ID:          models.PostID(sourceID, link),
		SourceID:    sourceID,
		Title:       title,
		Link:        link,
		Summary:     "summary of " + title,
		Content:     "content of " + title,
		PublishedAt: published,
		FetchedAt:   fetched,
	}
}

func TestIntegration_UpsertSources_InsertAndUpdate(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.UpsertSources(ctx, testSources()))

	n, err := st.CountSources(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	categories, err := st.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"AI", "Cloud"}, categories)

	// Повторный upsert с переименованием и сменой категории.
	renamed := testSources()
	renamed[0].Name = "Alpha Research"
	renamed[0].Category = "Research"
	require.NoError(t, st.UpsertSources(ctx, renamed))

	n, err = st.CountSources(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n, "upsert must not create duplicates")

	categories, err = st.Categories(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"AI", "Cloud", "Research"}, categories)
}

func TestIntegration_UpsertSources_DuplicateURL(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.UpsertSources(ctx, testSources()))

	dup := []models.Source{
		{ID: "delta", Name: "Delta", URL: "https://alpha.example/rss.xml", Category: "AI"},
	}
	err := st.UpsertSources(ctx, dup)
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_SavePosts_DedupAndCount(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.UpsertSources(ctx, testSources()))

	now := time.Now().UTC().Truncate(time.Second)
	batch := []models.Post{
		mkPost("alpha", "https://alpha.example/a1", "A1", timePtr(now.Add(-time.Hour)), now),
		mkPost("alpha", "https://alpha.example/a2", "A2", timePtr(now.Add(-2*time.Hour)), now),
		// Дата публикации неизвестна — остаётся NULL.
		mkPost("alpha", "https://alpha.example/a3", "A3", nil, now),
	}

	inserted, err := st.SavePosts(ctx, batch)
	require.NoError(t, err)
	require.EqualValues(t, 3, inserted)

	// Повторный прогон тех же постов не вставляет ничего.
	inserted, err = st.SavePosts(ctx, batch)
	require.NoError(t, err)
	require.Zero(t, inserted)

	// Дубликат внутри одной пачки учитывается один раз.
	withDup := []models.Post{
		mkPost("beta", "https://beta.example/b1", "B1", timePtr(now.Add(-time.Minute)), now),
		mkPost("beta", "https://beta.example/b1", "B1 again", timePtr(now.Add(-time.Minute)), now),
	}
	inserted, err = st.SavePosts(ctx, withDup)
	require.NoError(t, err)
	require.EqualValues(t, 1, inserted)

	// Та же ссылка у другого источника — самостоятельный пост.
	crossSource := []models.Post{
		mkPost("gamma", "https://alpha.example/a1", "A1 mirrored", timePtr(now), now),
	}
	inserted, err = st.SavePosts(ctx, crossSource)
	require.NoError(t, err)
	require.EqualValues(t, 1, inserted)

	total, err := st.CountPosts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
}

func TestIntegration_ListPosts_OrderAndFilters(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.UpsertSources(ctx, testSources()))

	now := time.Now().UTC().Truncate(time.Second)
	posts := []models.Post{
		mkPost("alpha", "https://alpha.example/old", "Oldest", timePtr(now.Add(-3*time.Hour)), now),
		mkPost("alpha", "https://alpha.example/new", "Newest", timePtr(now.Add(-time.Hour)), now),
		mkPost("beta", "https://beta.example/mid", "Middle", timePtr(now.Add(-2*time.Hour)), now),
		mkPost("beta", "https://beta.example/nodate", "NoDate", nil, now),
	}
	_, err := st.SavePosts(ctx, posts)
	require.NoError(t, err)

	// Полная выборка: свежие выше, NULL-даты в конце.
	all, err := st.ListPosts(ctx, storage.PostFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "Newest", all[0].Title)
	require.Equal(t, "Middle", all[1].Title)
	require.Equal(t, "Oldest", all[2].Title)
	require.Equal(t, "NoDate", all[3].Title)
	require.Nil(t, all[3].PublishedAt)

	// Фильтр по источнику; имя и категория приходят из таблицы источников.
	alpha, err := st.ListPosts(ctx, storage.PostFilter{SourceID: "alpha", Limit: 10})
	require.NoError(t, err)
	require.Len(t, alpha, 2)
	for _, p := range alpha {
		require.Equal(t, "alpha", p.SourceID)
		require.Equal(t, "Alpha Blog", p.SourceName)
		require.Equal(t, "AI", p.Category)
	}

	// Фильтр по категории источника.
	cloud, err := st.ListPosts(ctx, storage.PostFilter{Category: "Cloud", Limit: 10})
	require.NoError(t, err)
	require.Len(t, cloud, 2)

	// Комбинация фильтров без совпадений.
	none, err := st.ListPosts(ctx, storage.PostFilter{SourceID: "alpha", Category: "Cloud", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, none)

	// Неизвестный источник — пустой список, не ошибка.
	unknown, err := st.ListPosts(ctx, storage.PostFilter{SourceID: "nope", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, unknown)

	// limit/offset.
	page, err := st.ListPosts(ctx, storage.PostFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "Middle", page[0].Title)
	require.Equal(t, "Oldest", page[1].Title)
}

func TestIntegration_PostsByCategory_IncludesEmpty(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, st.UpsertSources(ctx, testSources()))

	now := time.Now().UTC()
	_, err := st.SavePosts(ctx, []models.Post{
		mkPost("alpha", "https://alpha.example/1", "One", timePtr(now), now),
		mkPost("gamma", "https://gamma.example/1", "Two", timePtr(now), now),
	})
	require.NoError(t, err)

	byCategory, err := st.PostsByCategory(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, byCategory["AI"])
	require.EqualValues(t, 0, byCategory["Cloud"], "category without posts still present")
}

func TestIntegration_Ping(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	require.NoError(t, st.Ping(context.Background()))
}

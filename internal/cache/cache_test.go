package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Тесты кэша.
//
// Юнит-часть не требует Redis: проверяет построение ключей, режим Disabled,
// ошибку на битом URL и деградацию при недоступном бэкенде.
// Интеграционная часть поднимает Redis через testcontainers-go и включается
// переменной окружения GO_TEST_INTEGRATION.

func TestPostsKey_DeterministicAndDistinct(t *testing.T) {
	t.Parallel()

	k1 := PostsKey("alpha", "AI", 100, 0)
	k2 := PostsKey("alpha", "AI", 100, 0)
	require.Equal(t, k1, k2)

	require.NotEqual(t, k1, PostsKey("beta", "AI", 100, 0))
	require.NotEqual(t, k1, PostsKey("alpha", "Cloud", 100, 0))
	require.NotEqual(t, k1, PostsKey("alpha", "AI", 50, 0))
	require.NotEqual(t, k1, PostsKey("alpha", "AI", 100, 10))

	// Все ключи выборок живут под общим префиксом для массовой инвалидации.
	require.Contains(t, AggregatePrefixes(), "posts:")
	require.Contains(t, k1, "posts:")
}

func TestNew_EmptyURL_ReturnsDisabled(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := New(ctx, "")
	require.NoError(t, err)

	_, ok := c.Get(ctx, "any")
	require.False(t, ok)
	require.False(t, c.Reachable(ctx))

	// Записи и инвалидация не паникуют и не возвращают ошибок.
	c.Set(ctx, "any", []byte("v"), time.Minute)
	c.Invalidate(ctx, "any")
	c.InvalidateByPrefix(ctx, "posts:")
	require.NoError(t, c.Close())
}

func TestNew_MalformedURL_Error(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "not-a-redis-url://///")
	require.Error(t, err)
}

// TestNew_UnreachableBackend_DegradedNotFatal — бэкенд недоступен на старте:
// конструктор не падает, чтения превращаются в промахи.
func TestNew_UnreachableBackend_DegradedNotFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c, err := New(ctx, "redis://127.0.0.1:1/0")
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.False(t, c.Reachable(ctx))

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Invalidate(ctx, "k")
	c.InvalidateByPrefix(ctx, "posts:")
}

// startRedis — поднимает Redis через testcontainers-go.
// Если переменная окружения GO_TEST_INTEGRATION не установлена — тест пропускается.
func startRedis(t *testing.T) (Cache, func()) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "6379/tcp")

	cch, err := New(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)

	cleanup := func() {
		_ = cch.Close()
		_ = c.Terminate(context.Background())
	}
	return cch, cleanup
}

func TestIntegration_SetGetInvalidate(t *testing.T) {
	c, cleanup := startRedis(t)
	defer cleanup()

	ctx := context.Background()
	require.True(t, c.Reachable(ctx))

	key := PostsKey("alpha", "", 100, 0)
	c.Set(ctx, key, []byte(`[{"id":"1"}]`), time.Minute)

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	require.Equal(t, []byte(`[{"id":"1"}]`), got)

	c.Invalidate(ctx, key)
	_, ok = c.Get(ctx, key)
	require.False(t, ok)
}

func TestIntegration_TTLExpiry(t *testing.T) {
	c, cleanup := startRedis(t)
	defer cleanup()

	ctx := context.Background()
	c.Set(ctx, KeyStats, []byte(`{"total":1}`), time.Second)

	_, ok := c.Get(ctx, KeyStats)
	require.True(t, ok)

	time.Sleep(1500 * time.Millisecond)

	_, ok = c.Get(ctx, KeyStats)
	require.False(t, ok, "entry must expire after TTL")
}

func TestIntegration_InvalidateByPrefix(t *testing.T) {
	c, cleanup := startRedis(t)
	defer cleanup()

	ctx := context.Background()
	c.Set(ctx, PostsKey("", "", 100, 0), []byte("a"), time.Minute)
	c.Set(ctx, PostsKey("alpha", "", 100, 0), []byte("b"), time.Minute)
	c.Set(ctx, KeyStats, []byte("s"), time.Minute)
	c.Set(ctx, KeyCategories, []byte("c"), time.Minute)

	// Консервативная инвалидация всех агрегатов.
	c.InvalidateByPrefix(ctx, AggregatePrefixes()...)

	for _, key := range []string{
		PostsKey("", "", 100, 0),
		PostsKey("alpha", "", 100, 0),
		KeyStats,
		KeyCategories,
	} {
		_, ok := c.Get(ctx, key)
		require.False(t, ok, "key %q must be invalidated", key)
	}
}

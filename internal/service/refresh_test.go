package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lance631/InfoMatrix/internal/cache"
	"github.com/lance631/InfoMatrix/internal/config"
	"github.com/lance631/InfoMatrix/internal/feed"
	"github.com/lance631/InfoMatrix/internal/fetch"
	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/storage"
	"github.com/lance631/InfoMatrix/mocks"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

// stubFetcher — минимальный Fetcher: отдаёт подготовленные результаты.
// started (если задан) закрывается при первом запуске, release (если задан)
// придерживает выдачу — так тесты управляют серединой цикла.
type stubFetcher struct {
	mu       sync.Mutex
	calls    int
	once     sync.Once
	started  chan struct{}
	release  chan struct{}
	outcomes []fetch.Outcome
}

func (f *stubFetcher) FetchAll(ctx context.Context, _ []models.Source) <-chan fetch.Outcome {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	ch := make(chan fetch.Outcome)
	go func() {
		defer close(ch)

		if f.started != nil {
			f.once.Do(func() { close(f.started) })
		}
		if f.release != nil {
			<-f.release
		}

		for _, out := range f.outcomes {
			select {
			case <-ctx.Done():
				return
			case ch <- out:
			}
		}
	}()

	return ch
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// stubParser — минимальный Parser: ответы и ошибки по ID источника.
type stubParser struct {
	posts map[string][]models.Post
	errs  map[string]error
}

func (p *stubParser) Parse(_ context.Context, src models.Source, _ []byte, _ time.Time) ([]models.Post, error) {
	if err := p.errs[src.ID]; err != nil {
		return nil, err
	}
	return p.posts[src.ID], nil
}

func testConfig() config.Config {
	return config.Config{
		Cache:  config.CacheConfig{URL: "redis://localhost:6379/0", TTL: time.Minute},
		Limits: config.LimitsConfig{Default: 100, Max: 500},
		Ingest: config.IngestConfig{Concurrency: 2, FetchTimeout: time.Second, MaxItemsPerFeed: 50},
		Sources: []config.SourceConfig{
			{ID: "alpha", Name: "Alpha Blog", URL: "https://alpha.example/rss.xml", Category: "AI"},
			{ID: "beta", Name: "Beta Engineering", URL: "https://beta.example/feed.atom", Category: "Cloud"},
		},
	}
}

func newTestService(t *testing.T, st storage.Storage, c cache.Cache, f Fetcher, p Parser) *Service {
	t.Helper()
	return New(st, c, f, p, testConfig())
}

func mkTestPost(sourceID, link string) models.Post {
	return models.Post{
		ID:       models.PostID(sourceID, link),
		SourceID: sourceID,
		Title:    "post " + link,
		Link:     link,
	}
}

func okOutcome(id string) fetch.Outcome {
	return fetch.Outcome{Source: models.Source{ID: id}, Body: []byte("<rss/>")}
}

// TestRefreshAll_HappyPath — полный цикл: upsert источников, загрузка,
// разбор, сохранение и инвалидация агрегатов.
func TestRefreshAll_HappyPath(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	wantSources := []models.Source{
		{ID: "alpha", Name: "Alpha Blog", URL: "https://alpha.example/rss.xml", Category: "AI"},
		{ID: "beta", Name: "Beta Engineering", URL: "https://beta.example/feed.atom", Category: "Cloud"},
	}
	st.EXPECT().UpsertSources(gomock.Any(), wantSources).Return(nil)
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, posts []models.Post) (int64, error) {
			return int64(len(posts)), nil
		}).Times(2)
	cch.EXPECT().InvalidateByPrefix(gomock.Any(), "posts:", "stats", "categories")

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{okOutcome("alpha"), okOutcome("beta")}}
	parser := &stubParser{posts: map[string][]models.Post{
		"alpha": {mkTestPost("alpha", "https://alpha.example/1"), mkTestPost("alpha", "https://alpha.example/2")},
		"beta":  {mkTestPost("beta", "https://beta.example/1")},
	}}

	svc := newTestService(t, st, cch, fetcher, parser)

	result, err := svc.RefreshAll(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.Equal(t, TriggerManual, result.Trigger)
	require.Equal(t, models.SourceOutcome{Inserted: 2}, result.Outcomes["alpha"])
	require.Equal(t, models.SourceOutcome{Inserted: 1}, result.Outcomes["beta"])
	require.EqualValues(t, 3, result.TotalInserted())
	require.Zero(t, result.Failed())
	require.False(t, result.StartedAt.IsZero())
	require.False(t, result.FinishedAt.Before(result.StartedAt))
}

// TestRefreshAll_FetchFailureIsolated — сбой загрузки одного источника
// фиксируется в итогах и не мешает остальным.
func TestRefreshAll_FetchFailureIsolated(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(nil)
	// Сохраняется только beta.
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).Return(int64(1), nil).Times(1)
	cch.EXPECT().InvalidateByPrefix(gomock.Any(), "posts:", "stats", "categories")

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{
		{Source: models.Source{ID: "alpha"}, Err: fmt.Errorf("fetch.Fetch: %w", &fetch.HTTPError{StatusCode: 503})},
		okOutcome("beta"),
	}}
	parser := &stubParser{posts: map[string][]models.Post{
		"beta": {mkTestPost("beta", "https://beta.example/1")},
	}}

	svc := newTestService(t, st, cch, fetcher, parser)

	result, err := svc.RefreshAll(context.Background(), TriggerSchedule)
	require.NoError(t, err)

	require.Equal(t, models.SourceOutcome{Failure: "http_error: 503"}, result.Outcomes["alpha"])
	require.Equal(t, models.SourceOutcome{Inserted: 1}, result.Outcomes["beta"])
	require.Equal(t, 1, result.Failed())
}

// TestRefreshAll_ParseFailureIsolated — нечитаемый документ одного источника
// не фатален для цикла.
func TestRefreshAll_ParseFailureIsolated(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).Return(int64(1), nil).Times(1)
	cch.EXPECT().InvalidateByPrefix(gomock.Any(), "posts:", "stats", "categories")

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{okOutcome("alpha"), okOutcome("beta")}}
	parser := &stubParser{
		posts: map[string][]models.Post{"beta": {mkTestPost("beta", "https://beta.example/1")}},
		errs:  map[string]error{"alpha": fmt.Errorf("feed.Parse: alpha: %w", feed.ErrUnsupportedFormat)},
	}

	svc := newTestService(t, st, cch, fetcher, parser)

	result, err := svc.RefreshAll(context.Background(), TriggerManual)
	require.NoError(t, err)

	require.Equal(t, models.SourceOutcome{Failure: models.FailUnsupported}, result.Outcomes["alpha"])
	require.Equal(t, models.SourceOutcome{Inserted: 1}, result.Outcomes["beta"])
}

// TestRefreshAll_NoNewPosts_NoInvalidation — идемпотентный цикл
// (все посты уже в БД) не трогает кэш.
func TestRefreshAll_NoNewPosts_NoInvalidation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	// Отсутствие ожиданий на InvalidateByPrefix: вызов провалит тест.
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).Return(int64(0), nil).Times(2)

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{okOutcome("alpha"), okOutcome("beta")}}
	parser := &stubParser{posts: map[string][]models.Post{
		"alpha": {mkTestPost("alpha", "https://alpha.example/1")},
		"beta":  {mkTestPost("beta", "https://beta.example/1")},
	}}

	svc := newTestService(t, st, cch, fetcher, parser)

	result, err := svc.RefreshAll(context.Background(), TriggerSchedule)
	require.NoError(t, err)
	require.Zero(t, result.TotalInserted())
	require.Zero(t, result.Failed())
	require.Equal(t, models.SourceOutcome{}, result.Outcomes["alpha"])
}

// TestRefreshAll_RejectsConcurrentCycle — второй цикл во время работающего
// первого отклоняется с ErrRefreshInProgress; после завершения запуск
// снова возможен.
func TestRefreshAll_RejectsConcurrentCycle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := &stubFetcher{
		outcomes: []fetch.Outcome{okOutcome("alpha")},
		started:  started,
		release:  release,
	}

	svc := newTestService(t, st, cch, fetcher, &stubParser{})

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.RefreshAll(context.Background(), TriggerStartup)
		firstDone <- err
	}()

	<-started

	_, err := svc.RefreshAll(context.Background(), TriggerManual)
	require.ErrorIs(t, err, ErrRefreshInProgress)

	close(release)
	require.NoError(t, <-firstDone)

	_, err = svc.RefreshAll(context.Background(), TriggerManual)
	require.NoError(t, err, "после завершения цикла запуск снова принимается")
}

// TestRefreshAll_UpsertSourcesFatal — отказ БД на синхронизации источников
// прерывает цикл до загрузок.
func TestRefreshAll_UpsertSourcesFatal(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{okOutcome("alpha")}}
	svc := newTestService(t, st, cch, fetcher, &stubParser{})

	_, err := svc.RefreshAll(context.Background(), TriggerStartup)
	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.Zero(t, fetcher.callCount(), "до загрузок дело не доходит")
}

// TestRefreshAll_SaveFatalAbortsCycle — отказ БД при сохранении фатален:
// цикл завершается ошибкой, оставшиеся источники не сохраняются.
func TestRefreshAll_SaveFatalAbortsCycle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).Return(int64(0), errors.New("connection reset")).Times(1)

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{okOutcome("alpha"), okOutcome("beta")}}
	parser := &stubParser{posts: map[string][]models.Post{
		"alpha": {mkTestPost("alpha", "https://alpha.example/1")},
		"beta":  {mkTestPost("beta", "https://beta.example/1")},
	}}

	svc := newTestService(t, st, cch, fetcher, parser)

	_, err := svc.RefreshAll(context.Background(), TriggerManual)
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

// TestRefreshAll_CanceledContext — отменённый контекст завершает цикл
// ошибкой отмены, а не ошибкой хранилища.
func TestRefreshAll_CanceledContext(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(nil)
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{okOutcome("alpha")}}
	svc := newTestService(t, st, cch, fetcher, &stubParser{})

	_, err := svc.RefreshAll(ctx, TriggerManual)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrStorageUnavailable)
}

// TestStart_StartupAndTicker — Start выполняет стартовый цикл и продолжает
// по расписанию до отмены контекста.
func TestStart_StartupAndTicker(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	cch := mocks.NewMockCache(ctrl)

	st.EXPECT().UpsertSources(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	st.EXPECT().SavePosts(gomock.Any(), gomock.Any()).Return(int64(0), nil).AnyTimes()

	fetcher := &stubFetcher{outcomes: []fetch.Outcome{okOutcome("alpha")}}

	cfg := testConfig()
	cfg.Ingest.Interval = 20 * time.Millisecond
	svc := New(st, cch, fetcher, &stubParser{}, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return fetcher.callCount() >= 3 },
		2*time.Second, 10*time.Millisecond, "стартовый цикл плюс тики")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start не остановился по отмене контекста")
	}
}

// TestFailureReason — классификация ошибок источника в стабильные коды.
func TestFailureReason(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", fmt.Errorf("fetch.Fetch: %w", fetch.ErrTimeout), models.FailTimeout},
		{"unreachable", fetch.ErrUnreachable, models.FailUnreachable},
		{"http status", &fetch.HTTPError{StatusCode: 404}, "http_error: 404"},
		{"unsupported", feed.ErrUnsupportedFormat, models.FailUnsupported},
		{"parse", fmt.Errorf("feed.Parse: x: %w: eof", feed.ErrParse), models.FailParse},
		{"canceled", context.Canceled, models.FailCanceled},
		{"deadline", context.DeadlineExceeded, models.FailCanceled},
		{"unknown", errors.New("boom"), models.FailInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, failureReason(tc.err))
		})
	}
}

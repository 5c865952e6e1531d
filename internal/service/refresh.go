package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lance631/InfoMatrix/internal/cache"
	"github.com/lance631/InfoMatrix/internal/feed"
	"github.com/lance631/InfoMatrix/internal/fetch"
	"github.com/lance631/InfoMatrix/internal/metrics"
	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/pkg/log"
)

// Триггеры цикла обновления; значения попадают в RefreshResult и метрики.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// RefreshAll выполняет один цикл обновления всех источников:
// синхронизация источников с конфигурацией, конкурентная загрузка,
// разбор, сохранение новых постов и инвалидация кэшированных агрегатов.
//
// Свойства цикла:
//   - одновременно выполняется не более одного цикла: параллельный вызов
//     сразу получает ErrRefreshInProgress, независимо от триггера;
//   - сбой загрузки или разбора одного источника фиксируется в итогах
//     и не прерывает обработку остальных;
//   - отказ БД фатален для цикла: без источника истины продолжать нечего;
//   - кэш инвалидируется только если цикл вставил хотя бы один пост.
func (s *Service) RefreshAll(ctx context.Context, trigger string) (models.RefreshResult, error) {
	const op = "service.refresh.RefreshAll"

	if err := s.acquireRefresh(); err != nil {
		metrics.RefreshCycles.WithLabelValues(trigger, "busy").Inc()
		return models.RefreshResult{}, fmt.Errorf("%s: %w", op, err)
	}
	defer s.releaseRefresh()

	lg := log.From(ctx)
	started := time.Now().UTC()

	lg.Info("refresh_started",
		slog.String("op", op),
		slog.String("trigger", trigger),
		slog.Int("sources", len(s.sources)),
	)

	result := models.RefreshResult{
		Trigger:   trigger,
		StartedAt: started,
		Outcomes:  make(map[string]models.SourceOutcome, len(s.sources)),
	}

	// Источники синхронизируются до записи постов: переименования и смена
	// категории применяются в этом же цикле.
	if err := s.storage.UpsertSources(ctx, s.sources); err != nil {
		metrics.RefreshCycles.WithLabelValues(trigger, "error").Inc()
		return models.RefreshResult{}, fmt.Errorf("%s: upsert_sources: %w: %v", op, ErrStorageUnavailable, err)
	}

	var (
		inserted int64
		fatal    error
	)

	for out := range s.fetcher.FetchAll(ctx, s.sources) {
		if fatal != nil {
			// Канал дочитывается до конца, чтобы загрузчик освободил горутины.
			continue
		}

		if out.Err != nil {
			reason := failureReason(out.Err)
			result.Outcomes[out.Source.ID] = models.SourceOutcome{Failure: reason}
			metrics.SourceFailures.WithLabelValues(out.Source.ID, reason).Inc()
			lg.Warn("source_fetch_failed",
				slog.String("op", op),
				slog.String("source", out.Source.ID),
				slog.String("reason", reason),
				slog.String("err", out.Err.Error()),
			)
			continue
		}

		outcome, err := s.ingestSource(ctx, out.Source, out.Body)
		if err != nil {
			fatal = fmt.Errorf("%s: %w", op, err)
			continue
		}

		result.Outcomes[out.Source.ID] = outcome
		inserted += outcome.Inserted
	}

	switch {
	case ctx.Err() != nil:
		metrics.RefreshCycles.WithLabelValues(trigger, "canceled").Inc()
		return models.RefreshResult{}, fmt.Errorf("%s: %w", op, ctx.Err())
	case fatal != nil:
		metrics.RefreshCycles.WithLabelValues(trigger, "error").Inc()
		return models.RefreshResult{}, fatal
	}

	// Консервативная инвалидация: параметризованные выборки не перечислить
	// по именам, поэтому после цикла с новыми постами агрегаты сбрасываются
	// целиком по префиксам.
	if inserted > 0 {
		s.cache.InvalidateByPrefix(ctx, cache.AggregatePrefixes()...)
	}

	result.FinishedAt = time.Now().UTC()

	metrics.RefreshCycles.WithLabelValues(trigger, "ok").Inc()
	metrics.RefreshDuration.Observe(result.FinishedAt.Sub(started).Seconds())

	lg.Info("refresh_finished",
		slog.String("op", op),
		slog.String("trigger", trigger),
		slog.Int64("inserted", inserted),
		slog.Int("failed", result.Failed()),
		slog.Duration("took", result.FinishedAt.Sub(started)),
	)

	return result, nil
}

// ingestSource — разбор и сохранение одного успешно загруженного источника.
// Ошибка разбора не фатальна и фиксируется в итоге источника;
// ошибка сохранения фатальна для всего цикла.
func (s *Service) ingestSource(ctx context.Context, src models.Source, body []byte) (models.SourceOutcome, error) {
	const op = "service.refresh.ingestSource"

	lg := log.From(ctx)

	posts, err := s.parser.Parse(ctx, src, body, time.Now().UTC())
	if err != nil {
		reason := failureReason(err)
		metrics.SourceFailures.WithLabelValues(src.ID, reason).Inc()
		lg.Warn("source_parse_failed",
			slog.String("op", op),
			slog.String("source", src.ID),
			slog.String("reason", reason),
			slog.String("err", err.Error()),
		)
		return models.SourceOutcome{Failure: reason}, nil
	}

	n, err := s.storage.SavePosts(ctx, posts)
	if err != nil {
		if ctx.Err() != nil {
			return models.SourceOutcome{}, fmt.Errorf("%s: %s: %w", op, src.ID, ctx.Err())
		}
		return models.SourceOutcome{}, fmt.Errorf("%s: %s: %w: %v", op, src.ID, ErrStorageUnavailable, err)
	}

	metrics.PostsInserted.WithLabelValues(src.ID).Add(float64(n))
	lg.Info("source_ingested",
		slog.String("op", op),
		slog.String("source", src.ID),
		slog.Int("parsed", len(posts)),
		slog.Int64("inserted", n),
	)

	return models.SourceOutcome{Inserted: n}, nil
}

// failureReason сводит ошибку источника к стабильному коду причины
// для итогов цикла и метрик.
func failureReason(err error) string {
	var httpErr *fetch.HTTPError

	switch {
	case errors.As(err, &httpErr):
		return models.FailHTTP(httpErr.StatusCode)
	case errors.Is(err, fetch.ErrTimeout):
		return models.FailTimeout
	case errors.Is(err, fetch.ErrUnreachable):
		return models.FailUnreachable
	case errors.Is(err, feed.ErrUnsupportedFormat):
		return models.FailUnsupported
	case errors.Is(err, feed.ErrParse):
		return models.FailParse
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.FailCanceled
	default:
		return models.FailInternal
	}
}

func (s *Service) acquireRefresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refreshing {
		return ErrRefreshInProgress
	}
	s.refreshing = true

	return nil
}

func (s *Service) releaseRefresh() {
	s.mu.Lock()
	s.refreshing = false
	s.mu.Unlock()
}

// Start выполняет стартовый цикл обновления и, если в конфигурации задан
// интервал, продолжает фоновые циклы до отмены ctx.
//
// Сбои циклов логируются и не останавливают расписание: следующий тик —
// это и есть повторная попытка.
func (s *Service) Start(ctx context.Context) {
	const op = "service.refresh.Start"

	lg := log.From(ctx)

	if _, err := s.RefreshAll(ctx, TriggerStartup); err != nil {
		lg.Warn("startup_refresh_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}

	interval := s.cfg.Ingest.Interval
	if interval <= 0 {
		lg.Info("scheduled_refresh_disabled", slog.String("op", op))
		return
	}

	lg.Info("scheduled_refresh_started",
		slog.String("op", op),
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("scheduled_refresh_stopped", slog.String("op", op))
			return
		case <-ticker.C:
			if _, err := s.RefreshAll(ctx, TriggerSchedule); err != nil {
				lg.Warn("scheduled_refresh_failed",
					slog.String("op", op),
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

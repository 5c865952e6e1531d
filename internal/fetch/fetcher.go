// fetch — загрузка документов фидов по HTTP.
//
// Загрузчик делает ровно одну попытку на источник за цикл: ретраев нет,
// сбой фиксируется типизированной ошибкой и попадает в итог цикла
// по этому источнику. Параллелизм ограничен семафором.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/lance631/InfoMatrix/internal/models"
)

// Типизированные причины сбоя загрузки (проверяются через errors.Is/As).
var (
	// ErrTimeout — источник не ответил за отведённый таймаут.
	ErrTimeout = errors.New("fetch timeout")
	// ErrUnreachable — сетевая ошибка: DNS, отказ соединения, обрыв.
	ErrUnreachable = errors.New("source unreachable")
)

// HTTPError — источник ответил статусом >= 400.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected http status %d", e.StatusCode)
}

// userAgent представляет сервис источникам.
const userAgent = "InfoMatrix/1.0 (+https://github.com/lance631/InfoMatrix)"

// Fetcher загружает документы фидов.
// HTTP-клиент настраивается извне (прокси и т.п.); таймаут на запрос
// навешивается контекстом, чтобы сочетаться с отменой всего цикла.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	maxConc int
}

// New создаёт загрузчик: timeout — на один запрос, maxConcurrent — на пачку.
func New(client *http.Client, timeout time.Duration, maxConcurrent int) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &Fetcher{client: client, timeout: timeout, maxConc: maxConcurrent}
}

// Fetch загружает документ по URL за одну попытку.
// Возвращаемые ошибки оборачивают ErrTimeout/ErrUnreachable/HTTPError;
// отмена вызывающего контекста прокидывается как есть.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	const op = "fetch.Fetch"

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: new_request: %w", op, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, classify(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s: %w", op, &HTTPError{StatusCode: resp.StatusCode})
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read_body: %w", op, classify(err))
	}

	return body, nil
}

// Outcome — результат загрузки одного источника.
type Outcome struct {
	Source models.Source
	Body   []byte
	Err    error
}

// FetchAll загружает источники конкурентно (не более maxConc одновременно)
// и отдаёт результаты в канал. Канал закрывается после завершения всех
// начатых загрузок; порядок результатов не определён. Отмена контекста
// останавливает выдачу новых запросов, начатые дорабатывают и завершаются
// быстро за счёт отменённого контекста.
//
// Вызывающая сторона обязана вычитать канал до закрытия.
func (f *Fetcher) FetchAll(ctx context.Context, sources []models.Source) <-chan Outcome {
	output := make(chan Outcome)

	go func() {
		defer close(output)

		sem := make(chan struct{}, f.maxConc)

		for _, src := range sources {
			if ctx.Err() != nil {
				break
			}

			src := src
			sem <- struct{}{}

			go func() {
				defer func() { <-sem }()

				body, err := f.Fetch(ctx, src.URL)
				output <- Outcome{Source: src, Body: body, Err: err}
			}()
		}

		// Дожидаемся завершения всех начатых загрузок перед закрытием канала.
		for i := 0; i < cap(sem); i++ {
			sem <- struct{}{}
		}
	}()

	return output
}

// classify сводит сетевые ошибки клиента к типизированным причинам.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}

	return ErrUnreachable
}

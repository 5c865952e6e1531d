package models

import (
	"strconv"
	"time"
)

// Коды причин сбоя источника внутри цикла обновления.
// Значения стабильны: они попадают в ответ POST /posts/refresh и в метрики.
const (
	FailTimeout     = "timeout"
	FailUnreachable = "unreachable"
	FailUnsupported = "unsupported_format"
	FailParse       = "parse_error"
	FailCanceled    = "canceled"
	FailInternal    = "internal_error"
)

// FailHTTP — код причины для HTTP-ошибки источника, например "http_error: 503".
func FailHTTP(status int) string {
	return "http_error: " + strconv.Itoa(status)
}

// SourceOutcome — итог обработки одного источника за цикл.
// Failure == "" означает успех; Inserted при сбое всегда 0.
type SourceOutcome struct {
	Inserted int64
	Failure  string
}

// RefreshResult — сводка одного цикла обновления.
//
// Сбой отдельного источника не прерывает цикл: его причина фиксируется
// в Outcomes, остальные источники обрабатываются дальше.
type RefreshResult struct {
	// Trigger — что запустило цикл: "startup", "schedule" или "manual".
	Trigger string
	// StartedAt/FinishedAt - границы цикла (UTC).
	StartedAt  time.Time
	FinishedAt time.Time
	// Outcomes - результат по каждому источнику; ключ — Source.ID.
	Outcomes map[string]SourceOutcome
}

// TotalInserted — суммарное число новых постов за цикл.
func (r RefreshResult) TotalInserted() int64 {
	var total int64
	for _, o := range r.Outcomes {
		total += o.Inserted
	}

	return total
}

// Failed — число источников, завершившихся сбоем.
func (r RefreshResult) Failed() int {
	var n int
	for _, o := range r.Outcomes {
		if o.Failure != "" {
			n++
		}
	}

	return n
}

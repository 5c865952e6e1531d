// handlers — REST-хендлеры InfoMatrix.
//
// Слой не содержит бизнес-логики: разбирает query-параметры, вызывает
// сервис и сериализует ответ. Ошибки сервиса переводятся в HTTP через
// internal/errors.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lance631/InfoMatrix/internal/service"
)

// Handlers агрегирует зависимости (бизнес-слой).
type Handlers struct {
	svc     *service.Service
	version string
}

func New(svc *service.Service, version string) *Handlers {
	if version == "" {
		version = "dev"
	}
	return &Handlers{svc: svc, version: version}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// errInvalidArgument — вспомогалка: локальная ошибка парсинга query -> 400.
func errInvalidArgument() error {
	return fmt.Errorf("bad query parameter: %w", service.ErrInvalidArgument)
}

// Root — информационный эндпойнт корня: имя сервиса, версия, статус.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "InfoMatrix",
		"version": h.version,
		"status":  "running",
	})
}

// timestamp — единый формат временных меток в ответах.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

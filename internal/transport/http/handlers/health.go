package handlers

import (
	"net/http"
	"time"

	"github.com/lance631/InfoMatrix/internal/models"
)

// componentResponse — состояние одной зависимости в ответе /health.
type componentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthResponse — ответ GET /health.
type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Database  componentResponse `json:"database"`
	Cache     componentResponse `json:"cache"`
}

// Health — GET /health.
//
// Всегда 200: степень деградации передаётся строкой status
// (healthy/degraded/unhealthy), а не HTTP-кодом — фронт показывает
// баннер, а не страницу ошибки.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := h.svc.Health(r.Context())

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    health.Status,
		Timestamp: timestamp(time.Now()),
		Database:  toComponent(health.Database),
		Cache:     toComponent(health.Cache),
	})
}

func toComponent(c models.ComponentHealth) componentResponse {
	return componentResponse{Status: c.Status, Message: c.Message}
}

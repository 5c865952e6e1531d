package models

import "time"

// Stats — агрегированная статистика по контенту и состоянию кэша.
type Stats struct {
	TotalPosts      int64
	TotalSources    int64
	PostsByCategory map[string]int64
	// CacheReachable - доступен ли бэкенд кэша на момент запроса.
	CacheReachable bool
	// CacheTTL - сконфигурированное время жизни кэш-записей.
	CacheTTL time.Duration
}

// Статусы компонентов и сервиса в целом для health-проверки.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	ComponentConnected    = "connected"
	ComponentDisconnected = "disconnected"
	ComponentDisabled     = "disabled"
)

// ComponentHealth — состояние одной зависимости сервиса.
type ComponentHealth struct {
	Status  string
	Message string
}

// Health — сводное состояние сервиса.
//
// Правила агрегации:
//   - БД недоступна -> StatusUnhealthy;
//   - кэш недоступен или выключен -> StatusDegraded;
//   - иначе StatusHealthy.
type Health struct {
	Status   string
	Database ComponentHealth
	Cache    ComponentHealth
}

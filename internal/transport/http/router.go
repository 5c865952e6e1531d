// http — публичный REST-слой InfoMatrix поверх chi.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lance631/InfoMatrix/internal/service"
	"github.com/lance631/InfoMatrix/internal/transport/http/handlers"
	"github.com/lance631/InfoMatrix/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger         *slog.Logger
	Timeout        time.Duration
	BasePath       string // например, "/api"; если пустой — роуты регистрируются на корне.
	AllowedOrigins []string
	Version        string // попадает в ответ корневого эндпойнта.
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),                  // безопасно ловим паники
		middleware.RequestID(),                // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger),       // кладём request-scoped логгер в контекст и логируем
		middleware.CORS(opts.AllowedOrigins),  // браузерные запросы фронта
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	// Зависимости хендлеров.
	h := handlers.New(svc, opts.Version)

	// Корневой информационный эндпойнт живёт вне базового префикса.
	root.Get("/", h.Root)

	// Регистрация маршрутов.
	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers) {
	// health
	r.Get("/health", h.Health)

	// sources
	r.Get("/blogs", h.ListSources)
	r.Get("/blogs/categories", h.Categories)

	// posts
	r.Get("/posts", h.ListPosts)
	r.Post("/posts/refresh", h.Refresh)
	r.Get("/posts/stats", h.Stats)
}

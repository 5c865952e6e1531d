package handlers

import (
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/lance631/InfoMatrix/internal/errors"
	"github.com/lance631/InfoMatrix/internal/models"
	"github.com/lance631/InfoMatrix/internal/service"
)

// postResponse — пост в ответе GET /posts.
// PublishedAt == nil сериализуется как null: источник не сообщил валидную
// дату, и транспорт её не выдумывает.
type postResponse struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	SourceName  string     `json:"source_name,omitempty"`
	Category    string     `json:"category"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Summary     string     `json:"summary"`
	Content     string     `json:"content,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

func toPostResponse(p models.Post) postResponse {
	return postResponse{
		ID:          p.ID.String(),
		SourceID:    p.SourceID,
		SourceName:  p.SourceName,
		Category:    p.Category,
		Title:       p.Title,
		Link:        p.Link,
		Summary:     p.Summary,
		Content:     p.Content,
		ImageURL:    p.ImageURL,
		Author:      p.Author,
		PublishedAt: p.PublishedAt,
		FetchedAt:   p.FetchedAt,
	}
}

// ListPosts — GET /posts?feed_source_id=&category=&limit=&offset=.
// Неизвестный источник/категория — пустой массив, не 404.
func (h *Handlers) ListPosts(w http.ResponseWriter, r *http.Request) {
	var q service.PostQuery

	q.SourceID = r.URL.Query().Get("feed_source_id")
	q.Category = r.URL.Query().Get("category")

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			apierrors.WriteError(w, r, errInvalidArgument())
			return
		}
		q.Limit = n
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			apierrors.WriteError(w, r, errInvalidArgument())
			return
		}
		q.Offset = n
	}

	posts, err := h.svc.ListPosts(r.Context(), q)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}

	writeJSON(w, http.StatusOK, out)
}

// refreshResponse — ответ POST /posts/refresh.
// Значение в Results — либо число вставленных постов, либо строка
// "error: <причина>" для источника, завершившегося сбоем.
type refreshResponse struct {
	Message   string         `json:"message"`
	Results   map[string]any `json:"results"`
	Timestamp string         `json:"timestamp"`
}

// Refresh — POST /posts/refresh: ручной запуск цикла обновления.
//
// Сбой отдельных источников не делает ответ ошибочным: цикл завершился,
// его итоги — в results. 409 возвращается только когда цикл уже идёт.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RefreshAll(r.Context(), service.TriggerManual)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	results := make(map[string]any, len(result.Outcomes))
	for id, outcome := range result.Outcomes {
		if outcome.Failure != "" {
			results[id] = "error: " + outcome.Failure
			continue
		}
		results[id] = outcome.Inserted
	}

	writeJSON(w, http.StatusOK, refreshResponse{
		Message:   "feeds refreshed",
		Results:   results,
		Timestamp: timestamp(result.FinishedAt),
	})
}

// statsResponse — ответ GET /posts/stats.
type statsResponse struct {
	TotalPosts            int64            `json:"total_posts"`
	TotalSources          int64            `json:"total_sources"`
	PostsByCategory       map[string]int64 `json:"posts_by_category"`
	CacheBackendReachable bool             `json:"cache_backend_reachable"`
	CacheTTLSeconds       int64            `json:"cache_ttl_seconds"`
}

// Stats — GET /posts/stats: агрегированная статистика контента и кэша.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalPosts:            stats.TotalPosts,
		TotalSources:          stats.TotalSources,
		PostsByCategory:       stats.PostsByCategory,
		CacheBackendReachable: stats.CacheReachable,
		CacheTTLSeconds:       int64(stats.CacheTTL.Seconds()),
	})
}

package handlers

import (
	"net/http"

	apierrors "github.com/lance631/InfoMatrix/internal/errors"
	"github.com/lance631/InfoMatrix/internal/models"
)

// sourceResponse — источник в ответах /blogs.
type sourceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	SiteURL     string `json:"site_url,omitempty"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

func toSourceResponse(s models.Source) sourceResponse {
	return sourceResponse{
		ID:          s.ID,
		Name:        s.Name,
		URL:         s.URL,
		SiteURL:     s.SiteURL,
		Category:    s.Category,
		Description: s.Description,
	}
}

// ListSources — GET /blogs: сконфигурированные источники в исходном порядке.
func (h *Handlers) ListSources(w http.ResponseWriter, r *http.Request) {
	sources := h.svc.ListSources()

	out := make([]sourceResponse, 0, len(sources))
	for _, s := range sources {
		out = append(out, toSourceResponse(s))
	}

	writeJSON(w, http.StatusOK, out)
}

// Categories — GET /blogs/categories: отсортированные категории источников.
func (h *Handlers) Categories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Categories(r.Context())
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"categories": categories})
}

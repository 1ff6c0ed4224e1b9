package reviews

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

const FeedPageSize = 20

type FeedStore interface {
	Published(ctx context.Context, limit, offset int) ([]domain.Review, error)
}

type Handler struct {
	store  FeedStore
	logger *slog.Logger
}

func NewHandler(store FeedStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type feedResponse struct {
	Page    int             `json:"page"`
	Reviews []domain.Review `json:"reviews"`
}

// HandleFeed lists published approved reviews, newest first.
func (h *Handler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		page = n
	}

	reviews, err := h.store.Published(r.Context(), FeedPageSize, (page-1)*FeedPageSize)
	if err != nil {
		h.logger.Error("failed to list reviews", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, feedResponse{Page: page, Reviews: reviews})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joao-fontenele/guestdesk/internal/domain"
)

type OrderService interface {
	Submit(ctx context.Context, draft Draft) (*SubmitResult, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
}

type Handler struct {
	service OrderService
	logger  *slog.Logger
}

func NewHandler(service OrderService, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// flexibleID accepts the bar page order id as either a JSON string or number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type webhookRequest struct {
	OrderID         flexibleID         `json:"orderId"`
	Name            string             `json:"name"`
	Room            string             `json:"room"`
	Items           []domain.OrderItem `json:"items"`
	Total           int64              `json:"total"`
	Timestamp       string             `json:"timestamp"`
	RequesterID     *int64             `json:"requesterId"`
	RequesterHandle string             `json:"requesterHandle"`
	Telegram        string             `json:"telegram"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id,omitempty"`
	Message string `json:"message,omitempty"`
}

const maxWebhookBody = 1 << 20

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeJSON(w, http.StatusRequestEntityTooLarge, webhookResponse{Status: "error", Message: "request body too large"})
			return
		}
		h.writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: "invalid request body"})
		return
	}

	handle := req.RequesterHandle
	if strings.TrimSpace(handle) == "" {
		handle = req.Telegram
	}

	result, err := h.service.Submit(r.Context(), Draft{
		OrderID:         string(req.OrderID),
		GuestName:       req.Name,
		Room:            req.Room,
		RequesterID:     req.RequesterID,
		RequesterHandle: handle,
		Items:           req.Items,
		Total:           req.Total,
		SubmittedAt:     req.Timestamp,
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.writeJSON(w, http.StatusBadRequest, webhookResponse{Status: "error", Message: verr.Error()})
			return
		}
		h.logger.Error("failed to submit order", "error", err)
		h.writeJSON(w, http.StatusInternalServerError, webhookResponse{Status: "error", Message: "internal server error"})
		return
	}

	h.writeJSON(w, http.StatusOK, webhookResponse{Status: "ok", OrderID: result.OrderID})
}

type orderView struct {
	ID        string             `json:"order_id"`
	Status    domain.OrderStatus `json:"status"`
	Items     []domain.OrderItem `json:"items"`
	Total     int64              `json:"total"`
	Timestamp string             `json:"timestamp"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orderView{
		ID:        order.ID,
		Status:    order.Status,
		Items:     order.Items,
		Total:     order.Total,
		Timestamp: order.SubmittedAt,
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	})
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

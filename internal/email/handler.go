package email

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
)

// Handler is the outbound email relay. It validates and logs each message.
type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type attachment struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type sendRequest struct {
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Body        string       `json:"body"`
	HTML        string       `json:"html"`
	Attachments []attachment `json:"attachments"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (req sendRequest) validate() error {
	if strings.TrimSpace(req.To) == "" {
		return errors.New("missing recipient")
	}
	if _, err := mail.ParseAddress(req.To); err != nil {
		return errors.New("invalid recipient")
	}
	if req.Body == "" && req.HTML == "" {
		return errors.New("empty message")
	}
	for _, a := range req.Attachments {
		if a.Name == "" {
			return errors.New("attachment without name")
		}
		if _, err := base64.StdEncoding.DecodeString(a.Data); err != nil {
			return fmt.Errorf("attachment %s is not valid base64", a.Name)
		}
	}
	return nil
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("email sent", "to", req.To, "subject", req.Subject,
		"html", req.HTML != "", "attachments", len(req.Attachments))

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
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

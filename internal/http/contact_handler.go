package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/logger"
	"go.uber.org/zap"
)

type ContactStore interface {
	SaveContact(ctx context.Context, msg *domain.ContactMessage) error
}

type ContactHandler struct {
	store   ContactStore
	timeout time.Duration
}

func NewContactHandler(store ContactStore, timeout time.Duration) *ContactHandler {
	return &ContactHandler{store: store, timeout: timeout}
}

type ContactRequestDTO struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// POST /api/v1/contact
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ContactRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	msg := &domain.ContactMessage{
		Name:    strings.TrimSpace(req.Name),
		Email:   strings.TrimSpace(req.Email),
		Message: strings.TrimSpace(req.Message),
	}
	if errs := msg.Validate(); len(errs) > 0 {
		respondValidation(w, r, errs, map[string]string{
			"name":    req.Name,
			"email":   req.Email,
			"message": req.Message,
		})
		return
	}

	if err := h.store.SaveContact(ctx, msg); err != nil {
		handleServiceError(w, r, err)
		return
	}

	logger.FromContext(ctx).Info("contact message received", zap.Int64("contact_id", msg.ID))
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"id":      msg.ID,
		"message": "Thanks, we will be in touch shortly",
	})
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/trilltino/handyman/internal/checkout"
	"github.com/trilltino/handyman/internal/domain"
)

type CheckoutService interface {
	Validate(form *domain.CheckoutForm) domain.ValidationErrors
	Submit(ctx context.Context, sessionID string, form *domain.CheckoutForm) (*checkout.Outcome, error)
}

type CheckoutHandler struct {
	checkout CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(svc CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: svc,
		timeout:  timeout,
	}
}

type CheckoutFormDTO struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
}

func (d CheckoutFormDTO) toForm() *domain.CheckoutForm {
	f := domain.NewCheckoutForm()
	f.SetField(domain.FieldName, d.Name)
	f.SetField(domain.FieldEmail, d.Email)
	f.SetField(domain.FieldAddress, d.Address)
	f.SetField(domain.FieldCity, d.City)
	f.SetField(domain.FieldPostcode, d.Postcode)
	return f
}

type CheckoutResponseDTO struct {
	Status          string `json:"status"`
	ConfirmationRef string `json:"confirmation_ref,omitempty"`
	Message         string `json:"message,omitempty"`
}

// POST /api/v1/checkout/validate
func (h *CheckoutHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req CheckoutFormDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	form := req.toForm()
	if errs := h.checkout.Validate(form); len(errs) > 0 {
		respondValidation(w, r, errs, form.Values)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]bool{"valid": true})
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CheckoutFormDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	form := req.toForm()
	out, err := h.checkout.Submit(ctx, sessionID(r), form)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	switch out.Status {
	case domain.CheckoutStatusInvalid:
		respondValidation(w, r, out.Errors, form.Values)
	case domain.CheckoutStatusSuccess:
		respondJSON(w, r, http.StatusCreated, CheckoutResponseDTO{
			Status:          out.Status.String(),
			ConfirmationRef: out.Result.ConfirmationRef,
		})
	default:
		// the failure reason stays in the logs
		respondJSON(w, r, http.StatusPaymentRequired, CheckoutResponseDTO{
			Status:  out.Status.String(),
			Message: domain.PaymentFailedMessage,
		})
	}
}

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/logger"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// ValidationErrorResponse carries every field error plus the submitted values
// so the client can re-render the form unchanged.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields"`
	Values map[string]string `json:"values"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondJSON(w, r, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondValidation(w http.ResponseWriter, r *http.Request, errs domain.ValidationErrors, values map[string]string) {
	fields := make(map[string]string, len(errs))
	for name, fe := range errs {
		fields[name] = fe.Message
	}
	respondJSON(w, r, http.StatusUnprocessableEntity, ValidationErrorResponse{
		Error:  "validation failed",
		Code:   "validation_failed",
		Fields: fields,
		Values: values,
	})
}

// handleServiceError maps domain errors to HTTP status codes. Anything
// unrecognised is logged and reported as a bare 500.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidQuantity):
		status, code = http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, domain.ErrLineNotFound):
		status, code = http.StatusNotFound, "line_not_found"
	case errors.Is(err, domain.ErrPreconditionFailed):
		status, code = http.StatusConflict, "precondition_failed"
	case errors.Is(err, domain.ErrSubmissionInFlight):
		status, code = http.StatusConflict, "submission_in_flight"
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	default:
		logger.FromContext(r.Context()).Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	respondError(w, r, status, code, err.Error())
}

func productIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

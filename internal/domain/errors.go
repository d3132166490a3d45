package domain

import "errors"

var (
	ErrNotFound           = errors.New("product not found or unavailable")
	ErrInvalidQuantity    = errors.New("quantity must be between 1 and 99")
	ErrLineNotFound       = errors.New("product is not in the cart")
	ErrPreconditionFailed = errors.New("checkout requires a valid form and a non-empty cart")
	ErrSubmissionInFlight = errors.New("order submission already in progress")
	ErrIllegalTransition  = errors.New("illegal transition of checkout status")
)

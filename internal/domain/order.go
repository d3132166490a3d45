package domain

import "time"

// PaymentFailedMessage is the only failure text shown to the buyer.
const PaymentFailedMessage = "Payment failed"

type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Address  string `json:"address"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
}

// OrderRequest is built once from a submittable form and never modified after.
type OrderRequest struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Lines      []CartLine `json:"lines"`
	Customer   Customer   `json:"customer"`
	TotalMinor int64      `json:"total_minor"`
	Currency   string     `json:"currency"`
	CreatedAt  time.Time  `json:"created_at"`
}

type FailureReason string

const (
	ReasonPaymentDeclined    FailureReason = "PAYMENT_DECLINED"
	ReasonNetworkFailure     FailureReason = "NETWORK_FAILURE"
	ReasonTimeout            FailureReason = "TIMEOUT"
	ReasonServiceUnavailable FailureReason = "SERVICE_UNAVAILABLE"
)

type OrderResult struct {
	Success         bool          `json:"success"`
	ConfirmationRef string        `json:"confirmation_ref,omitempty"`
	Reason          FailureReason `json:"reason,omitempty"`
	// Detail is for logs only, never rendered to the buyer.
	Detail string `json:"-"`
}

func OrderSucceeded(ref string) OrderResult {
	return OrderResult{Success: true, ConfirmationRef: ref}
}

func OrderFailed(reason FailureReason, detail string) OrderResult {
	return OrderResult{Reason: reason, Detail: detail}
}

type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
)

// Order is the persisted record of a paid OrderRequest.
type Order struct {
	ID              string
	SessionID       string
	ConfirmationRef string
	PaymentID       string
	Customer        Customer
	Lines           []CartLine
	TotalMinor      int64
	Currency        string
	Status          OrderStatus
	CreatedAt       time.Time
	// CartUpdatedAt is the last change to the cart that was charged.
	CartUpdatedAt   time.Time
}

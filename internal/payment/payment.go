package payment

import (
	"context"
	"errors"

	"github.com/trilltino/handyman/internal/domain"
)

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "SUCCEEDED"
	ChargeDeclined  ChargeStatus = "DECLINED"
)

type Refusal string

const (
	RefusalUnknown           Refusal = "UNKNOWN"
	RefusalInsufficientFunds Refusal = "INSUFFICIENT_FUNDS"
	RefusalCardExpired       Refusal = "CARD_EXPIRED"
	RefusalFraudSuspected    Refusal = "FRAUD_SUSPECTED"
	RefusalLimitExceeded     Refusal = "LIMIT_EXCEEDED"
	RefusalProcessingError   Refusal = "PROCESSING_ERROR"
)

type ChargeResponse struct {
	Status    ChargeStatus `json:"status"`
	PaymentID string       `json:"payment_id"`
	Refusal   Refusal      `json:"refusal,omitempty"`
	Message   string       `json:"message,omitempty"`
}

// Gateway is the external payment/order API. Known outcomes, approvals and
// declines, come back in the response; transport faults come back as errors.
type Gateway interface {
	Charge(ctx context.Context, order *domain.OrderRequest) (*ChargeResponse, error)
}

// ErrUnavailable means the gateway refused to send the request, e.g. because
// its circuit is open.
var ErrUnavailable = errors.New("payment api unavailable")

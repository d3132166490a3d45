package order

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/lock"
	"github.com/trilltino/handyman/internal/logger"
	"github.com/trilltino/handyman/internal/payment"
	"go.uber.org/zap"
)

const (
	DefaultTimeout = 15 * time.Second

	// leaseGrace keeps the in-flight lease alive past the payment timeout so
	// the order write and cart clear finish before another submit can start.
	leaseGrace     = 10 * time.Second
	recordTimeout  = 5 * time.Second
	confirmationPf = "HM-"
)

// Carts is read and cleared under the submission lease. Load must not be
// served from a read that started before the lease was taken.
type Carts interface {
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

// Recorder persists confirmed orders.
type Recorder interface {
	SaveOrder(ctx context.Context, order *domain.Order) error
}

type Submitter struct {
	guard    lock.Guard
	carts    Carts
	gateway  payment.Gateway
	recorder Recorder
	timeout  time.Duration
	now      func() time.Time
}

func NewSubmitter(guard lock.Guard, carts Carts, gateway payment.Gateway, recorder Recorder, timeout time.Duration) *Submitter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Submitter{
		guard:    guard,
		carts:    carts,
		gateway:  gateway,
		recorder: recorder,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Submit charges the session's cart once. c is only the caller's view: the
// cart is reloaded after the lease is taken, and on success it is cleared
// before the lease is released, so a repeated click finds it empty.
// Payment outcomes are reported in the OrderResult; the error is reserved for
// precondition, cart and guard failures. c and form are never modified.
func (s *Submitter) Submit(ctx context.Context, c *domain.Cart, form *domain.CheckoutForm) (domain.OrderResult, error) {
	if c == nil || form == nil || !form.IsSubmittable(c) {
		return domain.OrderResult{}, domain.ErrPreconditionFailed
	}

	log := logger.FromContext(ctx).With(zap.String("session_id", c.SessionID))

	token, err := s.guard.Acquire(ctx, c.SessionID, s.timeout+leaseGrace)
	if errors.Is(err, lock.ErrHeld) {
		log.Warn("order submission rejected, another one is in flight")
		return domain.OrderResult{}, domain.ErrSubmissionInFlight
	}
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("failed to acquire submission lease: %w", err)
	}

	// The charge must run to completion even if the buyer navigates away.
	detached := context.WithoutCancel(ctx)
	defer func() {
		if err := s.guard.Release(detached, c.SessionID, token); err != nil {
			log.Error("failed to release submission lease", zap.Error(err))
		}
	}()

	current, err := s.carts.Load(ctx, c.SessionID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("failed to reload cart: %w", err)
	}
	if !form.IsSubmittable(current) {
		log.Warn("cart emptied before submission started, not charging")
		return domain.OrderResult{}, domain.ErrPreconditionFailed
	}

	req := s.buildRequest(current, form)
	log = log.With(zap.String("order_id", req.ID), zap.Int64("total_minor", req.TotalMinor))

	chargeCtx, cancel := context.WithTimeout(detached, s.timeout)
	defer cancel()

	start := s.now()
	resp, err := s.gateway.Charge(chargeCtx, req)
	if err != nil {
		reason := classify(err)
		log.Error("payment charge failed",
			zap.String("reason", string(reason)),
			zap.Duration("elapsed", s.now().Sub(start)),
			zap.Error(err))
		return domain.OrderFailed(reason, err.Error()), nil
	}
	if resp == nil {
		log.Error("payment charge returned no response")
		return domain.OrderFailed(domain.ReasonNetworkFailure, "empty response"), nil
	}
	if resp.Status != payment.ChargeSucceeded {
		log.Info("payment declined", zap.String("refusal", string(resp.Refusal)))
		return domain.OrderFailed(domain.ReasonPaymentDeclined, string(resp.Refusal)), nil
	}

	ref := confirmationRef(req.ID)
	s.record(detached, log, req, resp.PaymentID, ref, current.UpdatedAt)

	// The order is paid at this point; a stale cart is not worth failing it.
	if err := s.carts.Clear(detached, c.SessionID); err != nil {
		log.Error("failed to clear cart after confirmed order", zap.String("confirmation_ref", ref), zap.Error(err))
	}

	log.Info("order confirmed", zap.String("confirmation_ref", ref), zap.String("payment_id", resp.PaymentID))
	return domain.OrderSucceeded(ref), nil
}

func (s *Submitter) buildRequest(c *domain.Cart, form *domain.CheckoutForm) *domain.OrderRequest {
	return &domain.OrderRequest{
		ID:         uuid.NewString(),
		SessionID:  c.SessionID,
		Lines:      c.Snapshot(),
		Customer:   form.Customer(),
		TotalMinor: c.Total(),
		Currency:   c.Currency,
		CreatedAt:  s.now().UTC(),
	}
}

// record stores the paid order. The charge has already been taken, so a
// failure here is logged for reconciliation and the buyer still sees success.
func (s *Submitter) record(ctx context.Context, log *zap.Logger, req *domain.OrderRequest, paymentID, ref string, cartUpdatedAt time.Time) {
	if s.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()

	order := &domain.Order{
		ID:              req.ID,
		SessionID:       req.SessionID,
		ConfirmationRef: ref,
		PaymentID:       paymentID,
		Customer:        req.Customer,
		Lines:           req.Lines,
		TotalMinor:      req.TotalMinor,
		Currency:        req.Currency,
		Status:          domain.OrderStatusConfirmed,
		CreatedAt:       req.CreatedAt,
		CartUpdatedAt:   cartUpdatedAt,
	}
	if err := s.recorder.SaveOrder(ctx, order); err != nil {
		log.Error("failed to record paid order", zap.String("payment_id", paymentID), zap.Error(err))
	}
}

func classify(err error) domain.FailureReason {
	if errors.Is(err, payment.ErrUnavailable) {
		return domain.ReasonServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ReasonTimeout
	}
	return domain.ReasonNetworkFailure
}

func confirmationRef(orderID string) string {
	id := strings.ReplaceAll(orderID, "-", "")
	if len(id) > 10 {
		id = id[:10]
	}
	return confirmationPf + strings.ToUpper(id)
}

package checkout

import (
	"context"
	"fmt"

	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/logger"
	"go.uber.org/zap"
)

type Carts interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
}

type Submitter interface {
	Submit(ctx context.Context, c *domain.Cart, form *domain.CheckoutForm) (domain.OrderResult, error)
}

// Outcome is where a checkout attempt ended up.
type Outcome struct {
	Status domain.CheckoutStatus
	Errors domain.ValidationErrors
	Result *domain.OrderResult
}

type Service struct {
	carts     Carts
	submitter Submitter
}

func NewService(carts Carts, submitter Submitter) *Service {
	return &Service{carts: carts, submitter: submitter}
}

// Validate reports field errors without touching the cart.
func (s *Service) Validate(form *domain.CheckoutForm) domain.ValidationErrors {
	return form.Validate()
}

// Submit walks one attempt through VALIDATING and then either INVALID or
// SUBMITTING and its result. Field errors are reported before the cart is
// looked at, so a blank form on an empty cart still lists every missing field.
// The submitter clears the cart on SUCCESS.
func (s *Service) Submit(ctx context.Context, sessionID string, form *domain.CheckoutForm) (*Outcome, error) {
	log := logger.FromContext(ctx)

	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	f := newFlow(c)
	if f.status == domain.CheckoutStatusEmpty {
		// Submitting means the buyer has been filling the form.
		if err := f.advance(domain.CheckoutStatusFilling); err != nil {
			return nil, err
		}
	}
	if err := f.advance(domain.CheckoutStatusValidating); err != nil {
		return nil, err
	}
	if errs := form.Validate(); len(errs) > 0 {
		if err := f.advance(domain.CheckoutStatusInvalid); err != nil {
			return nil, err
		}
		log.Info("checkout form invalid", zap.Strings("errors", errs.Messages()))
		return &Outcome{Status: f.status, Errors: errs}, nil
	}
	if c.IsEmpty() {
		return nil, fmt.Errorf("cart is empty: %w", domain.ErrPreconditionFailed)
	}

	if err := f.advance(domain.CheckoutStatusSubmitting); err != nil {
		return nil, err
	}
	result, err := s.submitter.Submit(ctx, c, form)
	if err != nil {
		return nil, err
	}

	next := domain.CheckoutStatusFailed
	if result.Success {
		next = domain.CheckoutStatusSuccess
	}
	if err := f.advance(next); err != nil {
		return nil, err
	}
	return &Outcome{Status: f.status, Result: &result}, nil
}

// flow tracks the status of a single checkout attempt.
type flow struct {
	status domain.CheckoutStatus
}

func newFlow(c *domain.Cart) *flow {
	if c.IsEmpty() {
		return &flow{status: domain.CheckoutStatusEmpty}
	}
	return &flow{status: domain.CheckoutStatusFilling}
}

func (f *flow) advance(to domain.CheckoutStatus) error {
	if f.status.IsTerminal() || !domain.CanTransitionTo(f.status, to) {
		return fmt.Errorf("%s -> %s: %w", f.status, to, domain.ErrIllegalTransition)
	}
	f.status = to
	return nil
}

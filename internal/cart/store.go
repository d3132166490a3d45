package cart

import (
	"context"
	"errors"

	"github.com/trilltino/handyman/internal/domain"
)

// Store persists carts by session id.
type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
}

var ErrCartNotFound = errors.New("cart not found")

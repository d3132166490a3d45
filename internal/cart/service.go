package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/trilltino/handyman/internal/catalog"
	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	store    Store
	catalog  catalog.Provider
	currency string
	sfg      singleflight.Group
}

func NewService(store Store, provider catalog.Provider, currency string) *Service {
	return &Service{
		store:    store,
		catalog:  provider,
		currency: currency,
	}
}

// Get returns the session's cart, or a fresh empty one when none is stored.
// Concurrent loads of the same session share one store round trip; every
// caller receives its own copy.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		return s.load(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return copyCart(v.(*domain.Cart)), nil
}

// Load reads the stored cart without joining a load already in flight. Use it
// where the read has to observe every write that finished before the call.
func (s *Service) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return s.load(ctx, sessionID)
}

func (s *Service) Add(ctx context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.Add(product, quantity); err != nil {
		return nil, err
	}
	return c, s.save(ctx, c)
}

func (s *Service) Remove(ctx context.Context, sessionID string, productID int64) (*domain.Cart, error) {
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	before := len(c.Lines)
	c.Remove(productID)
	if len(c.Lines) == before {
		return c, nil
	}
	return c, s.save(ctx, c)
}

func (s *Service) SetQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error) {
	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := c.SetQuantity(productID, quantity); err != nil {
		return nil, err
	}
	return c, s.save(ctx, c)
}

// Clear drops the stored cart. Called after a confirmed order or when the
// session ends.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, sessionID); err != nil {
		logger.FromContext(ctx).Error("cart clear failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	c, err := s.store.Get(ctx, sessionID)
	if errors.Is(err, ErrCartNotFound) {
		return domain.NewCart(sessionID, s.currency), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return c, nil
}

func (s *Service) save(ctx context.Context, c *domain.Cart) error {
	if err := s.store.Save(ctx, c); err != nil {
		logger.FromContext(ctx).Error("cart save failed", zap.Error(err))
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func copyCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Lines = c.Snapshot()
	return &out
}

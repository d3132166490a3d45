// Package consumer reacts to order events published from the outbox.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/logger"
	"github.com/trilltino/handyman/internal/repository"
	"go.uber.org/zap"
)

const readErrorBackoff = time.Second

type Carts interface {
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// CartCleaner empties the buyer's cart once an OrderPlaced event is seen.
// Checkout already clears the cart inline; this catches the cases where that
// write failed after payment went through. A cart changed after the order was
// charged belongs to a new purchase and is left alone.
type CartCleaner struct {
	carts   Carts
	reader  MessageReader
	backoff time.Duration
}

func NewCartCleaner(carts Carts, topic string, brokers ...string) *CartCleaner {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "storefront-cart-cleaner",
		MaxBytes: 10e6, // 10MB
	})
	return &CartCleaner{carts: carts, reader: reader, backoff: readErrorBackoff}
}

func (c *CartCleaner) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *CartCleaner) Close() error {
	return c.reader.Close()
}

func (c *CartCleaner) processMessage(ctx context.Context) {
	log := logger.FromContext(ctx)

	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		log.Error("error reading order event", zap.Error(err))
		select {
		case <-time.After(c.backoff):
		case <-ctx.Done():
		}
		return
	}

	if eventType(m) != repository.EventOrderPlaced {
		return
	}

	var event repository.OrderPlacedPayload
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Error("error parsing order event", zap.String("key", string(m.Key)), zap.Error(err))
		return
	}
	if event.SessionID == "" {
		log.Warn("order event without session id", zap.String("order_id", event.OrderID))
		return
	}

	current, err := c.carts.Load(ctx, event.SessionID)
	if err != nil {
		log.Error("failed to load cart for placed order",
			zap.String("order_id", event.OrderID), zap.String("session_id", event.SessionID), zap.Error(err))
		return
	}
	if current.IsEmpty() {
		return
	}
	if current.UpdatedAt.After(event.CartUpdatedAt) {
		log.Info("cart changed since order was placed, keeping it",
			zap.String("order_id", event.OrderID), zap.Time("cart_updated_at", current.UpdatedAt))
		return
	}

	if err := c.carts.Clear(ctx, event.SessionID); err != nil {
		log.Error("failed to clear cart for placed order",
			zap.String("order_id", event.OrderID), zap.String("session_id", event.SessionID), zap.Error(err))
		return
	}
	log.Debug("cart cleared for placed order", zap.String("order_id", event.OrderID))
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}

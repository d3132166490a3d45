package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/trilltino/handyman/internal/domain"
)

const EventOrderPlaced = "OrderPlaced"

// OrderPlacedPayload is the outbox body published for every confirmed order.
type OrderPlacedPayload struct {
	OrderID         string            `json:"order_id"`
	ConfirmationRef string            `json:"confirmation_ref"`
	SessionID       string            `json:"session_id"`
	PaymentID       string            `json:"payment_id"`
	Customer        domain.Customer   `json:"customer"`
	Lines           []domain.CartLine `json:"lines"`
	TotalMinor      int64             `json:"total_minor"`
	Currency        string            `json:"currency"`
	PlacedAt        time.Time         `json:"placed_at"`
	// CartUpdatedAt identifies the cart version the order was charged for.
	CartUpdatedAt   time.Time         `json:"cart_updated_at"`
}

// SaveOrder writes the order and its OrderPlaced outbox event in one
// transaction.
func (r *Repository) SaveOrder(ctx context.Context, order *domain.Order) error {
	customerJSON, err := json.Marshal(order.Customer)
	if err != nil {
		return fmt.Errorf("failed to marshal customer: %w", err)
	}
	linesJSON, err := json.Marshal(order.Lines)
	if err != nil {
		return fmt.Errorf("failed to marshal order lines: %w", err)
	}
	payload, err := json.Marshal(OrderPlacedPayload{
		OrderID:         order.ID,
		ConfirmationRef: order.ConfirmationRef,
		SessionID:       order.SessionID,
		PaymentID:       order.PaymentID,
		Customer:        order.Customer,
		Lines:           order.Lines,
		TotalMinor:      order.TotalMinor,
		Currency:        order.Currency,
		PlacedAt:        order.CreatedAt,
		CartUpdatedAt:   order.CartUpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, session_id, confirmation_ref, payment_id, customer, lines, total_minor, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID,
		order.SessionID,
		order.ConfirmationRef,
		order.PaymentID,
		customerJSON,
		linesJSON,
		order.TotalMinor,
		order.Currency,
		order.Status,
		order.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		order.ID, EventOrderPlaced, payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT id, session_id, confirmation_ref, payment_id, customer, lines, total_minor, currency, status, created_at
	          FROM orders WHERE id = $1`

	var (
		order        domain.Order
		customerJSON []byte
		linesJSON    []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID,
		&order.SessionID,
		&order.ConfirmationRef,
		&order.PaymentID,
		&customerJSON,
		&linesJSON,
		&order.TotalMinor,
		&order.Currency,
		&order.Status,
		&order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	if err := json.Unmarshal(customerJSON, &order.Customer); err != nil {
		return nil, fmt.Errorf("unmarshal customer: %w", err)
	}
	if err := json.Unmarshal(linesJSON, &order.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	return &order, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/trilltino/handyman/internal/domain"
)

// SaveContact stores the message and fills in its ID and CreatedAt.
func (r *Repository) SaveContact(ctx context.Context, msg *domain.ContactMessage) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO contact_messages (name, email, message) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		msg.Name, msg.Email, msg.Message).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert contact message: %w", err)
	}
	return nil
}

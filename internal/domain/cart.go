package domain

import (
	"fmt"
	"time"
)

// MaxLineQuantity caps a single cart line.
const MaxLineQuantity = 99

type Cart struct {
	SessionID string     `json:"session_id" bson:"session_id"`
	Lines     []CartLine `json:"lines" bson:"lines"`
	Currency  string     `json:"currency" bson:"currency"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// CartLine keeps the unit price captured when the product was first added.
type CartLine struct {
	ProductID      int64     `json:"product_id" bson:"product_id"`
	Name           string    `json:"name" bson:"name"`
	Quantity       int       `json:"quantity" bson:"quantity"`
	UnitPriceMinor int64     `json:"unit_price_minor" bson:"unit_price_minor"`
	AddedAt        time.Time `json:"added_at" bson:"added_at"`
}

func (l CartLine) SubtotalMinor() int64 {
	return l.UnitPriceMinor * int64(l.Quantity)
}

func NewCart(sessionID, currency string) *Cart {
	now := time.Now()
	return &Cart{
		SessionID: sessionID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Add inserts a line for p or increments the existing one.
func (c *Cart) Add(p *Product, quantity int) error {
	if p == nil || !p.Available {
		return ErrNotFound
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	if i := c.indexOf(p.ID); i >= 0 {
		next := c.Lines[i].Quantity + quantity
		if next > MaxLineQuantity {
			return fmt.Errorf("%w: line would hold %d", ErrInvalidQuantity, next)
		}
		c.Lines[i].Quantity = next
		c.touch()
		return nil
	}

	if quantity > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	c.Lines = append(c.Lines, CartLine{
		ProductID:      p.ID,
		Name:           p.Name,
		Quantity:       quantity,
		UnitPriceMinor: p.PriceMinor,
		AddedAt:        time.Now(),
	})
	c.touch()
	return nil
}

// Remove drops the line for productID. Absent lines are not an error.
func (c *Cart) Remove(productID int64) {
	i := c.indexOf(productID)
	if i < 0 {
		return
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.touch()
}

func (c *Cart) SetQuantity(productID int64, quantity int) error {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return ErrInvalidQuantity
	}
	i := c.indexOf(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.Lines[i].Quantity = quantity
	c.touch()
	return nil
}

func (c *Cart) Total() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.SubtotalMinor()
	}
	return total
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

func (c *Cart) Clear() {
	c.Lines = nil
	c.touch()
}

// Snapshot returns a copy of the lines that shares no memory with the cart.
func (c *Cart) Snapshot() []CartLine {
	lines := make([]CartLine, len(c.Lines))
	copy(lines, c.Lines)
	return lines
}

func (c *Cart) indexOf(productID int64) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) touch() {
	c.UpdatedAt = time.Now()
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceMinor  int64     `json:"price_minor"`
	Currency    string    `json:"currency"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"created_at"`
}

var currencySymbols = map[string]string{
	"GBP": "£",
	"USD": "$",
	"EUR": "€",
}

// FormatPrice renders a minor-unit amount as a display string, e.g. 50000 GBP -> "£500.00".
func FormatPrice(minor int64, currency string) string {
	amount := decimal.New(minor, -2).StringFixed(2)
	if symbol, ok := currencySymbols[currency]; ok {
		return symbol + amount
	}
	return amount + " " + currency
}

func (p Product) PriceFormatted() string {
	return FormatPrice(p.PriceMinor, p.Currency)
}

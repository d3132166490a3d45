package http

import (
	"context"
	"net/http"
	"time"

	"github.com/trilltino/handyman/internal/domain"
)

// EmptyCartMessage is shown exactly when the cart has no lines.
const EmptyCartMessage = "Your cart is empty"

type CartService interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Add(ctx context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error)
	Remove(ctx context.Context, sessionID string, productID int64) (*domain.Cart, error)
	SetQuantity(ctx context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error)
	Clear(ctx context.Context, sessionID string) error
}

type CartHandler struct {
	carts   CartService
	timeout time.Duration
}

func NewCartHandler(carts CartService, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  *int  `json:"quantity,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartLineResponse struct {
	ProductID      int64  `json:"product_id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
	UnitPrice      string `json:"unit_price"`
	SubtotalMinor  int64  `json:"subtotal_minor"`
	Subtotal       string `json:"subtotal"`
}

type CartResponse struct {
	Items      []CartLineResponse `json:"items"`
	TotalMinor int64              `json:"total_minor"`
	Total      string             `json:"total"`
	Currency   string             `json:"currency"`
	IsEmpty    bool               `json:"is_empty"`
	Message    string             `json:"message,omitempty"`
}

func toCartResponse(c *domain.Cart) CartResponse {
	items := make([]CartLineResponse, len(c.Lines))
	for i, l := range c.Lines {
		items[i] = CartLineResponse{
			ProductID:      l.ProductID,
			Name:           l.Name,
			Quantity:       l.Quantity,
			UnitPriceMinor: l.UnitPriceMinor,
			UnitPrice:      domain.FormatPrice(l.UnitPriceMinor, c.Currency),
			SubtotalMinor:  l.SubtotalMinor(),
			Subtotal:       domain.FormatPrice(l.SubtotalMinor(), c.Currency),
		}
	}
	resp := CartResponse{
		Items:      items,
		TotalMinor: c.Total(),
		Total:      domain.FormatPrice(c.Total(), c.Currency),
		Currency:   c.Currency,
		IsEmpty:    c.IsEmpty(),
	}
	if resp.IsEmpty {
		resp.Message = EmptyCartMessage
	}
	return resp
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	c, err := h.carts.Get(ctx, sessionID(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toCartResponse(c))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	c, err := h.carts.Add(ctx, sessionID(r), req.ProductID, quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusCreated, toCartResponse(c))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	c, err := h.carts.SetQuantity(ctx, sessionID(r), productID, req.Quantity)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toCartResponse(c))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	c, err := h.carts.Remove(ctx, sessionID(r), productID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toCartResponse(c))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sid := sessionID(r)
	if err := h.carts.Clear(ctx, sid); err != nil {
		handleServiceError(w, r, err)
		return
	}
	c, err := h.carts.Get(ctx, sid)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toCartResponse(c))
}

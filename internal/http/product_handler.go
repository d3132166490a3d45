package http

import (
	"context"
	"net/http"
	"time"

	"github.com/trilltino/handyman/internal/catalog"
	"github.com/trilltino/handyman/internal/domain"
)

type ProductHandler struct {
	catalog catalog.Provider
	timeout time.Duration
}

func NewProductHandler(provider catalog.Provider, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		catalog: provider,
		timeout: timeout,
	}
}

type ProductResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	PriceMinor     int64  `json:"price_minor"`
	PriceFormatted string `json:"price"`
	Currency       string `json:"currency"`
	Available      bool   `json:"available"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

func toProductResponse(p *domain.Product) ProductResponse {
	return ProductResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		PriceMinor:     p.PriceMinor,
		PriceFormatted: p.PriceFormatted(),
		Currency:       p.Currency,
		Available:      p.Available,
	}
}

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out := make([]ProductResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	respondJSON(w, r, http.StatusOK, &ProductsResponse{Products: out})
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := productIDParam(r)
	if !ok {
		respondError(w, r, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	p, err := h.catalog.GetProduct(ctx, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toProductResponse(p))
}

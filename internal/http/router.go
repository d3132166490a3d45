package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/trilltino/handyman/internal/catalog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	SecureCookies      bool
}

type Dependencies struct {
	Catalog  catalog.Provider
	Carts    CartService
	Checkout CheckoutService
	Contacts ContactStore
	Health   map[string]HealthCheck
}

func NewRouter(cfg RouterConfig, deps Dependencies) http.Handler {
	products := NewProductHandler(deps.Catalog, cfg.RequestTimeout)
	carts := NewCartHandler(deps.Carts, cfg.RequestTimeout)
	checkouts := NewCheckoutHandler(deps.Checkout, cfg.RequestTimeout)
	contacts := NewContactHandler(deps.Contacts, cfg.RequestTimeout)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(SessionMiddleware(cfg.SecureCookies))
	r.Use(RequestLogger)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", healthHandler(deps.Health))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", products.List)
			r.Get("/{product_id}", products.Get)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkouts.Submit)
			r.Post("/validate", checkouts.Validate)
		})
		r.Post("/contact", contacts.Submit)
	})

	return otelhttp.NewHandler(r, "storefront")
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		respondJSON(w, r, status, result)
	}
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trilltino/handyman/internal/cart"
	"github.com/trilltino/handyman/internal/checkout"
	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/lock"
	"github.com/trilltino/handyman/internal/order"
	"github.com/trilltino/handyman/internal/payment"
)

type mockCatalog struct {
	products map[int64]*domain.Product
	err      error
}

func (m *mockCatalog) ListProducts(context.Context) ([]*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*domain.Product, 0, len(m.products))
	for id := int64(1); id <= int64(len(m.products)); id++ {
		out = append(out, m.products[id])
	}
	return out, nil
}

func (m *mockCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

type memStore struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
	err   error
}

func (s *memStore) Get(_ context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.carts[sessionID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	cp := *c
	cp.Lines = c.Snapshot()
	return &cp, nil
}

func (s *memStore) Save(_ context.Context, c *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Lines = c.Snapshot()
	s.carts[c.SessionID] = &cp
	return nil
}

func (s *memStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}

type stubGateway struct {
	mu    sync.Mutex
	resp  *payment.ChargeResponse
	err   error
	calls int
}

func (g *stubGateway) Charge(context.Context, *domain.OrderRequest) (*payment.ChargeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.resp, g.err
}

type mockContacts struct {
	saved []*domain.ContactMessage
	err   error
}

func (m *mockContacts) SaveContact(_ context.Context, msg *domain.ContactMessage) error {
	if m.err != nil {
		return m.err
	}
	msg.ID = int64(len(m.saved) + 1)
	m.saved = append(m.saved, msg)
	return nil
}

type testServer struct {
	handler  http.Handler
	store    *memStore
	gateway  *stubGateway
	guard    *lock.MemoryGuard
	contacts *mockContacts
	catalog  *mockCatalog
	cookie   *http.Cookie
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	cat := &mockCatalog{products: map[int64]*domain.Product{
		1: {ID: 1, Name: "Website Development", PriceMinor: 32900, Currency: "GBP", Available: true},
		2: {ID: 2, Name: "Managed Services (monthly)", PriceMinor: 3000, Currency: "GBP", Available: true},
		3: {ID: 3, Name: "Printed Flyer Bundle", PriceMinor: 4500, Currency: "GBP", Available: false},
	}}
	store := &memStore{carts: map[string]*domain.Cart{}}
	carts := cart.NewService(store, cat, "GBP")
	gw := &stubGateway{resp: &payment.ChargeResponse{Status: payment.ChargeSucceeded, PaymentID: "pay_1"}}
	guard := lock.NewMemoryGuard()
	sub := order.NewSubmitter(guard, carts, gw, nil, time.Second)
	contacts := &mockContacts{}

	h := NewRouter(RouterConfig{
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}, Dependencies{
		Catalog:  cat,
		Carts:    carts,
		Checkout: checkout.NewService(carts, sub),
		Contacts: contacts,
		Health: map[string]HealthCheck{
			"redis": func(context.Context) error { return nil },
		},
	})

	return &testServer{handler: h, store: store, gateway: gw, guard: guard, contacts: contacts, catalog: cat}
}

// do sends a request, keeping the session cookie between calls.
func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.cookie != nil {
		req.AddCookie(s.cookie)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			s.cookie = c
		}
	}
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func validCheckoutBody() CheckoutFormDTO {
	return CheckoutFormDTO{
		Name: "John Doe", Email: "john@example.com", Address: "1 High Street", City: "Leeds", Postcode: "LS1 1AA",
	}
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["redis"])
}

func TestHealth_Degraded(t *testing.T) {
	h := NewRouter(RouterConfig{RequestTimeout: time.Second, MaxRequestBodySize: 1024}, Dependencies{
		Health: map[string]HealthCheck{"postgres": func(context.Context) error { return errors.New("connection refused") }},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionCookie_IssuedOnceAndReused(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.NotNil(t, s.cookie)
	assert.True(t, s.cookie.HttpOnly)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	first := s.cookie.Value

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, rec.Result().Cookies(), "existing session keeps its cookie")
	assert.Equal(t, first, s.cookie.Value)
}

func TestSessionCookie_MalformedIsReplaced(t *testing.T) {
	s := setupTestServer(t)
	s.cookie = &http.Cookie{Name: SessionCookieName, Value: "not-a-uuid"}

	s.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.NotEqual(t, "not-a-uuid", s.cookie.Value)
}

func TestProducts(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/products", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[ProductsResponse](t, rec)
	require.Len(t, list.Products, 3)
	assert.Equal(t, "£329.00", list.Products[0].PriceFormatted)

	rec = s.do(t, http.MethodGet, "/api/v1/products/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Managed Services (monthly)", decodeBody[ProductResponse](t, rec).Name)

	rec = s.do(t, http.MethodGet, "/api/v1/products/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts_CatalogFailureIsInternal(t *testing.T) {
	s := setupTestServer(t)
	s.catalog.err = errors.New("disk I/O error")

	rec := s.do(t, http.MethodGet, "/api/v1/products", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "internal_error", body.Code)
	assert.NotContains(t, body.Error, "disk")
}

func TestCart_EmptyMessage(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[CartResponse](t, rec)
	assert.True(t, body.IsEmpty)
	assert.Equal(t, EmptyCartMessage, body.Message)
	assert.Empty(t, body.Items)
}

func TestCart_AddTwiceMergesLine(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody[CartResponse](t, rec)
	require.Len(t, body.Items, 1)
	assert.Equal(t, 2, body.Items[0].Quantity)
	assert.Equal(t, int64(65800), body.TotalMinor)
	assert.Equal(t, "£658.00", body.Total)
	assert.Empty(t, body.Message)
}

func TestCart_Errors(t *testing.T) {
	s := setupTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown product", http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 42}, http.StatusNotFound, "not_found"},
		{"unavailable product", http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 3}, http.StatusNotFound, "not_found"},
		{"zero quantity", http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1, "quantity": 0}, http.StatusBadRequest, "invalid_quantity"},
		{"bad json", http.MethodPost, "/api/v1/cart/items", "{", http.StatusBadRequest, "invalid_request"},
		{"missing product id", http.MethodPost, "/api/v1/cart/items", map[string]int64{"quantity": 1}, http.StatusBadRequest, "invalid_product_id"},
		{"set quantity on missing line", http.MethodPut, "/api/v1/cart/items/2", map[string]int{"quantity": 3}, http.StatusNotFound, "line_not_found"},
		{"bad path id", http.MethodPut, "/api/v1/cart/items/x", map[string]int{"quantity": 3}, http.StatusBadRequest, "invalid_product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCart_UpdateRemoveClear(t *testing.T) {
	s := setupTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1})
	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 2})

	rec := s.do(t, http.MethodPut, "/api/v1/cart/items/2", map[string]int{"quantity": 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(32900+5*3000), decodeBody[CartResponse](t, rec).TotalMinor)

	rec = s.do(t, http.MethodPut, "/api/v1/cart/items/2", map[string]int{"quantity": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart/items/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[CartResponse](t, rec)
	require.Len(t, body.Items, 1)
	assert.Equal(t, int64(2), body.Items[0].ProductID)

	rec = s.do(t, http.MethodDelete, "/api/v1/cart/items/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "removing an absent line is not an error")

	rec = s.do(t, http.MethodDelete, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[CartResponse](t, rec)
	assert.True(t, body.IsEmpty)
	assert.Equal(t, "GBP", body.Currency)
}

func TestCheckoutValidate(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout/validate", CheckoutFormDTO{Email: "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ValidationErrorResponse](t, rec)
	assert.Equal(t, map[string]string{
		"name":     "Name is required",
		"email":    "Invalid email format",
		"address":  "Address is required",
		"city":     "City is required",
		"postcode": "Postcode is required",
	}, body.Fields)
	assert.Equal(t, "nope", body.Values["email"])

	rec = s.do(t, http.MethodPost, "/api/v1/checkout/validate", validCheckoutBody())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckout_EmptyCartWithValidFormIsConflict(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", validCheckoutBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "precondition_failed", decodeBody[ErrorResponse](t, rec).Code)
	assert.Zero(t, s.gateway.calls)
}

func TestCheckout_BlankFormOnEmptyCartShowsFieldErrors(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", CheckoutFormDTO{})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ValidationErrorResponse](t, rec)
	assert.Equal(t, "Name is required", body.Fields["name"])
	assert.Equal(t, "Email is required", body.Fields["email"])
	assert.Len(t, body.Fields, 5)
	assert.Zero(t, s.gateway.calls)
}

func TestCheckout_InvalidFormIs422(t *testing.T) {
	s := setupTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1})

	form := validCheckoutBody()
	form.Postcode = " "
	rec := s.do(t, http.MethodPost, "/api/v1/checkout", form)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ValidationErrorResponse](t, rec)
	assert.Equal(t, map[string]string{"postcode": "Postcode is required"}, body.Fields)
}

func TestCheckout_SuccessClearsCart(t *testing.T) {
	s := setupTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1})

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", validCheckoutBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody[CheckoutResponseDTO](t, rec)
	assert.Equal(t, "SUCCESS", body.Status)
	assert.Regexp(t, `^HM-[0-9A-F]{10}$`, body.ConfirmationRef)

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Equal(t, EmptyCartMessage, decodeBody[CartResponse](t, rec).Message)

	rec = s.do(t, http.MethodPost, "/api/v1/checkout", validCheckoutBody())
	assert.Equal(t, http.StatusConflict, rec.Code, "repeat submit after success")
	assert.Equal(t, 1, s.gateway.calls)
}

func TestCheckout_PaymentFailureKeepsCart(t *testing.T) {
	s := setupTestServer(t)
	s.gateway.resp, s.gateway.err = nil, fmt.Errorf("charge request failed: %w", context.DeadlineExceeded)
	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1})

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", validCheckoutBody())
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	raw := rec.Body.String()
	assert.Contains(t, raw, domain.PaymentFailedMessage)
	assert.NotContains(t, raw, "deadline", "failure detail is never shown")

	rec = s.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Len(t, decodeBody[CartResponse](t, rec).Items, 1)
}

func TestCheckout_InFlightIsConflict(t *testing.T) {
	s := setupTestServer(t)
	s.do(t, http.MethodPost, "/api/v1/cart/items", map[string]int64{"product_id": 1})
	_, err := s.guard.Acquire(context.Background(), s.cookie.Value, time.Minute)
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/v1/checkout", validCheckoutBody())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "submission_in_flight", decodeBody[ErrorResponse](t, rec).Code)
}

func TestContact(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/contact", ContactRequestDTO{
		Name: "Jane", Email: "jane@example.com", Message: "Need a quote",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, s.contacts.saved, 1)
	assert.Equal(t, "Need a quote", s.contacts.saved[0].Message)

	rec = s.do(t, http.MethodPost, "/api/v1/contact", ContactRequestDTO{
		Name: strings.Repeat("a", 101), Email: "jane@", Message: "",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ValidationErrorResponse](t, rec)
	assert.Len(t, body.Fields, 3)
	assert.Len(t, s.contacts.saved, 1)
}

func TestContact_StoreFailure(t *testing.T) {
	s := setupTestServer(t)
	s.contacts.err = errors.New("db down")

	rec := s.do(t, http.MethodPost, "/api/v1/contact", ContactRequestDTO{
		Name: "Jane", Email: "jane@example.com", Message: "Hello",
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

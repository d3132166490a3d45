package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/trilltino/handyman/internal/domain"
	"github.com/trilltino/handyman/internal/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const chargesPath = "/v1/charges"

type chargeLine struct {
	ProductID      int64  `json:"product_id"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

type chargeRequest struct {
	OrderID     string          `json:"order_id"`
	AmountMinor int64           `json:"amount_minor"`
	Currency    string          `json:"currency"`
	Customer    domain.Customer `json:"customer"`
	Lines       []chargeLine    `json:"lines"`
}

type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[*ChargeResponse]
}

// NewHTTPGateway talks JSON to the payment API at baseURL. The client's own
// timeout is left to the caller's context.
func NewHTTPGateway(baseURL, apiKey string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	cb := gobreaker.NewCircuitBreaker[*ChargeResponse](gobreaker.Settings{
		Name:        "payment-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.FromContext(context.Background()).Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		cb:      cb,
	}
}

func (g *HTTPGateway) Charge(ctx context.Context, order *domain.OrderRequest) (*ChargeResponse, error) {
	resp, err := g.cb.Execute(func() (*ChargeResponse, error) {
		return g.post(ctx, order)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, err
}

func (g *HTTPGateway) post(ctx context.Context, order *domain.OrderRequest) (*ChargeResponse, error) {
	body, err := json.Marshal(newChargeRequest(order))
	if err != nil {
		return nil, fmt.Errorf("marshal charge request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+chargesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build charge request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Idempotency-Key", order.ID)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read charge response failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusPaymentRequired:
		var out ChargeResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("unmarshal charge response failed: %w", err)
		}
		if out.Status != ChargeSucceeded && out.Status != ChargeDeclined {
			return nil, fmt.Errorf("unexpected charge status %q", out.Status)
		}
		if out.Status == ChargeDeclined && out.Refusal == "" {
			out.Refusal = RefusalUnknown
		}
		return &out, nil
	default:
		return nil, fmt.Errorf("payment api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
}

func newChargeRequest(order *domain.OrderRequest) chargeRequest {
	lines := make([]chargeLine, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = chargeLine{
			ProductID:      l.ProductID,
			Description:    l.Name,
			Quantity:       l.Quantity,
			UnitPriceMinor: l.UnitPriceMinor,
		}
	}
	return chargeRequest{
		OrderID:     order.ID,
		AmountMinor: order.TotalMinor,
		Currency:    order.Currency,
		Customer:    order.Customer,
		Lines:       lines,
	}
}

// Package broker provides the read-only HTTP client for the brokerage API.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dkaragian/verdict/internal/domain"
)

// Client talks to the brokerage REST API. All calls are rate limited so a
// burst of reconciliation passes cannot trip the broker's throttling.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewClient creates a new broker API client
func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Limit(5), 5), // 5 calls/sec
		log:       log.With().Str("client", "broker").Logger(),
	}
}

// GetAccountSummary fetches account-level balance and equity figures
func (c *Client) GetAccountSummary(ctx context.Context) (*domain.BrokerAccountSummary, error) {
	var summary domain.BrokerAccountSummary
	if err := c.get(ctx, "/v1/account/summary", &summary); err != nil {
		return nil, fmt.Errorf("failed to get account summary: %w", err)
	}
	return &summary, nil
}

// GetPositions fetches the broker's view of all open positions
func (c *Client) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	var positions []domain.BrokerPosition
	if err := c.get(ctx, "/v1/positions", &positions); err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	return positions, nil
}

// GetPendingOrders fetches orders that are placed but not yet filled
func (c *Client) GetPendingOrders(ctx context.Context) ([]domain.BrokerPendingOrder, error) {
	var orders []domain.BrokerPendingOrder
	if err := c.get(ctx, "/v1/orders/pending", &orders); err != nil {
		return nil, fmt.Errorf("failed to get pending orders: %w", err)
	}
	return orders, nil
}

// DailyCloses fetches recent daily closing prices for a symbol, oldest first
func (c *Client) DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error) {
	var closes []float64
	path := fmt.Sprintf("/v1/marketdata/%s/closes?days=%d", url.PathEscape(symbol), days)
	if err := c.get(ctx, path, &closes); err != nil {
		return nil, fmt.Errorf("failed to get daily closes for %s: %w", symbol, err)
	}
	return closes, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-API-Secret", c.apiSecret)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("broker API returned status %d for %s: %s", resp.StatusCode, path, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	c.log.Debug().Str("path", path).Dur("elapsed", time.Since(start)).Msg("Broker API call")
	return nil
}

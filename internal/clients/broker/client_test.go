package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkaragian/verdict/internal/domain"
)

func TestGetPositions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/positions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		json.NewEncoder(w).Encode([]domain.BrokerPosition{
			{Symbol: "AAPL", Quantity: 10, CostBasis: 1900, CurrentPrice: 195},
			{Symbol: "MSFT", Quantity: 5, CostBasis: 2100, CurrentPrice: 430},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "test-secret", 5*time.Second, zerolog.Nop())

	positions, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, 10.0, positions[0].Quantity)
}

func TestGetAccountSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/account/summary", r.URL.Path)
		json.NewEncoder(w).Encode(domain.BrokerAccountSummary{
			AccountID: "acct-1",
			Equity:    50000,
			Cash:      12000,
			Currency:  "USD",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", 5*time.Second, zerolog.Nop())

	summary, err := c.GetAccountSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50000.0, summary.Equity)
	assert.Equal(t, "USD", summary.Currency)
}

func TestGetPendingOrdersErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", 5*time.Second, zerolog.Nop())

	_, err := c.GetPendingOrders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestGetRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "s", 5*time.Second, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.GetPositions(ctx)
	require.Error(t, err)
}

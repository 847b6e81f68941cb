package domain

import "time"

// BrokerPosition is a position as reported by the broker
type BrokerPosition struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	CostBasis     float64 `json:"cost_basis"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Currency      string  `json:"currency"`
}

// BrokerAccountSummary is the broker's account-level snapshot
type BrokerAccountSummary struct {
	AccountID    string    `json:"account_id"`
	Cash         float64   `json:"cash"`
	Equity       float64   `json:"equity"`
	BuyingPower  float64   `json:"buying_power"`
	Currency     string    `json:"currency"`
	AsOf         time.Time `json:"as_of"`
}

// BrokerPendingOrder is an order submitted but not yet filled
type BrokerPendingOrder struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	PlacedAt  time.Time `json:"placed_at"`
}

package domain

import "context"

// BrokerClient is the read-only surface of the broker API used for
// reconciliation. No order placement goes through this interface.
type BrokerClient interface {
	GetAccountSummary(ctx context.Context) (*BrokerAccountSummary, error)
	GetPositions(ctx context.Context) ([]BrokerPosition, error)
	GetPendingOrders(ctx context.Context) ([]BrokerPendingOrder, error)
}

// EngineProvider produces one analytic opinion for a symbol
type EngineProvider interface {
	Kind() EngineKind
	Analyze(ctx context.Context, symbol string) (EngineResult, error)
}

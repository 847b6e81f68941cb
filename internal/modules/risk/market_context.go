package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/pkg/formulas"
)

// MarketDataSource supplies recent daily closes for a symbol, oldest first
type MarketDataSource interface {
	DailyCloses(ctx context.Context, symbol string, days int) ([]float64, error)
}

// Scale ceilings for mapping raw metrics onto [0,1]. A 60% annualized
// volatility or a 50% drawdown pins its dimension at maximum risk.
const (
	volCeiling      = 0.60
	drawdownCeiling = 0.50
	historyDays     = 252
	volWindow       = 20
	rsiWindow       = 14
)

// MarketContext derives risk dimension scores from price history
type MarketContext struct {
	data MarketDataSource
	log  zerolog.Logger
}

// NewMarketContext creates a market-data-backed context source
func NewMarketContext(data MarketDataSource, log zerolog.Logger) *MarketContext {
	return &MarketContext{
		data: data,
		log:  log.With().Str("component", "market_context").Logger(),
	}
}

// DimensionScores computes volatility, drawdown and momentum scores for a
// symbol. With too little history it returns an empty map rather than
// fabricated scores.
func (m *MarketContext) DimensionScores(ctx context.Context, symbol string) (map[string]float64, error) {
	closes, err := m.data.DailyCloses(ctx, symbol, historyDays)
	if err != nil {
		return nil, fmt.Errorf("loading closes for %s: %w", symbol, err)
	}

	scores := make(map[string]float64)
	if len(closes) < volWindow+1 {
		m.log.Debug().Str("symbol", symbol).Int("closes", len(closes)).Msg("Insufficient history for risk dimensions")
		return scores, nil
	}

	returns := formulas.CalculateReturns(closes)

	// Recent realized volatility over a rolling window, annualized
	stddevs := talib.StdDev(returns, volWindow, 1.0)
	recent := stddevs[len(stddevs)-1]
	annualized := recent * math.Sqrt(252)
	scores["volatility"] = formulas.Clamp(annualized/volCeiling, 0, 1)

	if dd := formulas.CalculateMaxDrawdown(closes); dd != nil {
		scores["drawdown"] = formulas.Clamp(*dd/drawdownCeiling, 0, 1)
	}

	if len(closes) > rsiWindow {
		rsi := talib.Rsi(closes, rsiWindow)
		last := rsi[len(rsi)-1]
		// Overextension either way reads as risk
		scores["momentum"] = formulas.Clamp(abs(last-50)/50, 0, 1)
	}

	return scores, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

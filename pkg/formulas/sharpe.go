package formulas

import (
	"math"
)

// CalculateSharpeRatio calculates the Sharpe Ratio
//
// Sharpe Ratio Formula:
//
//	Sharpe = (Mean Return - Risk-free Rate) / Standard Deviation of Returns
//	Annualized: Sharpe × sqrt(periodsPerYear)
//
// Args:
//
//	returns: Array of periodic returns (daily, per-trade, etc.)
//	riskFreeRate: Risk-free rate (annual, as decimal, e.g., 0.02 for 2%)
//	periodsPerYear: Number of periods per year (252 for daily)
//
// Returns:
//
//	Sharpe ratio or nil if insufficient data
func CalculateSharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) *float64 {
	if len(returns) < 2 {
		return nil
	}

	meanReturn := Mean(returns)

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)

	sharpe := (meanReturn - periodicRiskFree) / stdDev

	annualizedSharpe := sharpe * math.Sqrt(float64(periodsPerYear))

	return &annualizedSharpe
}

// CalculateTradeSharpe calculates an unannualized Sharpe ratio over per-trade
// returns. Used by the strategy health monitor, where observations are trade
// outcomes rather than calendar periods and annualization would be misleading.
func CalculateTradeSharpe(tradeReturns []float64) *float64 {
	if len(tradeReturns) < 2 {
		return nil
	}

	stdDev := StdDev(tradeReturns)
	if stdDev == 0 {
		return nil
	}

	sharpe := Mean(tradeReturns) / stdDev
	return &sharpe
}

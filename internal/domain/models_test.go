package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineResultValidate(t *testing.T) {
	valid := EngineResult{Engine: EngineTechnical, Signal: SignalBuy, Confidence: 0.8}
	require.NoError(t, valid.Validate())

	badSignal := EngineResult{Engine: EngineTechnical, Signal: "maybe", Confidence: 0.5}
	assert.Error(t, badSignal.Validate())

	lowConf := EngineResult{Engine: EngineTechnical, Signal: SignalHold, Confidence: -0.1}
	assert.Error(t, lowConf.Validate())

	highConf := EngineResult{Engine: EngineTechnical, Signal: SignalHold, Confidence: 1.1}
	assert.Error(t, highConf.Validate())

	// Confidence bounds are inclusive
	zero := EngineResult{Engine: EngineSentiment, Signal: SignalSell, Confidence: 0}
	assert.NoError(t, zero.Validate())
	one := EngineResult{Engine: EngineSentiment, Signal: SignalSell, Confidence: 1}
	assert.NoError(t, one.Validate())
}

func TestEngineResultValidateDetailMismatch(t *testing.T) {
	r := EngineResult{
		Engine:     EngineTechnical,
		Signal:     SignalBuy,
		Confidence: 0.7,
		Detail:     SentimentDetail{ArticleCount: 3},
	}
	assert.Error(t, r.Validate())

	r.Detail = TechnicalDetail{SMATrend: "up"}
	assert.NoError(t, r.Validate())
}

func TestRiskLevelForScore(t *testing.T) {
	assert.Equal(t, RiskLow, RiskLevelForScore(0))
	assert.Equal(t, RiskLow, RiskLevelForScore(24.9))
	assert.Equal(t, RiskModerate, RiskLevelForScore(25))
	assert.Equal(t, RiskElevated, RiskLevelForScore(50))
	assert.Equal(t, RiskSevere, RiskLevelForScore(75))
	assert.Equal(t, RiskSevere, RiskLevelForScore(100))
}

func TestTargetAllocationValidate(t *testing.T) {
	ok := TargetAllocation{Symbol: "AAPL", TargetWeightPct: 25, DriftTolerancePct: 2}
	require.NoError(t, ok.Validate())

	bySector := TargetAllocation{Sector: "technology", TargetWeightPct: 40}
	require.NoError(t, bySector.Validate())

	both := TargetAllocation{Symbol: "AAPL", Sector: "technology", TargetWeightPct: 10}
	assert.Error(t, both.Validate())

	neither := TargetAllocation{TargetWeightPct: 10}
	assert.Error(t, neither.Validate())

	zeroWeight := TargetAllocation{Symbol: "AAPL", TargetWeightPct: 0}
	assert.Error(t, zeroWeight.Validate())

	overWeight := TargetAllocation{Symbol: "AAPL", TargetWeightPct: 100.5}
	assert.Error(t, overWeight.Validate())
}

func TestTaxLotHoldingPeriod(t *testing.T) {
	acquired := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	lot := TaxLot{Symbol: "AAPL", Quantity: 10, AcquiredAt: acquired}

	assert.Equal(t, HoldingShort, lot.HoldingPeriodAt(acquired.AddDate(0, 6, 0), 365))
	assert.Equal(t, HoldingShort, lot.HoldingPeriodAt(acquired.AddDate(1, 0, 0), 365))
	assert.Equal(t, HoldingLong, lot.HoldingPeriodAt(acquired.AddDate(1, 0, 1), 365))
}

func TestTaxLotUnrealizedPnL(t *testing.T) {
	lot := TaxLot{Quantity: 10, CostBasis: 1000}
	assert.InDelta(t, 500.0, lot.UnrealizedPnL(150), 1e-9)
	assert.InDelta(t, -200.0, lot.UnrealizedPnL(80), 1e-9)
}

func TestFillEventValidate(t *testing.T) {
	base := FillEvent{
		ID: "f-1", Symbol: "AAPL", Side: FillBuy,
		Quantity: 10, Price: 150, ExecutedAt: time.Now(),
	}
	require.NoError(t, base.Validate())

	noID := base
	noID.ID = ""
	assert.Error(t, noID.Validate())

	badSide := base
	badSide.Side = "short"
	assert.Error(t, badSide.Validate())

	zeroQty := base
	zeroQty.Quantity = 0
	assert.Error(t, zeroQty.Validate())

	negPrice := base
	negPrice.Price = -1
	assert.Error(t, negPrice.Validate())
}

func TestAlertExecutionClosed(t *testing.T) {
	open := AlertExecution{ID: "a-1", Outcome: OutcomeOpen}
	assert.False(t, open.Closed())

	now := time.Now()
	closed := AlertExecution{ID: "a-2", Outcome: OutcomeWin, ClosedAt: &now}
	assert.True(t, closed.Closed())
}

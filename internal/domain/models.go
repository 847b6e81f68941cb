// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"time"
)

// Signal represents a trading opinion direction
type Signal string

const (
	SignalStrongBuy  Signal = "strong_buy"
	SignalBuy        Signal = "buy"
	SignalHold       Signal = "hold"
	SignalSell       Signal = "sell"
	SignalStrongSell Signal = "strong_sell"
)

// Valid reports whether s is a member of the closed signal enum
func (s Signal) Valid() bool {
	switch s {
	case SignalStrongBuy, SignalBuy, SignalHold, SignalSell, SignalStrongSell:
		return true
	}
	return false
}

// EngineKind identifies an analytic engine
type EngineKind string

const (
	EngineTechnical    EngineKind = "technical"
	EngineFundamental  EngineKind = "fundamental"
	EngineQuantitative EngineKind = "quantitative"
	EngineSentiment    EngineKind = "sentiment"
)

// AllEngineKinds lists the configured engines in canonical order
var AllEngineKinds = []EngineKind{
	EngineTechnical,
	EngineFundamental,
	EngineQuantitative,
	EngineSentiment,
}

// EngineResult is one analytic opinion - the contract every signal producer
// must emit
type EngineResult struct {
	Engine     EngineKind   `json:"engine"`
	Signal     Signal       `json:"signal"`
	Confidence float64      `json:"confidence"`
	Detail     EngineDetail `json:"detail,omitempty"`
}

// Validate checks the engine result contract invariants
func (r EngineResult) Validate() error {
	if !r.Signal.Valid() {
		return fmt.Errorf("invalid signal %q from engine %s", r.Signal, r.Engine)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %f out of [0,1] from engine %s", r.Confidence, r.Engine)
	}
	if r.Detail != nil && r.Detail.EngineKind() != r.Engine {
		return fmt.Errorf("detail kind %s does not match engine %s", r.Detail.EngineKind(), r.Engine)
	}
	return nil
}

// AnalysisResult is the fused verdict for a symbol. It is constructed per
// request and never persisted as-is.
type AnalysisResult struct {
	Symbol            string                      `json:"symbol"`
	OverallSignal     Signal                      `json:"overall_signal"`
	OverallConfidence float64                     `json:"overall_confidence"`
	Engines           map[EngineKind]EngineResult `json:"engines"`
	Missing           []EngineKind                `json:"missing,omitempty"`
	Degraded          bool                        `json:"degraded"`
	RiskScore         float64                     `json:"risk_score"`
	Calibration       *CalibrationResult          `json:"calibration,omitempty"`
	Timestamp         time.Time                   `json:"timestamp"`
}

// CalibrationResult maps a raw confidence to a calibrated probability with an
// uncertainty band
type CalibrationResult struct {
	Strategy             string             `json:"strategy"`
	RawConfidence        float64            `json:"raw_confidence"`
	CalibratedConfidence float64            `json:"calibrated_confidence"`
	Uncertainty          float64            `json:"uncertainty"`
	SampleCount          int                `json:"sample_count"`
	Components           map[string]float64 `json:"components,omitempty"`
}

// RiskLevel classifies an overall risk score
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskElevated RiskLevel = "elevated"
	RiskSevere   RiskLevel = "severe"
)

// RiskLevelForScore maps a 0-100 risk score to its level.
// Thresholds: <25 low, <50 moderate, <75 elevated, else severe.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score < 25:
		return RiskLow
	case score < 50:
		return RiskModerate
	case score < 75:
		return RiskElevated
	default:
		return RiskSevere
	}
}

// RiskDimension is one scored axis of the risk radar
type RiskDimension struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`  // [0,1]
	Weight float64 `json:"weight"` // Raw configured weight, renormalized over present dimensions
}

// RiskRadar is a multi-dimension risk snapshot for a symbol
type RiskRadar struct {
	Symbol      string          `json:"symbol"`
	Dimensions  []RiskDimension `json:"dimensions"`
	OverallRisk float64         `json:"overall_risk"` // 0-100 scale
	RiskLevel   RiskLevel       `json:"risk_level"`
	Timestamp   time.Time       `json:"timestamp"`
}

// HealthStatus is a strategy reliability state
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegrading HealthStatus = "degrading"
	HealthCritical  HealthStatus = "critical"
	HealthRetired   HealthStatus = "retired"
)

// StrategyHealth is the per-strategy reliability record. The hysteresis
// streak counters are persisted with the record so restarts do not lose
// transition history.
type StrategyHealth struct {
	Name           string       `json:"name"`
	Status         HealthStatus `json:"status"`
	WinRate        *float64     `json:"win_rate,omitempty"`
	SharpeRatio    *float64     `json:"sharpe_ratio,omitempty"`
	DecayRate      *float64     `json:"decay_rate,omitempty"`
	Observations   int          `json:"observations"`
	BreachStreak   int          `json:"breach_streak"`
	RecoveryStreak int          `json:"recovery_streak"`
	CriticalSince  *time.Time   `json:"critical_since,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ExecutionOutcome classifies a closed alert execution
type ExecutionOutcome string

const (
	OutcomeOpen    ExecutionOutcome = "open"
	OutcomeWin     ExecutionOutcome = "win"
	OutcomeLoss    ExecutionOutcome = "loss"
	OutcomeExpired ExecutionOutcome = "expired"
)

// AlertExecution records an acted-upon alert. Created before any outcome is
// known; outcome and pnl become immutable once ClosedAt is set.
type AlertExecution struct {
	ID              string           `json:"id"`
	Strategy        string           `json:"strategy"`
	Symbol          string           `json:"symbol"`
	AlertConfidence float64          `json:"alert_confidence"`
	TradeID         *string          `json:"trade_id,omitempty"`
	ExecutionPrice  *float64         `json:"execution_price,omitempty"`
	Outcome         ExecutionOutcome `json:"outcome"`
	PnL             *float64         `json:"pnl,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	ClosedAt        *time.Time       `json:"closed_at,omitempty"`
}

// Closed reports whether the execution outcome is final
func (e AlertExecution) Closed() bool {
	return e.ClosedAt != nil
}

// DiscrepancyKind classifies a reconciliation difference
type DiscrepancyKind string

const (
	DiscrepancyQuantity        DiscrepancyKind = "quantity"
	DiscrepancyCostBasis       DiscrepancyKind = "cost_basis"
	DiscrepancyMissingLocal    DiscrepancyKind = "missing_local"
	DiscrepancyMissingAtBroker DiscrepancyKind = "missing_at_broker"
)

// Discrepancy describes one position difference found during reconciliation
type Discrepancy struct {
	Symbol       string          `json:"symbol"`
	Kind         DiscrepancyKind `json:"kind"`
	InternalQty  float64         `json:"internal_qty"`
	BrokerQty    float64         `json:"broker_qty"`
	InternalCost float64         `json:"internal_cost"`
	BrokerCost   float64         `json:"broker_cost"`
	AutoResolved bool            `json:"auto_resolved"`
	PendingOrder string          `json:"pending_order,omitempty"`
}

// ReconciliationLog is the result of one reconciliation pass (append-only)
type ReconciliationLog struct {
	ID             int64         `json:"id"`
	PassID         string        `json:"pass_id"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    time.Time     `json:"completed_at"`
	TotalPositions int           `json:"total_positions"`
	Matches        int           `json:"matches"`
	Discrepancies  int           `json:"discrepancies"`
	AutoResolved   int           `json:"auto_resolved"`
	Details        []Discrepancy `json:"details"`
}

// TargetAllocation is a desired portfolio weight, keyed by symbol or sector
// (mutually exclusive)
type TargetAllocation struct {
	ID                int64     `json:"id"`
	Symbol            string    `json:"symbol,omitempty"`
	Sector            string    `json:"sector,omitempty"`
	TargetWeightPct   float64   `json:"target_weight_pct"`
	DriftTolerancePct float64   `json:"drift_tolerance_pct"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Validate checks the allocation key and weight invariants
func (a TargetAllocation) Validate() error {
	if (a.Symbol == "") == (a.Sector == "") {
		return fmt.Errorf("allocation must set exactly one of symbol or sector")
	}
	if a.TargetWeightPct <= 0 || a.TargetWeightPct > 100 {
		return fmt.Errorf("target weight %f out of (0,100]", a.TargetWeightPct)
	}
	if a.DriftTolerancePct < 0 {
		return fmt.Errorf("drift tolerance %f must not be negative", a.DriftTolerancePct)
	}
	return nil
}

// HoldingPeriod classifies a lot's tax treatment
type HoldingPeriod string

const (
	HoldingShort HoldingPeriod = "short"
	HoldingLong  HoldingPeriod = "long"
)

// TaxLot is one acquisition lot of a holding
type TaxLot struct {
	ID               int64      `json:"id"`
	Symbol           string     `json:"symbol"`
	Quantity         float64    `json:"quantity"`
	OriginalQuantity float64    `json:"original_quantity"`
	CostBasis        float64    `json:"cost_basis"` // Total cost for the remaining quantity
	AcquiredAt       time.Time  `json:"acquired_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	SourceFillID     string     `json:"source_fill_id"`
}

// HoldingPeriodAt derives short/long classification relative to asOf
func (l TaxLot) HoldingPeriodAt(asOf time.Time, longTermDays int) HoldingPeriod {
	if asOf.Sub(l.AcquiredAt) > time.Duration(longTermDays)*24*time.Hour {
		return HoldingLong
	}
	return HoldingShort
}

// UnrealizedPnL computes the open gain against a current price
func (l TaxLot) UnrealizedPnL(currentPrice float64) float64 {
	return currentPrice*l.Quantity - l.CostBasis
}

// LotDisposal records one matched lot portion from a sell fill
type LotDisposal struct {
	ID             int64         `json:"id"`
	LotID          int64         `json:"lot_id"`
	FillID         string        `json:"fill_id"`
	Symbol         string        `json:"symbol"`
	Quantity       float64       `json:"quantity"`
	Proceeds       float64       `json:"proceeds"`
	CostBasis      float64       `json:"cost_basis"`
	RealizedGain   float64       `json:"realized_gain"`
	Term           HoldingPeriod `json:"term"`
	WashSale       bool          `json:"wash_sale"`
	DisallowedLoss float64       `json:"disallowed_loss"`
	SoldAt         time.Time     `json:"sold_at"`
}

// TaxYearEndSummary aggregates realized results for a tax year
type TaxYearEndSummary struct {
	Year                int     `json:"year"`
	ShortTermGains      float64 `json:"short_term_gains"`
	LongTermGains       float64 `json:"long_term_gains"`
	TotalGains          float64 `json:"total_gains"`
	WashSaleAdjustments float64 `json:"wash_sale_adjustments"`
	HarvestedLosses     float64 `json:"harvested_losses"`
	Disposals           int     `json:"disposals"`
}

// FillSide is the direction of a trade fill
type FillSide string

const (
	FillBuy  FillSide = "buy"
	FillSell FillSide = "sell"
)

// FillEvent is a trade fill delivered by the fill event source. Delivery is
// at-least-once; ID is the dedup key.
type FillEvent struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Side       FillSide  `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Fees       float64   `json:"fees"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Validate checks fill invariants at the ingestion boundary
func (f FillEvent) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("fill id is required")
	}
	if f.Symbol == "" {
		return fmt.Errorf("fill symbol is required")
	}
	if f.Side != FillBuy && f.Side != FillSell {
		return fmt.Errorf("invalid fill side %q", f.Side)
	}
	if f.Quantity <= 0 {
		return fmt.Errorf("fill quantity must be positive, got %f", f.Quantity)
	}
	if f.Price < 0 {
		return fmt.Errorf("fill price must not be negative, got %f", f.Price)
	}
	return nil
}

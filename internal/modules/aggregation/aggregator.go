// Package aggregation fans analysis requests out to the analytic engines and
// fuses their opinions into a single verdict.
package aggregation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/events"
)

// WeightSource supplies per-engine reliability weights. Implementations must
// return a snapshot that is safe to read without further locking.
type WeightSource interface {
	EngineWeights() map[domain.EngineKind]float64
}

// Calibrator maps a raw fused confidence to a calibrated one
type Calibrator interface {
	Calibrate(strategy string, rawConfidence float64) domain.CalibrationResult
}

// RiskProvider scores the current risk for a symbol
type RiskProvider interface {
	ScoreSymbol(ctx context.Context, symbol string) (domain.RiskRadar, error)
}

// signalDirection collapses each signal onto its trade direction, used for
// majority tie-breaking between equally-voted signals
var signalDirection = map[domain.Signal]int{
	domain.SignalStrongBuy:  1,
	domain.SignalBuy:        1,
	domain.SignalHold:       0,
	domain.SignalSell:       -1,
	domain.SignalStrongSell: -1,
}

// voteOrder is the deterministic fallback when both tie-breakers are
// exhausted, so fusion stays order independent
var voteOrder = []domain.Signal{
	domain.SignalStrongBuy,
	domain.SignalBuy,
	domain.SignalHold,
	domain.SignalSell,
	domain.SignalStrongSell,
}

// Aggregator queries all engines concurrently and produces the fused verdict
type Aggregator struct {
	providers []domain.EngineProvider
	weights   WeightSource
	calibrate Calibrator
	risk      RiskProvider
	bus       *events.Bus
	cfg       config.AggregationConfig
	timeout   time.Duration
	log       zerolog.Logger
}

// NewAggregator creates an aggregator. Calibrator and risk provider are
// optional; when nil the corresponding fields of the result stay empty.
func NewAggregator(
	providers []domain.EngineProvider,
	weights WeightSource,
	calibrate Calibrator,
	risk RiskProvider,
	bus *events.Bus,
	cfg config.AggregationConfig,
	timeout time.Duration,
	log zerolog.Logger,
) *Aggregator {
	return &Aggregator{
		providers: providers,
		weights:   weights,
		calibrate: calibrate,
		risk:      risk,
		bus:       bus,
		cfg:       cfg,
		timeout:   timeout,
		log:       log.With().Str("component", "aggregator").Logger(),
	}
}

type engineResponse struct {
	kind   domain.EngineKind
	result domain.EngineResult
	err    error
}

// Analyze fans out to every engine concurrently, waits for all to respond or
// time out, and fuses whatever came back. A slow or failed engine never
// blocks the verdict past the per-engine timeout.
func (a *Aggregator) Analyze(ctx context.Context, symbol string) (domain.AnalysisResult, error) {
	responses := make(chan engineResponse, len(a.providers))

	var wg sync.WaitGroup
	for _, p := range a.providers {
		wg.Add(1)
		go func(p domain.EngineProvider) {
			defer wg.Done()
			engineCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()
			result, err := p.Analyze(engineCtx, symbol)
			responses <- engineResponse{kind: p.Kind(), result: result, err: err}
		}(p)
	}
	wg.Wait()
	close(responses)

	results := make(map[domain.EngineKind]domain.EngineResult)
	var missing []domain.EngineKind
	for resp := range responses {
		if resp.err != nil {
			a.log.Warn().Err(resp.err).
				Str("engine", string(resp.kind)).
				Str("symbol", symbol).
				Msg("Engine unavailable, excluding from consensus")
			missing = append(missing, resp.kind)
			continue
		}
		results[resp.kind] = resp.result
	}

	analysis := a.fuse(symbol, results, missing)

	if a.risk != nil {
		radar, err := a.risk.ScoreSymbol(ctx, symbol)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("Risk scoring failed")
		} else {
			analysis.RiskScore = radar.OverallRisk
		}
	}

	if a.calibrate != nil && len(results) > 0 {
		cal := a.calibrate.Calibrate("consensus", analysis.OverallConfidence)
		analysis.Calibration = &cal
	}

	if a.bus != nil {
		a.bus.Publish("aggregation", &events.AnalysisCompletedData{
			Symbol:            symbol,
			OverallSignal:     string(analysis.OverallSignal),
			OverallConfidence: analysis.OverallConfidence,
			EnginesResponded:  len(results),
			Degraded:          analysis.Degraded,
		})
	}

	return analysis, nil
}

// fuse computes the voted consensus over the engines that responded.
// Each engine casts a vote for its signal with weight reliability times its
// own confidence, so a confident opinion from a trusted engine dominates.
// Vote ties fall to the direction the majority of engines agree on, then to
// the signal backed by the highest single confidence.
func (a *Aggregator) fuse(symbol string, results map[domain.EngineKind]domain.EngineResult, missing []domain.EngineKind) domain.AnalysisResult {
	analysis := domain.AnalysisResult{
		Symbol:    symbol,
		Engines:   results,
		Missing:   missing,
		Timestamp: time.Now().UTC(),
	}

	if len(results) == 0 {
		analysis.OverallSignal = domain.SignalHold
		analysis.Degraded = true
		return analysis
	}

	reliability := map[domain.EngineKind]float64{}
	if a.weights != nil {
		reliability = a.weights.EngineWeights()
	}

	votes := make(map[domain.Signal]float64)
	topConf := make(map[domain.Signal]float64)
	var directionSum int
	var weightedConf, totalWeight float64
	for kind, result := range results {
		rel, ok := reliability[kind]
		if !ok {
			rel = 1.0
		}
		w := rel * result.Confidence
		votes[result.Signal] += w
		if result.Confidence > topConf[result.Signal] {
			topConf[result.Signal] = result.Confidence
		}
		directionSum += signalDirection[result.Signal]
		weightedConf += w * result.Confidence
		totalWeight += w
	}

	if totalWeight > 0 {
		analysis.OverallSignal = winningSignal(votes, topConf, directionSum)
		analysis.OverallConfidence = weightedConf / totalWeight
	} else {
		// Every responding engine reported zero confidence
		analysis.OverallSignal = domain.SignalHold
	}

	if len(results) < a.cfg.MinEngines {
		analysis.Degraded = true
		analysis.OverallConfidence *= a.cfg.DegradedPenalty
	}

	return analysis
}

// winningSignal picks the signal with the highest vote total. On a vote tie
// it keeps the candidates matching the majority direction of the present
// engines, then the one with the highest single backing confidence, then
// falls back to a fixed signal order.
func winningSignal(votes, topConf map[domain.Signal]float64, directionSum int) domain.Signal {
	const eps = 1e-9

	var maxVote float64
	for _, v := range votes {
		if v > maxVote {
			maxVote = v
		}
	}

	var tied []domain.Signal
	for _, sig := range voteOrder {
		if v, ok := votes[sig]; ok && v >= maxVote-eps {
			tied = append(tied, sig)
		}
	}
	if len(tied) == 1 {
		return tied[0]
	}

	if directionSum != 0 {
		majority := 1
		if directionSum < 0 {
			majority = -1
		}
		var aligned []domain.Signal
		for _, sig := range tied {
			if signalDirection[sig] == majority {
				aligned = append(aligned, sig)
			}
		}
		if len(aligned) > 0 {
			tied = aligned
		}
	}

	winner := tied[0]
	for _, sig := range tied[1:] {
		if topConf[sig] > topConf[winner]+eps {
			winner = sig
		}
	}
	return winner
}

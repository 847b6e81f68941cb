// Package risk scores symbols across weighted risk dimensions.
package risk

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/pkg/formulas"
)

// DimensionWeights are the configured raw weights per dimension. They need
// not sum to one; the scorer renormalizes over whichever dimensions are
// present for a given symbol.
var DefaultDimensionWeights = map[string]float64{
	"volatility":    0.30,
	"drawdown":      0.25,
	"liquidity":     0.20,
	"concentration": 0.15,
	"momentum":      0.10,
}

// ContextSource produces per-dimension risk scores in [0,1] for a symbol.
// A dimension absent from the returned map is treated as unavailable, not
// as zero risk.
type ContextSource interface {
	DimensionScores(ctx context.Context, symbol string) (map[string]float64, error)
}

// Scorer combines dimension scores into a 0-100 risk radar
type Scorer struct {
	source  ContextSource
	weights map[string]float64
	log     zerolog.Logger
}

// NewScorer creates a risk scorer. Nil weights fall back to the defaults.
func NewScorer(source ContextSource, weights map[string]float64, log zerolog.Logger) *Scorer {
	if weights == nil {
		weights = DefaultDimensionWeights
	}
	return &Scorer{
		source:  source,
		weights: weights,
		log:     log.With().Str("component", "risk_scorer").Logger(),
	}
}

// ScoreSymbol builds the risk radar for a symbol from whatever dimensions
// the context source can provide
func (s *Scorer) ScoreSymbol(ctx context.Context, symbol string) (domain.RiskRadar, error) {
	scores, err := s.source.DimensionScores(ctx, symbol)
	if err != nil {
		return domain.RiskRadar{}, err
	}
	return s.Score(symbol, scores), nil
}

// Score combines the present dimensions. Missing dimensions are excluded
// and the remaining weights renormalized, so one unavailable data feed
// shifts emphasis instead of silently diluting the score.
func (s *Scorer) Score(symbol string, scores map[string]float64) domain.RiskRadar {
	radar := domain.RiskRadar{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
	}

	var totalWeight float64
	names := make([]string, 0, len(scores))
	for name := range scores {
		w, ok := s.weights[name]
		if !ok {
			s.log.Warn().Str("dimension", name).Msg("Unknown risk dimension, ignoring")
			continue
		}
		names = append(names, name)
		totalWeight += w
	}
	sort.Strings(names)

	if totalWeight == 0 {
		radar.RiskLevel = domain.RiskLevelForScore(0)
		return radar
	}

	var overall float64
	for _, name := range names {
		score := formulas.Clamp(scores[name], 0, 1)
		weight := s.weights[name]
		radar.Dimensions = append(radar.Dimensions, domain.RiskDimension{
			Name:   name,
			Score:  score,
			Weight: weight,
		})
		overall += (weight / totalWeight) * score
	}

	radar.OverallRisk = overall * 100
	radar.RiskLevel = domain.RiskLevelForScore(radar.OverallRisk)
	return radar
}

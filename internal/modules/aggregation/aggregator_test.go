package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/domain"
)

type stubProvider struct {
	kind   domain.EngineKind
	result domain.EngineResult
	err    error
	delay  time.Duration
}

func (s *stubProvider) Kind() domain.EngineKind { return s.kind }

func (s *stubProvider) Analyze(ctx context.Context, symbol string) (domain.EngineResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return domain.EngineResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return domain.EngineResult{}, s.err
	}
	return s.result, nil
}

type stubWeights struct {
	weights map[domain.EngineKind]float64
}

func (s *stubWeights) EngineWeights() map[domain.EngineKind]float64 { return s.weights }

func defaultCfg() config.AggregationConfig {
	return config.AggregationConfig{DegradedPenalty: 0.5, MinEngines: 2}
}

func newTestAggregator(providers []domain.EngineProvider, weights WeightSource) *Aggregator {
	return NewAggregator(providers, weights, nil, nil, nil, defaultCfg(), time.Second, zerolog.Nop())
}

func engineResult(kind domain.EngineKind, signal domain.Signal, conf float64) domain.EngineResult {
	return domain.EngineResult{Engine: kind, Signal: signal, Confidence: conf}
}

func TestAnalyzeNoEnginesRespond(t *testing.T) {
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, err: errors.New("down")},
		&stubProvider{kind: domain.EngineSentiment, err: errors.New("down")},
	}

	agg := newTestAggregator(providers, nil)
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, domain.SignalHold, result.OverallSignal)
	assert.Zero(t, result.OverallConfidence)
	assert.True(t, result.Degraded)
	assert.Len(t, result.Missing, 2)
	assert.Empty(t, result.Engines)
}

func TestAnalyzeSingleEngineDegraded(t *testing.T) {
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalBuy, 0.8)},
		&stubProvider{kind: domain.EngineSentiment, err: errors.New("down")},
	}

	agg := newTestAggregator(providers, nil)
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.True(t, result.Degraded)
	assert.Equal(t, domain.SignalBuy, result.OverallSignal)
	// Single responder confidence 0.8, halved by the degraded penalty
	assert.InDelta(t, 0.4, result.OverallConfidence, 1e-9)
	assert.Equal(t, []domain.EngineKind{domain.EngineSentiment}, result.Missing)
}

func TestAnalyzeConsensus(t *testing.T) {
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalStrongBuy, 0.9)},
		&stubProvider{kind: domain.EngineFundamental, result: engineResult(domain.EngineFundamental, domain.SignalBuy, 0.7)},
		&stubProvider{kind: domain.EngineQuantitative, result: engineResult(domain.EngineQuantitative, domain.SignalBuy, 0.6)},
	}

	agg := newTestAggregator(providers, nil)
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.False(t, result.Degraded)
	assert.Equal(t, domain.SignalBuy, result.OverallSignal)
	assert.Greater(t, result.OverallConfidence, 0.6)
	assert.LessOrEqual(t, result.OverallConfidence, 0.9)
	assert.Len(t, result.Engines, 3)
}

func TestAnalyzeReliabilityWeightsShiftConsensus(t *testing.T) {
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalBuy, 0.6)},
		&stubProvider{kind: domain.EngineFundamental, result: engineResult(domain.EngineFundamental, domain.SignalSell, 0.5)},
		&stubProvider{kind: domain.EngineSentiment, result: engineResult(domain.EngineSentiment, domain.SignalSell, 0.5)},
	}

	// Equal weights: the sell camp out-votes the lone buy, 1.0 to 0.6
	equal := newTestAggregator(providers, &stubWeights{weights: map[domain.EngineKind]float64{
		domain.EngineTechnical:   1.0,
		domain.EngineFundamental: 1.0,
		domain.EngineSentiment:   1.0,
	}})
	result, err := equal.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalSell, result.OverallSignal)

	// Sell camp near-retired: its combined vote drops to 0.25 and buy wins
	skewed := newTestAggregator(providers, &stubWeights{weights: map[domain.EngineKind]float64{
		domain.EngineTechnical:   1.0,
		domain.EngineFundamental: 0.25,
		domain.EngineSentiment:   0.25,
	}})
	result, err = skewed.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalBuy, result.OverallSignal)
}

func TestAnalyzeOrderIndependent(t *testing.T) {
	a := &stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalBuy, 0.9)}
	b := &stubProvider{kind: domain.EngineFundamental, result: engineResult(domain.EngineFundamental, domain.SignalSell, 0.4)}
	c := &stubProvider{kind: domain.EngineSentiment, result: engineResult(domain.EngineSentiment, domain.SignalHold, 0.6)}

	first := newTestAggregator([]domain.EngineProvider{a, b, c}, nil)
	second := newTestAggregator([]domain.EngineProvider{c, a, b}, nil)

	r1, err := first.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	r2, err := second.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, r1.OverallSignal, r2.OverallSignal)
	assert.InDelta(t, r1.OverallConfidence, r2.OverallConfidence, 1e-9)
}

func TestAnalyzeSlowEngineTimesOut(t *testing.T) {
	fast := &stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalBuy, 0.8)}
	slow := &stubProvider{kind: domain.EngineQuantitative, delay: time.Second, result: engineResult(domain.EngineQuantitative, domain.SignalSell, 0.9)}

	agg := NewAggregator(
		[]domain.EngineProvider{fast, slow},
		nil, nil, nil, nil,
		defaultCfg(), 50*time.Millisecond, zerolog.Nop(),
	)

	start := time.Now()
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, result.Missing, domain.EngineQuantitative)
	assert.Equal(t, domain.SignalBuy, result.OverallSignal)
}

func TestAnalyzeZeroConfidenceEngines(t *testing.T) {
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalBuy, 0)},
		&stubProvider{kind: domain.EngineSentiment, result: engineResult(domain.EngineSentiment, domain.SignalSell, 0)},
	}

	agg := newTestAggregator(providers, nil)
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, domain.SignalHold, result.OverallSignal)
	assert.Zero(t, result.OverallConfidence)
}

func TestAnalyzeHighestVoteWinsOverSingleOpinion(t *testing.T) {
	// One very confident strong_buy (vote 0.9) against two sells whose
	// combined vote is 1.05
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalStrongBuy, 0.9)},
		&stubProvider{kind: domain.EngineFundamental, result: engineResult(domain.EngineFundamental, domain.SignalSell, 0.55)},
		&stubProvider{kind: domain.EngineSentiment, result: engineResult(domain.EngineSentiment, domain.SignalSell, 0.5)},
	}

	agg := newTestAggregator(providers, nil)
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalSell, result.OverallSignal)
}

func TestAnalyzeVoteTieFallsToMajorityDirection(t *testing.T) {
	// buy vote 0.5+0.5 ties strong_sell's 1.0; two of three engines lean
	// buy, so buy takes the tie
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalBuy, 0.5)},
		&stubProvider{kind: domain.EngineFundamental, result: engineResult(domain.EngineFundamental, domain.SignalBuy, 0.5)},
		&stubProvider{kind: domain.EngineSentiment, result: engineResult(domain.EngineSentiment, domain.SignalStrongSell, 1.0)},
	}

	agg := newTestAggregator(providers, nil)
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalBuy, result.OverallSignal)
}

func TestAnalyzeVoteTieFallsToHighestConfidence(t *testing.T) {
	// Reliability skew produces a 0.4 vote tie between two buy-side
	// signals; the 0.8-confidence opinion outranks the 0.4 one
	providers := []domain.EngineProvider{
		&stubProvider{kind: domain.EngineTechnical, result: engineResult(domain.EngineTechnical, domain.SignalStrongBuy, 0.4)},
		&stubProvider{kind: domain.EngineFundamental, result: engineResult(domain.EngineFundamental, domain.SignalBuy, 0.8)},
	}

	agg := newTestAggregator(providers, &stubWeights{weights: map[domain.EngineKind]float64{
		domain.EngineTechnical:   1.0,
		domain.EngineFundamental: 0.5,
	}})
	result, err := agg.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalBuy, result.OverallSignal)
}

// Package calibration maps raw alert confidences to empirically observed
// win probabilities.
package calibration

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/events"
	"github.com/dkaragian/verdict/pkg/formulas"
)

// ObservedOutcome is one closed execution used as calibration evidence
type ObservedOutcome struct {
	Confidence float64
	Won        bool
}

// OutcomeSource supplies closed outcomes for a strategy. Open executions
// must never appear here.
type OutcomeSource interface {
	ClosedOutcomes(strategy string) ([]ObservedOutcome, error)
}

// bucket accumulates outcomes whose confidence falls in one interval
type bucket struct {
	center  float64
	wins    int
	total   int
	winRate float64
}

// curve is a fitted monotone calibration curve for one strategy
type curve struct {
	points    []bucket // Only buckets meeting the sample minimum, ascending by center
	totalObs  int
	refreshed time.Time
}

// Calibrator fits and serves per-strategy calibration curves. Curves are
// rebuilt by Refresh and read lock-free-cheaply by Calibrate.
type Calibrator struct {
	source OutcomeSource
	bus    *events.Bus
	cfg    config.CalibrationConfig
	log    zerolog.Logger

	mu     sync.RWMutex
	curves map[string]*curve
}

// NewCalibrator creates a calibrator
func NewCalibrator(source OutcomeSource, bus *events.Bus, cfg config.CalibrationConfig, log zerolog.Logger) *Calibrator {
	return &Calibrator{
		source: source,
		bus:    bus,
		cfg:    cfg,
		log:    log.With().Str("component", "calibrator").Logger(),
		curves: make(map[string]*curve),
	}
}

// Refresh rebuilds the calibration curve for a strategy from its closed
// outcomes
func (c *Calibrator) Refresh(strategy string) error {
	outcomes, err := c.source.ClosedOutcomes(strategy)
	if err != nil {
		return fmt.Errorf("loading outcomes for %s: %w", strategy, err)
	}

	fitted := c.fit(outcomes)

	c.mu.Lock()
	c.curves[strategy] = fitted
	c.mu.Unlock()

	c.log.Info().
		Str("strategy", strategy).
		Int("observations", fitted.totalObs).
		Int("buckets", len(fitted.points)).
		Msg("Calibration curve refreshed")

	if c.bus != nil {
		c.bus.Publish("calibration", &events.CalibrationUpdatedData{
			Strategy:    strategy,
			SampleCount: fitted.totalObs,
			Buckets:     len(fitted.points),
		})
	}
	return nil
}

// fit bins outcomes into equal-width confidence buckets, drops buckets below
// the sample minimum, and enforces monotonicity with pool-adjacent-violators
func (c *Calibrator) fit(outcomes []ObservedOutcome) *curve {
	n := c.cfg.Buckets
	buckets := make([]bucket, n)
	for i := range buckets {
		buckets[i].center = (float64(i) + 0.5) / float64(n)
	}

	for _, o := range outcomes {
		idx := int(o.Confidence * float64(n))
		if idx >= n {
			idx = n - 1
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx].total++
		if o.Won {
			buckets[idx].wins++
		}
	}

	points := make([]bucket, 0, n)
	for _, b := range buckets {
		if b.total < c.cfg.MinSamples {
			continue
		}
		b.winRate = float64(b.wins) / float64(b.total)
		points = append(points, b)
	}

	poolAdjacentViolators(points)

	return &curve{points: points, totalObs: len(outcomes), refreshed: time.Now().UTC()}
}

// poolAdjacentViolators merges adjacent buckets that violate monotonicity,
// replacing each pool with its weighted mean win rate
func poolAdjacentViolators(points []bucket) {
	if len(points) < 2 {
		return
	}

	values := make([]float64, len(points))
	weights := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.winRate
		weights[i] = float64(p.total)
	}

	for {
		violated := false
		for i := 0; i < len(values)-1; i++ {
			if values[i] > values[i+1] {
				pooled := (values[i]*weights[i] + values[i+1]*weights[i+1]) / (weights[i] + weights[i+1])
				values[i] = pooled
				values[i+1] = pooled
				w := weights[i] + weights[i+1]
				weights[i] = w
				weights[i+1] = w
				violated = true
			}
		}
		if !violated {
			break
		}
	}

	for i := range points {
		points[i].winRate = values[i]
	}
}

// Calibrate maps a raw confidence through the strategy's fitted curve.
// With no usable curve the raw value passes through at full uncertainty, so
// downstream consumers can see how little the estimate is worth.
func (c *Calibrator) Calibrate(strategy string, rawConfidence float64) domain.CalibrationResult {
	raw := formulas.Clamp(rawConfidence, 0, 1)

	result := domain.CalibrationResult{
		Strategy:             strategy,
		RawConfidence:        raw,
		CalibratedConfidence: raw,
		Uncertainty:          1.0,
	}

	c.mu.RLock()
	fitted, ok := c.curves[strategy]
	c.mu.RUnlock()

	if !ok || len(fitted.points) == 0 {
		return result
	}

	result.SampleCount = fitted.totalObs
	calibrated, nearestN := interpolate(fitted.points, raw)
	result.CalibratedConfidence = formulas.Clamp(calibrated, 0, 1)
	result.Uncertainty = formulas.Clamp(1/math.Sqrt(float64(nearestN)), c.cfg.UncertaintyFloor, 1.0)
	result.Components = map[string]float64{
		"curve_buckets": float64(len(fitted.points)),
		"nearest_n":     float64(nearestN),
	}
	return result
}

// interpolate evaluates the piecewise-linear curve at raw and returns the
// value plus the sample count of the nearest bucket
func interpolate(points []bucket, raw float64) (float64, int) {
	first := points[0]
	last := points[len(points)-1]

	if raw <= first.center {
		return first.winRate, first.total
	}
	if raw >= last.center {
		return last.winRate, last.total
	}

	for i := 0; i < len(points)-1; i++ {
		lo, hi := points[i], points[i+1]
		if raw < lo.center || raw > hi.center {
			continue
		}
		t := (raw - lo.center) / (hi.center - lo.center)
		value := lo.winRate + t*(hi.winRate-lo.winRate)
		nearest := lo
		if t > 0.5 {
			nearest = hi
		}
		return value, nearest.total
	}

	return last.winRate, last.total
}

// Curves returns a summary of the currently fitted curves for inspection
func (c *Calibrator) Curves() map[string]map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(c.curves))
	for strategy, fitted := range c.curves {
		pts := make([]map[string]float64, 0, len(fitted.points))
		for _, p := range fitted.points {
			pts = append(pts, map[string]float64{
				"center":   p.center,
				"win_rate": p.winRate,
				"samples":  float64(p.total),
			})
		}
		out[strategy] = map[string]interface{}{
			"points":       pts,
			"observations": fitted.totalObs,
			"refreshed_at": fitted.refreshed.Format(time.RFC3339),
		}
	}
	return out
}

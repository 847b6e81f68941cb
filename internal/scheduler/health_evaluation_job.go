package scheduler

import (
	"github.com/rs/zerolog"
)

// HealthMonitorInterface defines the contract for strategy health evaluation
// Used by scheduler to enable testing with mocks
type HealthMonitorInterface interface {
	EvaluateAll() error
}

// CalibratorInterface defines the contract for calibration curve refresh
// Used by scheduler to enable testing with mocks
type CalibratorInterface interface {
	Refresh(strategy string) error
}

// StrategySourceInterface lists the strategies with closed executions
type StrategySourceInterface interface {
	Strategies() ([]string, error)
}

// HealthEvaluationJob re-evaluates strategy health and rebuilds calibration
// curves from the latest closed executions
type HealthEvaluationJob struct {
	monitor    HealthMonitorInterface
	calibrator CalibratorInterface
	strategies StrategySourceInterface
	log        zerolog.Logger
}

// NewHealthEvaluationJob creates a new HealthEvaluationJob
func NewHealthEvaluationJob(
	monitor HealthMonitorInterface,
	calibrator CalibratorInterface,
	strategies StrategySourceInterface,
	log zerolog.Logger,
) *HealthEvaluationJob {
	return &HealthEvaluationJob{
		monitor:    monitor,
		calibrator: calibrator,
		strategies: strategies,
		log:        log.With().Str("job", "health_evaluation").Logger(),
	}
}

// Name returns the job name
func (j *HealthEvaluationJob) Name() string {
	return "health_evaluation"
}

// Run evaluates all strategies and refreshes their calibration curves
func (j *HealthEvaluationJob) Run() error {
	if err := j.monitor.EvaluateAll(); err != nil {
		return err
	}

	names, err := j.strategies.Strategies()
	if err != nil {
		return err
	}

	refreshed := 0
	for _, name := range names {
		if err := j.calibrator.Refresh(name); err != nil {
			j.log.Warn().Err(err).Str("strategy", name).Msg("Calibration refresh failed")
			continue
		}
		refreshed++
	}

	// The consensus curve spans every strategy's outcomes and feeds the
	// aggregator directly.
	if err := j.calibrator.Refresh("consensus"); err != nil {
		j.log.Warn().Err(err).Msg("Consensus calibration refresh failed")
	}

	j.log.Info().
		Int("strategies", len(names)).
		Int("refreshed", refreshed).
		Msg("Health evaluation completed")
	return nil
}

package health

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/events"
	"github.com/dkaragian/verdict/pkg/formulas"
)

// TradeOutcome is one closed trade used for health evaluation
type TradeOutcome struct {
	Won      bool
	PnL      float64
	ClosedAt time.Time
}

// TradeSource supplies recent closed trades per strategy, newest first
type TradeSource interface {
	Strategies() ([]string, error)
	RecentOutcomes(strategy string, limit int) ([]TradeOutcome, error)
}

// Monitor evaluates strategy health windows and drives the status state
// machine. Transitions out of healthy or back require the configured number
// of consecutive confirming windows; retired is terminal except through
// ReEnable.
type Monitor struct {
	repo    *Repository
	trades  TradeSource
	weights *WeightBook
	bus     *events.Bus
	cfg     config.HealthConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewMonitor creates a health monitor
func NewMonitor(repo *Repository, trades TradeSource, weights *WeightBook, bus *events.Bus, cfg config.HealthConfig, log zerolog.Logger) *Monitor {
	return &Monitor{
		repo:    repo,
		trades:  trades,
		weights: weights,
		bus:     bus,
		cfg:     cfg,
		log:     log.With().Str("component", "health_monitor").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateAll runs one evaluation window over every known strategy
func (m *Monitor) EvaluateAll() error {
	strategies, err := m.trades.Strategies()
	if err != nil {
		return fmt.Errorf("listing strategies: %w", err)
	}

	for _, name := range strategies {
		if err := m.Evaluate(name); err != nil {
			m.log.Error().Err(err).Str("strategy", name).Msg("Health evaluation failed")
		}
	}
	return nil
}

// Evaluate runs one evaluation window for a strategy and persists the result
func (m *Monitor) Evaluate(name string) error {
	current, err := m.repo.Get(name)
	if err != nil {
		return err
	}
	if current == nil {
		current = &domain.StrategyHealth{Name: name, Status: domain.HealthHealthy}
	}

	// Retirement is terminal. Manual re-enable is the only way back.
	if current.Status == domain.HealthRetired {
		return nil
	}

	outcomes, err := m.trades.RecentOutcomes(name, m.cfg.WindowSize)
	if err != nil {
		return err
	}

	current.Observations = len(outcomes)
	m.computeMetrics(current, outcomes)

	if len(outcomes) < m.cfg.MinObservations {
		// Too little evidence to move the state machine either way
		current.UpdatedAt = m.now()
		return m.persist(*current, current.Status)
	}

	oldStatus := current.Status
	target := m.targetStatus(current)
	m.applyHysteresis(current, target)
	m.checkRetirement(current)
	current.UpdatedAt = m.now()

	return m.persist(*current, oldStatus)
}

// computeMetrics fills win rate, sharpe and decay rate from the window
func (m *Monitor) computeMetrics(health *domain.StrategyHealth, outcomes []TradeOutcome) {
	health.WinRate = nil
	health.SharpeRatio = nil
	health.DecayRate = nil

	if len(outcomes) == 0 {
		return
	}

	wins := 0
	returns := make([]float64, len(outcomes))
	for i, o := range outcomes {
		if o.Won {
			wins++
		}
		returns[i] = o.PnL
	}
	winRate := float64(wins) / float64(len(outcomes))
	health.WinRate = &winRate

	health.SharpeRatio = formulas.CalculateTradeSharpe(returns)

	if decay := m.decayRate(outcomes); decay != nil {
		health.DecayRate = decay
	}
}

// decayRate estimates how fast the win rate is falling across the window.
// Outcomes arrive newest first; the slope is fitted over chronological order
// and negated so a positive decay rate means deteriorating performance.
// The value is normalized to win-rate change per full window.
func (m *Monitor) decayRate(outcomes []TradeOutcome) *float64 {
	const subWindow = 10
	if len(outcomes) < 2*subWindow {
		return nil
	}

	// Chronological order
	chrono := make([]TradeOutcome, len(outcomes))
	for i, o := range outcomes {
		chrono[len(outcomes)-1-i] = o
	}

	var xs, ys []float64
	for i := 0; i+subWindow <= len(chrono); i++ {
		wins := 0
		for _, o := range chrono[i : i+subWindow] {
			if o.Won {
				wins++
			}
		}
		xs = append(xs, float64(i))
		ys = append(ys, float64(wins)/float64(subWindow))
	}

	slope := formulas.LinearSlope(xs, ys)
	decay := -slope * float64(len(xs))
	return &decay
}

// targetStatus classifies the window metrics without hysteresis
func (m *Monitor) targetStatus(health *domain.StrategyHealth) domain.HealthStatus {
	if health.WinRate != nil && *health.WinRate < m.cfg.WinRateCritical {
		return domain.HealthCritical
	}
	if health.SharpeRatio != nil && *health.SharpeRatio < m.cfg.SharpeCritical {
		return domain.HealthCritical
	}
	if health.WinRate != nil && *health.WinRate < m.cfg.WinRateDegrading {
		return domain.HealthDegrading
	}
	if health.DecayRate != nil && *health.DecayRate > m.cfg.DecayRateLimit {
		return domain.HealthDegrading
	}
	return domain.HealthHealthy
}

// statusRank orders statuses from best to worst for transition direction
var statusRank = map[domain.HealthStatus]int{
	domain.HealthHealthy:   0,
	domain.HealthDegrading: 1,
	domain.HealthCritical:  2,
	domain.HealthRetired:   3,
}

var statusOrder = []domain.HealthStatus{
	domain.HealthHealthy,
	domain.HealthDegrading,
	domain.HealthCritical,
	domain.HealthRetired,
}

// stepToward returns the status one rank closer to target, so the persisted
// history only ever records adjacent transitions
func stepToward(current, target domain.HealthStatus) domain.HealthStatus {
	if statusRank[target] > statusRank[current] {
		return statusOrder[statusRank[current]+1]
	}
	return statusOrder[statusRank[current]-1]
}

// applyHysteresis moves the status one rank toward target only after the
// required number of consecutive confirming windows. A single contradicting
// window resets the streak, and each rank needs its own confirmed streak.
func (m *Monitor) applyHysteresis(health *domain.StrategyHealth, target domain.HealthStatus) {
	switch {
	case target == health.Status:
		health.BreachStreak = 0
		health.RecoveryStreak = 0

	case statusRank[target] > statusRank[health.Status]:
		health.BreachStreak++
		health.RecoveryStreak = 0
		if health.BreachStreak >= m.cfg.HysteresisWindows {
			m.transition(health, stepToward(health.Status, target))
		}

	default:
		health.RecoveryStreak++
		health.BreachStreak = 0
		if health.RecoveryStreak >= m.cfg.HysteresisWindows {
			m.transition(health, stepToward(health.Status, target))
		}
	}
}

func (m *Monitor) transition(health *domain.StrategyHealth, target domain.HealthStatus) {
	health.Status = target
	health.BreachStreak = 0
	health.RecoveryStreak = 0

	if target == domain.HealthCritical {
		if health.CriticalSince == nil {
			now := m.now()
			health.CriticalSince = &now
		}
	} else {
		health.CriticalSince = nil
	}
}

// checkRetirement retires a strategy that has stayed critical past the
// configured age limit
func (m *Monitor) checkRetirement(health *domain.StrategyHealth) {
	if health.Status != domain.HealthCritical || health.CriticalSince == nil {
		return
	}
	age := m.now().Sub(*health.CriticalSince)
	if age < m.cfg.CriticalMaxAge {
		return
	}

	health.Status = domain.HealthRetired
	health.BreachStreak = 0
	health.RecoveryStreak = 0

	m.log.Warn().
		Str("strategy", health.Name).
		Dur("critical_for", age).
		Msg("Strategy retired after prolonged critical status")

	if m.bus != nil {
		m.bus.Publish("health", &events.StrategyRetiredData{
			Strategy:       health.Name,
			Reason:         "critical_max_age",
			DaysInCritical: int(age.Hours() / 24),
		})
	}
}

func (m *Monitor) persist(health domain.StrategyHealth, oldStatus domain.HealthStatus) error {
	if err := m.repo.Upsert(health); err != nil {
		return err
	}

	if m.weights != nil {
		m.weights.Set(health.Name, weightForStatus(health.Status))
	}

	if oldStatus != health.Status {
		m.log.Info().
			Str("strategy", health.Name).
			Str("old_status", string(oldStatus)).
			Str("new_status", string(health.Status)).
			Msg("Strategy health status changed")

		if m.bus != nil {
			m.bus.Publish("health", &events.HealthStatusChangedData{
				Strategy:  health.Name,
				OldStatus: string(oldStatus),
				NewStatus: string(health.Status),
				WinRate:   health.WinRate,
				DecayRate: health.DecayRate,
			})
		}
	}
	return nil
}

// ReEnable manually resets a retired strategy back to healthy. This is the
// only path out of retirement.
func (m *Monitor) ReEnable(name string) error {
	current, err := m.repo.Get(name)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("unknown strategy %q", name)
	}
	if current.Status != domain.HealthRetired {
		return fmt.Errorf("strategy %q is %s, not retired", name, current.Status)
	}

	current.Status = domain.HealthHealthy
	current.BreachStreak = 0
	current.RecoveryStreak = 0
	current.CriticalSince = nil
	current.UpdatedAt = m.now()

	m.log.Info().Str("strategy", name).Msg("Strategy manually re-enabled")
	return m.persist(*current, domain.HealthRetired)
}

// weightForStatus maps a health status to the reliability weight fed back
// into signal aggregation
func weightForStatus(status domain.HealthStatus) float64 {
	switch status {
	case domain.HealthHealthy:
		return 1.0
	case domain.HealthDegrading:
		return 0.6
	case domain.HealthCritical:
		return 0.25
	default:
		return 0
	}
}

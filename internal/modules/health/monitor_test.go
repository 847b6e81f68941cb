package health

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
)

func setupTestDB(t *testing.T) *database.DB {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

type stubTrades struct {
	outcomes map[string][]TradeOutcome
}

func (s *stubTrades) Strategies() ([]string, error) {
	var names []string
	for name := range s.outcomes {
		names = append(names, name)
	}
	return names, nil
}

func (s *stubTrades) RecentOutcomes(strategy string, limit int) ([]TradeOutcome, error) {
	out := s.outcomes[strategy]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testHealthCfg() config.HealthConfig {
	return config.HealthConfig{
		WindowSize:        30,
		MinObservations:   10,
		WinRateDegrading:  0.45,
		WinRateCritical:   0.35,
		DecayRateLimit:    0.10,
		SharpeCritical:    -0.5,
		HysteresisWindows: 2,
		CriticalMaxAge:    14 * 24 * time.Hour,
	}
}

// outcomesWithWinRate builds n closed trades at the given win rate,
// interleaved so rolling sub-windows stay near the overall rate. Integer
// arithmetic keeps the win count exact.
func outcomesWithWinRate(n int, winRate float64) []TradeOutcome {
	wins := int(math.Round(winRate * float64(n)))
	out := make([]TradeOutcome, n)
	for i := range out {
		won := (i+1)*wins/n > i*wins/n
		pnl := -10.0
		if won {
			pnl = 12.0
		}
		out[i] = TradeOutcome{Won: won, PnL: pnl, ClosedAt: time.Now().Add(-time.Duration(i) * time.Hour)}
	}
	return out
}

func TestOutcomesWithWinRateExactCounts(t *testing.T) {
	for _, rate := range []float64{0.30, 0.40, 0.60, 0.70} {
		var wins int
		for _, o := range outcomesWithWinRate(30, rate) {
			if o.Won {
				wins++
			}
		}
		assert.Equal(t, int(math.Round(rate*30)), wins, "rate %.2f", rate)
	}
}

func newTestMonitor(t *testing.T, trades TradeSource) (*Monitor, *Repository) {
	db := setupTestDB(t)
	repo := NewRepository(db, zerolog.Nop())
	book, err := NewWeightBook(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	return NewMonitor(repo, trades, book, nil, testHealthCfg(), zerolog.Nop()), repo
}

func TestEvaluateHealthyStrategy(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.60),
	}}
	monitor, repo := newTestMonitor(t, trades)

	require.NoError(t, monitor.Evaluate("momentum"))

	health, err := repo.Get("momentum")
	require.NoError(t, err)
	require.NotNil(t, health)
	assert.Equal(t, domain.HealthHealthy, health.Status)
	require.NotNil(t, health.WinRate)
	assert.InDelta(t, 0.60, *health.WinRate, 0.01)
	assert.Equal(t, 30, health.Observations)
}

func TestEvaluateHysteresisRequiresTwoWindows(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.40),
	}}
	monitor, repo := newTestMonitor(t, trades)

	// First breach window: streak starts, status holds
	require.NoError(t, monitor.Evaluate("momentum"))
	health, err := repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, health.Status)
	assert.Equal(t, 1, health.BreachStreak)

	// Second consecutive breach window: transition
	require.NoError(t, monitor.Evaluate("momentum"))
	health, err = repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthDegrading, health.Status)
	assert.Zero(t, health.BreachStreak)
}

func TestEvaluateSingleGoodWindowResetsBreachStreak(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.40),
	}}
	monitor, repo := newTestMonitor(t, trades)

	require.NoError(t, monitor.Evaluate("momentum"))

	// Performance recovers before the second breach window
	trades.outcomes["momentum"] = outcomesWithWinRate(30, 0.60)
	require.NoError(t, monitor.Evaluate("momentum"))

	health, err := repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, health.Status)
	assert.Zero(t, health.BreachStreak)

	// A later bad window starts the streak over at one
	trades.outcomes["momentum"] = outcomesWithWinRate(30, 0.40)
	require.NoError(t, monitor.Evaluate("momentum"))
	health, err = repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, health.Status)
	assert.Equal(t, 1, health.BreachStreak)
}

func TestEvaluateRecoveryAlsoNeedsTwoWindows(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.40),
	}}
	monitor, repo := newTestMonitor(t, trades)

	require.NoError(t, monitor.Evaluate("momentum"))
	require.NoError(t, monitor.Evaluate("momentum"))
	health, _ := repo.Get("momentum")
	require.Equal(t, domain.HealthDegrading, health.Status)

	trades.outcomes["momentum"] = outcomesWithWinRate(30, 0.60)

	require.NoError(t, monitor.Evaluate("momentum"))
	health, _ = repo.Get("momentum")
	assert.Equal(t, domain.HealthDegrading, health.Status)
	assert.Equal(t, 1, health.RecoveryStreak)

	require.NoError(t, monitor.Evaluate("momentum"))
	health, _ = repo.Get("momentum")
	assert.Equal(t, domain.HealthHealthy, health.Status)
}

func TestEvaluateCriticalWinRateStepsThroughDegrading(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.30),
	}}
	monitor, repo := newTestMonitor(t, trades)

	// A collapse below the critical threshold still walks the ladder:
	// two windows to degrading, two more to critical
	require.NoError(t, monitor.Evaluate("momentum"))
	require.NoError(t, monitor.Evaluate("momentum"))
	health, err := repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthDegrading, health.Status)
	assert.Nil(t, health.CriticalSince)

	require.NoError(t, monitor.Evaluate("momentum"))
	health, _ = repo.Get("momentum")
	assert.Equal(t, domain.HealthDegrading, health.Status)
	assert.Equal(t, 1, health.BreachStreak)

	require.NoError(t, monitor.Evaluate("momentum"))
	health, err = repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthCritical, health.Status)
	require.NotNil(t, health.CriticalSince)
}

func TestRecoveryFromCriticalStepsThroughDegrading(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.60),
	}}
	monitor, repo := newTestMonitor(t, trades)

	criticalSince := time.Now().UTC()
	require.NoError(t, repo.Upsert(domain.StrategyHealth{
		Name:          "momentum",
		Status:        domain.HealthCritical,
		CriticalSince: &criticalSince,
	}))

	require.NoError(t, monitor.Evaluate("momentum"))
	require.NoError(t, monitor.Evaluate("momentum"))
	health, err := repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthDegrading, health.Status)

	require.NoError(t, monitor.Evaluate("momentum"))
	require.NoError(t, monitor.Evaluate("momentum"))
	health, err = repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, health.Status)
}

func TestEvaluateInsufficientDataHoldsStatus(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"fresh": outcomesWithWinRate(5, 0.0),
	}}
	monitor, repo := newTestMonitor(t, trades)

	require.NoError(t, monitor.Evaluate("fresh"))
	require.NoError(t, monitor.Evaluate("fresh"))

	health, err := repo.Get("fresh")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, health.Status)
	assert.Zero(t, health.BreachStreak)
	assert.Equal(t, 5, health.Observations)
}

func TestEvaluateRetirementAfterCriticalMaxAge(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.30),
	}}
	monitor, repo := newTestMonitor(t, trades)

	now := time.Now().UTC()
	monitor.now = func() time.Time { return now }

	// Four breach windows: two to degrading, two more to critical
	for i := 0; i < 4; i++ {
		require.NoError(t, monitor.Evaluate("momentum"))
	}
	health, _ := repo.Get("momentum")
	require.Equal(t, domain.HealthCritical, health.Status)

	// Two weeks later, still critical
	monitor.now = func() time.Time { return now.Add(15 * 24 * time.Hour) }
	require.NoError(t, monitor.Evaluate("momentum"))

	health, err := repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthRetired, health.Status)
}

func TestRetiredIsTerminal(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"momentum": outcomesWithWinRate(30, 0.70),
	}}
	monitor, repo := newTestMonitor(t, trades)

	require.NoError(t, repo.Upsert(domain.StrategyHealth{
		Name:   "momentum",
		Status: domain.HealthRetired,
	}))

	// Winning trades do not resurrect a retired strategy
	require.NoError(t, monitor.Evaluate("momentum"))
	require.NoError(t, monitor.Evaluate("momentum"))

	health, err := repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthRetired, health.Status)
}

func TestReEnable(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{}}
	monitor, repo := newTestMonitor(t, trades)

	require.NoError(t, repo.Upsert(domain.StrategyHealth{
		Name:   "momentum",
		Status: domain.HealthRetired,
	}))

	require.NoError(t, monitor.ReEnable("momentum"))

	health, err := repo.Get("momentum")
	require.NoError(t, err)
	assert.Equal(t, domain.HealthHealthy, health.Status)
	assert.Nil(t, health.CriticalSince)
}

func TestReEnableRejectsNonRetired(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{}}
	monitor, repo := newTestMonitor(t, trades)

	require.NoError(t, repo.Upsert(domain.StrategyHealth{
		Name:   "momentum",
		Status: domain.HealthDegrading,
	}))

	assert.Error(t, monitor.ReEnable("momentum"))
	assert.Error(t, monitor.ReEnable("unknown"))
}

func TestWeightForStatus(t *testing.T) {
	assert.InDelta(t, 1.0, weightForStatus(domain.HealthHealthy), 1e-9)
	assert.InDelta(t, 0.6, weightForStatus(domain.HealthDegrading), 1e-9)
	assert.InDelta(t, 0.25, weightForStatus(domain.HealthCritical), 1e-9)
	assert.Zero(t, weightForStatus(domain.HealthRetired))
}

func TestEvaluateUpdatesWeightBook(t *testing.T) {
	trades := &stubTrades{outcomes: map[string][]TradeOutcome{
		"technical": outcomesWithWinRate(30, 0.40),
	}}
	monitor, _ := newTestMonitor(t, trades)

	require.NoError(t, monitor.Evaluate("technical"))
	assert.InDelta(t, 1.0, monitor.weights.Weight("technical"), 1e-9)

	require.NoError(t, monitor.Evaluate("technical"))
	assert.InDelta(t, 0.6, monitor.weights.Weight("technical"), 1e-9)

	engine := monitor.weights.EngineWeights()
	assert.InDelta(t, 0.6, engine[domain.EngineTechnical], 1e-9)
	assert.InDelta(t, 1.0, engine[domain.EngineSentiment], 1e-9)
}

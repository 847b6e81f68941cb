package executions

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
)

func setupTestDB(t *testing.T) *database.DB {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateAndGet(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	created, err := repo.Create("momentum", "AAPL", 0.8)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.OutcomeOpen, created.Outcome)

	fetched, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "momentum", fetched.Strategy)
	assert.InDelta(t, 0.8, fetched.AlertConfidence, 1e-9)
	assert.False(t, fetched.Closed())
}

func TestCreateValidation(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	_, err := repo.Create("momentum", "AAPL", 1.2)
	assert.Error(t, err)

	_, err = repo.Create("", "AAPL", 0.5)
	assert.Error(t, err)
}

func TestCloseOutcomeImmutable(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	created, err := repo.Create("momentum", "AAPL", 0.8)
	require.NoError(t, err)

	require.NoError(t, repo.CloseOutcome(created.ID, domain.OutcomeWin, 42.5))

	fetched, err := repo.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, fetched.Outcome)
	require.NotNil(t, fetched.PnL)
	assert.InDelta(t, 42.5, *fetched.PnL, 1e-9)
	assert.True(t, fetched.Closed())

	// Second close fails and the first outcome stands
	err = repo.CloseOutcome(created.ID, domain.OutcomeLoss, -10)
	assert.Error(t, err)

	fetched, err = repo.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeWin, fetched.Outcome)
	assert.InDelta(t, 42.5, *fetched.PnL, 1e-9)
}

func TestCloseOutcomeRejectsOpen(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	created, err := repo.Create("momentum", "AAPL", 0.8)
	require.NoError(t, err)

	assert.Error(t, repo.CloseOutcome(created.ID, domain.OutcomeOpen, 0))
	assert.Error(t, repo.CloseOutcome("missing-id", domain.OutcomeWin, 1))
}

func TestAttachTrade(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	created, err := repo.Create("momentum", "AAPL", 0.8)
	require.NoError(t, err)

	require.NoError(t, repo.AttachTrade(created.ID, "trade-99", 187.30))

	fetched, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.TradeID)
	assert.Equal(t, "trade-99", *fetched.TradeID)

	// Closed executions cannot gain a trade link
	require.NoError(t, repo.CloseOutcome(created.ID, domain.OutcomeWin, 5))
	assert.Error(t, repo.AttachTrade(created.ID, "trade-100", 190))
}

func TestClosedOutcomesExcludeOpenAndExpired(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	win, _ := repo.Create("momentum", "AAPL", 0.8)
	loss, _ := repo.Create("momentum", "MSFT", 0.6)
	expired, _ := repo.Create("momentum", "NVDA", 0.7)
	_, _ = repo.Create("momentum", "TSLA", 0.5) // Stays open

	require.NoError(t, repo.CloseOutcome(win.ID, domain.OutcomeWin, 10))
	require.NoError(t, repo.CloseOutcome(loss.ID, domain.OutcomeLoss, -5))
	require.NoError(t, repo.CloseOutcome(expired.ID, domain.OutcomeExpired, 0))

	outcomes, err := repo.ClosedOutcomes("momentum")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	wins := 0
	for _, o := range outcomes {
		if o.Won {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRecentOutcomesAndStrategies(t *testing.T) {
	repo := NewRepository(setupTestDB(t), zerolog.Nop())

	for i := 0; i < 5; i++ {
		created, err := repo.Create("momentum", "AAPL", 0.7)
		require.NoError(t, err)
		outcome := domain.OutcomeWin
		if i%2 == 1 {
			outcome = domain.OutcomeLoss
		}
		require.NoError(t, repo.CloseOutcome(created.ID, outcome, float64(i)))
	}
	other, _ := repo.Create("meanrev", "MSFT", 0.5)
	require.NoError(t, repo.CloseOutcome(other.ID, domain.OutcomeWin, 3))

	strategies, err := repo.Strategies()
	require.NoError(t, err)
	assert.Equal(t, []string{"meanrev", "momentum"}, strategies)

	outcomes, err := repo.RecentOutcomes("momentum", 3)
	require.NoError(t, err)
	assert.Len(t, outcomes, 3)
}

package allocation

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
		Path:    filepath.Join(t.TempDir(), "config.db"),
		Profile: database.ProfileStandard,
		Name:    "config",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertAndGetAll(t *testing.T) {
	repo := NewRepository(setupTestDB(t), nil, zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.TargetAllocation{
		Symbol: "AAPL", TargetWeightPct: 25, DriftTolerancePct: 2,
	}))
	require.NoError(t, repo.Upsert(domain.TargetAllocation{
		Sector: "technology", TargetWeightPct: 40, DriftTolerancePct: 5,
	}))

	allocations, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	total, err := repo.TotalWeight()
	require.NoError(t, err)
	assert.InDelta(t, 65.0, total, 1e-9)
}

func TestUpsertUpdatesExistingKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t), nil, zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "AAPL", TargetWeightPct: 25}))
	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "AAPL", TargetWeightPct: 30}))

	allocations, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.InDelta(t, 30.0, allocations[0].TargetWeightPct, 1e-9)
}

func TestUpsertRejectsOver100(t *testing.T) {
	repo := NewRepository(setupTestDB(t), nil, zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "AAPL", TargetWeightPct: 60}))
	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "MSFT", TargetWeightPct: 40}))

	err := repo.Upsert(domain.TargetAllocation{Symbol: "NVDA", TargetWeightPct: 1})
	require.Error(t, err)

	// Nothing changed
	total, err := repo.TotalWeight()
	require.NoError(t, err)
	assert.InDelta(t, 100.0, total, 1e-9)
}

func TestUpsertUpdateDoesNotDoubleCountSelf(t *testing.T) {
	repo := NewRepository(setupTestDB(t), nil, zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "AAPL", TargetWeightPct: 60}))
	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "MSFT", TargetWeightPct: 40}))

	// Shrinking an existing target must pass even though the table already
	// sums to 100
	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "AAPL", TargetWeightPct: 50}))

	total, err := repo.TotalWeight()
	require.NoError(t, err)
	assert.InDelta(t, 90.0, total, 1e-9)
}

func TestReplaceAllAtomic(t *testing.T) {
	repo := NewRepository(setupTestDB(t), nil, zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "AAPL", TargetWeightPct: 25}))

	// Over-budget replacement set is rejected wholesale
	err := repo.ReplaceAll([]domain.TargetAllocation{
		{Symbol: "MSFT", TargetWeightPct: 70},
		{Symbol: "NVDA", TargetWeightPct: 40},
	})
	require.Error(t, err)

	allocations, err := repo.GetAll()
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "AAPL", allocations[0].Symbol)

	// Valid set replaces the old one
	require.NoError(t, repo.ReplaceAll([]domain.TargetAllocation{
		{Symbol: "MSFT", TargetWeightPct: 50},
		{Sector: "energy", TargetWeightPct: 30},
	}))

	allocations, err = repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, allocations, 2)
}

func TestDelete(t *testing.T) {
	repo := NewRepository(setupTestDB(t), nil, zerolog.Nop())

	require.NoError(t, repo.Upsert(domain.TargetAllocation{Symbol: "AAPL", TargetWeightPct: 25}))
	allocations, err := repo.GetAll()
	require.NoError(t, err)

	require.NoError(t, repo.Delete(allocations[0].ID))
	assert.Error(t, repo.Delete(allocations[0].ID))

	total, err := repo.TotalWeight()
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpsertValidatesKey(t *testing.T) {
	repo := NewRepository(setupTestDB(t), nil, zerolog.Nop())

	assert.Error(t, repo.Upsert(domain.TargetAllocation{TargetWeightPct: 10}))
	assert.Error(t, repo.Upsert(domain.TargetAllocation{
		Symbol: "AAPL", Sector: "technology", TargetWeightPct: 10,
	}))
}

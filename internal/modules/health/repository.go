// Package health monitors strategy performance and manages the
// healthy/degrading/critical/retired lifecycle.
package health

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
)

// Repository handles strategy health database operations
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new strategy health repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "health").Logger(),
	}
}

// Get returns the health record for a strategy, or nil if none exists
func (r *Repository) Get(name string) (*domain.StrategyHealth, error) {
	row := r.db.Conn().QueryRow(`
		SELECT name, status, win_rate, sharpe_ratio, decay_rate, observations,
		       breach_streak, recovery_streak, critical_since, updated_at
		FROM strategy_health
		WHERE name = ?`, name)

	health, err := scanHealth(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying strategy health: %w", err)
	}
	return health, nil
}

// GetAll returns all strategy health records ordered by name
func (r *Repository) GetAll() ([]domain.StrategyHealth, error) {
	rows, err := r.db.Conn().Query(`
		SELECT name, status, win_rate, sharpe_ratio, decay_rate, observations,
		       breach_streak, recovery_streak, critical_since, updated_at
		FROM strategy_health
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying strategy health: %w", err)
	}
	defer rows.Close()

	var records []domain.StrategyHealth
	for rows.Next() {
		health, err := scanHealth(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning strategy health: %w", err)
		}
		records = append(records, *health)
	}
	return records, rows.Err()
}

// Upsert writes a health record, replacing any existing record for the
// strategy
func (r *Repository) Upsert(health domain.StrategyHealth) error {
	var criticalSince *int64
	if health.CriticalSince != nil {
		ts := health.CriticalSince.Unix()
		criticalSince = &ts
	}

	_, err := r.db.Conn().Exec(`
		INSERT INTO strategy_health (
			name, status, win_rate, sharpe_ratio, decay_rate, observations,
			breach_streak, recovery_streak, critical_since, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			status = excluded.status,
			win_rate = excluded.win_rate,
			sharpe_ratio = excluded.sharpe_ratio,
			decay_rate = excluded.decay_rate,
			observations = excluded.observations,
			breach_streak = excluded.breach_streak,
			recovery_streak = excluded.recovery_streak,
			critical_since = excluded.critical_since,
			updated_at = excluded.updated_at`,
		health.Name, string(health.Status), health.WinRate, health.SharpeRatio,
		health.DecayRate, health.Observations, health.BreachStreak,
		health.RecoveryStreak, criticalSince, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upserting strategy health: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanHealth(row rowScanner) (*domain.StrategyHealth, error) {
	var health domain.StrategyHealth
	var status string
	var criticalSince *int64
	var updatedAt int64

	err := row.Scan(&health.Name, &status, &health.WinRate, &health.SharpeRatio,
		&health.DecayRate, &health.Observations, &health.BreachStreak,
		&health.RecoveryStreak, &criticalSince, &updatedAt)
	if err != nil {
		return nil, err
	}

	health.Status = domain.HealthStatus(status)
	if criticalSince != nil {
		ts := time.Unix(*criticalSince, 0).UTC()
		health.CriticalSince = &ts
	}
	health.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &health, nil
}

// Package allocation manages target portfolio weights.
package allocation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/events"
)

// Repository handles target allocation database operations. Writes run
// inside a transaction that re-checks the total weight, so the targets can
// never sum past 100% no matter how writes interleave.
type Repository struct {
	db  *database.DB
	bus *events.Bus
	log zerolog.Logger
}

// NewRepository creates a new allocation repository
func NewRepository(db *database.DB, bus *events.Bus, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		bus: bus,
		log: log.With().Str("repo", "allocation").Logger(),
	}
}

// GetAll returns all target allocations
func (r *Repository) GetAll() ([]domain.TargetAllocation, error) {
	rows, err := r.db.Conn().Query(`
		SELECT id, symbol, sector, target_weight_pct, drift_tolerance_pct, created_at, updated_at
		FROM target_allocations
		ORDER BY sector, symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying allocations: %w", err)
	}
	defer rows.Close()

	var allocations []domain.TargetAllocation
	for rows.Next() {
		var a domain.TargetAllocation
		var createdAt, updatedAt int64
		err := rows.Scan(&a.ID, &a.Symbol, &a.Sector, &a.TargetWeightPct,
			&a.DriftTolerancePct, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		a.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// Upsert writes one target allocation, keyed by symbol or sector. The write
// fails if it would push the combined target weight above 100%.
func (r *Repository) Upsert(allocation domain.TargetAllocation) error {
	if err := allocation.Validate(); err != nil {
		return err
	}

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		var existing float64
		err := tx.QueryRow(`
			SELECT COALESCE(SUM(target_weight_pct), 0)
			FROM target_allocations
			WHERE NOT (symbol = ? AND sector = ?)`,
			allocation.Symbol, allocation.Sector).Scan(&existing)
		if err != nil {
			return fmt.Errorf("summing existing targets: %w", err)
		}

		if existing+allocation.TargetWeightPct > 100.0+1e-9 {
			return fmt.Errorf("target weights would total %.2f%%, exceeding 100%%",
				existing+allocation.TargetWeightPct)
		}

		now := time.Now().Unix()
		_, err = tx.Exec(`
			INSERT INTO target_allocations (symbol, sector, target_weight_pct, drift_tolerance_pct, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, sector) DO UPDATE SET
				target_weight_pct = excluded.target_weight_pct,
				drift_tolerance_pct = excluded.drift_tolerance_pct,
				updated_at = excluded.updated_at`,
			allocation.Symbol, allocation.Sector, allocation.TargetWeightPct,
			allocation.DriftTolerancePct, now, now)
		if err != nil {
			return fmt.Errorf("upserting allocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.bus != nil {
		r.bus.Publish("allocation", &events.AllocationTargetsChangedData{Type: "upsert", Count: 1})
	}
	return nil
}

// ReplaceAll atomically swaps the full target set. Either every new target
// lands and the invariant holds, or nothing changes.
func (r *Repository) ReplaceAll(allocations []domain.TargetAllocation) error {
	var total float64
	for _, a := range allocations {
		if err := a.Validate(); err != nil {
			return err
		}
		total += a.TargetWeightPct
	}
	if total > 100.0+1e-9 {
		return fmt.Errorf("target weights total %.2f%%, exceeding 100%%", total)
	}

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM target_allocations`); err != nil {
			return fmt.Errorf("clearing allocations: %w", err)
		}

		now := time.Now().Unix()
		for _, a := range allocations {
			_, err := tx.Exec(`
				INSERT INTO target_allocations (symbol, sector, target_weight_pct, drift_tolerance_pct, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				a.Symbol, a.Sector, a.TargetWeightPct, a.DriftTolerancePct, now, now)
			if err != nil {
				return fmt.Errorf("inserting allocation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.bus != nil {
		r.bus.Publish("allocation", &events.AllocationTargetsChangedData{
			Type:  "replace",
			Count: len(allocations),
		})
	}
	return nil
}

// Delete removes one allocation by ID
func (r *Repository) Delete(id int64) error {
	result, err := r.db.Conn().Exec(`DELETE FROM target_allocations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting allocation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("allocation %d not found", id)
	}

	if r.bus != nil {
		r.bus.Publish("allocation", &events.AllocationTargetsChangedData{Type: "delete", Count: 1})
	}
	return nil
}

// TotalWeight returns the current combined target weight
func (r *Repository) TotalWeight() (float64, error) {
	var total float64
	err := r.db.Conn().QueryRow(`
		SELECT COALESCE(SUM(target_weight_pct), 0) FROM target_allocations`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing target weights: %w", err)
	}
	return total, nil
}

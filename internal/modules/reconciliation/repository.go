// Package reconciliation compares broker-reported positions against the
// internal lot ledger and records each pass in an append-only log.
package reconciliation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
)

// Repository handles reconciliation log database operations
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new reconciliation repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "reconciliation").Logger(),
	}
}

// Append writes one pass result. The log is append-only: rows are never
// updated or deleted.
func (r *Repository) Append(entry domain.ReconciliationLog) (int64, error) {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return 0, fmt.Errorf("encoding pass details: %w", err)
	}

	result, err := r.db.Conn().Exec(`
		INSERT INTO reconciliation_log (
			pass_id, started_at, completed_at, total_positions,
			matches, discrepancies, auto_resolved, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PassID, entry.StartedAt.Unix(), entry.CompletedAt.Unix(),
		entry.TotalPositions, entry.Matches, entry.Discrepancies,
		entry.AutoResolved, string(details))
	if err != nil {
		return 0, fmt.Errorf("appending reconciliation log: %w", err)
	}
	return result.LastInsertId()
}

// Recent returns the most recent passes, newest first
func (r *Repository) Recent(limit int) ([]domain.ReconciliationLog, error) {
	rows, err := r.db.Conn().Query(`
		SELECT id, pass_id, started_at, completed_at, total_positions,
		       matches, discrepancies, auto_resolved, details
		FROM reconciliation_log
		ORDER BY completed_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reconciliation log: %w", err)
	}
	defer rows.Close()

	var entries []domain.ReconciliationLog
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reconciliation log: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Latest returns the most recent pass, or nil when no pass has run
func (r *Repository) Latest() (*domain.ReconciliationLog, error) {
	entries, err := r.Recent(1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

func scanLog(rows *sql.Rows) (*domain.ReconciliationLog, error) {
	var entry domain.ReconciliationLog
	var startedAt, completedAt int64
	var details string

	err := rows.Scan(&entry.ID, &entry.PassID, &startedAt, &completedAt,
		&entry.TotalPositions, &entry.Matches, &entry.Discrepancies,
		&entry.AutoResolved, &details)
	if err != nil {
		return nil, err
	}

	entry.StartedAt = time.Unix(startedAt, 0).UTC()
	entry.CompletedAt = time.Unix(completedAt, 0).UTC()
	if err := json.Unmarshal([]byte(details), &entry.Details); err != nil {
		return nil, fmt.Errorf("decoding pass details: %w", err)
	}
	return &entry, nil
}

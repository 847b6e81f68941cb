// Package taxlots maintains acquisition lots, matches disposals against
// them, and applies wash sale adjustments.
package taxlots

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
)

// Repository handles tax lot database operations. Mutating methods take a
// transaction: applying one fill touches fills, tax_lots and lot_disposals
// together and must commit or roll back as a unit.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new tax lot repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "taxlots").Logger(),
	}
}

// DB exposes the underlying database for transaction scoping
func (r *Repository) DB() *database.DB {
	return r.db
}

// RecordFill inserts the fill row that marks this fill as applied. Returns
// false when the fill ID was already recorded, which makes redelivery a
// no-op.
func (r *Repository) RecordFill(tx *sql.Tx, fill domain.FillEvent) (bool, error) {
	result, err := tx.Exec(`
		INSERT INTO fills (id, symbol, side, quantity, price, fees, executed_at, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		fill.ID, fill.Symbol, string(fill.Side), fill.Quantity, fill.Price,
		fill.Fees, fill.ExecutedAt.Unix(), time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("recording fill: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("recording fill: %w", err)
	}
	return rows > 0, nil
}

// CreateLot inserts a new open lot and returns its ID
func (r *Repository) CreateLot(tx *sql.Tx, lot domain.TaxLot) (int64, error) {
	result, err := tx.Exec(`
		INSERT INTO tax_lots (symbol, quantity, original_quantity, cost_basis, acquired_at, source_fill_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		lot.Symbol, lot.Quantity, lot.OriginalQuantity, lot.CostBasis,
		lot.AcquiredAt.Unix(), lot.SourceFillID)
	if err != nil {
		return 0, fmt.Errorf("creating lot: %w", err)
	}
	return result.LastInsertId()
}

// OpenLots returns a symbol's open lots ordered by acquisition time
func (r *Repository) OpenLots(tx *sql.Tx, symbol string) ([]domain.TaxLot, error) {
	rows, err := tx.Query(`
		SELECT id, symbol, quantity, original_quantity, cost_basis, acquired_at, closed_at, source_fill_id
		FROM tax_lots
		WHERE symbol = ? AND quantity > 0
		ORDER BY acquired_at ASC, id ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying open lots: %w", err)
	}
	defer rows.Close()

	return collectLots(rows)
}

// UpdateLot writes a lot's remaining quantity and cost basis, closing it
// when fully consumed
func (r *Repository) UpdateLot(tx *sql.Tx, id int64, quantity, costBasis float64, closedAt *time.Time) error {
	var closed *int64
	if closedAt != nil {
		ts := closedAt.Unix()
		closed = &ts
	}

	_, err := tx.Exec(`
		UPDATE tax_lots
		SET quantity = ?, cost_basis = ?, closed_at = ?
		WHERE id = ?`,
		quantity, costBasis, closed, id)
	if err != nil {
		return fmt.Errorf("updating lot %d: %w", id, err)
	}
	return nil
}

// AdjustLotBasis adds a wash sale's disallowed loss onto a replacement lot
func (r *Repository) AdjustLotBasis(tx *sql.Tx, id int64, delta float64) error {
	_, err := tx.Exec(`UPDATE tax_lots SET cost_basis = cost_basis + ? WHERE id = ?`, delta, id)
	if err != nil {
		return fmt.Errorf("adjusting lot %d basis: %w", id, err)
	}
	return nil
}

// CreateDisposal records one matched lot portion of a sell
func (r *Repository) CreateDisposal(tx *sql.Tx, d domain.LotDisposal) (int64, error) {
	result, err := tx.Exec(`
		INSERT INTO lot_disposals (lot_id, fill_id, symbol, quantity, proceeds, cost_basis,
			realized_gain, term, wash_sale, disallowed_loss, sold_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.LotID, d.FillID, d.Symbol, d.Quantity, d.Proceeds, d.CostBasis,
		d.RealizedGain, string(d.Term), boolToInt(d.WashSale), d.DisallowedLoss,
		d.SoldAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("creating disposal: %w", err)
	}
	return result.LastInsertId()
}

// RecentLossDisposals returns unmarked loss disposals for a symbol sold on
// or after the cutoff, used for retroactive wash sale detection
func (r *Repository) RecentLossDisposals(tx *sql.Tx, symbol string, since time.Time) ([]domain.LotDisposal, error) {
	rows, err := tx.Query(`
		SELECT id, lot_id, fill_id, symbol, quantity, proceeds, cost_basis,
		       realized_gain, term, wash_sale, disallowed_loss, sold_at
		FROM lot_disposals
		WHERE symbol = ? AND realized_gain < 0 AND wash_sale = 0 AND sold_at >= ?
		ORDER BY sold_at ASC`, symbol, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying loss disposals: %w", err)
	}
	defer rows.Close()

	var disposals []domain.LotDisposal
	for rows.Next() {
		d, err := scanDisposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning disposal: %w", err)
		}
		disposals = append(disposals, *d)
	}
	return disposals, rows.Err()
}

// MarkWashSale flags a disposal as a wash sale with its disallowed loss
func (r *Repository) MarkWashSale(tx *sql.Tx, disposalID int64, disallowedLoss float64) error {
	_, err := tx.Exec(`
		UPDATE lot_disposals SET wash_sale = 1, disallowed_loss = ? WHERE id = ?`,
		disallowedLoss, disposalID)
	if err != nil {
		return fmt.Errorf("marking wash sale on disposal %d: %w", disposalID, err)
	}
	return nil
}

// LotsAcquiredBetween returns lots for a symbol acquired in [from, to],
// excluding the given lot IDs
func (r *Repository) LotsAcquiredBetween(tx *sql.Tx, symbol string, from, to time.Time, excludeIDs []int64) ([]domain.TaxLot, error) {
	query := `
		SELECT id, symbol, quantity, original_quantity, cost_basis, acquired_at, closed_at, source_fill_id
		FROM tax_lots
		WHERE symbol = ? AND acquired_at >= ? AND acquired_at <= ?`
	args := []interface{}{symbol, from.Unix(), to.Unix()}
	for _, id := range excludeIDs {
		query += ` AND id != ?`
		args = append(args, id)
	}
	query += ` ORDER BY acquired_at ASC`

	rows, err := tx.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying acquired lots: %w", err)
	}
	defer rows.Close()

	return collectLots(rows)
}

// GetOpenLots returns all open lots for a symbol outside any transaction
func (r *Repository) GetOpenLots(symbol string) ([]domain.TaxLot, error) {
	rows, err := r.db.Conn().Query(`
		SELECT id, symbol, quantity, original_quantity, cost_basis, acquired_at, closed_at, source_fill_id
		FROM tax_lots
		WHERE symbol = ? AND quantity > 0
		ORDER BY acquired_at ASC, id ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying open lots: %w", err)
	}
	defer rows.Close()

	return collectLots(rows)
}

// PositionTotals sums open quantity and cost basis per symbol, the internal
// ledger view used by reconciliation
func (r *Repository) PositionTotals() (map[string]PositionTotal, error) {
	rows, err := r.db.Conn().Query(`
		SELECT symbol, SUM(quantity), SUM(cost_basis)
		FROM tax_lots
		WHERE quantity > 0
		GROUP BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying position totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]PositionTotal)
	for rows.Next() {
		var symbol string
		var total PositionTotal
		if err := rows.Scan(&symbol, &total.Quantity, &total.CostBasis); err != nil {
			return nil, fmt.Errorf("scanning position total: %w", err)
		}
		totals[symbol] = total
	}
	return totals, rows.Err()
}

// PositionTotal is a symbol's aggregate open position
type PositionTotal struct {
	Quantity  float64 `json:"quantity"`
	CostBasis float64 `json:"cost_basis"`
}

// YearEndSummary aggregates realized results for disposals sold within a
// calendar year (UTC)
func (r *Repository) YearEndSummary(year int) (*domain.TaxYearEndSummary, error) {
	from := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC)

	rows, err := r.db.Conn().Query(`
		SELECT quantity, realized_gain, term, wash_sale, disallowed_loss
		FROM lot_disposals
		WHERE sold_at >= ? AND sold_at < ?`, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("querying disposals for %d: %w", year, err)
	}
	defer rows.Close()

	summary := &domain.TaxYearEndSummary{Year: year}
	for rows.Next() {
		var quantity, gain, disallowed float64
		var term string
		var washSale int
		if err := rows.Scan(&quantity, &gain, &term, &washSale, &disallowed); err != nil {
			return nil, fmt.Errorf("scanning disposal: %w", err)
		}

		summary.Disposals++
		recognized := gain
		if washSale == 1 {
			// A disallowed loss is deferred into the replacement lot's
			// basis, not recognized this year
			recognized += disallowed
			summary.WashSaleAdjustments += disallowed
		} else if gain < 0 {
			summary.HarvestedLosses += -gain
		}
		if term == string(domain.HoldingLong) {
			summary.LongTermGains += recognized
		} else {
			summary.ShortTermGains += recognized
		}
	}
	summary.TotalGains = summary.ShortTermGains + summary.LongTermGains
	return summary, rows.Err()
}

func collectLots(rows *sql.Rows) ([]domain.TaxLot, error) {
	var lots []domain.TaxLot
	for rows.Next() {
		var lot domain.TaxLot
		var acquiredAt int64
		var closedAt *int64
		err := rows.Scan(&lot.ID, &lot.Symbol, &lot.Quantity, &lot.OriginalQuantity,
			&lot.CostBasis, &acquiredAt, &closedAt, &lot.SourceFillID)
		if err != nil {
			return nil, fmt.Errorf("scanning lot: %w", err)
		}
		lot.AcquiredAt = time.Unix(acquiredAt, 0).UTC()
		if closedAt != nil {
			ts := time.Unix(*closedAt, 0).UTC()
			lot.ClosedAt = &ts
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func scanDisposal(rows *sql.Rows) (*domain.LotDisposal, error) {
	var d domain.LotDisposal
	var term string
	var washSale int
	var soldAt int64

	err := rows.Scan(&d.ID, &d.LotID, &d.FillID, &d.Symbol, &d.Quantity,
		&d.Proceeds, &d.CostBasis, &d.RealizedGain, &term, &washSale,
		&d.DisallowedLoss, &soldAt)
	if err != nil {
		return nil, err
	}

	d.Term = domain.HoldingPeriod(term)
	d.WashSale = washSale == 1
	d.SoldAt = time.Unix(soldAt, 0).UTC()
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

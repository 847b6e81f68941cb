// Package executions records acted-upon alerts and their eventual outcomes.
// The table is the evidence base for calibration and strategy health, so
// rows are append-only: an outcome is written exactly once.
package executions

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/modules/calibration"
	"github.com/dkaragian/verdict/internal/modules/health"
)

// Repository handles alert execution database operations
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new alert execution repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "executions").Logger(),
	}
}

// Create records a new open execution. Confidence is validated against the
// ledger's CHECK constraint range before insert so the error is clearer.
func (r *Repository) Create(strategy, symbol string, alertConfidence float64) (*domain.AlertExecution, error) {
	if alertConfidence < 0 || alertConfidence > 1 {
		return nil, fmt.Errorf("alert confidence %f out of [0,1]", alertConfidence)
	}
	if strategy == "" || symbol == "" {
		return nil, fmt.Errorf("strategy and symbol are required")
	}

	execution := &domain.AlertExecution{
		ID:              uuid.New().String(),
		Strategy:        strategy,
		Symbol:          symbol,
		AlertConfidence: alertConfidence,
		Outcome:         domain.OutcomeOpen,
		CreatedAt:       time.Now().UTC(),
	}

	_, err := r.db.Conn().Exec(`
		INSERT INTO alert_executions (id, strategy, symbol, alert_confidence, outcome, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		execution.ID, execution.Strategy, execution.Symbol,
		execution.AlertConfidence, string(execution.Outcome), execution.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("inserting execution: %w", err)
	}

	return execution, nil
}

// AttachTrade links a broker trade and execution price to an open execution
func (r *Repository) AttachTrade(id, tradeID string, executionPrice float64) error {
	result, err := r.db.Conn().Exec(`
		UPDATE alert_executions
		SET trade_id = ?, execution_price = ?
		WHERE id = ? AND closed_at IS NULL`,
		tradeID, executionPrice, id)
	if err != nil {
		return fmt.Errorf("attaching trade: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("execution %s not found or already closed", id)
	}
	return nil
}

// CloseOutcome finalizes an execution. The WHERE clause guards immutability:
// a second close attempt matches zero rows and fails loudly.
func (r *Repository) CloseOutcome(id string, outcome domain.ExecutionOutcome, pnl float64) error {
	switch outcome {
	case domain.OutcomeWin, domain.OutcomeLoss, domain.OutcomeExpired:
	default:
		return fmt.Errorf("invalid closing outcome %q", outcome)
	}

	result, err := r.db.Conn().Exec(`
		UPDATE alert_executions
		SET outcome = ?, pnl = ?, closed_at = ?
		WHERE id = ? AND closed_at IS NULL`,
		string(outcome), pnl, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("closing execution: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("closing execution: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("execution %s not found or already closed", id)
	}

	r.log.Info().
		Str("execution_id", id).
		Str("outcome", string(outcome)).
		Float64("pnl", pnl).
		Msg("Execution closed")
	return nil
}

// Get returns one execution by ID, or nil if not found
func (r *Repository) Get(id string) (*domain.AlertExecution, error) {
	row := r.db.Conn().QueryRow(`
		SELECT id, strategy, symbol, alert_confidence, trade_id, execution_price,
		       outcome, pnl, created_at, closed_at
		FROM alert_executions
		WHERE id = ?`, id)

	execution, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return execution, nil
}

// GetByStrategy returns executions for a strategy, newest first
func (r *Repository) GetByStrategy(strategy string, limit int) ([]domain.AlertExecution, error) {
	rows, err := r.db.Conn().Query(`
		SELECT id, strategy, symbol, alert_confidence, trade_id, execution_price,
		       outcome, pnl, created_at, closed_at
		FROM alert_executions
		WHERE strategy = ?
		ORDER BY created_at DESC
		LIMIT ?`, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	return collectExecutions(rows)
}

// ClosedOutcomes returns win/loss evidence for calibration. Expired
// executions carry no directional information and are excluded along with
// open ones.
func (r *Repository) ClosedOutcomes(strategy string) ([]calibration.ObservedOutcome, error) {
	rows, err := r.db.Conn().Query(`
		SELECT alert_confidence, outcome
		FROM alert_executions
		WHERE strategy = ? AND outcome IN ('win', 'loss')
		ORDER BY closed_at DESC`, strategy)
	if err != nil {
		return nil, fmt.Errorf("querying closed outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []calibration.ObservedOutcome
	for rows.Next() {
		var confidence float64
		var outcome string
		if err := rows.Scan(&confidence, &outcome); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		outcomes = append(outcomes, calibration.ObservedOutcome{
			Confidence: confidence,
			Won:        outcome == "win",
		})
	}
	return outcomes, rows.Err()
}

// Strategies lists every strategy with at least one closed execution
func (r *Repository) Strategies() ([]string, error) {
	rows, err := r.db.Conn().Query(`
		SELECT DISTINCT strategy
		FROM alert_executions
		WHERE closed_at IS NOT NULL
		ORDER BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("querying strategies: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning strategy: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// RecentOutcomes returns closed win/loss trades for health evaluation,
// newest first
func (r *Repository) RecentOutcomes(strategy string, limit int) ([]health.TradeOutcome, error) {
	rows, err := r.db.Conn().Query(`
		SELECT outcome, pnl, closed_at
		FROM alert_executions
		WHERE strategy = ? AND outcome IN ('win', 'loss')
		ORDER BY closed_at DESC
		LIMIT ?`, strategy, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []health.TradeOutcome
	for rows.Next() {
		var outcome string
		var pnl sql.NullFloat64
		var closedAt int64
		if err := rows.Scan(&outcome, &pnl, &closedAt); err != nil {
			return nil, fmt.Errorf("scanning trade outcome: %w", err)
		}
		outcomes = append(outcomes, health.TradeOutcome{
			Won:      outcome == "win",
			PnL:      pnl.Float64,
			ClosedAt: time.Unix(closedAt, 0).UTC(),
		})
	}
	return outcomes, rows.Err()
}

func collectExecutions(rows *sql.Rows) ([]domain.AlertExecution, error) {
	var executions []domain.AlertExecution
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		executions = append(executions, *execution)
	}
	return executions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row rowScanner) (*domain.AlertExecution, error) {
	var execution domain.AlertExecution
	var outcome string
	var createdAt int64
	var closedAt *int64

	err := row.Scan(&execution.ID, &execution.Strategy, &execution.Symbol,
		&execution.AlertConfidence, &execution.TradeID, &execution.ExecutionPrice,
		&outcome, &execution.PnL, &createdAt, &closedAt)
	if err != nil {
		return nil, err
	}

	execution.Outcome = domain.ExecutionOutcome(outcome)
	execution.CreatedAt = time.Unix(createdAt, 0).UTC()
	if closedAt != nil {
		ts := time.Unix(*closedAt, 0).UTC()
		execution.ClosedAt = &ts
	}
	return &execution, nil
}

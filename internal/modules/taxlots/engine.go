package taxlots

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/database"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/events"
)

// Engine applies trade fills to the lot ledger. Fills for the same symbol
// are serialized through a per-symbol mutex; different symbols apply
// concurrently.
type Engine struct {
	repo *Repository
	bus  *events.Bus
	cfg  config.TaxLotConfig
	log  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a tax lot engine
func NewEngine(repo *Repository, bus *events.Bus, cfg config.TaxLotConfig, log zerolog.Logger) *Engine {
	return &Engine{
		repo:  repo,
		bus:   bus,
		cfg:   cfg,
		log:   log.With().Str("component", "taxlot_engine").Logger(),
		locks: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) symbolLock(symbol string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[symbol] = lock
	}
	return lock
}

// ApplyFill applies one fill atomically. Redelivered fills (same ID) are
// recognized and skipped. A fill that cannot be fully applied, such as a
// sell exceeding the open position, rolls back entirely.
func (e *Engine) ApplyFill(fill domain.FillEvent) error {
	if err := fill.Validate(); err != nil {
		return fmt.Errorf("rejecting fill: %w", err)
	}

	lock := e.symbolLock(fill.Symbol)
	lock.Lock()
	defer lock.Unlock()

	var applied bool
	err := database.WithTransaction(e.repo.DB().Conn(), func(tx *sql.Tx) error {
		fresh, err := e.repo.RecordFill(tx, fill)
		if err != nil {
			return err
		}
		if !fresh {
			e.log.Debug().Str("fill_id", fill.ID).Msg("Fill already applied, skipping")
			return nil
		}
		applied = true

		if fill.Side == domain.FillBuy {
			return e.applyBuy(tx, fill)
		}
		return e.applySell(tx, fill)
	})
	if err != nil {
		return err
	}

	if applied && e.bus != nil {
		e.bus.Publish("taxlots", &events.FillAppliedData{
			FillID:   fill.ID,
			Symbol:   fill.Symbol,
			Side:     string(fill.Side),
			Quantity: fill.Quantity,
			Price:    fill.Price,
		})
	}
	return nil
}

// applyBuy opens a new lot and retroactively marks earlier losses in the
// wash window
func (e *Engine) applyBuy(tx *sql.Tx, fill domain.FillEvent) error {
	lot := domain.TaxLot{
		Symbol:           fill.Symbol,
		Quantity:         fill.Quantity,
		OriginalQuantity: fill.Quantity,
		CostBasis:        fill.Quantity*fill.Price + fill.Fees,
		AcquiredAt:       fill.ExecutedAt.UTC(),
		SourceFillID:     fill.ID,
	}

	lotID, err := e.repo.CreateLot(tx, lot)
	if err != nil {
		return err
	}

	// A purchase within the window after a loss sale makes that sale a wash
	// sale. The disallowed loss moves into this lot's basis.
	window := time.Duration(e.cfg.WashSaleWindowDays) * 24 * time.Hour
	since := fill.ExecutedAt.Add(-window)
	losses, err := e.repo.RecentLossDisposals(tx, fill.Symbol, since)
	if err != nil {
		return err
	}

	replacementQty := fill.Quantity
	for _, loss := range losses {
		if replacementQty <= 0 {
			break
		}
		covered := loss.Quantity
		if covered > replacementQty {
			covered = replacementQty
		}
		disallowed := -loss.RealizedGain * (covered / loss.Quantity)

		if err := e.repo.MarkWashSale(tx, loss.ID, disallowed); err != nil {
			return err
		}
		if err := e.repo.AdjustLotBasis(tx, lotID, disallowed); err != nil {
			return err
		}
		replacementQty -= covered

		e.log.Info().
			Str("symbol", fill.Symbol).
			Float64("disallowed_loss", disallowed).
			Int64("disposal_id", loss.ID).
			Msg("Wash sale detected on replacement purchase")

		if e.bus != nil {
			e.bus.Publish("taxlots", &events.WashSaleDetectedData{
				Symbol:         fill.Symbol,
				FillID:         fill.ID,
				DisallowedLoss: disallowed,
			})
		}
	}

	return nil
}

// applySell matches the fill against open lots per the configured strategy
func (e *Engine) applySell(tx *sql.Tx, fill domain.FillEvent) error {
	lots, err := e.repo.OpenLots(tx, fill.Symbol)
	if err != nil {
		return err
	}

	var available float64
	for _, lot := range lots {
		available += lot.Quantity
	}
	if fill.Quantity > available+1e-9 {
		return fmt.Errorf("sell of %.6f %s exceeds open position %.6f",
			fill.Quantity, fill.Symbol, available)
	}

	orderLots(lots, e.cfg.MatchStrategy)

	soldAt := fill.ExecutedAt.UTC()
	window := time.Duration(e.cfg.WashSaleWindowDays) * 24 * time.Hour

	remaining := fill.Quantity
	var matchedIDs []int64
	for i := range lots {
		if remaining <= 1e-9 {
			break
		}
		lot := &lots[i]

		matched := lot.Quantity
		if matched > remaining {
			matched = remaining
		}
		matchedIDs = append(matchedIDs, lot.ID)

		proceeds := matched*fill.Price - fill.Fees*(matched/fill.Quantity)
		costShare := lot.CostBasis * (matched / lot.Quantity)
		gain := proceeds - costShare

		disposal := domain.LotDisposal{
			LotID:     lot.ID,
			FillID:    fill.ID,
			Symbol:    fill.Symbol,
			Quantity:  matched,
			Proceeds:  proceeds,
			CostBasis: costShare,
			RealizedGain: gain,
			Term:      lot.HoldingPeriodAt(soldAt, e.cfg.LongTermDays),
			SoldAt:    soldAt,
		}

		// Loss sold while replacement shares bought in the prior window are
		// still held: wash sale at disposal time
		if gain < 0 {
			replacements, err := e.repo.LotsAcquiredBetween(tx, fill.Symbol,
				soldAt.Add(-window), soldAt, []int64{lot.ID})
			if err != nil {
				return err
			}
			if repl := firstOpenLot(replacements); repl != nil {
				disposal.WashSale = true
				disposal.DisallowedLoss = -gain
				if err := e.repo.AdjustLotBasis(tx, repl.ID, -gain); err != nil {
					return err
				}

				e.log.Info().
					Str("symbol", fill.Symbol).
					Float64("disallowed_loss", -gain).
					Int64("replacement_lot", repl.ID).
					Msg("Wash sale detected at disposal")

				if e.bus != nil {
					e.bus.Publish("taxlots", &events.WashSaleDetectedData{
						Symbol:         fill.Symbol,
						FillID:         fill.ID,
						DisallowedLoss: -gain,
					})
				}
			}
		}

		if _, err := e.repo.CreateDisposal(tx, disposal); err != nil {
			return err
		}

		newQty := lot.Quantity - matched
		newBasis := lot.CostBasis - costShare
		var closedAt *time.Time
		if newQty <= 1e-9 {
			newQty = 0
			newBasis = 0
			closedAt = &soldAt
		}
		if err := e.repo.UpdateLot(tx, lot.ID, newQty, newBasis, closedAt); err != nil {
			return err
		}
		lot.Quantity = newQty
		lot.CostBasis = newBasis

		remaining -= matched
	}

	return nil
}

// orderLots sorts open lots into matching order for the configured strategy
func orderLots(lots []domain.TaxLot, strategy string) {
	switch strategy {
	case "lifo":
		sort.SliceStable(lots, func(i, j int) bool {
			return lots[i].AcquiredAt.After(lots[j].AcquiredAt)
		})
	case "hifo":
		sort.SliceStable(lots, func(i, j int) bool {
			return lots[i].CostBasis/lots[i].Quantity > lots[j].CostBasis/lots[j].Quantity
		})
	default:
		// fifo: OpenLots already returns acquisition order
	}
}

func firstOpenLot(lots []domain.TaxLot) *domain.TaxLot {
	for i := range lots {
		if lots[i].Quantity > 0 {
			return &lots[i]
		}
	}
	return nil
}

// OpenLots returns the open lots for a symbol
func (e *Engine) OpenLots(symbol string) ([]domain.TaxLot, error) {
	return e.repo.GetOpenLots(symbol)
}

// YearEndSummary aggregates a tax year's realized results
func (e *Engine) YearEndSummary(year int) (*domain.TaxYearEndSummary, error) {
	return e.repo.YearEndSummary(year)
}

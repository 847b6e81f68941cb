package reconciliation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/config"
	"github.com/dkaragian/verdict/internal/domain"
	"github.com/dkaragian/verdict/internal/events"
	"github.com/dkaragian/verdict/internal/modules/taxlots"
)

// LedgerSource supplies the internal position view to reconcile against
type LedgerSource interface {
	PositionTotals() (map[string]taxlots.PositionTotal, error)
}

// Engine runs reconciliation passes. A pass either completes and appends
// exactly one log row, or fails before writing anything; there is no
// partial pass.
type Engine struct {
	broker domain.BrokerClient
	ledger LedgerSource
	repo   *Repository
	bus    *events.Bus
	cfg    config.ReconciliationConfig
	log    zerolog.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(broker domain.BrokerClient, ledger LedgerSource, repo *Repository, bus *events.Bus, cfg config.ReconciliationConfig, log zerolog.Logger) *Engine {
	return &Engine{
		broker: broker,
		ledger: ledger,
		repo:   repo,
		bus:    bus,
		cfg:    cfg,
		log:    log.With().Str("component", "reconciliation").Logger(),
	}
}

// Run executes one reconciliation pass. A broker failure aborts the pass
// before any log row is written: a pass over stale broker data would record
// phantom discrepancies.
func (e *Engine) Run(ctx context.Context) (*domain.ReconciliationLog, error) {
	startedAt := time.Now().UTC()

	brokerPositions, err := e.broker.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching broker positions: %w", err)
	}
	pendingOrders, err := e.broker.GetPendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching pending orders: %w", err)
	}

	internal, err := e.ledger.PositionTotals()
	if err != nil {
		return nil, fmt.Errorf("loading internal positions: %w", err)
	}

	entry := e.compare(brokerPositions, pendingOrders, internal)
	entry.PassID = uuid.New().String()
	entry.StartedAt = startedAt
	entry.CompletedAt = time.Now().UTC()

	id, err := e.repo.Append(*entry)
	if err != nil {
		return nil, err
	}
	entry.ID = id

	e.log.Info().
		Str("pass_id", entry.PassID).
		Int("total", entry.TotalPositions).
		Int("matches", entry.Matches).
		Int("discrepancies", entry.Discrepancies).
		Int("auto_resolved", entry.AutoResolved).
		Msg("Reconciliation pass completed")

	if e.bus != nil {
		e.bus.Publish("reconciliation", &events.ReconciliationCompletedData{
			PassID:         entry.PassID,
			TotalPositions: entry.TotalPositions,
			Matches:        entry.Matches,
			Discrepancies:  entry.Discrepancies,
			AutoResolved:   entry.AutoResolved,
			Duration:       entry.CompletedAt.Sub(entry.StartedAt).Seconds(),
		})
		for _, d := range entry.Details {
			e.bus.Publish("reconciliation", &events.DiscrepancyFoundData{
				PassID:       entry.PassID,
				Symbol:       d.Symbol,
				Kind:         string(d.Kind),
				AutoResolved: d.AutoResolved,
			})
		}
	}

	return entry, nil
}

// compare diffs the two position views symbol by symbol
func (e *Engine) compare(brokerPositions []domain.BrokerPosition, pendingOrders []domain.BrokerPendingOrder, internal map[string]taxlots.PositionTotal) *domain.ReconciliationLog {
	broker := make(map[string]domain.BrokerPosition, len(brokerPositions))
	for _, p := range brokerPositions {
		broker[p.Symbol] = p
	}

	pendingBySymbol := make(map[string][]domain.BrokerPendingOrder)
	for _, o := range pendingOrders {
		pendingBySymbol[o.Symbol] = append(pendingBySymbol[o.Symbol], o)
	}

	symbols := make(map[string]struct{})
	for s := range broker {
		symbols[s] = struct{}{}
	}
	for s := range internal {
		symbols[s] = struct{}{}
	}
	ordered := make([]string, 0, len(symbols))
	for s := range symbols {
		ordered = append(ordered, s)
	}
	sort.Strings(ordered)

	entry := &domain.ReconciliationLog{
		TotalPositions: len(ordered),
		Details:        []domain.Discrepancy{},
	}

	for _, symbol := range ordered {
		brokerPos, atBroker := broker[symbol]
		internalPos, inLedger := internal[symbol]

		d := domain.Discrepancy{
			Symbol:       symbol,
			InternalQty:  internalPos.Quantity,
			BrokerQty:    brokerPos.Quantity,
			InternalCost: internalPos.CostBasis,
			BrokerCost:   brokerPos.CostBasis,
		}

		switch {
		case !inLedger:
			d.Kind = domain.DiscrepancyMissingLocal
		case !atBroker:
			d.Kind = domain.DiscrepancyMissingAtBroker
		case math.Abs(brokerPos.Quantity-internalPos.Quantity) > e.cfg.QuantityTolerance:
			d.Kind = domain.DiscrepancyQuantity
		case math.Abs(brokerPos.CostBasis-internalPos.CostBasis) > e.cfg.CostBasisTolerance:
			d.Kind = domain.DiscrepancyCostBasis
		default:
			entry.Matches++
			continue
		}

		if d.Kind != domain.DiscrepancyCostBasis {
			if order := e.explainingOrder(d, pendingBySymbol[symbol]); order != nil {
				d.AutoResolved = true
				d.PendingOrder = order.OrderID
				entry.AutoResolved++
			}
		}

		entry.Discrepancies++
		entry.Details = append(entry.Details, d)
	}

	return entry
}

// explainingOrder finds a pending order whose fill would close the quantity
// gap. Such discrepancies are in-flight trades, not ledger errors.
func (e *Engine) explainingOrder(d domain.Discrepancy, orders []domain.BrokerPendingOrder) *domain.BrokerPendingOrder {
	gap := d.BrokerQty - d.InternalQty
	for i := range orders {
		order := orders[i]
		signed := order.Quantity
		if order.Side == "sell" {
			signed = -signed
		}
		// The ledger leads the broker while an order is pending, so the
		// ledger-side gap is the unfilled order quantity
		if math.Abs(gap+signed) <= e.cfg.QuantityTolerance || math.Abs(gap-signed) <= e.cfg.QuantityTolerance {
			return &order
		}
	}
	return nil
}

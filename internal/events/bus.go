// Package events provides the in-process event bus and typed event payloads.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a class of domain event
type EventType string

const (
	AnalysisCompleted        EventType = "analysis.completed"
	CalibrationUpdated       EventType = "calibration.updated"
	HealthStatusChanged      EventType = "health.status_changed"
	StrategyRetired          EventType = "health.strategy_retired"
	ReconciliationCompleted  EventType = "reconciliation.completed"
	DiscrepancyFound         EventType = "reconciliation.discrepancy_found"
	FillApplied              EventType = "taxlots.fill_applied"
	WashSaleDetected         EventType = "taxlots.wash_sale_detected"
	AllocationTargetsChanged EventType = "allocation.targets_changed"
	FillStreamStatusChanged  EventType = "fillstream.status_changed"
	JobStarted               EventType = "job.started"
	JobCompleted             EventType = "job.completed"
	JobFailed                EventType = "job.failed"
	ErrorOccurred            EventType = "error.occurred"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine; keep them fast.
type Handler func(event EventWithData)

// Bus is a simple fan-out publisher for domain events
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      map[int]Handler
	nextID   int
	log      zerolog.Logger
}

// NewBus creates an event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		all:      make(map[int]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for one event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type. The returned
// function removes the subscription; SSE connections rely on this so
// disconnected clients do not accumulate.
func (b *Bus) SubscribeAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.all[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.all, id)
	}
}

// Publish delivers an event to all matching handlers. A panicking handler
// is logged and does not affect other handlers.
func (b *Bus) Publish(module string, data EventData) {
	event := EventWithData{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Module:    module,
		Data:      data,
	}

	b.mu.RLock()
	typed := b.handlers[event.Type]
	all := make([]Handler, 0, len(b.all))
	for _, h := range b.all {
		all = append(all, h)
	}
	b.mu.RUnlock()

	for _, h := range typed {
		b.dispatch(h, event)
	}
	for _, h := range all {
		b.dispatch(h, event)
	}
}

func (b *Bus) dispatch(h Handler, event EventWithData) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Interface("panic", r).
				Str("event_type", string(event.Type)).
				Msg("Event handler panicked")
		}
	}()
	h(event)
}

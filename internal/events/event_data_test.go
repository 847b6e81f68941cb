package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventWithDataRoundTrip(t *testing.T) {
	orig := EventWithData{
		Type:      ReconciliationCompleted,
		Timestamp: time.Now().UTC().Truncate(time.Second),
		Module:    "reconciliation",
		Data: &ReconciliationCompletedData{
			PassID:         "pass-1",
			TotalPositions: 12,
			Matches:        10,
			Discrepancies:  2,
			AutoResolved:   1,
		},
	}

	raw, err := json.Marshal(&orig)
	require.NoError(t, err)

	var decoded EventWithData
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, ReconciliationCompleted, decoded.Type)

	data, ok := decoded.Data.(*ReconciliationCompletedData)
	require.True(t, ok)
	assert.Equal(t, "pass-1", data.PassID)
	assert.Equal(t, 2, data.Discrepancies)
}

func TestJobStatusDataEventType(t *testing.T) {
	assert.Equal(t, JobStarted, (&JobStatusData{Status: "started"}).EventType())
	assert.Equal(t, JobCompleted, (&JobStatusData{Status: "completed"}).EventType())
	assert.Equal(t, JobFailed, (&JobStatusData{Status: "failed"}).EventType())
}

func TestEventWithDataUnknownType(t *testing.T) {
	raw := []byte(`{"type":"custom.thing","timestamp":"2026-01-01T00:00:00Z","module":"x","data":{"k":"v"}}`)

	var decoded EventWithData
	require.NoError(t, json.Unmarshal(raw, &decoded))

	generic, ok := decoded.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, "v", generic.Data["k"])
}

func TestBusPublishAndSubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []EventWithData
	bus.Subscribe(HealthStatusChanged, func(e EventWithData) {
		got = append(got, e)
	})

	var allCount int
	bus.SubscribeAll(func(e EventWithData) {
		allCount++
	})

	bus.Publish("health", &HealthStatusChangedData{
		Strategy:  "momentum",
		OldStatus: "healthy",
		NewStatus: "degrading",
	})
	bus.Publish("taxlots", &FillAppliedData{FillID: "f-1", Symbol: "AAPL"})

	require.Len(t, got, 1)
	assert.Equal(t, "health", got[0].Module)
	assert.Equal(t, 2, allCount)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var count int
	unsubscribe := bus.SubscribeAll(func(e EventWithData) {
		count++
	})

	bus.Publish("taxlots", &FillAppliedData{FillID: "f-1"})
	unsubscribe()
	bus.Publish("taxlots", &FillAppliedData{FillID: "f-2"})

	assert.Equal(t, 1, count)
}

func TestBusHandlerPanicIsolated(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	bus.Subscribe(FillApplied, func(e EventWithData) {
		panic("boom")
	})

	var reached bool
	bus.Subscribe(FillApplied, func(e EventWithData) {
		reached = true
	})

	bus.Publish("taxlots", &FillAppliedData{FillID: "f-1"})
	assert.True(t, reached)
}

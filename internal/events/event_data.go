package events

import (
	"encoding/json"
	"time"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// AnalysisCompletedData contains data for AnalysisCompleted events
type AnalysisCompletedData struct {
	Symbol            string  `json:"symbol"`
	OverallSignal     string  `json:"overall_signal"`
	OverallConfidence float64 `json:"overall_confidence"`
	EnginesResponded  int     `json:"engines_responded"`
	Degraded          bool    `json:"degraded"`
}

// EventType returns the event type for AnalysisCompletedData
func (d *AnalysisCompletedData) EventType() EventType {
	return AnalysisCompleted
}

// CalibrationUpdatedData contains data for CalibrationUpdated events
type CalibrationUpdatedData struct {
	Strategy    string `json:"strategy"`
	SampleCount int    `json:"sample_count"`
	Buckets     int    `json:"buckets"`
}

// EventType returns the event type for CalibrationUpdatedData
func (d *CalibrationUpdatedData) EventType() EventType {
	return CalibrationUpdated
}

// HealthStatusChangedData contains data for HealthStatusChanged events
type HealthStatusChangedData struct {
	Strategy  string   `json:"strategy"`
	OldStatus string   `json:"old_status"`
	NewStatus string   `json:"new_status"`
	WinRate   *float64 `json:"win_rate,omitempty"`
	DecayRate *float64 `json:"decay_rate,omitempty"`
}

// EventType returns the event type for HealthStatusChangedData
func (d *HealthStatusChangedData) EventType() EventType {
	return HealthStatusChanged
}

// StrategyRetiredData contains data for StrategyRetired events
type StrategyRetiredData struct {
	Strategy       string `json:"strategy"`
	Reason         string `json:"reason"`
	DaysInCritical int    `json:"days_in_critical,omitempty"`
}

// EventType returns the event type for StrategyRetiredData
func (d *StrategyRetiredData) EventType() EventType {
	return StrategyRetired
}

// ReconciliationCompletedData contains data for ReconciliationCompleted events
type ReconciliationCompletedData struct {
	PassID         string  `json:"pass_id"`
	TotalPositions int     `json:"total_positions"`
	Matches        int     `json:"matches"`
	Discrepancies  int     `json:"discrepancies"`
	AutoResolved   int     `json:"auto_resolved"`
	Duration       float64 `json:"duration"`
}

// EventType returns the event type for ReconciliationCompletedData
func (d *ReconciliationCompletedData) EventType() EventType {
	return ReconciliationCompleted
}

// DiscrepancyFoundData contains data for DiscrepancyFound events
type DiscrepancyFoundData struct {
	PassID       string `json:"pass_id"`
	Symbol       string `json:"symbol"`
	Kind         string `json:"kind"`
	AutoResolved bool   `json:"auto_resolved"`
}

// EventType returns the event type for DiscrepancyFoundData
func (d *DiscrepancyFoundData) EventType() EventType {
	return DiscrepancyFound
}

// FillAppliedData contains data for FillApplied events
type FillAppliedData struct {
	FillID   string  `json:"fill_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// EventType returns the event type for FillAppliedData
func (d *FillAppliedData) EventType() EventType {
	return FillApplied
}

// WashSaleDetectedData contains data for WashSaleDetected events
type WashSaleDetectedData struct {
	Symbol         string  `json:"symbol"`
	FillID         string  `json:"fill_id"`
	DisallowedLoss float64 `json:"disallowed_loss"`
}

// EventType returns the event type for WashSaleDetectedData
func (d *WashSaleDetectedData) EventType() EventType {
	return WashSaleDetected
}

// AllocationTargetsChangedData contains data for AllocationTargetsChanged events
type AllocationTargetsChangedData struct {
	Type  string `json:"type"`
	Count int    `json:"count,omitempty"`
}

// EventType returns the event type for AllocationTargetsChangedData
func (d *AllocationTargetsChangedData) EventType() EventType {
	return AllocationTargetsChanged
}

// FillStreamStatusChangedData contains data for FillStreamStatusChanged events
type FillStreamStatusChangedData struct {
	Connected bool   `json:"connected"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for FillStreamStatusChangedData
func (d *FillStreamStatusChangedData) EventType() EventType {
	return FillStreamStatusChanged
}

// JobStatusData contains data for job lifecycle events
type JobStatusData struct {
	JobName   string    `json:"job_name"`
	Status    string    `json:"status"` // "started", "completed", "failed"
	Error     string    `json:"error,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType returns the event type for JobStatusData
// Note: The actual event type is determined by the Status field
func (d *JobStatusData) EventType() EventType {
	switch d.Status {
	case "completed":
		return JobCompleted
	case "failed":
		return JobFailed
	default:
		return JobStarted
	}
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// EventWithData represents an event with typed data
type EventWithData struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for EventWithData
func (e *EventWithData) MarshalJSON() ([]byte, error) {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for EventWithData
func (e *EventWithData) UnmarshalJSON(data []byte) error {
	type Alias EventWithData
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case AnalysisCompleted:
			eventData = &AnalysisCompletedData{}
		case CalibrationUpdated:
			eventData = &CalibrationUpdatedData{}
		case HealthStatusChanged:
			eventData = &HealthStatusChangedData{}
		case StrategyRetired:
			eventData = &StrategyRetiredData{}
		case ReconciliationCompleted:
			eventData = &ReconciliationCompletedData{}
		case DiscrepancyFound:
			eventData = &DiscrepancyFoundData{}
		case FillApplied:
			eventData = &FillAppliedData{}
		case WashSaleDetected:
			eventData = &WashSaleDetectedData{}
		case AllocationTargetsChanged:
			eventData = &AllocationTargetsChangedData{}
		case FillStreamStatusChanged:
			eventData = &FillStreamStatusChangedData{}
		case JobStarted, JobCompleted, JobFailed:
			eventData = &JobStatusData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		default:
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			eventData = &GenericEventData{Type: aux.Type, Data: rawData}
		}

		if eventData != nil {
			if err := json.Unmarshal(aux.Data, eventData); err != nil {
				return err
			}
			e.Data = eventData
		}
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}

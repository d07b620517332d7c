package models

import "time"

// Event types recorded by the coordinator.
const (
	EventModeChange    = "MODE_CHANGE"
	EventActionChange  = "ACTION_CHANGE"
	EventWindow        = "WINDOW"
	EventDispatchError = "DISPATCH_ERROR"
	EventSensorFault   = "SENSOR_FAULT"
)

// ThermostatEvent is a single log entry.
type ThermostatEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // MODE_CHANGE | ACTION_CHANGE | WINDOW | DISPATCH_ERROR | SENSOR_FAULT
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

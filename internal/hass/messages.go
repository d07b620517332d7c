package hass

import "github.com/julius090/fusion-thermostat/internal/climate"

// Message types of the Home Assistant WebSocket API.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
	msgEvent        = "event"
)

const eventStateChanged = "state_changed"

// serverMessage is the superset of inbound frames the client handles.
type serverMessage struct {
	ID      int64         `json:"id,omitempty"`
	Type    string        `json:"type"`
	Success bool          `json:"success,omitempty"`
	Error   *serverError  `json:"error,omitempty"`
	Event   *eventPayload `json:"event,omitempty"`
	Message string        `json:"message,omitempty"` // set on auth_invalid
}

type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type eventPayload struct {
	EventType string           `json:"event_type"`
	Data      stateChangedData `json:"data"`
}

type stateChangedData struct {
	EntityID string       `json:"entity_id"`
	OldState *entityState `json:"old_state"`
	NewState *entityState `json:"new_state"`
}

type entityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func toEntityState(s *entityState) *climate.EntityState {
	if s == nil {
		return nil
	}
	return &climate.EntityState{
		EntityID:   s.EntityID,
		State:      s.State,
		Attributes: s.Attributes,
	}
}

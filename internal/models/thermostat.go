package models

import "time"

// HVACMode is the commanded operating mode of the virtual thermostat.
// Values follow the Home Assistant climate vocabulary so they can be passed
// through to downstream devices unchanged.
type HVACMode string

const (
	ModeOff  HVACMode = "off"
	ModeHeat HVACMode = "heat"
)

// Valid reports whether the mode is one the thermostat supports.
func (m HVACMode) Valid() bool {
	return m == ModeOff || m == ModeHeat
}

// HVACAction is the derived activity of the thermostat. It is never set
// directly by callers; it follows from the mode and the hysteresis decision.
type HVACAction string

const (
	ActionOff     HVACAction = "off"
	ActionHeating HVACAction = "heating"
	ActionIdle    HVACAction = "idle"
	ActionUnknown HVACAction = "unknown"
)

// ThermostatState is the current snapshot of the virtual thermostat.
type ThermostatState struct {
	ID           int        `json:"id"`
	HVACMode     HVACMode   `json:"hvac_mode"`   // off | heat
	HVACAction   HVACAction `json:"hvac_action"` // off | heating | idle | unknown
	CurrentTempC *float64   `json:"current_temp_c,omitempty"` // nil until a sensor reading arrives
	TargetTempC  float64    `json:"target_temp_c"`            // °C
	CalibrationC float64    `json:"local_temperature_calibration"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

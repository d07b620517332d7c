package service

import "time"

type ModeParams struct {
	Mode string // "heat" | "off"
}

type TemperatureParams struct {
	Temperature *float64 // °C; nil when the caller supplied no value
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "", "MODE_CHANGE", "ACTION_CHANGE", "WINDOW", "DISPATCH_ERROR", "SENSOR_FAULT"
}

package climate

import "github.com/julius090/fusion-thermostat/internal/models"

// DecideAction maps the current and target temperature onto a heating action
// using a three-way hysteresis band. The returned bool reports whether a new
// action was decided; false means the temperature sits inside the deadband
// between the cold and hot tolerance thresholds, and the previous action
// stands. Unknown inputs decide ActionUnknown.
//
// Pure computation, no side effects.
func DecideAction(current, target *float64, coldTolerance, hotTolerance float64) (models.HVACAction, bool) {
	if current == nil || target == nil {
		return models.ActionUnknown, true
	}

	demand := *target - *current

	switch {
	case demand == 0 && coldTolerance == 0 && hotTolerance == 0:
		return models.ActionIdle, true
	case *current <= *target-coldTolerance:
		return models.ActionHeating, true
	case *current >= *target+hotTolerance:
		return models.ActionIdle, true
	default:
		// Deadband: keep whatever the thermostat was doing.
		return "", false
	}
}

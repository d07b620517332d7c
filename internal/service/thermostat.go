package service

import (
	"context"
	"errors"
	"strings"

	"github.com/julius090/fusion-thermostat/internal/models"
)

var (
	errInvalidMode        = errors.New("invalid mode: must be heat or off")
	errMissingTemperature = errors.New("temperature is required")
)

// ThermostatService validates set-requests from the API and hands them to the
// coordinator. The coordinator itself treats invalid input as a logged no-op;
// rejecting it here gives API callers a proper 4xx instead of silence.
type ThermostatService struct {
	ctrl Controller
}

func NewThermostatService(ctrl Controller) *ThermostatService {
	return &ThermostatService{ctrl: ctrl}
}

// SetMode applies a new hvac mode to the virtual thermostat; the coordinator
// mirrors it to every downstream device.
func (s *ThermostatService) SetMode(ctx context.Context, p ModeParams) error {
	mode := models.HVACMode(strings.ToLower(strings.TrimSpace(p.Mode)))
	if !mode.Valid() {
		return errInvalidMode
	}
	s.ctrl.SetHVACMode(ctx, mode)
	return nil
}

// SetTemperature applies a new target temperature. The configured min/max
// bounds are advisory and deliberately not enforced here.
func (s *ThermostatService) SetTemperature(ctx context.Context, p TemperatureParams) error {
	if p.Temperature == nil {
		return errMissingTemperature
	}
	s.ctrl.SetTemperature(ctx, p.Temperature)
	return nil
}

package service

import (
	"context"

	"github.com/julius090/fusion-thermostat/internal/climate"
	"github.com/julius090/fusion-thermostat/internal/models"
	"github.com/julius090/fusion-thermostat/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Thermostat exposes the set-operations of the virtual thermostat.
type Thermostat interface {
	SetMode(ctx context.Context, p ModeParams) error
	SetTemperature(ctx context.Context, p TemperatureParams) error
}

// Monitoring exposes the current thermostat snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.ThermostatState, error)
}

// EventLog exposes the append-only coordinator log with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ThermostatEvent, error)
}

// Controller is the slice of the climate coordinator the services need.
type Controller interface {
	SetHVACMode(ctx context.Context, mode models.HVACMode)
	SetTemperature(ctx context.Context, temperature *float64)
	Snapshot() models.ThermostatState
}

// Coordinator satisfies Controller.
var _ Controller = (*climate.Coordinator)(nil)

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Thermostat
	Monitoring
	EventLog
	Authorization
}

// NewService wires the coordinator and repository layer into concrete services.
func NewService(ctrl Controller, repos *repository.Repository, signingKey string) *Service {
	return &Service{
		Thermostat:    NewThermostatService(ctrl),
		Monitoring:    NewMonitoringService(ctrl),
		EventLog:      NewEventLogService(repos.EventRepo),
		Authorization: NewAuthService(repos.Auth, signingKey),
	}
}

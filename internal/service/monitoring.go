package service

import (
	"context"

	"github.com/julius090/fusion-thermostat/internal/models"
)

// MonitoringService reads the live thermostat snapshot from the coordinator.
type MonitoringService struct {
	ctrl Controller
}

func NewMonitoringService(ctrl Controller) *MonitoringService {
	return &MonitoringService{ctrl: ctrl}
}

// GetState returns the coordinator's current snapshot. The coordinator is the
// source of truth while running; the persisted copy only matters at restore.
func (s *MonitoringService) GetState(ctx context.Context) (models.ThermostatState, error) {
	return s.ctrl.Snapshot(), nil
}

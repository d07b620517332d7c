package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/julius090/fusion-thermostat/internal/models"
)

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	thermostatStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO thermostat_state (id, hvac_mode, hvac_action, current_c, target_c, calibration_c, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hvac_mode=excluded.hvac_mode,
			hvac_action=excluded.hvac_action,
			current_c=excluded.current_c,
			target_c=excluded.target_c,
			calibration_c=excluded.calibration_c,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, hvac_mode, hvac_action, current_c, target_c, calibration_c, updated_at
		FROM thermostat_state WHERE id=?
	`
)

// Save updates or inserts the thermostat_state row (id always 1).
func (r *StateSQLite) Save(ctx context.Context, state models.ThermostatState) error {
	// ensure UpdatedAt is always persisted as UTC; set if zero
	tsUTC := state.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	// nil current temperature stays NULL until the first sensor reading
	var current sql.NullFloat64
	if state.CurrentTempC != nil {
		current = sql.NullFloat64{Float64: *state.CurrentTempC, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		thermostatStateRowID,
		string(state.HVACMode),
		string(state.HVACAction),
		current,
		state.TargetTempC,
		state.CalibrationC,
		tsUTC,
	)
	return err
}

// Load fetches the single thermostat_state row (id=1).
// Returns a zero-value state (ID 0) when nothing has been persisted yet.
func (r *StateSQLite) Load(ctx context.Context) (models.ThermostatState, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, thermostatStateRowID)

	var s models.ThermostatState
	var mode, action string
	var current sql.NullFloat64
	if err := row.Scan(
		&s.ID,
		&mode,
		&action,
		&current,
		&s.TargetTempC,
		&s.CalibrationC,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ThermostatState{}, nil // no state yet
		}
		return models.ThermostatState{}, err
	}

	s.HVACMode = models.HVACMode(mode)
	s.HVACAction = models.HVACAction(action)
	if current.Valid {
		v := current.Float64
		s.CurrentTempC = &v
	}
	s.UpdatedAt = s.UpdatedAt.UTC()

	return s, nil
}

package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/julius090/fusion-thermostat/internal/models"
	"github.com/julius090/fusion-thermostat/internal/repository"
)

func TestStateSQLite_Save_SetsUTCNow_WhenTimeZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewStateSQLite(db)

	current := 19.5
	state := models.ThermostatState{
		HVACMode:     models.ModeHeat,
		HVACAction:   models.ActionHeating,
		CurrentTempC: &current,
		TargetTempC:  21.0,
		CalibrationC: -5,
		// UpdatedAt is zero
	}

	isUTCRecent := sqlmockArgumentFunc(func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		if !ok {
			return false
		}
		if tm.Location() != time.UTC {
			return false
		}
		now := time.Now().UTC()
		return !tm.Before(now.Add(-5*time.Second)) && !tm.After(now.Add(5*time.Second))
	})

	// We don't have direct access to the private SQL constant, so match by fragment.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO thermostat_state")).
		WithArgs(
			1, // id constant
			"heat",
			"heating",
			sql.NullFloat64{Float64: 19.5, Valid: true},
			state.TargetTempC,
			state.CalibrationC,
			isUTCRecent, // UpdatedAt written as UTC "now"
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Save_NilCurrentStoredAsNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewStateSQLite(db)

	state := models.ThermostatState{
		HVACMode:    models.ModeHeat,
		HVACAction:  models.ActionUnknown,
		TargetTempC: 20,
		// CurrentTempC nil: sensor never reported
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO thermostat_state")).
		WithArgs(
			1,
			"heat",
			"unknown",
			sql.NullFloat64{}, // NULL
			20.0,
			0.0,
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Save_ExecErrorIsPropagated(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewStateSQLite(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO thermostat_state")).
		WillReturnError(errors.New("db down"))

	if err := repo.Save(context.Background(), models.ThermostatState{HVACMode: models.ModeOff}); err == nil {
		t.Fatalf("Save() expected error, got nil")
	}
}

func TestStateSQLite_Load_NoRowsReturnsZeroValueAndNilError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewStateSQLite(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, hvac_mode, hvac_action, current_c, target_c, calibration_c, updated_at")).
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	// zero value expected
	var zero models.ThermostatState
	if !reflect.DeepEqual(got, zero) {
		t.Fatalf("Load() expected zero state, got: %+v", got)
	}
}

func TestStateSQLite_Load_HappyPath_ConvertsToUTC(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewStateSQLite(db)

	cols := []string{"id", "hvac_mode", "hvac_action", "current_c", "target_c", "calibration_c", "updated_at"}
	locNY, _ := time.LoadLocation("America/New_York")
	nonUTC := time.Date(2024, 2, 1, 8, 30, 0, 0, locNY)

	rows := sqlmock.NewRows(cols).
		AddRow(1, "heat", "idle", 21.5, 21.0, 5.0, nonUTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, hvac_mode, hvac_action, current_c, target_c, calibration_c, updated_at")).
		WithArgs(1).
		WillReturnRows(rows)

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if got.ID != 1 ||
		got.HVACMode != models.ModeHeat ||
		got.HVACAction != models.ActionIdle ||
		got.TargetTempC != 21.0 ||
		got.CalibrationC != 5.0 {
		t.Fatalf("Load() unexpected fields: %+v", got)
	}
	if got.CurrentTempC == nil || *got.CurrentTempC != 21.5 {
		t.Fatalf("Load() CurrentTempC mismatch: %v", got.CurrentTempC)
	}
	if got.UpdatedAt.Location() != time.UTC {
		t.Fatalf("Load() UpdatedAt not UTC: %v (%v)", got.UpdatedAt, got.UpdatedAt.Location())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStateSQLite_Load_NullCurrentStaysNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewStateSQLite(db)

	cols := []string{"id", "hvac_mode", "hvac_action", "current_c", "target_c", "calibration_c", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(1, "heat", "unknown", nil, 20.0, 0.0, time.Now().UTC())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, hvac_mode, hvac_action, current_c, target_c, calibration_c, updated_at")).
		WithArgs(1).
		WillReturnRows(rows)

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if got.CurrentTempC != nil {
		t.Fatalf("expected nil CurrentTempC, got %v", *got.CurrentTempC)
	}
}

// Helpers

type sqlmockArgumentFunc func(v driver.Value) bool

func (f sqlmockArgumentFunc) Match(v driver.Value) bool {
	return f(v)
}

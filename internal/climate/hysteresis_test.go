package climate

import (
	"testing"

	"github.com/julius090/fusion-thermostat/internal/models"
)

func fptr(v float64) *float64 { return &v }

func TestDecideAction_UnknownInputs(t *testing.T) {
	if got, decided := DecideAction(nil, fptr(20), 0.5, 0.5); !decided || got != models.ActionUnknown {
		t.Fatalf("nil current: got (%v,%v), want (unknown,true)", got, decided)
	}
	if got, decided := DecideAction(fptr(19), nil, 0.5, 0.5); !decided || got != models.ActionUnknown {
		t.Fatalf("nil target: got (%v,%v), want (unknown,true)", got, decided)
	}
}

func TestDecideAction_Thresholds(t *testing.T) {
	cases := []struct {
		name            string
		current, target float64
		coldTol, hotTol float64
		want            models.HVACAction
		wantDecided     bool
	}{
		{"zero_tolerances_at_target", 20, 20, 0, 0, models.ActionIdle, true},
		{"at_cold_threshold", 19.5, 20, 0.5, 0.5, models.ActionHeating, true},
		{"below_cold_threshold", 18, 20, 0.5, 0.5, models.ActionHeating, true},
		{"at_hot_threshold", 20.5, 20, 0.5, 0.5, models.ActionIdle, true},
		{"above_hot_threshold", 22, 20, 0.5, 0.5, models.ActionIdle, true},
		{"inside_deadband_below", 19.6, 20, 0.5, 0.5, "", false},
		{"inside_deadband_above", 20.4, 20, 0.5, 0.5, "", false},
		{"at_target_with_tolerances", 20, 20, 0.5, 0.5, "", false},
		// Shrinking the cold tolerance pulls the same reading over the threshold.
		{"band_19_4_tol_0_5", 19.4, 20, 0.5, 0.5, "", false},
		{"band_19_4_tol_0_3", 19.4, 20, 0.3, 0.5, models.ActionHeating, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, decided := DecideAction(fptr(tc.current), fptr(tc.target), tc.coldTol, tc.hotTol)
			if decided != tc.wantDecided || got != tc.want {
				t.Fatalf("DecideAction(%v,%v,%v,%v) = (%v,%v), want (%v,%v)",
					tc.current, tc.target, tc.coldTol, tc.hotTol, got, decided, tc.want, tc.wantDecided)
			}
		})
	}
}

func TestDecideAction_DeadbandIsStable(t *testing.T) {
	// Repeated evaluation inside the band never decides anything, so a
	// previously set action stays untouched no matter how often the sensor
	// reports values within tolerance of the target.
	for _, current := range []float64{19.6, 19.8, 20.0, 20.2, 20.4} {
		if _, decided := DecideAction(fptr(current), fptr(20), 0.5, 0.5); decided {
			t.Fatalf("current=%v: expected deadband, got a decision", current)
		}
	}
}

package climate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/julius090/fusion-thermostat/internal/logger"
	"github.com/julius090/fusion-thermostat/internal/models"
)

// serviceCall records one downstream invocation.
type serviceCall struct {
	Domain  string
	Service string
	Data    map[string]any
}

// fakeCaller records calls and can fail selected entity ids.
type fakeCaller struct {
	mu      sync.Mutex
	calls   []serviceCall
	failFor map[string]error
}

func (f *fakeCaller) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, serviceCall{Domain: domain, Service: service, Data: data})
	if id, ok := data["entity_id"].(string); ok {
		if err, ok := f.failFor[id]; ok {
			return err
		}
	}
	return nil
}

func (f *fakeCaller) snapshot() []serviceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]serviceCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// waitFor polls until cond holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func newTestDispatcher(caller ServiceCaller) *Dispatcher {
	d := NewDispatcher(caller, logger.Get(logger.ErrorLevel))
	d.callDelay = 0 // no rate limiting in tests
	return d
}

func TestCalibrationEntityID(t *testing.T) {
	got := CalibrationEntityID("climate.living_room")
	want := "number.living_room_local_temperature_calibration"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	// No domain prefix: the id is used as the object id.
	if got := CalibrationEntityID("bedroom"); got != "number.bedroom_local_temperature_calibration" {
		t.Fatalf("got %q", got)
	}
}

func TestDispatcher_FanOutExcludesOriginator(t *testing.T) {
	caller := &fakeCaller{}
	d := newTestDispatcher(caller)

	targets := []string{"climate.a", "climate.b", "climate.c"}
	d.SetTemperature(context.Background(), targets, "climate.b", 21.5)

	waitFor(t, func() bool { return len(caller.snapshot()) == 2 })
	waitFor(t, func() bool { return !d.Busy() })

	seen := map[string]bool{}
	for _, call := range caller.snapshot() {
		if call.Domain != "climate" || call.Service != "set_temperature" {
			t.Fatalf("unexpected call: %+v", call)
		}
		if call.Data["temperature"] != 21.5 {
			t.Fatalf("wrong temperature: %+v", call.Data)
		}
		seen[call.Data["entity_id"].(string)] = true
	}
	if !seen["climate.a"] || !seen["climate.c"] || seen["climate.b"] {
		t.Fatalf("wrong recipients: %v", seen)
	}
}

func TestDispatcher_FanOutSurvivesCallerCancellation(t *testing.T) {
	caller := &fakeCaller{}
	d := NewDispatcher(caller, logger.Get(logger.ErrorLevel))
	d.callDelay = 20 * time.Millisecond

	// Mimics an HTTP request context: it is cancelled as soon as the
	// handler returns, well before the delayed calls are issued.
	ctx, cancel := context.WithCancel(context.Background())
	d.SetTemperature(ctx, []string{"climate.a", "climate.b", "climate.c"}, "", 23)
	cancel()

	waitFor(t, func() bool { return len(caller.snapshot()) == 3 })
	waitFor(t, func() bool { return !d.Busy() })

	for _, call := range caller.snapshot() {
		if call.Service != "set_temperature" {
			t.Fatalf("unexpected call: %+v", call)
		}
	}
}

func TestDispatcher_BusyCoversWholeFanOut(t *testing.T) {
	caller := &fakeCaller{}
	d := NewDispatcher(caller, logger.Get(logger.ErrorLevel))
	d.callDelay = 50 * time.Millisecond

	d.SetHVACMode(context.Background(), []string{"climate.a", "climate.b"}, "", models.ModeOff)
	if !d.Busy() {
		t.Fatalf("expected Busy immediately after dispatch")
	}

	waitFor(t, func() bool { return !d.Busy() })
	if got := len(caller.snapshot()); got != 2 {
		t.Fatalf("expected 2 calls after fan-out completed, got %d", got)
	}
}

func TestDispatcher_OneFailureDoesNotAbortSiblings(t *testing.T) {
	caller := &fakeCaller{failFor: map[string]error{"climate.b": errors.New("unreachable")}}
	d := newTestDispatcher(caller)

	var failedMu sync.Mutex
	var failed []string
	d.OnError = func(entityID string, err error) {
		failedMu.Lock()
		failed = append(failed, entityID)
		failedMu.Unlock()
	}

	d.SetHVACMode(context.Background(), []string{"climate.a", "climate.b", "climate.c"}, "", models.ModeHeat)

	waitFor(t, func() bool { return len(caller.snapshot()) == 3 })
	waitFor(t, func() bool { return !d.Busy() })

	failedMu.Lock()
	defer failedMu.Unlock()
	if len(failed) != 1 || failed[0] != "climate.b" {
		t.Fatalf("expected OnError for climate.b only, got %v", failed)
	}
}

func TestDispatcher_SetCalibrationTargetsDerivedEntity(t *testing.T) {
	caller := &fakeCaller{}
	d := newTestDispatcher(caller)

	d.SetCalibration(context.Background(), []string{"climate.office"}, -5)

	waitFor(t, func() bool { return len(caller.snapshot()) == 1 })
	call := caller.snapshot()[0]
	if call.Domain != "number" || call.Service != "set_value" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.Data["entity_id"] != "number.office_local_temperature_calibration" {
		t.Fatalf("wrong calibration entity: %v", call.Data["entity_id"])
	}
	if call.Data["value"] != -5.0 {
		t.Fatalf("wrong value: %v", call.Data["value"])
	}
}

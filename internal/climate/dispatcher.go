package climate

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julius090/fusion-thermostat/internal/logger"
	"github.com/julius090/fusion-thermostat/internal/models"
)

// defaultCallDelay is the fixed pause before every downstream service call.
// It rate-limits fan-out so a burst of changes does not flood the backend.
const defaultCallDelay = 500 * time.Millisecond

// calibrationEntitySuffix is appended to a device's object id to address its
// local-temperature-calibration number entity. The derivation must match the
// naming convention of the downstream integration exactly.
const calibrationEntitySuffix = "_local_temperature_calibration"

// ServiceCaller issues a single command to the home automation backend.
type ServiceCaller interface {
	CallService(ctx context.Context, domain, service string, data map[string]any) error
}

// Dispatcher fans a command out to a list of downstream climate entities,
// each after an independent delay, without blocking the caller on completion.
// While any fan-out is in flight the dispatcher reports Busy, which the
// coordinator uses to suppress self-caused downstream events.
type Dispatcher struct {
	caller    ServiceCaller
	log       *logger.Logger
	callDelay time.Duration
	inflight  atomic.Int32

	// OnError, when set, is invoked for each failed downstream call after it
	// has been logged. Used by the coordinator to record dispatch failures.
	OnError func(entityID string, err error)
}

// NewDispatcher wires a dispatcher to the backend caller.
func NewDispatcher(caller ServiceCaller, log *logger.Logger) *Dispatcher {
	return &Dispatcher{caller: caller, log: log, callDelay: defaultCallDelay}
}

// Busy reports whether a fan-out initiated by this dispatcher is still in
// flight. Events observed while Busy are echoes of our own commands.
func (d *Dispatcher) Busy() bool { return d.inflight.Load() > 0 }

// SetHVACMode mirrors an hvac mode to every target except excluding.
func (d *Dispatcher) SetHVACMode(ctx context.Context, targets []string, excluding string, mode models.HVACMode) {
	d.dispatch(ctx, targets, excluding, func(ctx context.Context, entityID string) error {
		err := d.caller.CallService(ctx, "climate", "set_hvac_mode", map[string]any{
			"entity_id": entityID,
			"hvac_mode": string(mode),
		})
		if err == nil {
			d.log.Debugw("hvac mode mirrored downstream", "entity_id", entityID, "mode", mode)
		}
		return err
	})
}

// SetTemperature mirrors a target temperature to every target except excluding.
func (d *Dispatcher) SetTemperature(ctx context.Context, targets []string, excluding string, temperature float64) {
	d.dispatch(ctx, targets, excluding, func(ctx context.Context, entityID string) error {
		err := d.caller.CallService(ctx, "climate", "set_temperature", map[string]any{
			"entity_id":   entityID,
			"temperature": temperature,
		})
		if err == nil {
			d.log.Debugw("target temperature mirrored downstream", "entity_id", entityID, "temperature", temperature)
		}
		return err
	})
}

// SetCalibration writes a calibration offset to every target's derived
// calibration number entity.
func (d *Dispatcher) SetCalibration(ctx context.Context, targets []string, value float64) {
	d.dispatch(ctx, targets, "", func(ctx context.Context, entityID string) error {
		err := d.caller.CallService(ctx, "number", "set_value", map[string]any{
			"entity_id": CalibrationEntityID(entityID),
			"value":     value,
		})
		if err == nil {
			d.log.Debugw("calibration written downstream", "entity_id", entityID, "value", value)
		}
		return err
	})
}

// dispatch runs one fan-out cycle. The in-flight counter is raised before the
// first call is issued and lowered only after every target has completed, so
// Busy covers the whole cycle. Targets proceed independently: one target's
// delay or failure neither blocks nor cancels the others, and failures are
// logged rather than surfaced to the coordinator.
func (d *Dispatcher) dispatch(ctx context.Context, targets []string, excluding string, call func(ctx context.Context, entityID string) error) {
	d.inflight.Add(1)

	// The fan-out outlives the triggering request: an HTTP caller's context
	// dies when the handler returns, long before the per-target delay
	// elapses, and a cancelled request must not drop downstream commands.
	ctx = context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for _, entityID := range targets {
		if entityID == excluding {
			continue
		}
		wg.Add(1)
		go func(entityID string) {
			defer wg.Done()
			if d.callDelay > 0 {
				time.Sleep(d.callDelay)
			}
			if err := call(ctx, entityID); err != nil {
				d.log.Errorw("downstream call failed", "entity_id", entityID, "err", err)
				if d.OnError != nil {
					d.OnError(entityID, err)
				}
			}
		}(entityID)
	}

	go func() {
		wg.Wait()
		d.inflight.Add(-1)
	}()
}

// CalibrationEntityID derives the calibration number entity for a climate
// entity: strip the domain prefix, keep the object id, append the fixed
// suffix. "climate.living_room" -> "number.living_room_local_temperature_calibration".
func CalibrationEntityID(entityID string) string {
	objectID := entityID
	if i := strings.Index(entityID, "."); i >= 0 {
		objectID = entityID[i+1:]
	}
	return "number." + objectID + calibrationEntitySuffix
}

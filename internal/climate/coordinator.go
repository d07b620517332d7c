package climate

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julius090/fusion-thermostat/internal/logger"
	"github.com/julius090/fusion-thermostat/internal/models"
	"github.com/julius090/fusion-thermostat/internal/repository"
)

// Calibration offsets written to downstream devices. Heating is actuated
// indirectly: a negative offset raises the device's perceived demand and makes
// it call for heat, a positive offset makes it idle, zero restores neutral.
// Fixed magnitudes, not proportional to the temperature delta.
const (
	calibrationHeating = -5.0
	calibrationIdle    = 5.0
	calibrationOff     = 0.0
)

// Defaults applied at construction, before any restore or sensor reading.
const (
	defaultTargetTempC  = 20.0
	defaultCurrentTempC = 10.0
)

// Config is the validated configuration of one fusion thermostat.
type Config struct {
	Name              string
	TemperatureSensor string   // entity id of the external temperature sensor
	RealThermostats   []string // downstream climate entity ids, immutable after construction
	WindowSensor      string   // optional binary sensor entity id
	WindowDelay       time.Duration
	MinTempC          float64
	MaxTempC          float64
	ColdTolerance     float64
	HotTolerance      float64
}

// Coordinator virtualizes one logical thermostat over the configured pool of
// real thermostat devices. It owns the thermostat state exclusively; every
// mutation goes through its methods under a single lock, so event handling is
// serialized the way a single-threaded event loop would be. The only work
// running outside the lock is the dispatcher's delayed fan-out and the armed
// window debounce timer.
type Coordinator struct {
	cfg        Config
	log        *logger.Logger
	dispatcher *Dispatcher
	scheduler  Scheduler
	stateRepo  repository.StateRepo
	eventRepo  repository.EventRepo

	mu           sync.Mutex
	hvacMode     models.HVACMode
	hvacAction   models.HVACAction
	currentTempC *float64
	targetTempC  float64
	calibrationC float64
	pending      *pendingWindow // at most one armed debounce timer

	// broadcast, when set, receives every new snapshot after it is persisted.
	broadcast func(models.ThermostatState)
}

// NewCoordinator builds a coordinator with constructor defaults
// (target 20 °C, current 10 °C, mode heat, action heating).
func NewCoordinator(cfg Config, dispatcher *Dispatcher, scheduler Scheduler, stateRepo repository.StateRepo, eventRepo repository.EventRepo, log *logger.Logger) *Coordinator {
	current := defaultCurrentTempC
	c := &Coordinator{
		cfg:          cfg,
		log:          log,
		dispatcher:   dispatcher,
		scheduler:    scheduler,
		stateRepo:    stateRepo,
		eventRepo:    eventRepo,
		hvacMode:     models.ModeHeat,
		hvacAction:   models.ActionHeating,
		currentTempC: &current,
		targetTempC:  defaultTargetTempC,
	}
	dispatcher.OnError = func(entityID string, err error) {
		c.appendEvent(context.Background(), models.EventDispatchError,
			"downstream call to "+entityID+" failed",
			map[string]any{"entity_id": entityID, "err": err.Error()})
	}
	return c
}

// SetBroadcast installs a hook that receives every persisted snapshot.
func (c *Coordinator) SetBroadcast(fn func(models.ThermostatState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcast = fn
}

// Restore overrides the constructor defaults with the last persisted snapshot,
// if one exists. Call once before handling events.
func (c *Coordinator) Restore(ctx context.Context) error {
	st, err := c.stateRepo.Load(ctx)
	if err != nil {
		return err
	}
	if st.ID == 0 {
		return nil // nothing persisted yet
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st.HVACMode.Valid() {
		c.hvacMode = st.HVACMode
	}
	if st.HVACAction != "" {
		c.hvacAction = st.HVACAction
	}
	if st.TargetTempC != 0 {
		c.targetTempC = st.TargetTempC
	}
	if st.CurrentTempC != nil {
		v := *st.CurrentTempC
		c.currentTempC = &v
	}
	c.log.Debugw("restored thermostat state",
		"name", c.cfg.Name,
		"hvac_mode", c.hvacMode,
		"hvac_action", c.hvacAction,
		"target_c", c.targetTempC)
	return nil
}

// Close cancels the pending window timer, if any.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		c.pending.cancel()
		c.pending = nil
	}
}

// Snapshot returns the current thermostat state.
func (c *Coordinator) Snapshot() models.ThermostatState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() models.ThermostatState {
	var current *float64
	if c.currentTempC != nil {
		v := *c.currentTempC
		current = &v
	}
	return models.ThermostatState{
		ID:           1,
		HVACMode:     c.hvacMode,
		HVACAction:   c.hvacAction,
		CurrentTempC: current,
		TargetTempC:  c.targetTempC,
		CalibrationC: c.calibrationC,
		UpdatedAt:    time.Now().UTC(),
	}
}

// SetHVACMode applies a new hvac mode and mirrors it to every downstream
// device. Unsupported modes are logged and ignored.
func (c *Coordinator) SetHVACMode(ctx context.Context, mode models.HVACMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setHVACModeLocked(ctx, mode, "")
}

// setHVACModeLocked is the shared implementation; excluding names a downstream
// device that must not receive the mirrored command (the originator of a
// downstream-caused change).
func (c *Coordinator) setHVACModeLocked(ctx context.Context, mode models.HVACMode, excluding string) {
	if !mode.Valid() {
		c.log.Warnw("unsupported hvac mode", "name", c.cfg.Name, "mode", mode)
		return
	}

	prev := c.hvacMode
	c.hvacMode = mode
	c.log.Debugw("hvac mode set", "name", c.cfg.Name, "mode", mode)

	switch mode {
	case models.ModeOff:
		c.setActionLocked(ctx, models.ActionOff)
		c.calibrationC = calibrationOff
		c.notifyLocked(ctx)
		c.dispatcher.SetCalibration(ctx, c.cfg.RealThermostats, calibrationOff)
	case models.ModeHeat:
		c.setActionLocked(ctx, models.ActionHeating)
		c.controlHeatingLocked(ctx)
		c.notifyLocked(ctx)
	}

	if prev != mode {
		c.appendEvent(ctx, models.EventModeChange, "hvac mode changed to "+string(mode),
			map[string]any{"from": prev, "to": mode})
	}

	c.dispatcher.SetHVACMode(ctx, c.cfg.RealThermostats, excluding, mode)
}

// SetTemperature applies a new target temperature and mirrors it downstream.
// A nil temperature is logged and ignored.
func (c *Coordinator) SetTemperature(ctx context.Context, temperature *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setTemperatureLocked(ctx, temperature, "")
}

func (c *Coordinator) setTemperatureLocked(ctx context.Context, temperature *float64, excluding string) {
	if temperature == nil {
		c.log.Warnw("no temperature provided", "name", c.cfg.Name)
		return
	}

	// min/max bounds are exposed for UIs but deliberately not enforced here.
	c.targetTempC = *temperature
	c.log.Debugw("target temperature set", "name", c.cfg.Name, "target_c", *temperature)

	if c.hvacMode == models.ModeHeat {
		c.controlHeatingLocked(ctx)
	}
	c.notifyLocked(ctx)

	c.dispatcher.SetTemperature(ctx, c.cfg.RealThermostats, excluding, *temperature)
}

// controlHeatingLocked runs one heating-control cycle: decide the action from
// the hysteresis band and push the matching calibration offset downstream.
// Inside the deadband nothing changes and nothing is dispatched.
func (c *Coordinator) controlHeatingLocked(ctx context.Context) {
	target := c.targetTempC
	action, decided := DecideAction(c.currentTempC, &target, c.cfg.ColdTolerance, c.cfg.HotTolerance)
	if !decided {
		c.log.Infow("heating state unchanged",
			"name", c.cfg.Name,
			"current_c", *c.currentTempC,
			"target_c", target,
			"cold_tolerance", c.cfg.ColdTolerance,
			"hot_tolerance", c.cfg.HotTolerance)
		return
	}

	switch action {
	case models.ActionUnknown:
		// Recoverable: stays unknown until both temperatures are known again.
		c.log.Errorw("cannot control heating: current or target temperature unknown",
			"name", c.cfg.Name, "target_c", target)
		c.setActionLocked(ctx, models.ActionUnknown)
	case models.ActionHeating:
		c.log.Infow("heating required",
			"name", c.cfg.Name,
			"current_c", *c.currentTempC,
			"target_c", target,
			"cold_tolerance", c.cfg.ColdTolerance)
		c.setActionLocked(ctx, models.ActionHeating)
		c.calibrationC = calibrationHeating
		c.dispatcher.SetCalibration(ctx, c.cfg.RealThermostats, calibrationHeating)
	case models.ActionIdle:
		c.log.Infow("no heating required",
			"name", c.cfg.Name,
			"current_c", *c.currentTempC,
			"target_c", target,
			"hot_tolerance", c.cfg.HotTolerance)
		c.setActionLocked(ctx, models.ActionIdle)
		c.calibrationC = calibrationIdle
		c.dispatcher.SetCalibration(ctx, c.cfg.RealThermostats, calibrationIdle)
	}
}

func (c *Coordinator) setActionLocked(ctx context.Context, action models.HVACAction) {
	if c.hvacAction == action {
		return
	}
	prev := c.hvacAction
	c.hvacAction = action
	c.appendEvent(ctx, models.EventActionChange, "hvac action changed to "+string(action),
		map[string]any{"from": prev, "to": action})
}

// HandleSensorChanged reacts to a temperature sensor state change.
func (c *Coordinator) HandleSensorChanged(ctx context.Context, oldState, newState *EntityState) {
	if !stateKnown(newState) {
		return
	}

	value, err := strconv.ParseFloat(newState.State, 64)
	if err != nil {
		c.log.Errorw("failed to parse sensor temperature",
			"name", c.cfg.Name, "sensor", c.cfg.TemperatureSensor, "state", newState.State)
		c.appendEvent(ctx, models.EventSensorFault, "unparsable sensor reading",
			map[string]any{"sensor": c.cfg.TemperatureSensor, "state": newState.State})
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTempC = &value
	c.log.Debugw("current temperature updated",
		"name", c.cfg.Name, "current_c", value, "sensor", c.cfg.TemperatureSensor)
	if c.hvacMode == models.ModeHeat {
		c.controlHeatingLocked(ctx)
	}
	c.notifyLocked(ctx)
}

// HandleWindowChanged reacts to a window sensor transition with toggle-cancel
// debounce: the first transition arms a delayed mode flip, a counter
// transition within the delay cancels it instead of arming the opposite flip.
func (c *Coordinator) HandleWindowChanged(ctx context.Context, oldState, newState *EntityState) {
	if newState == nil || oldState == nil || newState.State == oldState.State {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch newState.State {
	case windowClosed:
		c.log.Infow("window closed", "name", c.cfg.Name)
		if c.pending != nil {
			c.log.Infow("cancelling pending heat-off, window closed in time", "name", c.cfg.Name)
			c.cancelWindowTimerLocked(ctx)
		} else {
			c.armWindowTimerLocked(ctx, windowHeatOn)
		}
	case windowOpen:
		c.log.Infow("window opened", "name", c.cfg.Name)
		if c.pending != nil {
			c.log.Infow("cancelling pending heat-on, window reopened in time", "name", c.cfg.Name)
			c.cancelWindowTimerLocked(ctx)
		} else {
			c.armWindowTimerLocked(ctx, windowHeatOff)
		}
	}
}

func (c *Coordinator) armWindowTimerLocked(ctx context.Context, direction windowDirection) {
	mode := models.ModeHeat
	if direction == windowHeatOff {
		mode = models.ModeOff
	}
	c.log.Infow("arming window delay", "name", c.cfg.Name, "direction", direction, "delay", c.cfg.WindowDelay)

	// The timer may fire while a cancellation holds the lock: stopping it is
	// then too late, so the callback checks it still owns the pending slot
	// before acting.
	p := &pendingWindow{direction: direction}
	p.cancel = c.scheduler.CallLater(c.cfg.WindowDelay, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.pending != p {
			return
		}
		c.pending = nil
		c.setHVACModeLocked(context.Background(), mode, "")
	})
	c.pending = p

	c.appendEvent(ctx, models.EventWindow, "window delay armed",
		map[string]any{"direction": direction, "delay_s": c.cfg.WindowDelay.Seconds()})
}

func (c *Coordinator) cancelWindowTimerLocked(ctx context.Context) {
	direction := c.pending.direction
	c.pending.cancel()
	c.pending = nil
	c.appendEvent(ctx, models.EventWindow, "window delay cancelled",
		map[string]any{"direction": direction})
}

// HandleDeviceChanged reacts to a state change reported by one of the real
// thermostats. Changes observed while our own fan-out is in flight are echoes
// of commands this coordinator issued and must be ignored, otherwise the
// mirror-and-rebroadcast below would feed back into itself.
func (c *Coordinator) HandleDeviceChanged(ctx context.Context, entityID string, oldState, newState *EntityState) {
	if c.dispatcher.Busy() {
		c.log.Debugw("skipping downstream change caused by own update", "name", c.cfg.Name, "entity_id", entityID)
		return
	}
	if !stateKnown(newState) || !stateKnown(oldState) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A changed local dial propagates to the virtual thermostat and from there
	// to every sibling, but never back to the device that reported it.
	oldTarget := floatAttr(oldState, "temperature")
	newTarget := floatAttr(newState, "temperature")
	if !equalFloatPtr(oldTarget, newTarget) {
		c.setTemperatureLocked(ctx, newTarget, entityID)
	}

	if newState.State != oldState.State {
		mode := models.HVACMode(newState.State)
		if mode.Valid() {
			c.setHVACModeLocked(ctx, mode, entityID)
		}
	}
}

// notifyLocked publishes the state to observers: persist the snapshot and feed
// the broadcast hook. Persistence failures are logged, never raised.
func (c *Coordinator) notifyLocked(ctx context.Context) {
	snap := c.snapshotLocked()
	if err := c.stateRepo.Save(ctx, snap); err != nil {
		c.log.Errorw("failed to persist thermostat state", "name", c.cfg.Name, "err", err)
	}
	if c.broadcast != nil {
		c.broadcast(snap)
	}
}

func (c *Coordinator) appendEvent(ctx context.Context, typ, description string, meta map[string]any) {
	err := c.eventRepo.Append(ctx, models.ThermostatEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  time.Now().UTC(),
		Type:        typ,
		Description: description,
		Metadata:    meta,
	})
	if err != nil {
		c.log.Errorw("failed to append event", "name", c.cfg.Name, "type", typ, "err", err)
	}
}

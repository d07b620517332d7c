package climate

import "time"

// Scheduler runs a callback once after a delay unless cancelled first. The
// returned cancel function is a no-op once the callback has fired.
type Scheduler interface {
	CallLater(delay time.Duration, fn func()) (cancel func())
}

// timerScheduler is the production Scheduler backed by time.AfterFunc.
type timerScheduler struct{}

// NewTimerScheduler returns a Scheduler backed by the runtime timer.
func NewTimerScheduler() Scheduler { return timerScheduler{} }

func (timerScheduler) CallLater(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

// windowDirection tags what a pending window debounce timer will do when it
// fires, so the two transition types are explicit states rather than being
// inferred from the presence of a cancel handle.
type windowDirection string

const (
	windowHeatOn  windowDirection = "heat_on"  // window re-closed, heating resumes
	windowHeatOff windowDirection = "heat_off" // window opened, heating suspends
)

// pendingWindow is the single outstanding debounce timer slot. At most one
// exists per coordinator; arming a new one requires cancelling the old first.
type pendingWindow struct {
	direction windowDirection
	cancel    func()
}

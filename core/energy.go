package core

import (
	"time"

	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

// EnergyAccumulator is a PHY listener that totals time spent in each
// radio activity, the input an energy model multiplies by per-state
// draw. It tracks announced durations rather than sampling, so overlap
// of an RX abort with a CCA extension resolves to the later notice.
type EnergyAccumulator struct {
	clock timectrl.Clock

	activity      State
	activityStart time.Time
	activityEnd   time.Time

	totals map[State]time.Duration
}

var _ Listener = (*EnergyAccumulator)(nil)

func NewEnergyAccumulator(clock timectrl.Clock) *EnergyAccumulator {
	return &EnergyAccumulator{
		clock:         clock,
		activity:      StateIdle,
		activityStart: clock.Now(),
		totals:        make(map[State]time.Duration),
	}
}

// Totals returns a copy of the accumulated per-activity durations. The
// stretch currently in progress is included up to now.
func (e *EnergyAccumulator) Totals() map[State]time.Duration {
	out := make(map[State]time.Duration, len(e.totals)+1)
	for s, d := range e.totals {
		out[s] = d
	}
	out[e.activity] += e.clock.Now().Sub(e.activityStart)
	return out
}

// TotalFor returns the accumulated duration for one activity.
func (e *EnergyAccumulator) TotalFor(s State) time.Duration {
	return e.Totals()[s]
}

func (e *EnergyAccumulator) begin(s State, duration time.Duration) {
	now := e.clock.Now()
	e.totals[e.activity] += now.Sub(e.activityStart)
	e.activity = s
	e.activityStart = now
	if duration > 0 {
		e.activityEnd = now.Add(duration)
	} else {
		e.activityEnd = time.Time{}
	}
}

// settle closes out a timed activity whose announced end has passed,
// crediting the remainder to idle.
func (e *EnergyAccumulator) settle() {
	now := e.clock.Now()
	if e.activityEnd.IsZero() || now.Before(e.activityEnd) {
		return
	}
	e.totals[e.activity] += e.activityEnd.Sub(e.activityStart)
	e.activity = StateIdle
	e.activityStart = e.activityEnd
	e.activityEnd = time.Time{}
}

func (e *EnergyAccumulator) NotifyRxStart(duration time.Duration) {
	e.settle()
	e.begin(StateRx, duration)
}

func (e *EnergyAccumulator) NotifyRxEndOk() {
	e.settle()
	e.begin(StateIdle, 0)
}

func (e *EnergyAccumulator) NotifyRxEndError() {
	e.settle()
	e.begin(StateIdle, 0)
}

func (e *EnergyAccumulator) NotifyTxStart(duration time.Duration, txPowerDbm float64) {
	e.settle()
	e.begin(StateTx, duration)
}

func (e *EnergyAccumulator) NotifyCcaBusyStart(duration time.Duration) {
	e.settle()
	e.begin(StateCcaBusy, duration)
}

func (e *EnergyAccumulator) NotifySwitchingStart(duration time.Duration) {
	e.settle()
	e.begin(StateSwitching, duration)
}

func (e *EnergyAccumulator) NotifySleep() {
	e.settle()
	e.begin(StateSleep, 0)
}

func (e *EnergyAccumulator) NotifyOff() {
	e.settle()
	e.begin(StateOff, 0)
}

func (e *EnergyAccumulator) NotifyWakeup() {
	e.settle()
	e.begin(StateIdle, 0)
}

func (e *EnergyAccumulator) NotifyOn() {
	e.settle()
	e.begin(StateIdle, 0)
}

package core

import (
	"context"
	"time"

	"github.com/signalsfoundry/wlan-simulator/internal/logging"
	"github.com/signalsfoundry/wlan-simulator/model"
	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

// State is the PHY state of the primary channel. Exactly one value is
// authoritative at a time; secondary sub-channel idleness is a separate
// per-band predicate on the receiver.
type State int

const (
	StateIdle State = iota
	StateCcaBusy
	StateRx
	StateTx
	StateSwitching
	StateSleep
	StateOff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateCcaBusy:
		return "CCA_BUSY"
	case StateRx:
		return "RX"
	case StateTx:
		return "TX"
	case StateSwitching:
		return "SWITCHING"
	case StateSleep:
		return "SLEEP"
	case StateOff:
		return "OFF"
	default:
		return "unknown"
	}
}

// Listener observes PHY activity, primarily for energy accounting.
// Implementations must not call back into the receiver synchronously.
type Listener interface {
	NotifyRxStart(duration time.Duration)
	NotifyRxEndOk()
	NotifyRxEndError()
	NotifyTxStart(duration time.Duration, txPowerDbm float64)
	NotifyCcaBusyStart(duration time.Duration)
	NotifySwitchingStart(duration time.Duration)
	NotifySleep()
	NotifyOff()
	NotifyWakeup()
	NotifyOn()
}

// ReceiveOkFn is invoked when a PSDU is received successfully (at least
// one MPDU decoded). perMpduStatus carries the per-sub-unit outcomes for
// aggregates.
type ReceiveOkFn func(psdu *model.Psdu, info model.RxSignalInfo, txVector model.TxVector, perMpduStatus []bool)

// ReceiveErrorFn is invoked when a reception fails or is dropped after
// being started. psdu may be nil when the failure precedes header decode.
type ReceiveErrorFn func(psdu *model.Psdu, snr float64, reason model.FailureReason)

// StateChangeFn observes every PHY state transition with the time spent
// in the previous state.
type StateChangeFn func(old, new State, duration time.Duration)

// stateTracker owns the authoritative PHY state. The effective state is
// derived from recorded deadlines so that CCA busy or TX periods expire
// without needing their own timers.
type stateTracker struct {
	clock timectrl.Clock
	log   logging.Logger

	sleeping bool
	isOff    bool
	rxing    bool
	lastRxOk bool

	startTx        time.Time
	startRx        time.Time
	startCcaBusy   time.Time
	startSwitching time.Time
	stateStart     time.Time

	endTx        time.Time
	endRx        time.Time
	endCcaBusy   time.Time
	endSwitching time.Time

	lastState State

	listeners   []Listener
	receiveOk   ReceiveOkFn
	receiveErr  ReceiveErrorFn
	stateChange StateChangeFn
}

func newStateTracker(clock timectrl.Clock, log logging.Logger) *stateTracker {
	if log == nil {
		log = logging.Noop()
	}
	return &stateTracker{
		clock:      clock,
		log:        log,
		stateStart: clock.Now(),
		lastState:  StateIdle,
	}
}

// State returns the effective PHY state at the current simulation time.
func (s *stateTracker) State() State {
	now := s.clock.Now()
	switch {
	case s.isOff:
		return StateOff
	case s.sleeping:
		return StateSleep
	case s.endTx.After(now):
		return StateTx
	case s.rxing:
		return StateRx
	case s.endSwitching.After(now):
		return StateSwitching
	case s.endCcaBusy.After(now):
		return StateCcaBusy
	default:
		return StateIdle
	}
}

// DelayUntilIdle returns how long until the PHY becomes idle, zero when
// it already is. Sleep and off have no scheduled end; they report zero
// and the caller must resume explicitly.
func (s *stateTracker) DelayUntilIdle() time.Duration {
	now := s.clock.Now()
	latest := now
	for _, end := range []time.Time{s.endTx, s.endRx, s.endSwitching, s.endCcaBusy} {
		if end.After(latest) {
			latest = end
		}
	}
	return latest.Sub(now)
}

// LastRxSuccessful reports whether the most recently completed reception
// decoded at least one MPDU. Aborted receptions count as unsuccessful.
func (s *stateTracker) LastRxSuccessful() bool {
	return s.lastRxOk
}

func (s *stateTracker) registerListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// noteTransition records a state change, invoking the trace callback with
// the duration spent in the previous state.
func (s *stateTracker) noteTransition() {
	now := s.clock.Now()
	cur := s.State()
	if cur == s.lastState {
		return
	}
	if s.stateChange != nil {
		s.stateChange(s.lastState, cur, now.Sub(s.stateStart))
	}
	s.log.Debug(context.Background(), "phy state change",
		logging.String("from", s.lastState.String()),
		logging.String("to", cur.String()),
		logging.Duration("spent", now.Sub(s.stateStart)),
	)
	s.lastState = cur
	s.stateStart = now
}

func (s *stateTracker) switchToRx(duration time.Duration) {
	now := s.clock.Now()
	s.rxing = true
	s.startRx = now
	s.endRx = now.Add(duration)
	for _, l := range s.listeners {
		l.NotifyRxStart(duration)
	}
	s.noteTransition()
}

func (s *stateTracker) switchFromRxEndOk() {
	s.rxing = false
	s.lastRxOk = true
	s.endRx = s.clock.Now()
	for _, l := range s.listeners {
		l.NotifyRxEndOk()
	}
	s.noteTransition()
}

func (s *stateTracker) switchFromRxEndError() {
	s.rxing = false
	s.lastRxOk = false
	s.endRx = s.clock.Now()
	for _, l := range s.listeners {
		l.NotifyRxEndError()
	}
	s.noteTransition()
}

// switchFromRxAbort ends the RX period immediately without a decode
// outcome, used for capture switches and mode changes.
func (s *stateTracker) switchFromRxAbort() {
	s.rxing = false
	s.lastRxOk = false
	s.endRx = s.clock.Now()
	s.noteTransition()
}

func (s *stateTracker) switchToTx(duration time.Duration, txPowerDbm float64) {
	now := s.clock.Now()
	s.startTx = now
	s.endTx = now.Add(duration)
	for _, l := range s.listeners {
		l.NotifyTxStart(duration, txPowerDbm)
	}
	s.noteTransition()
}

// switchMaybeToCcaBusy extends the CCA busy period; it only has an effect
// while the PHY would otherwise be idle.
func (s *stateTracker) switchMaybeToCcaBusy(duration time.Duration) {
	if duration <= 0 {
		return
	}
	now := s.clock.Now()
	until := now.Add(duration)
	if until.After(s.endCcaBusy) {
		if !s.endCcaBusy.After(now) {
			s.startCcaBusy = now
		}
		s.endCcaBusy = until
		for _, l := range s.listeners {
			l.NotifyCcaBusyStart(duration)
		}
	}
	s.noteTransition()
}

func (s *stateTracker) switchToChannelSwitching(duration time.Duration) {
	now := s.clock.Now()
	s.startSwitching = now
	s.endSwitching = now.Add(duration)
	s.endCcaBusy = now // channel history does not carry across a switch
	for _, l := range s.listeners {
		l.NotifySwitchingStart(duration)
	}
	s.noteTransition()
}

func (s *stateTracker) switchToSleep() {
	s.sleeping = true
	for _, l := range s.listeners {
		l.NotifySleep()
	}
	s.noteTransition()
}

func (s *stateTracker) switchFromSleep() {
	s.sleeping = false
	for _, l := range s.listeners {
		l.NotifyWakeup()
	}
	s.noteTransition()
}

func (s *stateTracker) switchToOff() {
	s.isOff = true
	for _, l := range s.listeners {
		l.NotifyOff()
	}
	s.noteTransition()
}

func (s *stateTracker) switchFromOff() {
	s.isOff = false
	for _, l := range s.listeners {
		l.NotifyOn()
	}
	s.noteTransition()
}

func (s *stateTracker) notifyReceiveOk(psdu *model.Psdu, info model.RxSignalInfo, txVector model.TxVector, perMpduStatus []bool) {
	if s.receiveOk != nil {
		s.receiveOk(psdu, info, txVector, perMpduStatus)
	}
}

func (s *stateTracker) notifyReceiveError(psdu *model.Psdu, snr float64, reason model.FailureReason) {
	if s.receiveErr != nil {
		s.receiveErr(psdu, snr, reason)
	}
}

package core

import (
	"testing"
	"time"

	"github.com/signalsfoundry/wlan-simulator/timectrl"
)

func advance(sched *timectrl.Scheduler, d time.Duration) {
	sched.ScheduleAfter(d, func() {})
	sched.Run()
}

// TestStateDeadlinesExpire verifies TX and CCA busy periods end on their
// own once the clock passes the recorded deadline, with no timer needed.
func TestStateDeadlinesExpire(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	st := newStateTracker(sched, nil)

	st.switchToTx(100*time.Microsecond, 16)
	if got := st.State(); got != StateTx {
		t.Fatalf("state during TX = %v, want TX", got)
	}
	advance(sched, 50*time.Microsecond)
	if got := st.State(); got != StateTx {
		t.Fatalf("state mid-TX = %v, want TX", got)
	}
	advance(sched, 60*time.Microsecond)
	if got := st.State(); got != StateIdle {
		t.Fatalf("state after TX = %v, want IDLE", got)
	}

	st.switchMaybeToCcaBusy(30 * time.Microsecond)
	if got := st.State(); got != StateCcaBusy {
		t.Fatalf("state during CCA = %v, want CCA_BUSY", got)
	}
	advance(sched, 40*time.Microsecond)
	if got := st.State(); got != StateIdle {
		t.Fatalf("state after CCA = %v, want IDLE", got)
	}
}

// TestStatePriorityOrder verifies the precedence chain: off beats sleep
// beats TX beats RX beats switching beats CCA busy.
func TestStatePriorityOrder(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	st := newStateTracker(sched, nil)

	st.switchMaybeToCcaBusy(time.Millisecond)
	st.switchToRx(time.Millisecond)
	if got := st.State(); got != StateRx {
		t.Fatalf("RX should outrank CCA busy, got %v", got)
	}
	st.switchToTx(time.Millisecond, 16)
	if got := st.State(); got != StateTx {
		t.Fatalf("TX should outrank RX, got %v", got)
	}
	st.switchToSleep()
	if got := st.State(); got != StateSleep {
		t.Fatalf("sleep should outrank TX, got %v", got)
	}
	st.switchToOff()
	if got := st.State(); got != StateOff {
		t.Fatalf("off should outrank sleep, got %v", got)
	}
}

// TestCcaBusyOnlyExtends verifies a shorter report never shortens an
// already-recorded busy period.
func TestCcaBusyOnlyExtends(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	st := newStateTracker(sched, nil)

	st.switchMaybeToCcaBusy(100 * time.Microsecond)
	st.switchMaybeToCcaBusy(20 * time.Microsecond)
	if got := st.DelayUntilIdle(); got != 100*time.Microsecond {
		t.Fatalf("DelayUntilIdle = %v, want 100us", got)
	}
	st.switchMaybeToCcaBusy(300 * time.Microsecond)
	if got := st.DelayUntilIdle(); got != 300*time.Microsecond {
		t.Fatalf("DelayUntilIdle after extension = %v, want 300us", got)
	}
}

// TestStateChangeCallbackReportsDurations verifies the transition trace
// carries the time spent in the previous state.
func TestStateChangeCallbackReportsDurations(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	st := newStateTracker(sched, nil)

	type change struct {
		from, to State
		spent    time.Duration
	}
	var changes []change
	st.stateChange = func(old, new State, spent time.Duration) {
		changes = append(changes, change{old, new, spent})
	}

	advance(sched, 40*time.Microsecond)
	st.switchToRx(100 * time.Microsecond)
	advance(sched, 100*time.Microsecond)
	st.switchFromRxEndOk()

	if len(changes) != 2 {
		t.Fatalf("got %d transitions, want 2: %+v", len(changes), changes)
	}
	if changes[0].from != StateIdle || changes[0].to != StateRx || changes[0].spent != 40*time.Microsecond {
		t.Fatalf("first transition = %+v, want IDLE->RX after 40us", changes[0])
	}
	if changes[1].from != StateRx || changes[1].to != StateIdle || changes[1].spent != 100*time.Microsecond {
		t.Fatalf("second transition = %+v, want RX->IDLE after 100us", changes[1])
	}
}

// TestChannelSwitchClearsCcaHistory verifies CCA busy does not survive a
// channel switch; the new channel has no sensing history.
func TestChannelSwitchClearsCcaHistory(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	st := newStateTracker(sched, nil)

	st.switchMaybeToCcaBusy(time.Millisecond)
	st.switchToChannelSwitching(250 * time.Microsecond)
	advance(sched, 300*time.Microsecond)
	if got := st.State(); got != StateIdle {
		t.Fatalf("state after switch = %v, want IDLE", got)
	}
}

// TestEnergyAccumulatorTotals verifies announced activity durations map
// to per-state totals, with gaps credited to idle.
func TestEnergyAccumulatorTotals(t *testing.T) {
	sched := timectrl.NewScheduler(testEpoch)
	st := newStateTracker(sched, nil)
	acc := NewEnergyAccumulator(sched)
	st.registerListener(acc)

	st.switchToTx(100*time.Microsecond, 16)
	advance(sched, 100*time.Microsecond)
	st.switchToRx(200 * time.Microsecond)
	advance(sched, 200*time.Microsecond)
	st.switchFromRxEndOk()
	advance(sched, 50*time.Microsecond)

	totals := acc.Totals()
	if totals[StateTx] != 100*time.Microsecond {
		t.Errorf("TX total = %v, want 100us", totals[StateTx])
	}
	if totals[StateRx] != 200*time.Microsecond {
		t.Errorf("RX total = %v, want 200us", totals[StateRx])
	}
	if totals[StateIdle] != 50*time.Microsecond {
		t.Errorf("idle total = %v, want 50us", totals[StateIdle])
	}
}

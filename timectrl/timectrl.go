package timectrl

import (
	"container/heap"
	"time"
)

// Clock is an interface for accessing simulation time. Core components
// (receiver, interference tracker, bonding manager) depend on this
// abstraction rather than the concrete Scheduler, enabling testability.
type Clock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Scheduler is a discrete-event scheduler. It advances simulation time
// from one scheduled timer to the next rather than ticking at a fixed
// interval; nothing happens between timers, so the loop is deterministic
// and runs as fast as the callbacks allow.
//
// Timers scheduled for the same instant fire in the order they were
// scheduled (FIFO), which matters when a signal arrival coincides with a
// header-check deadline.
//
// The scheduler is single-threaded: callbacks run on the goroutine that
// calls Run/RunUntil/Step, and may schedule or stop further timers.
type Scheduler struct {
	now time.Time
	seq uint64
	q   timerQueue
}

// Timer is a handle to scheduled future work. It can be stopped before it
// fires; stopping is idempotent and safe after the timer has fired.
type Timer struct {
	at      time.Time
	seq     uint64
	fn      func()
	stopped bool
	fired   bool
	index   int // heap index, -1 once removed
}

// NewScheduler constructs a scheduler starting at the given simulation time.
func NewScheduler(start time.Time) *Scheduler {
	s := &Scheduler{now: start}
	heap.Init(&s.q)
	return s
}

// Now returns the current simulation time. Implements Clock.
func (s *Scheduler) Now() time.Time {
	return s.now
}

// Schedule registers fn to run at the given simulation time. Times in the
// past are clamped to now, so the callback still fires on the next step.
func (s *Scheduler) Schedule(at time.Time, fn func()) *Timer {
	if at.Before(s.now) {
		at = s.now
	}
	t := &Timer{at: at, seq: s.seq, fn: fn}
	s.seq++
	heap.Push(&s.q, t)
	return t
}

// ScheduleAfter registers fn to run d after the current simulation time.
func (s *Scheduler) ScheduleAfter(d time.Duration, fn func()) *Timer {
	return s.Schedule(s.now.Add(d), fn)
}

// Stop cancels the timer if it has not fired yet. It reports whether the
// call prevented the timer from firing. A stopped timer never runs its
// callback.
func (t *Timer) Stop() bool {
	if t == nil || t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Fired reports whether the timer's callback has run.
func (t *Timer) Fired() bool {
	return t != nil && t.fired
}

// When returns the simulation time the timer is (or was) due.
func (t *Timer) When() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.at
}

// Pending reports whether any live timer remains in the queue.
func (s *Scheduler) Pending() bool {
	s.dropStopped()
	return s.q.Len() > 0
}

// Step executes the next pending timer, advancing simulation time to its
// deadline. It returns false when the queue is empty.
func (s *Scheduler) Step() bool {
	for s.q.Len() > 0 {
		t := heap.Pop(&s.q).(*Timer)
		if t.stopped {
			continue
		}
		s.now = t.at
		t.fired = true
		t.fn()
		return true
	}
	return false
}

// Run executes timers until the queue is exhausted.
func (s *Scheduler) Run() {
	for s.Step() {
	}
}

// RunUntil executes timers with deadlines at or before the given time, then
// advances the clock to exactly that time. Timers scheduled beyond it stay
// queued.
func (s *Scheduler) RunUntil(t time.Time) {
	for {
		s.dropStopped()
		if s.q.Len() == 0 || s.q[0].at.After(t) {
			break
		}
		s.Step()
	}
	if s.now.Before(t) {
		s.now = t
	}
}

// dropStopped discards stopped timers sitting at the head of the queue so
// Pending and RunUntil do not report phantom work.
func (s *Scheduler) dropStopped() {
	for s.q.Len() > 0 && s.q[0].stopped {
		heap.Pop(&s.q)
	}
}

// timerQueue is a min-heap ordered by deadline, breaking ties with the
// scheduling sequence number.
type timerQueue []*Timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].at.Equal(q[j].at) {
		return q[i].seq < q[j].seq
	}
	return q[i].at.Before(q[j].at)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*Timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

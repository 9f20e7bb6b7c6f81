package sim

import "time"

// Queue is the subset of Scheduler a Timer needs.
type Queue interface {
	Schedule(delay time.Duration, f func()) EventID
	Cancel(id EventID)
}

// Timer is a one-shot, re-armable timer. At most one expiry is pending at any
// time.
type Timer struct {
	q       Queue
	delay   time.Duration
	fn      func()
	id      EventID
	running bool
}

// NewTimer returns an expired timer that calls fn on expiry.
func NewTimer(q Queue, fn func()) *Timer {
	return &Timer{q: q, fn: fn}
}

// SetDelay sets the delay used by the next Schedule.
func (t *Timer) SetDelay(d time.Duration) { t.delay = d }

// Delay returns the configured delay.
func (t *Timer) Delay() time.Duration { return t.delay }

// Schedule arms the timer for the configured delay. It returns false and
// leaves the pending expiry untouched if the timer is already running.
func (t *Timer) Schedule() bool {
	if t.running {
		return false
	}
	t.running = true
	t.id = t.q.Schedule(t.delay, t.expire)
	return true
}

// Cancel disarms a running timer.
func (t *Timer) Cancel() {
	if !t.running {
		return
	}
	t.q.Cancel(t.id)
	t.running = false
}

// IsRunning reports whether an expiry is pending.
func (t *Timer) IsRunning() bool { return t.running }

// IsExpired reports whether no expiry is pending.
func (t *Timer) IsExpired() bool { return !t.running }

func (t *Timer) expire() {
	t.running = false
	if t.fn != nil {
		t.fn()
	}
}

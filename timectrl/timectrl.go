package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Schedulers, timers
// and link models depend on this abstraction rather than on a concrete clock.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
}

// Mode describes how simulation time relates to wall-clock time.
type Mode int

const (
	// RealTime holds each advance back until the same span of wall-clock
	// time has passed.
	RealTime Mode = iota
	// Accelerated advances as quickly as events can be processed.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "realtime"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// ParseMode maps a flag value onto a Mode. Unknown values select Accelerated.
func ParseMode(s string) Mode {
	if s == "realtime" || s == "real-time" {
		return RealTime
	}
	return Accelerated
}

// VirtualClock is a monotonic simulation clock. It only moves when the
// event loop advances it.
type VirtualClock struct {
	mu    sync.RWMutex
	start time.Time
	now   time.Time
	mode  Mode
}

// NewVirtualClock constructs a clock positioned at start.
func NewVirtualClock(start time.Time, mode Mode) *VirtualClock {
	return &VirtualClock{start: start, now: start, mode: mode}
}

// Now returns the current simulation time. Implements SimClock.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Start returns the simulation epoch.
func (c *VirtualClock) Start() time.Time {
	return c.start
}

// Elapsed returns the simulated time since the epoch.
func (c *VirtualClock) Elapsed() time.Duration {
	return c.Now().Sub(c.start)
}

// Mode returns the pacing mode.
func (c *VirtualClock) Mode() Mode {
	return c.mode
}

// AdvanceTo moves the clock forward to t. Targets in the past are ignored so
// the clock never runs backwards. In RealTime mode the call blocks until the
// matching wall-clock span has elapsed or ctx is done.
func (c *VirtualClock) AdvanceTo(ctx context.Context, t time.Time) error {
	c.mu.RLock()
	delta := t.Sub(c.now)
	c.mu.RUnlock()
	if delta <= 0 {
		return nil
	}

	if c.mode == RealTime {
		timer := time.NewTimer(delta)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
	return nil
}

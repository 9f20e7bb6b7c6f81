package sim

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/fso-downlink/timectrl"
)

// EventID identifies a scheduled event. The zero value is never issued.
type EventID uint64

// NoContext tags events that do not belong to any node.
const NoContext uint32 = math.MaxUint32

// Observer receives a notification after each executed event.
type Observer interface {
	EventExecuted(pending int)
}

// scheduledEvent represents a single scheduled callback.
type scheduledEvent struct {
	id        EventID
	when      time.Time
	context   uint32
	f         func()
	cancelled bool
}

// Scheduler is a single-threaded discrete-event loop driven by a virtual
// clock. Events at the same timestamp run in the order they were scheduled.
// Schedule and Cancel may be called from any goroutine; callbacks always run
// on the goroutine that called Run.
type Scheduler struct {
	clock *timectrl.VirtualClock

	mu       sync.Mutex
	counter  uint64
	events   []*scheduledEvent // ordered by 'when', then by submission
	index    map[EventID]*scheduledEvent
	current  uint32
	stopped  bool
	executed uint64
	observer Observer
}

// NewScheduler creates a scheduler backed by clock.
func NewScheduler(clock *timectrl.VirtualClock) *Scheduler {
	return &Scheduler{
		clock:   clock,
		index:   make(map[EventID]*scheduledEvent),
		current: NoContext,
	}
}

// SetObserver installs an observer notified after every executed event.
func (s *Scheduler) SetObserver(o Observer) {
	s.mu.Lock()
	s.observer = o
	s.mu.Unlock()
}

// Now returns the current simulation time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Clock exposes the underlying virtual clock.
func (s *Scheduler) Clock() *timectrl.VirtualClock {
	return s.clock
}

// Context returns the context tag of the event currently executing, or
// NoContext outside of a callback.
func (s *Scheduler) Context() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Schedule runs f after delay, inheriting the context of the caller.
func (s *Scheduler) Schedule(delay time.Duration, f func()) EventID {
	return s.ScheduleWithContext(s.Context(), delay, f)
}

// ScheduleWithContext runs f after delay with the given context tag.
// Negative delays are treated as zero.
func (s *Scheduler) ScheduleWithContext(ctx uint32, delay time.Duration, f func()) EventID {
	if delay < 0 {
		delay = 0
	}
	return s.ScheduleAt(s.Now().Add(delay), ctx, f)
}

// ScheduleAt registers f to run at simulation time at. Times already in the
// past run at the next loop iteration without moving the clock backwards.
func (s *Scheduler) ScheduleAt(at time.Time, ctx uint32, f func()) EventID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	ev := &scheduledEvent{
		id:      EventID(s.counter),
		when:    at,
		context: ctx,
		f:       f,
	}
	s.addEventLocked(ev)
	s.index[ev.id] = ev
	return ev.id
}

// addEventLocked inserts an event after every event scheduled at or before
// the same time, which keeps same-time events in FIFO order.
// Caller must hold s.mu lock.
func (s *Scheduler) addEventLocked(ev *scheduledEvent) {
	idx := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].when.After(ev.when)
	})

	s.events = append(s.events, nil)
	copy(s.events[idx+1:], s.events[idx:])
	s.events[idx] = ev
}

// Cancel drops a pending event. It is a no-op if the ID is unknown or the
// event already ran.
func (s *Scheduler) Cancel(id EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.index[id]
	if !ok {
		return
	}
	ev.cancelled = true
	delete(s.index, id)
	// Removal from s.events is lazy; the loop skips cancelled events.
}

// IsPending reports whether id is scheduled and not yet executed or cancelled.
func (s *Scheduler) IsPending(id EventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Pending returns the number of live events in the queue.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Executed returns the number of callbacks run so far.
func (s *Scheduler) Executed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed
}

// Stop halts Run after the current event completes.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// StopAfter schedules a Stop at now+delay.
func (s *Scheduler) StopAfter(delay time.Duration) EventID {
	return s.ScheduleWithContext(NoContext, delay, s.Stop)
}

// popNextLocked removes and returns the earliest live event whose time is not
// after limit. A zero limit means no bound.
// Caller must hold s.mu lock.
func (s *Scheduler) popNextLocked(limit time.Time) *scheduledEvent {
	for len(s.events) > 0 {
		ev := s.events[0]
		if ev.cancelled {
			s.events = s.events[1:]
			continue
		}
		if !limit.IsZero() && ev.when.After(limit) {
			return nil
		}
		s.events = s.events[1:]
		delete(s.index, ev.id)
		return ev
	}
	return nil
}

// Run executes events in time order until the queue drains, Stop is called
// or ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	return s.run(ctx, time.Time{})
}

// RunUntil executes every event due at or before t, then advances the clock
// to t.
func (s *Scheduler) RunUntil(ctx context.Context, t time.Time) error {
	if err := s.run(ctx, t); err != nil {
		return err
	}
	return s.clock.AdvanceTo(ctx, t)
}

func (s *Scheduler) run(ctx context.Context, limit time.Time) error {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil
		}
		ev := s.popNextLocked(limit)
		s.mu.Unlock()
		if ev == nil {
			return nil
		}

		if err := s.clock.AdvanceTo(ctx, ev.when); err != nil {
			return err
		}

		s.mu.Lock()
		s.current = ev.context
		s.mu.Unlock()

		// Execute callback OUTSIDE the lock to allow re-entrant scheduling.
		if ev.f != nil {
			ev.f()
		}

		s.mu.Lock()
		s.current = NoContext
		s.executed++
		obs, pending := s.observer, len(s.index)
		s.mu.Unlock()

		if obs != nil {
			obs.EventExecuted(pending)
		}
	}
}

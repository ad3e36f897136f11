package export

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time for the lifecycle engine and the download gate so
// tests advance virtual time instead of sleeping.
type Clock interface {
	// Now returns the current instant.
	Now() time.Time

	// AfterFunc schedules f to run after d. The returned Timer can stop a
	// pending callback, which keeps cancellation representable.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the cancellation
	// happened before the callback fired.
	Stop() bool
}

// SystemClock is the wall-clock implementation backed by the time package.
type SystemClock struct{}

// NewSystemClock returns a Clock backed by real time.
func NewSystemClock() SystemClock {
	return SystemClock{}
}

// Now returns time.Now().
func (SystemClock) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc.
func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// FakeClock is a manually advanced Clock for tests. Callbacks fire
// synchronously from Advance, in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	nextID  int64
}

// NewFakeClock creates a FakeClock starting at the given instant.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the fake current instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to fire once the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	t := &fakeTimer{
		clock:    c,
		id:       c.nextID,
		deadline: c.now.Add(d),
		fn:       f,
	}
	c.pending = append(c.pending, t)
	return t
}

// Advance moves the clock forward by d and fires every due callback in
// deadline order. Callbacks run outside the clock lock, so they may
// schedule further timers; newly due ones fire in the same call.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	c.advanceTo(target)
}

func (c *FakeClock) advanceTo(target time.Time) {
	for {
		c.mu.Lock()
		sort.SliceStable(c.pending, func(i, j int) bool {
			if c.pending[i].deadline.Equal(c.pending[j].deadline) {
				return c.pending[i].id < c.pending[j].id
			}
			return c.pending[i].deadline.Before(c.pending[j].deadline)
		})

		var due *fakeTimer
		for i, t := range c.pending {
			if !t.deadline.After(target) {
				due = t
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
				break
			}
		}

		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}

		if due.deadline.After(c.now) {
			c.now = due.deadline
		}
		c.mu.Unlock()

		due.fn()
	}
}

// PendingTimers returns the number of callbacks not yet fired.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

type fakeTimer struct {
	clock    *FakeClock
	id       int64
	deadline time.Time
	fn       func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	for i, p := range t.clock.pending {
		if p.id == t.id {
			t.clock.pending = append(t.clock.pending[:i], t.clock.pending[i+1:]...)
			return true
		}
	}
	return false
}

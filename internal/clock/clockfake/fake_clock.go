package clockfake

import (
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-admin-session/internal/clock"
)

var _ clock.Clock = (*FakeClock)(nil)

// FakeClock only moves when Advance is called. Due callbacks run synchronously
// on the goroutine calling Advance, in fire-time order.
type FakeClock struct {
	now    time.Time
	timers []*fakeTimer
	lock   sync.Mutex
}

type fakeTimer struct {
	clock   *FakeClock
	fireAt  time.Time
	f       func()
	stopped bool
	fired   bool
}

func NewFakeClock(now time.Time) *FakeClock {
	return &FakeClock{now: now}
}

func (c *FakeClock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.lock.Lock()
	defer c.lock.Unlock()

	t := &fakeTimer{clock: c, fireAt: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and runs every callback that became due.
func (c *FakeClock) Advance(d time.Duration) {
	c.lock.Lock()
	target := c.now.Add(d)
	c.lock.Unlock()

	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		t.f()
	}

	c.lock.Lock()
	c.now = target
	c.lock.Unlock()
}

// Pending returns the number of timers that are armed and have not fired.
func (c *FakeClock) Pending() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *FakeClock) nextDue(target time.Time) *fakeTimer {
	c.lock.Lock()
	defer c.lock.Unlock()

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].fireAt.Before(c.timers[j].fireAt)
	})

	if len(c.timers) == 0 || c.timers[0].fireAt.After(target) {
		return nil
	}
	t := c.timers[0]
	t.fired = true
	if t.fireAt.After(c.now) {
		c.now = t.fireAt
	}
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.lock.Lock()
	defer t.clock.lock.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

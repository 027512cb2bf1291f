package utils

import (
	"slices"
	"sync"
	"time"
)

// Clock supplies the current time. Backtests drive a ManualClock from the
// data; live trading uses RealClock.
type Clock interface {
	Now() time.Time
	// AfterFunc runs f once d has elapsed on this clock. The returned function
	// cancels the call and reports whether it was still pending.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// RealClock is the wall clock.
type RealClock struct{}

var _ Clock = RealClock{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

func (RealClock) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type manualTimer struct {
	id       int
	deadline time.Time
	fn       func()
}

// ManualClock only moves when told to. Timers fire synchronously inside
// Advance and Set, in deadline order.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []manualTimer
}

var _ Clock = (*ManualClock)(nil)

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		mu:     sync.Mutex{},
		now:    start,
		nextID: 0,
		timers: nil,
	}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *ManualClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.timers = append(c.timers, manualTimer{id: id, deadline: c.now.Add(d), fn: f})

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()

		for i, timer := range c.timers {
			if timer.id == id {
				c.timers = slices.Delete(c.timers, i, i+1)

				return true
			}
		}

		return false
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to t. Moving backwards is ignored.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}

	var due []manualTimer

	remaining := c.timers[:0]
	for _, timer := range c.timers {
		if !timer.deadline.After(c.now) {
			due = append(due, timer)
		} else {
			remaining = append(remaining, timer)
		}
	}

	c.timers = remaining
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b manualTimer) int { return a.deadline.Compare(b.deadline) })

	for _, timer := range due {
		timer.fn()
	}
}

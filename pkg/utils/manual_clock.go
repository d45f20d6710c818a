package utils

import (
	"sync"
	"time"
)

// ManualClock is a Clock whose time only moves on Advance. Periodic
// callbacks run synchronously inside Advance, in schedule order.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	nextID  int
	started int
	timers  map[int]*manualTimer
}

type manualTimer struct {
	period time.Duration
	next   time.Time
	fn     func()
}

// NewManualClock returns a ManualClock reading start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start, timers: make(map[int]*manualTimer)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Every(d time.Duration, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.started++
	c.timers[id] = &manualTimer{period: d, next: c.now.Add(d), fn: fn}

	return func() {
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()
	}
}

// Advance moves time forward by d, firing every callback that falls due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		timer := c.dueLocked(target)
		if timer == nil {
			break
		}
		c.now = timer.next
		timer.next = timer.next.Add(timer.period)
		fn := timer.fn
		c.mu.Unlock()
		fn()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *ManualClock) dueLocked(target time.Time) *manualTimer {
	bestID := -1
	var best *manualTimer
	for id, timer := range c.timers {
		if timer.next.After(target) {
			continue
		}
		if best == nil || timer.next.Before(best.next) || (timer.next.Equal(best.next) && id < bestID) {
			bestID, best = id, timer
		}
	}
	return best
}

// Active counts running timers with period d.
func (c *ManualClock) Active(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, timer := range c.timers {
		if timer.period == d {
			count++
		}
	}
	return count
}

// Started counts every Every call made so far.
func (c *ManualClock) Started() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

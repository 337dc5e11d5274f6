// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a Clock whose time moves only when Advance is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeEvent
	changed *sync.Cond
}

// fakeEvent is an armed timer or ticker.
type fakeEvent struct {
	deadline time.Time
	channel  chan time.Time
	// interval is zero for timers.
	interval time.Duration
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer arms a timer that fires when the clock is advanced past d.
func (c *FakeClock) NewTimer(d time.Duration) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return &Timer{C: channel, stop: func() bool { return false }}
	}
	event := c.armLocked(d, 0, channel)
	return &Timer{C: channel, stop: func() bool { return c.disarm(event) }}
}

// NewTicker arms a ticker firing every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	event := c.armLocked(d, d, channel)
	return &Ticker{C: channel, stop: func() { c.disarm(event) }}
}

func (c *FakeClock) armLocked(d, interval time.Duration, channel chan time.Time) *fakeEvent {
	event := &fakeEvent{deadline: c.now.Add(d), channel: channel, interval: interval}
	c.pending = append(c.pending, event)
	c.changed.Broadcast()
	return event
}

func (c *FakeClock) disarm(event *fakeEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := slices.Index(c.pending, event)
	if index < 0 {
		return false
	}
	c.pending = slices.Delete(c.pending, index, index+1)
	c.changed.Broadcast()
	return true
}

// Advance moves the clock forward by d, firing every event whose
// deadline is reached in deadline order. A ticker spanning several
// intervals fires once per interval; ticks that find the channel full
// are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		var next *fakeEvent
		for _, event := range c.pending {
			if event.deadline.After(target) {
				continue
			}
			if next == nil || event.deadline.Before(next.deadline) {
				next = event
			}
		}
		if next == nil {
			break
		}
		c.now = next.deadline
		select {
		case next.channel <- next.deadline:
		default:
		}
		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
		} else {
			index := slices.Index(c.pending, next)
			c.pending = slices.Delete(c.pending, index, index+1)
		}
	}
	c.now = target
	c.changed.Broadcast()
}

// WaitForTimers blocks until at least n timers or tickers are armed.
// Use it to make sure a goroutine has armed its deadline before the
// test advances the clock.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of armed timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

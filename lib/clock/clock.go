// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is an injectable time source.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer returns a timer that delivers the time on C once d
	// has elapsed. d <= 0 fires immediately.
	NewTimer(d time.Duration) *Timer

	// NewTicker returns a ticker delivering on C every d. Panics if
	// d <= 0, as time.NewTicker does.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a one-shot event. C has capacity 1.
type Timer struct {
	C <-chan time.Time

	stop func() bool
}

// Stop prevents the timer from firing and reports whether it was still
// pending. Stop does not drain C.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker is a periodic event. C has capacity 1; a consumer that falls
// behind loses ticks rather than queueing them.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stop() }

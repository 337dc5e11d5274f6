// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source of the store.
//
// Name-wait deadlines, the cluster sync ticker and the heartbeat ticker
// all take a [Clock] instead of calling the time package, so tests can
// drive them deterministically:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go registry.Wait(ctx, "x", 5*time.Second)
//	fake.WaitForTimers(1)       // the wait has armed its deadline
//	fake.Advance(5 * time.Second) // and now it times out
//
// Production code uses [Real].
package clock

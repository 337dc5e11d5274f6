// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"
	"time"
)

// RequireReceive reads one value from ch within timeout, or fails the
// test naming what was awaited.
//
//	id := testutil.RequireReceive(t, resolved, 5*time.Second, "waiting for name")
func RequireReceive[T any](t testing.TB, ch <-chan T, timeout time.Duration, what string) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("%s: channel closed without a value", what)
		}
		return v
	case <-timer.C:
		t.Fatalf("%s: nothing received within %v", what, timeout)
	}
	var zero T
	return zero
}

// RequireClosed waits until ch is closed or delivers, or fails the test
// after timeout.
func RequireClosed(t testing.TB, ch <-chan struct{}, timeout time.Duration, what string) {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
		t.Fatalf("%s: still open after %v", what, timeout)
	}
}

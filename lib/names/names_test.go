// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package names

import (
	"context"
	"testing"
	"time"

	"github.com/BSWANG/v6d/lib/clock"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/testutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type result struct {
	id  objectid.ObjectID
	err error
}

func TestPutGetDrop(t *testing.T) {
	registry := New(clock.Fake(epoch))

	if err := registry.Put("x", 42); err != nil {
		t.Fatalf("Put: %v", err)
	}
	id, err := registry.Get("x")
	if err != nil || id != 42 {
		t.Fatalf("Get = %s, %v; want 42", id, err)
	}

	if err := registry.Drop("x"); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	_, err = registry.Get("x")
	testutil.RequireKind(t, err, storeerr.NotFound)
	testutil.RequireKind(t, registry.Drop("x"), storeerr.NotFound)
}

func TestPutLastWriterWins(t *testing.T) {
	registry := New(clock.Fake(epoch))
	registry.Put("x", 1)
	registry.Put("x", 2)
	if id, _ := registry.Get("x"); id != 2 {
		t.Errorf("Get = %s, want the later binding", id)
	}
}

func TestManyNamesOneObject(t *testing.T) {
	registry := New(clock.Fake(epoch))
	registry.Put("a", 7)
	registry.Put("b", 7)
	registry.Put("c", 8)

	dropped := registry.DropObject(7)
	if len(dropped) != 2 || dropped[0] != "a" || dropped[1] != "b" {
		t.Errorf("DropObject = %v, want [a b]", dropped)
	}
	if _, err := registry.Get("c"); err != nil {
		t.Errorf("unrelated name dropped: %v", err)
	}
}

func TestEmptyNameRejected(t *testing.T) {
	registry := New(clock.Fake(epoch))
	testutil.RequireKind(t, registry.Put("", 1), storeerr.InvalidArgument)
}

func TestWaitResolvesExistingImmediately(t *testing.T) {
	registry := New(clock.Fake(epoch))
	registry.Put("ready", 5)
	id, err := registry.Wait(context.Background(), "ready", time.Second)
	if err != nil || id != 5 {
		t.Errorf("Wait = %s, %v", id, err)
	}
}

func TestWaitUnblocksOnPut(t *testing.T) {
	fake := clock.Fake(epoch)
	registry := New(fake)

	results := make(chan result, 1)
	go func() {
		id, err := registry.Wait(context.Background(), "later", time.Minute)
		results <- result{id, err}
	}()

	// The waiter has subscribed once its deadline is armed.
	fake.WaitForTimers(1)
	if registry.Waiting() != 1 {
		t.Fatalf("Waiting = %d, want 1", registry.Waiting())
	}
	registry.Put("later", 99)

	got := testutil.RequireReceive(t, results, 5*time.Second, "waiting for Wait to return")
	if got.err != nil || got.id != 99 {
		t.Errorf("Wait = %s, %v; want 99", got.id, got.err)
	}
	if registry.Waiting() != 0 {
		t.Errorf("Waiting = %d after Put, want 0", registry.Waiting())
	}
}

func TestWaitWakesEveryWaiter(t *testing.T) {
	fake := clock.Fake(epoch)
	registry := New(fake)

	const waiters = 3
	results := make(chan result, waiters)
	for range waiters {
		go func() {
			id, err := registry.Wait(context.Background(), "shared", time.Minute)
			results <- result{id, err}
		}()
	}
	fake.WaitForTimers(waiters)
	registry.Put("shared", 3)

	for range waiters {
		got := testutil.RequireReceive(t, results, 5*time.Second, "waiting for waiter")
		if got.err != nil || got.id != 3 {
			t.Errorf("Wait = %s, %v", got.id, got.err)
		}
	}
}

func TestWaitTimesOut(t *testing.T) {
	fake := clock.Fake(epoch)
	registry := New(fake)

	results := make(chan result, 1)
	go func() {
		id, err := registry.Wait(context.Background(), "never", 5*time.Second)
		results <- result{id, err}
	}()

	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	got := testutil.RequireReceive(t, results, 5*time.Second, "waiting for timeout")
	testutil.RequireKind(t, got.err, storeerr.Timeout)
	if registry.Waiting() != 0 {
		t.Errorf("timed-out waiter still subscribed")
	}

	// A later Put must not block on the abandoned subscription.
	registry.Put("never", 1)
}

func TestWaitHonoursContext(t *testing.T) {
	registry := New(clock.Fake(epoch))
	ctx, cancel := context.WithCancel(context.Background())

	results := make(chan result, 1)
	go func() {
		id, err := registry.Wait(ctx, "cancelled", 0)
		results <- result{id, err}
	}()
	for registry.Waiting() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	got := testutil.RequireReceive(t, results, 5*time.Second, "waiting for cancellation")
	testutil.RequireKind(t, got.err, storeerr.Timeout)
}

func TestList(t *testing.T) {
	registry := New(clock.Fake(epoch))
	for index, name := range []string{"dataset/b", "dataset/a", "model", "dataset/c/d", "dataset/e", "dataset/f", "dataset/g"} {
		registry.Put(name, objectid.ObjectID(index+1))
	}

	entries, err := registry.List("dataset/*", false, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var listed []string
	for _, entry := range entries {
		listed = append(listed, entry.Name)
	}
	want := []string{"dataset/a", "dataset/b", "dataset/e", "dataset/f", "dataset/g"}
	if len(listed) != len(want) {
		t.Fatalf("List = %v, want %v", listed, want)
	}
	for index := range want {
		if listed[index] != want[index] {
			t.Errorf("List[%d] = %q, want %q", index, listed[index], want[index])
		}
	}

	entries, _ = registry.List("dataset/**", false, 100)
	if len(entries) != 6 {
		t.Errorf("List(dataset/**) returned %d entries, want 6", len(entries))
	}
	entries, _ = registry.List("^mod", true, 10)
	if len(entries) != 0 {
		t.Errorf("anchored regex matched a partial name: %v", entries)
	}
	entries, _ = registry.List("mod.*", true, 10)
	if len(entries) != 1 || entries[0].ID != 3 {
		t.Errorf("List(regex) = %v", entries)
	}
}

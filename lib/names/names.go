// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package names maps human-readable names to object ids.
//
// A name resolves to exactly one id at any instant; one id may carry
// many names. Put is last-writer-wins. A lookup may wait for a name
// that does not exist yet: each waiting caller subscribes to the name
// and is woken by the Put that registers it, or gives up when its
// deadline passes.
package names

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/BSWANG/v6d/lib/clock"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/pattern"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// DefaultListLimit caps listings that do not ask for a limit.
const DefaultListLimit = 5

// Registry is the name table of one instance. It is safe for
// concurrent use.
type Registry struct {
	clock clock.Clock

	mu    sync.Mutex
	names map[string]objectid.ObjectID
	// waiters holds one channel per suspended lookup, per name. Put
	// delivers the id to every one of them and forgets the list.
	waiters map[string][]chan objectid.ObjectID
	waiting int
}

// New returns an empty registry using clock for wait deadlines.
func New(c clock.Clock) *Registry {
	return &Registry{
		clock:   c,
		names:   make(map[string]objectid.ObjectID),
		waiters: make(map[string][]chan objectid.ObjectID),
	}
}

// Put binds name to id, replacing any earlier binding, and wakes every
// lookup waiting for name.
func (r *Registry) Put(name string, id objectid.ObjectID) error {
	if name == "" {
		return storeerr.New(storeerr.InvalidArgument, "name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.names[name] = id
	for _, waiter := range r.waiters[name] {
		waiter <- id
	}
	r.waiting -= len(r.waiters[name])
	delete(r.waiters, name)
	return nil
}

// Get resolves name without waiting.
func (r *Registry) Get(name string) (objectid.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.names[name]; ok {
		return id, nil
	}
	return objectid.InvalidObjectID, storeerr.New(storeerr.NotFound, "name %q is not registered", name)
}

// Wait resolves name, suspending until some caller registers it. It
// fails with Timeout once timeout elapses (timeout <= 0 waits until ctx
// ends) and with the context's error, wrapped as Timeout, when ctx ends
// first.
func (r *Registry) Wait(ctx context.Context, name string, timeout time.Duration) (objectid.ObjectID, error) {
	r.mu.Lock()
	if id, ok := r.names[name]; ok {
		r.mu.Unlock()
		return id, nil
	}
	waiter := make(chan objectid.ObjectID, 1)
	r.waiters[name] = append(r.waiters[name], waiter)
	r.waiting++
	r.mu.Unlock()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := r.clock.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case id := <-waiter:
		return id, nil
	case <-deadline:
		if id, ok := r.abandon(name, waiter); ok {
			return id, nil
		}
		return objectid.InvalidObjectID, storeerr.New(storeerr.Timeout, "name %q was not registered within %s", name, timeout)
	case <-ctx.Done():
		if id, ok := r.abandon(name, waiter); ok {
			return id, nil
		}
		return objectid.InvalidObjectID, storeerr.New(storeerr.Timeout, "waiting for name %q: %v", name, ctx.Err())
	}
}

// abandon removes waiter from the subscription list. If a Put raced
// with the deadline and already delivered, the delivered id is
// returned instead.
func (r *Registry) abandon(name string, waiter chan objectid.ObjectID) (objectid.ObjectID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case id := <-waiter:
		return id, true
	default:
	}
	list := r.waiters[name]
	if index := slices.Index(list, waiter); index >= 0 {
		list = slices.Delete(list, index, index+1)
		r.waiting--
	}
	if len(list) == 0 {
		delete(r.waiters, name)
	} else {
		r.waiters[name] = list
	}
	return objectid.InvalidObjectID, false
}

// Drop removes name. It fails with NotFound when name is not bound.
func (r *Registry) Drop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[name]; !ok {
		return storeerr.New(storeerr.NotFound, "name %q is not registered", name)
	}
	delete(r.names, name)
	return nil
}

// DropObject removes every name bound to one of ids and returns the
// removed names, sorted. Called when objects are deleted.
func (r *Registry) DropObject(ids ...objectid.ObjectID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []string
	for name, bound := range r.names {
		if slices.Contains(ids, bound) {
			dropped = append(dropped, name)
			delete(r.names, name)
		}
	}
	slices.Sort(dropped)
	return dropped
}

// Entry is one binding in a listing.
type Entry struct {
	Name string            `cbor:"name"`
	ID   objectid.ObjectID `cbor:"id"`
}

// List returns the bindings whose name matches, sorted by name, at most
// limit of them (DefaultListLimit when limit is not positive).
func (r *Registry) List(namePattern string, regex bool, limit int) ([]Entry, error) {
	match, err := pattern.Compile(namePattern, regex)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	var entries []Entry
	for _, name := range slices.Sorted(maps.Keys(r.names)) {
		if !match(name) {
			continue
		}
		entries = append(entries, Entry{Name: name, ID: r.names[name]})
		if len(entries) == limit {
			break
		}
	}
	return entries, nil
}

// Clear removes every binding. Suspended lookups keep waiting.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.names)
}

// Waiting returns the number of lookups currently suspended.
func (r *Registry) Waiting() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BSWANG/v6d/lib/clock"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// View is one instance's cached copy of the registry. Records owned by
// the instance itself are skipped: the instance answers those from its
// own catalog.
type View struct {
	registry Registry
	self     objectid.InstanceID
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.RWMutex
	revision uint64
	records  map[objectid.ObjectID]objmeta.Record
	members  []Member
	syncedAt time.Time
}

// NewView returns an empty view of registry for instance self. Call
// Sync to populate it.
func NewView(registry Registry, self objectid.InstanceID, c clock.Clock, logger *slog.Logger) *View {
	return &View{
		registry: registry,
		self:     self,
		clock:    c,
		logger:   logger,
		records:  make(map[objectid.ObjectID]objmeta.Record),
	}
}

// Sync replaces the cached records and membership with the registry's
// current state.
func (v *View) Sync(ctx context.Context) error {
	snapshot, err := v.registry.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetching registry snapshot: %w", err)
	}
	members, err := v.registry.Instances(ctx)
	if err != nil {
		return fmt.Errorf("listing registry members: %w", err)
	}

	records := make(map[objectid.ObjectID]objmeta.Record, len(snapshot.Records))
	for _, record := range snapshot.Records {
		if record.Instance == v.self {
			continue
		}
		records[record.ID] = record
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.revision = snapshot.Revision
	v.records = records
	v.members = members
	v.syncedAt = v.clock.Now()
	return nil
}

// Revision returns the registry revision of the last successful sync.
func (v *View) Revision() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.revision
}

// SyncedAt returns when the view was last synchronized; zero before
// the first sync.
func (v *View) SyncedAt() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.syncedAt
}

// Get returns the cached record of an object owned by another instance.
func (v *View) Get(id objectid.ObjectID) (objmeta.Record, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	record, ok := v.records[id]
	if !ok {
		return objmeta.Record{}, false
	}
	return record.Clone(), true
}

// Closure returns the cached records of id and everything it reaches,
// members first. Members missing from the view are skipped.
func (v *View) Closure(id objectid.ObjectID) ([]objmeta.Record, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if _, ok := v.records[id]; !ok {
		return nil, storeerr.New(storeerr.NotFound, "object %s is not visible from instance %s", id, v.self)
	}
	var closure []objmeta.Record
	visited := make(map[objectid.ObjectID]bool)
	var walk func(objectid.ObjectID)
	walk = func(current objectid.ObjectID) {
		if visited[current] {
			return
		}
		visited[current] = true
		record, ok := v.records[current]
		if !ok {
			return
		}
		for _, member := range record.MemberIDs() {
			walk(member)
		}
		closure = append(closure, record.Clone())
	}
	walk(id)
	return closure, nil
}

// Members returns the membership seen at the last sync.
func (v *View) Members() []Member {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]Member(nil), v.members...)
}

// IsMember reports whether id was a live member at the last sync.
func (v *View) IsMember(id objectid.InstanceID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, member := range v.members {
		if member.Info.ID == id {
			return true
		}
	}
	return false
}

// Run synchronizes the view every interval until ctx is done. report,
// when non-nil, is called before each sync so the instance's status
// heartbeat and the refresh share one ticker. Failures are logged and
// retried on the next tick.
func (v *View) Run(ctx context.Context, interval time.Duration, report func(context.Context) error) {
	ticker := v.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if report != nil {
				if err := report(ctx); err != nil {
					v.logger.Warn("reporting instance status failed", "error", err)
				}
			}
			if err := v.Sync(ctx); err != nil {
				v.logger.Warn("registry sync failed", "error", err)
			}
		}
	}
}

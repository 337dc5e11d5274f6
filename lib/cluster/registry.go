// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/BSWANG/v6d/lib/clock"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// Registry is the cluster's membership and persisted-object authority.
type Registry interface {
	// Join registers an instance. Joining again under the same id
	// replaces the earlier entry, as after a restart.
	Join(ctx context.Context, info InstanceInfo) error
	// Leave removes an instance and withdraws everything it published.
	Leave(ctx context.Context, id objectid.InstanceID) error
	// Report records an instance's latest status.
	Report(ctx context.Context, status InstanceStatus) error
	// Instances lists the live members in instance id order.
	Instances(ctx context.Context) ([]Member, error)
	// Publish makes records owned by owner visible cluster-wide.
	Publish(ctx context.Context, owner objectid.InstanceID, records []objmeta.Record) error
	// Withdraw removes records owned by owner.
	Withdraw(ctx context.Context, owner objectid.InstanceID, ids []objectid.ObjectID) error
	// Snapshot returns every published record.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is the registry's published records at one revision. The
// revision increases with every change.
type Snapshot struct {
	Revision uint64           `cbor:"revision"`
	Records  []objmeta.Record `cbor:"records"`
}

// Memory is the authoritative in-process Registry hosted by the seed
// instance. Members that have not reported within the expiry window are
// dropped together with their records; a zero window keeps members
// until they leave.
type Memory struct {
	clock  clock.Clock
	expiry time.Duration

	mu       sync.Mutex
	members  map[objectid.InstanceID]*Member
	records  map[objectid.ObjectID]objmeta.Record
	revision uint64
}

// NewMemory returns an empty registry.
func NewMemory(c clock.Clock, expiry time.Duration) *Memory {
	return &Memory{
		clock:   c,
		expiry:  expiry,
		members: make(map[objectid.InstanceID]*Member),
		records: make(map[objectid.ObjectID]objmeta.Record),
	}
}

func (m *Memory) Join(_ context.Context, info InstanceInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if info.JoinedAt.IsZero() {
		info.JoinedAt = now
	}
	// A restarted instance starts with an empty catalog.
	m.withdrawOwnerLocked(info.ID)
	m.members[info.ID] = &Member{
		Info:     info,
		Status:   InstanceStatus{InstanceID: info.ID},
		LastSeen: now,
	}
	m.revision++
	return nil
}

func (m *Memory) Leave(_ context.Context, id objectid.InstanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[id]; !ok {
		return storeerr.New(storeerr.NotFound, "instance %s is not a member", id)
	}
	delete(m.members, id)
	m.withdrawOwnerLocked(id)
	m.revision++
	return nil
}

func (m *Memory) Report(_ context.Context, status InstanceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.members[status.InstanceID]
	if !ok {
		return storeerr.New(storeerr.InstanceUnavailable, "instance %s has not joined", status.InstanceID)
	}
	member.Status = status
	member.LastSeen = m.clock.Now()
	return nil
}

func (m *Memory) Instances(_ context.Context) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	members := make([]Member, 0, len(m.members))
	for _, id := range slices.Sorted(maps.Keys(m.members)) {
		members = append(members, *m.members[id])
	}
	return members, nil
}

func (m *Memory) Publish(_ context.Context, owner objectid.InstanceID, records []objmeta.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[owner]; !ok {
		return storeerr.New(storeerr.InstanceUnavailable, "instance %s has not joined", owner)
	}
	for _, record := range records {
		if record.Instance != owner {
			return storeerr.New(storeerr.InvalidArgument,
				"instance %s cannot publish %s owned by instance %s", owner, record.ID, record.Instance)
		}
	}
	for _, record := range records {
		m.records[record.ID] = record.Clone()
	}
	m.revision++
	return nil
}

func (m *Memory) Withdraw(_ context.Context, owner objectid.InstanceID, ids []objectid.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if record, ok := m.records[id]; ok && record.Instance == owner {
			delete(m.records, id)
		}
	}
	m.revision++
	return nil
}

func (m *Memory) Snapshot(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()
	snapshot := Snapshot{Revision: m.revision, Records: make([]objmeta.Record, 0, len(m.records))}
	for _, id := range slices.Sorted(maps.Keys(m.records)) {
		record := m.records[id]
		snapshot.Records = append(snapshot.Records, record.Clone())
	}
	return snapshot, nil
}

func (m *Memory) withdrawOwnerLocked(owner objectid.InstanceID) {
	for id, record := range m.records {
		if record.Instance == owner {
			delete(m.records, id)
		}
	}
}

func (m *Memory) expireLocked() {
	if m.expiry <= 0 {
		return
	}
	cutoff := m.clock.Now().Add(-m.expiry)
	for id, member := range m.members {
		if member.LastSeen.Before(cutoff) {
			delete(m.members, id)
			m.withdrawOwnerLocked(id)
			m.revision++
		}
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BSWANG/v6d/lib/blobstore"
	"github.com/BSWANG/v6d/lib/catalog"
	"github.com/BSWANG/v6d/lib/clock"
	"github.com/BSWANG/v6d/lib/cluster"
	"github.com/BSWANG/v6d/lib/names"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/shm"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/wire"
)

// Config assembles an instance.
type Config struct {
	// Info identifies the instance to the registry. Info.ID is the
	// instance id embedded in every object id it issues.
	Info       cluster.InstanceInfo
	Deployment cluster.Deployment
	// Arena is the instance's shared memory. The instance allocates
	// from it but does not close it.
	Arena *shm.Arena
	// Registry is the cluster authority. A local deployment passes a
	// cluster.Memory of its own.
	Registry cluster.Registry
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Instance is one store instance.
type Instance struct {
	info       cluster.InstanceInfo
	deployment cluster.Deployment
	arena      *shm.Arena
	registry   cluster.Registry
	view       *cluster.View
	clock      clock.Clock
	logger     *slog.Logger

	mu      sync.Mutex
	blobs   *blobstore.Table
	catalog *catalog.Catalog
	names   *names.Registry

	// registryMu orders registry updates. It is taken while mu is
	// still held and released after the update, so updates reach the
	// registry in catalog order without holding mu across the call.
	registryMu sync.Mutex

	ipcSessions atomic.Int64
	rpcSessions atomic.Int64
}

// New creates an instance, joins it to the registry and performs a
// first sync of the cluster view.
func New(ctx context.Context, config Config) (*Instance, error) {
	if config.Arena == nil {
		return nil, errors.New("instance: no arena configured")
	}
	if config.Registry == nil {
		return nil, errors.New("instance: no registry configured")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Deployment == "" {
		config.Deployment = cluster.Local
	}

	generator, err := objectid.NewGenerator(config.Info.ID, config.Clock.Now)
	if err != nil {
		return nil, fmt.Errorf("creating id generator: %w", err)
	}
	if config.Info.JoinedAt.IsZero() {
		config.Info.JoinedAt = config.Clock.Now()
	}

	instance := &Instance{
		info:       config.Info,
		deployment: config.Deployment,
		arena:      config.Arena,
		registry:   config.Registry,
		view:       cluster.NewView(config.Registry, config.Info.ID, config.Clock, config.Logger),
		clock:      config.Clock,
		logger:     config.Logger.With("instance_id", uint64(config.Info.ID)),
		blobs:      blobstore.NewTable(config.Arena, generator),
		catalog:    catalog.New(config.Info.ID, generator),
		names:      names.New(config.Clock),
	}

	if err := instance.registry.Join(ctx, instance.info); err != nil {
		return nil, fmt.Errorf("joining the cluster registry: %w", err)
	}
	if err := instance.view.Sync(ctx); err != nil {
		return nil, fmt.Errorf("initial registry sync: %w", err)
	}
	instance.logger.Info("instance started",
		"deployment", string(instance.deployment),
		"arena", instance.arena.Path(),
		"arena_size", instance.arena.Size(),
	)
	return instance, nil
}

// ID returns the instance id.
func (i *Instance) ID() objectid.InstanceID {
	return i.info.ID
}

// Info returns the instance's registry identity.
func (i *Instance) Info() cluster.InstanceInfo {
	return i.info
}

// Arena returns the arena the instance allocates from.
func (i *Instance) Arena() *shm.Arena {
	return i.arena
}

// View returns the instance's cached view of the cluster.
func (i *Instance) View() *cluster.View {
	return i.view
}

// Session is one client attachment. Builders are owned by sessions.
type Session struct {
	ID   string
	Kind wire.SessionKind
}

// OpenSession accounts a new session. id must be unique for the
// instance's lifetime.
func (i *Instance) OpenSession(id string, kind wire.SessionKind) Session {
	switch kind {
	case wire.IPC:
		i.ipcSessions.Add(1)
	case wire.RPC:
		i.rpcSessions.Add(1)
	}
	return Session{ID: id, Kind: kind}
}

// CloseSession ends a session and aborts the builders it left open.
func (i *Instance) CloseSession(session Session) {
	switch session.Kind {
	case wire.IPC:
		i.ipcSessions.Add(-1)
	case wire.RPC:
		i.rpcSessions.Add(-1)
	}
	i.mu.Lock()
	aborted := i.blobs.AbortOwner(session.ID)
	i.mu.Unlock()
	if len(aborted) > 0 {
		i.logger.Info("aborted builders of a closed session",
			"session", session.ID,
			"count", len(aborted),
		)
	}
}

// Status returns a snapshot of the instance's accounting.
func (i *Instance) Status() cluster.InstanceStatus {
	used, limit := i.arena.Usage()
	return cluster.InstanceStatus{
		InstanceID:       i.info.ID,
		Deployment:       i.deployment,
		MemoryUsage:      used,
		MemoryLimit:      limit,
		DeferredRequests: i.names.Waiting(),
		IPCConnections:   int(i.ipcSessions.Load()),
		RPCConnections:   int(i.rpcSessions.Load()),
	}
}

// ReportStatus sends the instance's status to the registry.
func (i *Instance) ReportStatus(ctx context.Context) error {
	return i.registry.Report(ctx, i.Status())
}

// ClusterMeta returns the per-instance metadata of every live member.
func (i *Instance) ClusterMeta(ctx context.Context) (map[objectid.InstanceID]cluster.MetaEntry, error) {
	members, err := i.registry.Instances(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing cluster members: %w", err)
	}
	return cluster.Meta(members), nil
}

// Sync refreshes the cluster view from the registry.
func (i *Instance) Sync(ctx context.Context) error {
	return i.view.Sync(ctx)
}

// MemoryTrim returns unused arena pages to the kernel and reports
// whether any were released.
func (i *Instance) MemoryTrim() (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.arena.Trim()
}

// Close leaves the registry. Open sessions should be closed first.
func (i *Instance) Close(ctx context.Context) error {
	if err := i.registry.Leave(ctx, i.info.ID); err != nil && !errors.Is(err, storeerr.ErrNotFound) {
		return fmt.Errorf("leaving the cluster registry: %w", err)
	}
	i.logger.Info("instance stopped")
	return nil
}

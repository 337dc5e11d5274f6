// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/BSWANG/v6d/lib/cluster"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/version"
	"github.com/BSWANG/v6d/lib/wire"
)

// Client is the protocol shared by the IPC and RPC access paths.
type Client interface {
	// CreateMetadata commits building metadata, and every building
	// member it reaches, on the connected instance.
	CreateMetadata(ctx context.Context, meta *objmeta.ObjectMeta) (*objmeta.ObjectMeta, error)
	// CreateMetadataOn commits on the given instance. It fails with
	// InstanceUnavailable unless that is the connected instance.
	CreateMetadataOn(ctx context.Context, meta *objmeta.ObjectMeta, instance objectid.InstanceID) (*objmeta.ObjectMeta, error)

	GetMeta(ctx context.Context, id objectid.ObjectID, syncRemote bool) (*objmeta.ObjectMeta, error)
	GetMetas(ctx context.Context, ids []objectid.ObjectID, syncRemote bool) ([]*objmeta.ObjectMeta, error)
	GetObject(ctx context.Context, id objectid.ObjectID) (*objmeta.Object, error)
	GetObjects(ctx context.Context, ids []objectid.ObjectID) ([]*objmeta.Object, error)
	ListMetadatas(ctx context.Context, typePattern string, regex bool, limit int, nobuffer bool) ([]*objmeta.ObjectMeta, error)
	ListObjects(ctx context.Context, typePattern string, regex bool, limit int) ([]*objmeta.Object, error)

	Delete(ctx context.Context, ids []objectid.ObjectID, options DeleteOptions) error
	Persist(ctx context.Context, id objectid.ObjectID) error
	// Exists never fails: a transport error reads as absence.
	Exists(ctx context.Context, id objectid.ObjectID) bool
	ShallowCopy(ctx context.Context, id objectid.ObjectID, extra map[string]any) (objectid.ObjectID, error)

	PutName(ctx context.Context, name string, id objectid.ObjectID) error
	GetName(ctx context.Context, name string, wait bool) (objectid.ObjectID, error)
	ListNames(ctx context.Context, namePattern string, regex bool, limit int) (map[string]objectid.ObjectID, error)
	DropName(ctx context.Context, name string) error

	SyncMeta(ctx context.Context) error
	Clear(ctx context.Context) error
	Reset(ctx context.Context) error
	MemoryTrim(ctx context.Context) (bool, error)
	Status(ctx context.Context) (cluster.InstanceStatus, error)
	Meta(ctx context.Context) (map[objectid.InstanceID]cluster.MetaEntry, error)

	InstanceID() objectid.InstanceID
	Version() string
	IPCSocket() string
	RPCEndpoint() string
	IsIPC() bool
	IsRPC() bool
	Connected() bool
	Close() error
}

// DeleteOptions controls Delete. The zero value fails with
// StillReferenced when another object refers to a target, and removes
// members that nothing else refers to.
type DeleteOptions struct {
	// Force deletes targets even while other objects refer to them.
	// The referrers keep dangling member ids.
	Force bool
	// Shallow removes only the named records and their directly owned
	// blobs, leaving object members in place.
	Shallow bool
}

// Options configures a connection.
type Options struct {
	Username string
	Password string
	// Compression is requested for blob payloads on RPC sessions.
	Compression wire.Compression
	// MetaCacheTTL bounds how long an RPC client reuses fetched
	// metadata. Zero uses DefaultMetaCacheTTL; a negative value
	// disables the cache.
	MetaCacheTTL time.Duration
	Logger       *slog.Logger
}

// DefaultMetaCacheTTL is the metadata cache lifetime of RPC clients.
const DefaultMetaCacheTTL = 5 * time.Minute

// nameWaitMargin is kept between the server's name-wait timeout and
// the caller's deadline so the server answers before the call expires.
const nameWaitMargin = 50 * time.Millisecond

// base implements the shared protocol over one registered session.
type base struct {
	conn    *wire.Conn
	session wire.RegisterResponse
	logger  *slog.Logger

	// metas caches fetched metadata. Nil on IPC clients, whose
	// reads never leave the host.
	metas *ttlcache.Cache[objectid.ObjectID, *objmeta.ObjectMeta]
}

// open dials address and registers a session of the expected kind.
func open(ctx context.Context, network, address string, kind wire.SessionKind, options Options) (*base, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := wire.Dial(ctx, network, address)
	if err != nil {
		return nil, err
	}
	request := wire.RegisterRequest{
		Username:        options.Username,
		Password:        options.Password,
		ProtocolVersion: wire.ProtocolVersion,
		Compression:     options.Compression,
	}
	var session wire.RegisterResponse
	if err := conn.Call(ctx, wire.ActionRegister, request, &session); err != nil {
		conn.Close()
		return nil, err
	}
	if session.Kind != kind {
		conn.Close()
		return nil, storeerr.New(storeerr.ConnectionFailed, "%s serves %s sessions, not %s", address, session.Kind, kind)
	}
	if !version.Compatible(session.ServerVersion) {
		logger.Warn("instance runs an incompatible version",
			"address", address,
			"server_version", session.ServerVersion,
			"client_version", version.Short(),
		)
	}
	logger.Debug("session registered",
		"address", address,
		"session", session.SessionID,
		"instance", uint64(session.InstanceID),
	)
	return &base{conn: conn, session: session, logger: logger}, nil
}

func (c *base) call(ctx context.Context, action string, request, result any) error {
	return c.conn.Call(ctx, action, request, result)
}

func (c *base) CreateMetadata(ctx context.Context, meta *objmeta.ObjectMeta) (*objmeta.ObjectMeta, error) {
	return c.CreateMetadataOn(ctx, meta, objectid.UnspecifiedInstance)
}

func (c *base) CreateMetadataOn(ctx context.Context, meta *objmeta.ObjectMeta, instance objectid.InstanceID) (*objmeta.ObjectMeta, error) {
	draft, err := objmeta.NewDraft(meta)
	if err != nil {
		return nil, err
	}
	var response wire.RecordsResponse
	request := wire.CreateDataRequest{Draft: *draft, Instance: instance}
	if err := c.call(ctx, wire.ActionCreateData, request, &response); err != nil {
		return nil, err
	}
	if len(response.Roots) != 1 {
		return nil, storeerr.New(storeerr.Internal, "create_data returned %d roots", len(response.Roots))
	}
	return objmeta.FromRecords(response.Roots[0], response.Records, c.session.InstanceID)
}

func (c *base) GetMeta(ctx context.Context, id objectid.ObjectID, syncRemote bool) (*objmeta.ObjectMeta, error) {
	metas, err := c.GetMetas(ctx, []objectid.ObjectID{id}, syncRemote)
	if err != nil {
		return nil, err
	}
	return metas[0], nil
}

func (c *base) GetMetas(ctx context.Context, ids []objectid.ObjectID, syncRemote bool) ([]*objmeta.ObjectMeta, error) {
	metas := make([]*objmeta.ObjectMeta, len(ids))
	var missing []objectid.ObjectID
	for index, id := range ids {
		if c.metas != nil && !syncRemote {
			if item := c.metas.Get(id); item != nil {
				metas[index] = item.Value()
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return metas, nil
	}

	var response wire.RecordsResponse
	request := wire.GetDataRequest{IDs: missing, SyncRemote: syncRemote}
	if err := c.call(ctx, wire.ActionGetData, request, &response); err != nil {
		return nil, err
	}
	fetched := make(map[objectid.ObjectID]*objmeta.ObjectMeta, len(missing))
	for _, id := range missing {
		meta, err := objmeta.FromRecords(id, response.Records, c.session.InstanceID)
		if err != nil {
			return nil, err
		}
		fetched[id] = meta
		if c.metas != nil {
			c.metas.Set(id, meta, ttlcache.DefaultTTL)
		}
	}
	for index, id := range ids {
		if metas[index] == nil {
			metas[index] = fetched[id]
		}
	}
	return metas, nil
}

func (c *base) GetObject(ctx context.Context, id objectid.ObjectID) (*objmeta.Object, error) {
	meta, err := c.GetMeta(ctx, id, false)
	if err != nil {
		return nil, err
	}
	return objmeta.NewObject(meta)
}

func (c *base) GetObjects(ctx context.Context, ids []objectid.ObjectID) ([]*objmeta.Object, error) {
	metas, err := c.GetMetas(ctx, ids, false)
	if err != nil {
		return nil, err
	}
	return objects(metas)
}

func (c *base) ListMetadatas(ctx context.Context, typePattern string, regex bool, limit int, nobuffer bool) ([]*objmeta.ObjectMeta, error) {
	var response wire.RecordsResponse
	request := wire.ListDataRequest{Pattern: typePattern, Regex: regex, Limit: limit, NoBuffer: nobuffer}
	if err := c.call(ctx, wire.ActionListData, request, &response); err != nil {
		return nil, err
	}
	metas := make([]*objmeta.ObjectMeta, 0, len(response.Roots))
	for _, root := range response.Roots {
		meta, err := objmeta.FromRecords(root, response.Records, c.session.InstanceID)
		if err != nil {
			return nil, err
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

func (c *base) ListObjects(ctx context.Context, typePattern string, regex bool, limit int) ([]*objmeta.Object, error) {
	metas, err := c.ListMetadatas(ctx, typePattern, regex, limit, false)
	if err != nil {
		return nil, err
	}
	return objects(metas)
}

func objects(metas []*objmeta.ObjectMeta) ([]*objmeta.Object, error) {
	result := make([]*objmeta.Object, 0, len(metas))
	for _, meta := range metas {
		object, err := objmeta.NewObject(meta)
		if err != nil {
			return nil, err
		}
		result = append(result, object)
	}
	return result, nil
}

func (c *base) Delete(ctx context.Context, ids []objectid.ObjectID, options DeleteOptions) error {
	request := wire.DeleteDataRequest{IDs: ids, Force: options.Force, Deep: !options.Shallow}
	var response wire.DeleteDataResponse
	err := c.call(ctx, wire.ActionDeleteData, request, &response)
	if c.metas != nil {
		c.metas.DeleteAll()
	}
	return err
}

func (c *base) Persist(ctx context.Context, id objectid.ObjectID) error {
	if err := c.call(ctx, wire.ActionPersist, wire.ObjectRequest{ID: id}, nil); err != nil {
		return err
	}
	if c.metas != nil {
		// The cached tree still reads as transient.
		c.metas.Delete(id)
	}
	return nil
}

func (c *base) Exists(ctx context.Context, id objectid.ObjectID) bool {
	var response wire.ExistsResponse
	if err := c.call(ctx, wire.ActionExists, wire.ObjectRequest{ID: id}, &response); err != nil {
		c.logger.Debug("exists failed", "id", id.String(), "error", err)
		return false
	}
	return response.Exists
}

func (c *base) ShallowCopy(ctx context.Context, id objectid.ObjectID, extra map[string]any) (objectid.ObjectID, error) {
	for key, value := range extra {
		if _, err := objmeta.EncodeScalar(value); err != nil {
			return objectid.InvalidObjectID, fmt.Errorf("extra attribute %q: %w", key, err)
		}
	}
	var response wire.ObjectResponse
	if err := c.call(ctx, wire.ActionShallowCopy, wire.ShallowCopyRequest{ID: id, Extra: extra}, &response); err != nil {
		return objectid.InvalidObjectID, err
	}
	return response.ID, nil
}

func (c *base) PutName(ctx context.Context, name string, id objectid.ObjectID) error {
	return c.call(ctx, wire.ActionPutName, wire.PutNameRequest{Name: name, ID: id}, nil)
}

// GetName resolves name. With wait set the call blocks until some
// session binds the name or ctx ends; the wait is bounded by ctx's
// deadline.
func (c *base) GetName(ctx context.Context, name string, wait bool) (objectid.ObjectID, error) {
	request := wire.GetNameRequest{Name: name, Wait: wait}
	if deadline, ok := ctx.Deadline(); ok && wait {
		request.Timeout = time.Until(deadline) - nameWaitMargin
		if request.Timeout <= 0 {
			return objectid.InvalidObjectID, storeerr.New(storeerr.Timeout, "no time left to wait for name %q", name)
		}
	}
	var response wire.ObjectResponse
	if err := c.call(ctx, wire.ActionGetName, request, &response); err != nil {
		return objectid.InvalidObjectID, err
	}
	return response.ID, nil
}

func (c *base) ListNames(ctx context.Context, namePattern string, regex bool, limit int) (map[string]objectid.ObjectID, error) {
	var response wire.ListNameResponse
	request := wire.ListNameRequest{Pattern: namePattern, Regex: regex, Limit: limit}
	if err := c.call(ctx, wire.ActionListName, request, &response); err != nil {
		return nil, err
	}
	bindings := make(map[string]objectid.ObjectID, len(response.Names))
	for _, entry := range response.Names {
		bindings[entry.Name] = entry.ID
	}
	return bindings, nil
}

func (c *base) DropName(ctx context.Context, name string) error {
	return c.call(ctx, wire.ActionDropName, wire.NameRequest{Name: name}, nil)
}

// SyncMeta refreshes the instance's view of the cluster and drops
// every locally cached record.
func (c *base) SyncMeta(ctx context.Context) error {
	if c.metas != nil {
		c.metas.DeleteAll()
	}
	return c.call(ctx, wire.ActionSyncMeta, nil, nil)
}

// Clear deletes every object the connected instance holds.
func (c *base) Clear(ctx context.Context) error {
	if c.metas != nil {
		c.metas.DeleteAll()
	}
	return c.call(ctx, wire.ActionClear, nil, nil)
}

// Reset is Clear.
func (c *base) Reset(ctx context.Context) error {
	return c.Clear(ctx)
}

func (c *base) MemoryTrim(ctx context.Context) (bool, error) {
	var response wire.TrimResponse
	if err := c.call(ctx, wire.ActionMemoryTrim, nil, &response); err != nil {
		return false, err
	}
	return response.Trimmed, nil
}

func (c *base) Status(ctx context.Context) (cluster.InstanceStatus, error) {
	var response wire.StatusResponse
	if err := c.call(ctx, wire.ActionInstanceStatus, nil, &response); err != nil {
		return cluster.InstanceStatus{}, err
	}
	return response.Status, nil
}

func (c *base) Meta(ctx context.Context) (map[objectid.InstanceID]cluster.MetaEntry, error) {
	var response wire.ClusterMetaResponse
	if err := c.call(ctx, wire.ActionClusterMeta, nil, &response); err != nil {
		return nil, err
	}
	return response.Instances, nil
}

func (c *base) InstanceID() objectid.InstanceID { return c.session.InstanceID }
func (c *base) Version() string                 { return c.session.ServerVersion }
func (c *base) IPCSocket() string               { return c.session.IPCSocket }
func (c *base) RPCEndpoint() string             { return c.session.RPCEndpoint }
func (c *base) IsIPC() bool                     { return c.session.Kind == wire.IPC }
func (c *base) IsRPC() bool                     { return c.session.Kind == wire.RPC }
func (c *base) Connected() bool                 { return c.conn.Connected() }

// SessionID returns the id the instance assigned to this session.
func (c *base) SessionID() string { return c.session.SessionID }

func (c *base) close() error {
	if c.metas != nil {
		c.metas.DeleteAll()
	}
	return c.conn.Close()
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/BSWANG/v6d/lib/blobstore"
	"github.com/BSWANG/v6d/lib/catalog"
	"github.com/BSWANG/v6d/lib/cluster"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/wire"
)

func (s *Server) registerHandlers() {
	s.handle(wire.ActionRegister, s.handleRegister)

	s.handleIPC(wire.ActionCreateBuffer, s.handleCreateBuffer)
	s.handleIPC(wire.ActionSealBuffer, s.handleSealBuffer)
	s.handleIPC(wire.ActionShrinkBuffer, s.handleShrinkBuffer)
	s.handleIPC(wire.ActionAbortBuffer, s.handleAbortBuffer)
	s.handleIPC(wire.ActionGetBuffers, s.handleGetBuffers)
	s.handleIPC(wire.ActionAllocatedSize, s.handleAllocatedSize)
	s.handleIPC(wire.ActionFindBuffer, s.handleFindBuffer)
	s.handle(wire.ActionCreateRemoteBuffer, s.handleCreateRemoteBuffer)
	s.handle(wire.ActionGetRemoteBuffers, s.handleGetRemoteBuffers)

	s.handle(wire.ActionCreateData, s.handleCreateData)
	s.handle(wire.ActionGetData, s.handleGetData)
	s.handle(wire.ActionListData, s.handleListData)
	s.handle(wire.ActionDeleteData, s.handleDeleteData)
	s.handle(wire.ActionExists, s.handleExists)
	s.handle(wire.ActionPersist, s.handlePersist)
	s.handle(wire.ActionShallowCopy, s.handleShallowCopy)

	s.handle(wire.ActionPutName, s.handlePutName)
	s.handleBlocking(wire.ActionGetName, s.handleGetName)
	s.handle(wire.ActionListName, s.handleListName)
	s.handle(wire.ActionDropName, s.handleDropName)

	s.handle(wire.ActionSyncMeta, s.handleSyncMeta)
	s.handle(wire.ActionClear, s.handleClear)
	s.handle(wire.ActionMemoryTrim, s.handleMemoryTrim)
	s.handle(wire.ActionInstanceStatus, s.handleInstanceStatus)
	s.handle(wire.ActionClusterMeta, s.handleClusterMeta)

	if s.config.Registry != nil {
		s.registerClusterHandlers()
	}
}

func (s *Server) handleRegister(_ context.Context, state *session, request *wire.Request) (any, error) {
	if state.registered {
		return nil, storeerr.New(storeerr.InvalidArgument, "session %s is already registered", state.ID)
	}
	var body wire.RegisterRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	if body.ProtocolVersion != wire.ProtocolVersion {
		return nil, storeerr.New(storeerr.InvalidArgument,
			"protocol version %d is not supported; this server speaks %d", body.ProtocolVersion, wire.ProtocolVersion)
	}
	compression, err := wire.ParseCompression(string(body.Compression))
	if err != nil {
		return nil, err
	}
	if body.Compression == "" {
		compression = s.config.DefaultCompression
	}
	if err := s.config.Users.Verify(body.Username, body.Password); err != nil {
		s.logger.Info("session authentication failed", "username", body.Username)
		return nil, err
	}

	instance := s.config.Instance
	state.Session = instance.OpenSession(uuid.NewString(), s.config.Kind)
	state.registered = true
	state.compression = compression
	s.logger.Debug("session registered", "session", state.ID, "username", body.Username)

	response := wire.RegisterResponse{
		SessionID:     state.ID,
		Kind:          s.config.Kind,
		InstanceID:    instance.ID(),
		ServerVersion: s.config.Version,
		IPCSocket:     s.config.IPCSocket,
		RPCEndpoint:   s.config.RPCEndpoint,
		Compression:   compression,
	}
	if s.config.Kind == wire.IPC {
		response.ArenaPath = instance.Arena().Path()
		response.ArenaSize = instance.Arena().Size()
	}
	return response, nil
}

func buffer(blob blobstore.Blob) wire.Buffer {
	return wire.Buffer{
		ID:     blob.ID,
		Offset: blob.Offset,
		Size:   blob.Size,
		Sealed: blob.State == blobstore.Sealed,
	}
}

func (s *Server) handleCreateBuffer(_ context.Context, state *session, request *wire.Request) (any, error) {
	var body wire.CreateBufferRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	blob, err := s.config.Instance.CreateBlob(state.Session, body.Size)
	if err != nil {
		return nil, err
	}
	return buffer(blob), nil
}

func (s *Server) handleSealBuffer(_ context.Context, state *session, request *wire.Request) (any, error) {
	var body wire.BufferRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	blob, err := s.config.Instance.SealBlob(state.Session, body.ID)
	if err != nil {
		return nil, err
	}
	return buffer(blob), nil
}

func (s *Server) handleShrinkBuffer(_ context.Context, state *session, request *wire.Request) (any, error) {
	var body wire.ShrinkBufferRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	blob, err := s.config.Instance.ShrinkBlob(state.Session, body.ID, body.Size)
	if err != nil {
		return nil, err
	}
	return buffer(blob), nil
}

func (s *Server) handleAbortBuffer(_ context.Context, state *session, request *wire.Request) (any, error) {
	var body wire.BufferRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	return nil, s.config.Instance.AbortBlob(state.Session, body.ID)
}

func (s *Server) handleGetBuffers(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.GetBuffersRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	blobs, err := s.config.Instance.GetBlobs(body.IDs, body.Unsafe)
	if err != nil {
		return nil, err
	}
	response := wire.GetBuffersResponse{Buffers: make([]wire.Buffer, 0, len(blobs))}
	for _, blob := range blobs {
		response.Buffers = append(response.Buffers, buffer(blob))
	}
	return response, nil
}

func (s *Server) handleAllocatedSize(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.BufferRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	size, err := s.config.Instance.AllocatedSize(body.ID)
	if err != nil {
		return nil, err
	}
	return wire.SizeResponse{Size: size}, nil
}

func (s *Server) handleFindBuffer(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.FindBufferRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	id, err := s.config.Instance.FindBlob(body.Offset)
	if err != nil {
		return nil, err
	}
	return wire.ObjectResponse{ID: id}, nil
}

func (s *Server) handleCreateRemoteBuffer(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.CreateRemoteBufferRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	data, err := body.Payload.Decode()
	if err != nil {
		return nil, err
	}
	blob, err := s.config.Instance.CreateRemoteBlob(data)
	if err != nil {
		return nil, err
	}
	return buffer(blob), nil
}

func (s *Server) handleGetRemoteBuffers(_ context.Context, state *session, request *wire.Request) (any, error) {
	var body wire.GetBuffersRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	contents, err := s.config.Instance.GetRemoteBlobs(body.IDs, body.Unsafe)
	if err != nil {
		return nil, err
	}
	response := wire.GetRemoteBuffersResponse{Buffers: make([]wire.RemoteBuffer, 0, len(contents))}
	for _, content := range contents {
		payload, err := wire.EncodePayload(content.Bytes, state.compression)
		if err != nil {
			return nil, err
		}
		response.Buffers = append(response.Buffers, wire.RemoteBuffer{ID: content.Blob.ID, Payload: payload})
	}
	return response, nil
}

func (s *Server) handleCreateData(ctx context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.CreateDataRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	records, err := s.config.Instance.CreateData(ctx, &body.Draft, body.Instance)
	if err != nil {
		return nil, err
	}
	return wire.RecordsResponse{Roots: []objectid.ObjectID{records[len(records)-1].ID}, Records: records}, nil
}

func (s *Server) handleGetData(ctx context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.GetDataRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	records, err := s.config.Instance.GetData(ctx, body.IDs, body.SyncRemote)
	if err != nil {
		return nil, err
	}
	return wire.RecordsResponse{Roots: body.IDs, Records: records}, nil
}

func (s *Server) handleListData(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.ListDataRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	roots, records, err := s.config.Instance.ListData(body.Pattern, body.Regex, body.Limit, body.NoBuffer)
	if err != nil {
		return nil, err
	}
	return wire.RecordsResponse{Roots: roots, Records: records}, nil
}

func (s *Server) handleDeleteData(ctx context.Context, _ *session, request *wire.Request) (any, error) {
	body := wire.DeleteDataRequest{Deep: catalog.DefaultDeleteOptions.Deep}
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	removed, err := s.config.Instance.Delete(ctx, body.IDs, catalog.DeleteOptions{Force: body.Force, Deep: body.Deep})
	if err != nil {
		return nil, err
	}
	return wire.DeleteDataResponse{Removed: removed}, nil
}

func (s *Server) handleExists(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.ObjectRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	return wire.ExistsResponse{Exists: s.config.Instance.Exists(body.ID)}, nil
}

func (s *Server) handlePersist(ctx context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.ObjectRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	return nil, s.config.Instance.Persist(ctx, body.ID)
}

func (s *Server) handleShallowCopy(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.ShallowCopyRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	id, err := s.config.Instance.ShallowCopy(body.ID, body.Extra)
	if err != nil {
		return nil, err
	}
	return wire.ObjectResponse{ID: id}, nil
}

func (s *Server) handlePutName(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.PutNameRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	return nil, s.config.Instance.PutName(body.Name, body.ID)
}

func (s *Server) handleGetName(ctx context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.GetNameRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	id, err := s.config.Instance.GetName(ctx, body.Name, body.Wait, body.Timeout)
	if err != nil {
		return nil, err
	}
	return wire.ObjectResponse{ID: id}, nil
}

func (s *Server) handleListName(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.ListNameRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	entries, err := s.config.Instance.ListNames(body.Pattern, body.Regex, body.Limit)
	if err != nil {
		return nil, err
	}
	response := wire.ListNameResponse{Names: make([]wire.NameEntry, 0, len(entries))}
	for _, entry := range entries {
		response.Names = append(response.Names, wire.NameEntry{Name: entry.Name, ID: entry.ID})
	}
	return response, nil
}

func (s *Server) handleDropName(_ context.Context, _ *session, request *wire.Request) (any, error) {
	var body wire.NameRequest
	if err := request.Decode(&body); err != nil {
		return nil, err
	}
	return nil, s.config.Instance.DropName(body.Name)
}

func (s *Server) handleSyncMeta(ctx context.Context, _ *session, _ *wire.Request) (any, error) {
	return nil, s.config.Instance.Sync(ctx)
}

func (s *Server) handleClear(ctx context.Context, _ *session, _ *wire.Request) (any, error) {
	return nil, s.config.Instance.Clear(ctx)
}

func (s *Server) handleMemoryTrim(_ context.Context, _ *session, _ *wire.Request) (any, error) {
	trimmed, err := s.config.Instance.MemoryTrim()
	if err != nil {
		return nil, storeerr.New(storeerr.Internal, "trimming memory: %v", err)
	}
	return wire.TrimResponse{Trimmed: trimmed}, nil
}

func (s *Server) handleInstanceStatus(_ context.Context, _ *session, _ *wire.Request) (any, error) {
	return wire.StatusResponse{Status: s.config.Instance.Status()}, nil
}

func (s *Server) handleClusterMeta(ctx context.Context, _ *session, _ *wire.Request) (any, error) {
	meta, err := s.config.Instance.ClusterMeta(ctx)
	if err != nil {
		return nil, err
	}
	return wire.ClusterMetaResponse{Instances: meta}, nil
}

// registerClusterHandlers serves the registry hosted by this instance
// to the other members.
func (s *Server) registerClusterHandlers() {
	registry := s.config.Registry

	s.handle(cluster.ActionJoin, func(ctx context.Context, _ *session, request *wire.Request) (any, error) {
		var body cluster.JoinRequest
		if err := request.Decode(&body); err != nil {
			return nil, err
		}
		s.logger.Info("instance joined the cluster",
			"member", uint64(body.Info.ID),
			"hostname", body.Info.Hostname,
		)
		return nil, registry.Join(ctx, body.Info)
	})
	s.handle(cluster.ActionLeave, func(ctx context.Context, _ *session, request *wire.Request) (any, error) {
		var body cluster.LeaveRequest
		if err := request.Decode(&body); err != nil {
			return nil, err
		}
		s.logger.Info("instance left the cluster", "member", uint64(body.InstanceID))
		return nil, registry.Leave(ctx, body.InstanceID)
	})
	s.handle(cluster.ActionReport, func(ctx context.Context, _ *session, request *wire.Request) (any, error) {
		var body cluster.ReportRequest
		if err := request.Decode(&body); err != nil {
			return nil, err
		}
		return nil, registry.Report(ctx, body.Status)
	})
	s.handle(cluster.ActionInstances, func(ctx context.Context, _ *session, _ *wire.Request) (any, error) {
		members, err := registry.Instances(ctx)
		if err != nil {
			return nil, err
		}
		return cluster.InstancesResponse{Members: members}, nil
	})
	s.handle(cluster.ActionPublish, func(ctx context.Context, _ *session, request *wire.Request) (any, error) {
		var body cluster.PublishRequest
		if err := request.Decode(&body); err != nil {
			return nil, err
		}
		return nil, registry.Publish(ctx, body.Owner, body.Records)
	})
	s.handle(cluster.ActionWithdraw, func(ctx context.Context, _ *session, request *wire.Request) (any, error) {
		var body cluster.WithdrawRequest
		if err := request.Decode(&body); err != nil {
			return nil, err
		}
		return nil, registry.Withdraw(ctx, body.Owner, body.IDs)
	})
	s.handle(cluster.ActionSnapshot, func(ctx context.Context, _ *session, _ *wire.Request) (any, error) {
		return registry.Snapshot(ctx)
	})
}

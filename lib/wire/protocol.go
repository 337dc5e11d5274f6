// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"time"

	"github.com/BSWANG/v6d/lib/cluster"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
)

// Session actions. The cluster_* registry actions are named in package
// cluster.
const (
	ActionRegister = "register"

	ActionCreateBuffer       = "create_buffer"
	ActionSealBuffer         = "seal_buffer"
	ActionShrinkBuffer       = "shrink_buffer"
	ActionAbortBuffer        = "abort_buffer"
	ActionGetBuffers         = "get_buffers"
	ActionCreateRemoteBuffer = "create_remote_buffer"
	ActionGetRemoteBuffers   = "get_remote_buffers"
	ActionAllocatedSize      = "allocated_size"
	ActionFindBuffer         = "find_buffer"

	ActionCreateData  = "create_data"
	ActionGetData     = "get_data"
	ActionListData    = "list_data"
	ActionDeleteData  = "delete_data"
	ActionExists      = "exists"
	ActionPersist     = "persist"
	ActionShallowCopy = "shallow_copy"

	ActionPutName  = "put_name"
	ActionGetName  = "get_name"
	ActionListName = "list_name"
	ActionDropName = "drop_name"

	ActionSyncMeta       = "sync_meta"
	ActionClear          = "clear"
	ActionMemoryTrim     = "memory_trim"
	ActionInstanceStatus = "instance_status"
	ActionClusterMeta    = "cluster_meta"
)

// SessionKind tells which listener accepted a session.
type SessionKind string

const (
	IPC SessionKind = "ipc"
	RPC SessionKind = "rpc"
)

// RegisterRequest opens a session.
type RegisterRequest struct {
	Username        string      `cbor:"username,omitempty"`
	Password        string      `cbor:"password,omitempty"`
	ProtocolVersion int         `cbor:"protocol_version"`
	Compression     Compression `cbor:"compression,omitempty"`
}

// RegisterResponse describes the instance a session is attached to.
// The arena fields are set only on IPC sessions.
type RegisterResponse struct {
	SessionID     string              `cbor:"session_id"`
	Kind          SessionKind         `cbor:"kind"`
	InstanceID    objectid.InstanceID `cbor:"instance_id"`
	ServerVersion string              `cbor:"version"`
	IPCSocket     string              `cbor:"ipc_socket,omitempty"`
	RPCEndpoint   string              `cbor:"rpc_endpoint,omitempty"`
	ArenaPath     string              `cbor:"arena_path,omitempty"`
	ArenaSize     int64               `cbor:"arena_size,omitempty"`
	Compression   Compression         `cbor:"compression"`
}

// Buffer describes a blob: where it lives in the arena and how large
// it is.
type Buffer struct {
	ID     objectid.ObjectID `cbor:"id"`
	Offset int64             `cbor:"offset"`
	Size   int64             `cbor:"size"`
	Sealed bool              `cbor:"sealed"`
}

// CreateBufferRequest is the body of create_buffer.
type CreateBufferRequest struct {
	Size int64 `cbor:"size"`
}

// BufferRequest names one blob: seal_buffer, abort_buffer,
// allocated_size.
type BufferRequest struct {
	ID objectid.ObjectID `cbor:"id"`
}

// ShrinkBufferRequest is the body of shrink_buffer.
type ShrinkBufferRequest struct {
	ID   objectid.ObjectID `cbor:"id"`
	Size int64             `cbor:"size"`
}

// GetBuffersRequest is the body of get_buffers and get_remote_buffers.
type GetBuffersRequest struct {
	IDs    []objectid.ObjectID `cbor:"ids"`
	Unsafe bool                `cbor:"unsafe,omitempty"`
}

// GetBuffersResponse is the result of get_buffers, in request order.
type GetBuffersResponse struct {
	Buffers []Buffer `cbor:"buffers"`
}

// CreateRemoteBufferRequest is the body of create_remote_buffer.
type CreateRemoteBufferRequest struct {
	Payload Payload `cbor:"payload"`
}

// RemoteBuffer is one blob with its contents.
type RemoteBuffer struct {
	ID      objectid.ObjectID `cbor:"id"`
	Payload Payload           `cbor:"payload"`
}

// GetRemoteBuffersResponse is the result of get_remote_buffers, in
// request order.
type GetRemoteBuffersResponse struct {
	Buffers []RemoteBuffer `cbor:"buffers"`
}

// SizeResponse is the result of allocated_size.
type SizeResponse struct {
	Size int64 `cbor:"size"`
}

// FindBufferRequest is the body of find_buffer: an offset into the
// arena mapping.
type FindBufferRequest struct {
	Offset int64 `cbor:"offset"`
}

// CreateDataRequest is the body of create_data. Instance is the
// instance that must perform the commit; UnspecifiedInstance means the
// connected one.
type CreateDataRequest struct {
	Draft    objmeta.Draft       `cbor:"draft"`
	Instance objectid.InstanceID `cbor:"instance_id"`
}

// RecordsResponse carries committed records: create_data returns the
// created records root last, get_data and list_data the closures of the
// requested objects.
type RecordsResponse struct {
	Roots   []objectid.ObjectID `cbor:"roots"`
	Records []objmeta.Record    `cbor:"records"`
}

// GetDataRequest is the body of get_data. SyncRemote refreshes the
// registry view before answering.
type GetDataRequest struct {
	IDs        []objectid.ObjectID `cbor:"ids"`
	SyncRemote bool                `cbor:"sync_remote,omitempty"`
}

// ListDataRequest is the body of list_data. Blob records are omitted
// from the closures when NoBuffer is set.
type ListDataRequest struct {
	Pattern  string `cbor:"pattern"`
	Regex    bool   `cbor:"regex,omitempty"`
	Limit    int    `cbor:"limit,omitempty"`
	NoBuffer bool   `cbor:"nobuffer,omitempty"`
}

// DeleteDataRequest is the body of delete_data.
type DeleteDataRequest struct {
	IDs   []objectid.ObjectID `cbor:"ids"`
	Force bool                `cbor:"force,omitempty"`
	Deep  bool                `cbor:"deep"`
}

// DeleteDataResponse lists every removed record.
type DeleteDataResponse struct {
	Removed []objectid.ObjectID `cbor:"removed"`
}

// ObjectRequest names one object: exists, persist.
type ObjectRequest struct {
	ID objectid.ObjectID `cbor:"id"`
}

// ExistsResponse is the result of exists.
type ExistsResponse struct {
	Exists bool `cbor:"exists"`
}

// ShallowCopyRequest is the body of shallow_copy.
type ShallowCopyRequest struct {
	ID    objectid.ObjectID `cbor:"id"`
	Extra map[string]any    `cbor:"extra,omitempty"`
}

// ObjectResponse returns one object id: shallow_copy, get_name,
// find_buffer.
type ObjectResponse struct {
	ID objectid.ObjectID `cbor:"id"`
}

// PutNameRequest is the body of put_name.
type PutNameRequest struct {
	Name string            `cbor:"name"`
	ID   objectid.ObjectID `cbor:"id"`
}

// GetNameRequest is the body of get_name. With Wait set the server
// holds the request until the name is bound or Timeout elapses; a zero
// Timeout waits until the session's context ends.
type GetNameRequest struct {
	Name    string        `cbor:"name"`
	Wait    bool          `cbor:"wait,omitempty"`
	Timeout time.Duration `cbor:"timeout,omitempty"`
}

// NameRequest names one binding: drop_name.
type NameRequest struct {
	Name string `cbor:"name"`
}

// ListNameRequest is the body of list_name.
type ListNameRequest struct {
	Pattern string `cbor:"pattern"`
	Regex   bool   `cbor:"regex,omitempty"`
	Limit   int    `cbor:"limit,omitempty"`
}

// NameEntry is one name binding.
type NameEntry struct {
	Name string            `cbor:"name"`
	ID   objectid.ObjectID `cbor:"id"`
}

// ListNameResponse is the result of list_name, sorted by name.
type ListNameResponse struct {
	Names []NameEntry `cbor:"names"`
}

// TrimResponse is the result of memory_trim.
type TrimResponse struct {
	Trimmed bool `cbor:"trimmed"`
}

// ClusterMetaResponse is the result of cluster_meta.
type ClusterMetaResponse struct {
	Instances map[objectid.InstanceID]cluster.MetaEntry `cbor:"instances"`
}

// StatusResponse is the result of instance_status.
type StatusResponse struct {
	Status cluster.InstanceStatus `cbor:"status"`
}

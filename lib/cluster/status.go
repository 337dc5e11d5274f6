// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/BSWANG/v6d/lib/objectid"
)

// Deployment names the topology an instance runs in.
type Deployment string

const (
	// Local is a single instance with no seed.
	Local Deployment = "local"
	// Distributed is an instance that is part of a multi-instance
	// cluster.
	Distributed Deployment = "distributed"
)

// InstanceStatus is a point-in-time snapshot of one instance.
type InstanceStatus struct {
	InstanceID       objectid.InstanceID `cbor:"instance_id" json:"instance_id"`
	Deployment       Deployment          `cbor:"deployment" json:"deployment"`
	MemoryUsage      int64               `cbor:"memory_usage" json:"memory_usage"`
	MemoryLimit      int64               `cbor:"memory_limit" json:"memory_limit"`
	DeferredRequests int                 `cbor:"deferred_requests" json:"deferred_requests"`
	IPCConnections   int                 `cbor:"ipc_connections" json:"ipc_connections"`
	RPCConnections   int                 `cbor:"rpc_connections" json:"rpc_connections"`
}

// String renders the status block parsed by operator tooling. The field
// set and order are fixed.
func (s InstanceStatus) String() string {
	var builder strings.Builder
	builder.WriteString("InstanceStatus:\n")
	fmt.Fprintf(&builder, "    instance_id: %d\n", uint64(s.InstanceID))
	fmt.Fprintf(&builder, "    deployment: %s\n", s.Deployment)
	fmt.Fprintf(&builder, "    memory_usage: %d\n", s.MemoryUsage)
	fmt.Fprintf(&builder, "    memory_limit: %d\n", s.MemoryLimit)
	fmt.Fprintf(&builder, "    deferred_requests: %d\n", s.DeferredRequests)
	fmt.Fprintf(&builder, "    ipc_connections: %d\n", s.IPCConnections)
	fmt.Fprintf(&builder, "    rpc_connections: %d", s.RPCConnections)
	return builder.String()
}

// InstanceInfo identifies an instance and tells clients how to reach
// it.
type InstanceInfo struct {
	ID          objectid.InstanceID `cbor:"instance_id"`
	Hostname    string              `cbor:"hostname"`
	HostID      string              `cbor:"hostid"`
	IPCSocket   string              `cbor:"ipc_socket,omitempty"`
	RPCEndpoint string              `cbor:"rpc_endpoint,omitempty"`
	JoinedAt    time.Time           `cbor:"timestamp"`
}

// Member is a registry entry: an instance with its latest status.
type Member struct {
	Info     InstanceInfo   `cbor:"info"`
	Status   InstanceStatus `cbor:"status"`
	LastSeen time.Time      `cbor:"last_seen"`
}

// MetaEntry is the per-instance cluster metadata returned by the meta
// operation.
type MetaEntry struct {
	HostID      string    `cbor:"hostid" json:"hostid"`
	Hostname    string    `cbor:"hostname" json:"hostname"`
	Timestamp   time.Time `cbor:"timestamp" json:"timestamp"`
	IPCSocket   string    `cbor:"ipc_socket" json:"ipc_socket"`
	RPCEndpoint string    `cbor:"rpc_endpoint" json:"rpc_endpoint"`
}

// Meta keys the metadata of every member by instance id.
func Meta(members []Member) map[objectid.InstanceID]MetaEntry {
	meta := make(map[objectid.InstanceID]MetaEntry, len(members))
	for _, member := range members {
		meta[member.Info.ID] = MetaEntry{
			HostID:      member.Info.HostID,
			Hostname:    member.Info.Hostname,
			Timestamp:   member.Info.JoinedAt,
			IPCSocket:   member.Info.IPCSocket,
			RPCEndpoint: member.Info.RPCEndpoint,
		}
	}
	return meta
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
)

// Action names of the registry protocol, served by the seed instance.
const (
	ActionJoin      = "cluster_join"
	ActionLeave     = "cluster_leave"
	ActionReport    = "cluster_report"
	ActionInstances = "cluster_instances"
	ActionPublish   = "cluster_publish"
	ActionWithdraw  = "cluster_withdraw"
	ActionSnapshot  = "cluster_snapshot"
)

// JoinRequest is the body of cluster_join.
type JoinRequest struct {
	Info InstanceInfo `cbor:"info"`
}

// LeaveRequest is the body of cluster_leave.
type LeaveRequest struct {
	InstanceID objectid.InstanceID `cbor:"instance_id"`
}

// ReportRequest is the body of cluster_report.
type ReportRequest struct {
	Status InstanceStatus `cbor:"status"`
}

// InstancesResponse is the result of cluster_instances.
type InstancesResponse struct {
	Members []Member `cbor:"members"`
}

// PublishRequest is the body of cluster_publish.
type PublishRequest struct {
	Owner   objectid.InstanceID `cbor:"owner"`
	Records []objmeta.Record    `cbor:"records"`
}

// WithdrawRequest is the body of cluster_withdraw.
type WithdrawRequest struct {
	Owner objectid.InstanceID `cbor:"owner"`
	IDs   []objectid.ObjectID `cbor:"ids"`
}

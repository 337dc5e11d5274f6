// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"context"
	"errors"
	"sync"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// Caller performs one request/response exchange with the seed.
// *wire.Conn satisfies it.
type Caller interface {
	Call(ctx context.Context, action string, request, response any) error
	Close() error
}

// Dialer opens a registered session with the seed.
type Dialer func(ctx context.Context) (Caller, error)

// Remote is a Registry hosted by a seed instance and reached over the
// wire protocol. The session is opened on first use and reopened after
// a transport failure; calls are never retried, so a failed mutation
// surfaces to the caller.
type Remote struct {
	dial Dialer

	mu   sync.Mutex
	conn Caller
}

// NewRemote returns a registry that reaches the seed through dial.
func NewRemote(dial Dialer) *Remote {
	return &Remote{dial: dial}
}

func (r *Remote) call(ctx context.Context, action string, request, response any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		conn, err := r.dial(ctx)
		if err != nil {
			return err
		}
		r.conn = conn
	}
	err := r.conn.Call(ctx, action, request, response)
	if errors.Is(err, storeerr.ErrConnectionFailed) || errors.Is(err, storeerr.ErrTimeout) {
		r.conn.Close()
		r.conn = nil
	}
	return err
}

func (r *Remote) Join(ctx context.Context, info InstanceInfo) error {
	return r.call(ctx, ActionJoin, JoinRequest{Info: info}, nil)
}

func (r *Remote) Leave(ctx context.Context, id objectid.InstanceID) error {
	return r.call(ctx, ActionLeave, LeaveRequest{InstanceID: id}, nil)
}

func (r *Remote) Report(ctx context.Context, status InstanceStatus) error {
	return r.call(ctx, ActionReport, ReportRequest{Status: status}, nil)
}

func (r *Remote) Instances(ctx context.Context) ([]Member, error) {
	var response InstancesResponse
	if err := r.call(ctx, ActionInstances, nil, &response); err != nil {
		return nil, err
	}
	return response.Members, nil
}

func (r *Remote) Publish(ctx context.Context, owner objectid.InstanceID, records []objmeta.Record) error {
	return r.call(ctx, ActionPublish, PublishRequest{Owner: owner, Records: records}, nil)
}

func (r *Remote) Withdraw(ctx context.Context, owner objectid.InstanceID, ids []objectid.ObjectID) error {
	return r.call(ctx, ActionWithdraw, WithdrawRequest{Owner: owner, IDs: ids}, nil)
}

func (r *Remote) Snapshot(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot
	if err := r.call(ctx, ActionSnapshot, nil, &snapshot); err != nil {
		return Snapshot{}, err
	}
	return snapshot, nil
}

// Close ends the session with the seed, if one is open.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	return err
}

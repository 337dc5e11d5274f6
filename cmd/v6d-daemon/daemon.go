// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BSWANG/v6d/lib/auth"
	"github.com/BSWANG/v6d/lib/clock"
	"github.com/BSWANG/v6d/lib/cluster"
	"github.com/BSWANG/v6d/lib/config"
	"github.com/BSWANG/v6d/lib/instance"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/server"
	"github.com/BSWANG/v6d/lib/shm"
	"github.com/BSWANG/v6d/lib/version"
	"github.com/BSWANG/v6d/lib/wire"
)

// leaveTimeout bounds leaving the registry at shutdown.
const leaveTimeout = 5 * time.Second

// daemon is a started instance with its listeners open.
type daemon struct {
	config   *config.Config
	logger   *slog.Logger
	clock    clock.Clock
	arena    *shm.Arena
	instance *instance.Instance
	// remote is set when the registry is hosted by a seed.
	remote    *cluster.Remote
	servers   []*server.Server
	listeners []net.Listener
}

// start creates the arena, joins the registry and opens the listeners.
// On failure everything already acquired is released.
func start(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *daemon, err error) {
	d := &daemon{config: cfg, logger: logger, clock: clock.Real()}
	defer func() {
		if err != nil {
			d.release(context.Background())
		}
	}()

	d.arena, err = shm.Create(cfg.SharedMemory.Path, int64(cfg.SharedMemory.Size))
	if err != nil {
		return nil, fmt.Errorf("creating shared memory arena: %w", err)
	}

	var registry cluster.Registry
	var hosted *cluster.Memory
	if cfg.Cluster.Seed == "" {
		hosted = cluster.NewMemory(d.clock, time.Duration(cfg.Cluster.Expiry))
		registry = hosted
	} else {
		d.remote = cluster.NewRemote(seedDialer(cfg))
		registry = d.remote
	}

	hostname, _ := os.Hostname()
	d.instance, err = instance.New(ctx, instance.Config{
		Info: cluster.InstanceInfo{
			ID:          objectid.InstanceID(cfg.InstanceID),
			Hostname:    hostname,
			HostID:      hostID(hostname),
			IPCSocket:   cfg.IPCSocket,
			RPCEndpoint: cfg.RPCEndpoint,
		},
		Deployment: cluster.Deployment(cfg.Deployment),
		Arena:      d.arena,
		Registry:   registry,
		Clock:      d.clock,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	compression, _ := wire.ParseCompression(cfg.Compression)
	serverConfig := server.Config{
		Instance:           d.instance,
		Users:              auth.Users(cfg.Auth.Users),
		Version:            version.Short(),
		IPCSocket:          cfg.IPCSocket,
		RPCEndpoint:        cfg.RPCEndpoint,
		DefaultCompression: compression,
		MaxMessageSize:     int64(cfg.MaxMessageSize),
		Logger:             logger,
	}
	if err := d.listen(wire.IPC, cfg.IPCSocket, serverConfig); err != nil {
		return nil, err
	}
	if cfg.RPCEndpoint != "" {
		// Other instances reach the hosted registry over RPC.
		serverConfig.Registry = hosted
		if err := d.listen(wire.RPC, cfg.RPCEndpoint, serverConfig); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *daemon) listen(kind wire.SessionKind, address string, serverConfig server.Config) error {
	listener, err := server.Listen(kind, address)
	if err != nil {
		return err
	}
	serverConfig.Kind = kind
	d.servers = append(d.servers, server.New(serverConfig))
	d.listeners = append(d.listeners, listener)
	d.logger.Info("listening", "kind", string(kind), "address", listener.Addr().String())
	return nil
}

// run serves until ctx is cancelled, then shuts down.
func (d *daemon) run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for index, srv := range d.servers {
		listener := d.listeners[index]
		group.Go(func() error {
			return srv.Serve(groupCtx, listener)
		})
	}
	group.Go(func() error {
		d.instance.View().Run(groupCtx, time.Duration(d.config.Cluster.SyncInterval), nil)
		return nil
	})
	group.Go(func() error {
		d.heartbeat(groupCtx)
		return nil
	})

	err := group.Wait()
	d.listeners = nil
	d.logger.Info("shutting down")
	leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	return errors.Join(err, d.release(leaveCtx))
}

// heartbeat reports the instance's status every heartbeat interval.
func (d *daemon) heartbeat(ctx context.Context) {
	ticker := d.clock.NewTicker(time.Duration(d.config.Cluster.HeartbeatInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.instance.ReportStatus(ctx); err != nil {
				d.logger.Warn("reporting instance status failed", "error", err)
			}
		}
	}
}

// release closes whatever start acquired, in reverse order.
func (d *daemon) release(ctx context.Context) error {
	var errs []error
	for _, listener := range d.listeners {
		listener.Close()
	}
	if d.instance != nil {
		errs = append(errs, d.instance.Close(ctx))
	}
	if d.remote != nil {
		errs = append(errs, d.remote.Close())
	}
	if d.arena != nil {
		errs = append(errs, d.arena.Close())
	}
	return errors.Join(errs...)
}

// seedDialer opens registered RPC sessions to the seed instance.
func seedDialer(cfg *config.Config) cluster.Dialer {
	return func(ctx context.Context) (cluster.Caller, error) {
		conn, err := wire.Dial(ctx, "tcp", cfg.Cluster.Seed)
		if err != nil {
			return nil, err
		}
		conn.SetMaxMessageSize(int64(cfg.MaxMessageSize))
		request := wire.RegisterRequest{
			Username:        cfg.Cluster.Username,
			Password:        cfg.Cluster.Password,
			ProtocolVersion: wire.ProtocolVersion,
		}
		var response wire.RegisterResponse
		if err := conn.Call(ctx, wire.ActionRegister, request, &response); err != nil {
			conn.Close()
			return nil, fmt.Errorf("registering with seed %s: %w", cfg.Cluster.Seed, err)
		}
		return conn, nil
	}
}

// hostID identifies the machine. Instances sharing a host id can
// exchange blobs through shared memory.
func hostID(hostname string) string {
	data, err := os.ReadFile("/etc/machine-id")
	if id := strings.TrimSpace(string(data)); err == nil && id != "" {
		return id
	}
	return hostname
}

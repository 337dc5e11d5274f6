// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

// V6d-daemon runs one store instance. It owns the shared memory arena,
// serves colocated clients on a Unix socket and remote clients on a TCP
// endpoint, and keeps the instance's view of the cluster current.
//
// Configuration comes from --config (or V6D_CONFIG) over the built-in
// defaults; the remaining flags override individual fields. On startup:
//  1. Creates the arena file, which must not already exist.
//  2. Joins the cluster registry: a local one when no seed is
//     configured, otherwise the one hosted by the seed instance.
//  3. Serves the IPC and RPC listeners until SIGINT or SIGTERM.
//
// On shutdown the listeners stop, every session ends, the instance
// leaves the registry and the arena file is removed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/BSWANG/v6d/lib/auth"
	"github.com/BSWANG/v6d/lib/config"
	"github.com/BSWANG/v6d/lib/process"
	"github.com/BSWANG/v6d/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	flagSet := pflag.NewFlagSet("v6d-daemon", pflag.ContinueOnError)
	var (
		configPath  string
		showVersion bool
		overrides   overrides
	)
	flagSet.StringVar(&configPath, "config", "", "config file, YAML or JSONC (default $V6D_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	overrides.addFlags(flagSet)
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("v6d-daemon %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := overrides.apply(flagSet, cfg); err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := start(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return d.run(ctx)
}

// loadConfig reads path, or V6D_CONFIG when path is empty. With
// neither set the defaults are used.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("V6D_CONFIG")
	}
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func validate(cfg *config.Config) error {
	return errors.Join(cfg.Validate(), auth.Users(cfg.Auth.Users).Validate())
}

// overrides are the flags that replace individual config fields.
type overrides struct {
	instanceID  uint64
	deployment  string
	socket      string
	rpcEndpoint string
	shmPath     string
	shmSize     string
	seed        string
	logLevel    string
	compression string
}

func (o *overrides) addFlags(flagSet *pflag.FlagSet) {
	flagSet.Uint64Var(&o.instanceID, "instance-id", 0, "instance id embedded in every object id")
	flagSet.StringVar(&o.deployment, "deployment", "", "local or distributed")
	flagSet.StringVar(&o.socket, "socket", "", "IPC socket path")
	flagSet.StringVar(&o.rpcEndpoint, "rpc-endpoint", "", "host:port for RPC sessions; empty string disables")
	flagSet.StringVar(&o.shmPath, "shm-path", "", "arena file path")
	flagSet.StringVar(&o.shmSize, "shm-size", "", "arena size (e.g. 4GiB)")
	flagSet.StringVar(&o.seed, "seed", "", "RPC endpoint of the instance hosting the cluster registry")
	flagSet.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&o.compression, "compression", "", "default RPC payload compression: none, lz4 or zstd")
}

// apply copies every flag set on the command line into cfg.
func (o *overrides) apply(flagSet *pflag.FlagSet, cfg *config.Config) error {
	if flagSet.Changed("instance-id") {
		cfg.InstanceID = o.instanceID
	}
	if flagSet.Changed("deployment") {
		cfg.Deployment = o.deployment
	}
	if flagSet.Changed("socket") {
		cfg.IPCSocket = o.socket
	}
	if flagSet.Changed("rpc-endpoint") {
		cfg.RPCEndpoint = o.rpcEndpoint
	}
	if flagSet.Changed("shm-path") {
		cfg.SharedMemory.Path = o.shmPath
	}
	if flagSet.Changed("shm-size") {
		size, err := config.ParseSize(o.shmSize)
		if err != nil {
			return fmt.Errorf("--shm-size: %w", err)
		}
		cfg.SharedMemory.Size = size
	}
	if flagSet.Changed("seed") {
		cfg.Cluster.Seed = o.seed
		// A seed only makes sense in a cluster.
		if !flagSet.Changed("deployment") {
			cfg.Deployment = config.Distributed
		}
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flagSet.Changed("compression") {
		cfg.Compression = o.compression
	}
	cfg.Expand()
	return nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/BSWANG/v6d/lib/client"
	"github.com/BSWANG/v6d/lib/wire"
)

// ConnectionFlags selects the instance a command talks to.
type ConnectionFlags struct {
	Socket      string
	RPC         string
	Username    string
	Password    string
	Compression string
}

// AddFlags binds the connection flags to flagSet.
func (f *ConnectionFlags) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.Socket, "socket", "", "IPC socket of the instance (default $"+client.EnvIPCSocket+")")
	flagSet.StringVar(&f.RPC, "rpc", "", "host:port of the instance (default $"+client.EnvRPCEndpoint+")")
	flagSet.StringVar(&f.Username, "username", "", "username for authenticated instances")
	flagSet.StringVar(&f.Password, "password", "", "password for authenticated instances (default $V6D_PASSWORD)")
	flagSet.StringVar(&f.Compression, "compression", "", "blob payload compression over RPC: none, lz4 or zstd")
}

// Connect opens a session: --socket first, then --rpc, then the
// environment.
func (f *ConnectionFlags) Connect(ctx context.Context, logger *slog.Logger) (client.Client, error) {
	// An empty compression lets the instance pick its default.
	var compression wire.Compression
	if f.Compression != "" {
		parsed, err := wire.ParseCompression(f.Compression)
		if err != nil {
			return nil, err
		}
		compression = parsed
	}
	password := f.Password
	if password == "" {
		password = os.Getenv("V6D_PASSWORD")
	}
	options := client.Options{
		Username:    f.Username,
		Password:    password,
		Compression: compression,
		Logger:      logger,
	}
	switch {
	case f.Socket != "":
		return client.ConnectIPC(ctx, f.Socket, options)
	case f.RPC != "":
		return client.ConnectRPCEndpoint(ctx, f.RPC, options)
	default:
		return client.Connect(ctx, options)
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package client

import (
	"context"
	"errors"
	"os"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// Environment variables Connect consults.
const (
	EnvIPCSocket   = "VINEYARD_IPC_SOCKET"
	EnvRPCEndpoint = "VINEYARD_RPC_ENDPOINT"
)

// Connect connects through the socket in VINEYARD_IPC_SOCKET, falling
// back to the host:port in VINEYARD_RPC_ENDPOINT. It fails with
// ConnectionFailed when neither is set or neither answers.
func Connect(ctx context.Context, options Options) (Client, error) {
	var failures []error
	if socket := os.Getenv(EnvIPCSocket); socket != "" {
		client, err := ConnectIPC(ctx, socket, options)
		if err == nil {
			return client, nil
		}
		failures = append(failures, err)
	}
	if endpoint := os.Getenv(EnvRPCEndpoint); endpoint != "" {
		client, err := ConnectRPCEndpoint(ctx, endpoint, options)
		if err == nil {
			return client, nil
		}
		failures = append(failures, err)
	}
	if len(failures) == 0 {
		return nil, storeerr.New(storeerr.ConnectionFailed, "neither %s nor %s is set", EnvIPCSocket, EnvRPCEndpoint)
	}
	return nil, storeerr.New(storeerr.ConnectionFailed, "%v", errors.Join(failures...))
}

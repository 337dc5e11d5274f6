// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

// V6d is the operator CLI for a store instance: inspect status and
// cluster membership, list and show objects, manage names, move files
// in and out of blobs, and maintain the instance.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BSWANG/v6d/cmd/v6d/commands"
	"github.com/BSWANG/v6d/lib/process"
)

func main() {
	// Commands that print their own output (like get-name on an unbound
	// name) return a cli.ExitError, which process.Fatal exits with
	// silently.
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the store's
// packages.
//
// [SocketDir] creates a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes (sun_path), which nested
// t.TempDir() paths can exceed. [ArenaPath] picks a location for a
// test's shared-memory arena file, on /dev/shm when it is available.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests that wait on goroutines fail instead of hanging.
// [RequireKind] checks the [storeerr.Kind] of a returned error.
//
// All helpers call t.Fatalf on failure.
package testutil

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package shm manages the shared-memory arena that holds blob payloads.
//
// An instance creates one [Arena]: a file (normally under /dev/shm)
// mapped MAP_SHARED into the instance and carved into spans by a
// first-fit allocator. Local clients open the same file with [Open] and
// map it themselves, so a blob written by a client through its mapping
// is the same memory the instance and every other local reader see. No
// payload byte ever crosses the socket on the local path.
//
// Offsets are the stable currency between processes: each process maps
// the arena at a different address, so blob locations travel as arena
// offsets and are translated with [Mapping.Address] and
// [Mapping.Offset].
package shm

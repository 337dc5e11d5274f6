// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package instance is the single logical authority of one store
// instance. It owns the blob table over the shared-memory arena, the
// metadata catalog and the name registry, and keeps the cluster
// registry informed of what it persists.
//
// One mutex serializes every mutation of the blob table and the
// catalog, so a seal or commit that has returned is visible to every
// later lookup on the instance. Local clients read sealed blob bytes
// straight from their own mapping of the arena and never take the
// lock.
//
// Registry updates (publish on persist, withdraw on delete) run after
// the catalog lock is released but in the order of the catalog changes
// that caused them.
package instance

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cluster tracks the instances that make up a deployment and
// the objects they have made cluster-wide visible.
//
// A [Registry] is the authority: instances join it, report their
// status, publish the records of persisted objects and withdraw them
// when they are deleted. One instance (the seed) hosts the
// authoritative [Memory] registry; every other instance reaches it
// through [Remote], which speaks the cluster_* actions over the wire
// protocol.
//
// Each instance keeps a [View]: a cached snapshot of the registry,
// refreshed explicitly (sync_meta) or periodically. Lookups of objects
// owned by other instances are answered from the view, so visibility
// across instances is eventual: a persist on one instance becomes
// observable on another after that instance's next sync.
package cluster

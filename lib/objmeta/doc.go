// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objmeta is the metadata model of stored objects.
//
// An [ObjectMeta] is a key/value record: scalar attributes stored as
// text, plus named references to member objects. Members are themselves
// objects with their own metadata, so a record is the root of a graph.
// Sharing is allowed (two members of one object may reach the same
// blob) but cycles are not.
//
// Metadata exists in two provenances. Building metadata is created
// locally with [New], mutated with SetAttribute and AddMember, and
// handed to an instance for commit. Fetched metadata reflects what an
// instance holds: it comes back from a commit or a lookup, and every
// mutator on it fails with storeerr.AlreadySealed.
//
// Two wire forms carry metadata between client and instance. A [Draft]
// is a building graph flattened in dependency order, children before
// parents, so the instance can validate every node before creating
// any. A [Record] is one committed object with its members referenced
// by id; a closure of records rebuilds a fetched tree with
// [FromRecords].
package objmeta

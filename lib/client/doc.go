// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client connects programs to a v6d instance.
//
// Two access paths share one base protocol ([Client]):
//
//   - [IPCClient] talks to a colocated instance over its Unix socket
//     and maps the instance's shared-memory arena. Blob builders write
//     straight into shared memory and sealed blobs are read through
//     zero-copy views.
//   - [RPCClient] talks to any instance over TCP. Blob contents travel
//     in the request and response bodies, optionally compressed, and
//     are held in process memory as [RemoteBlob] values.
//
// [Connect] picks the path from the VINEYARD_IPC_SOCKET and
// VINEYARD_RPC_ENDPOINT environment variables.
//
// Metadata is built with [objmeta.New] and committed with
// CreateMetadata, which returns the committed, read-only metadata.
// Every call takes a context; a context deadline bounds the exchange
// and fails it with a Timeout error. A call that times out leaves the
// session unusable (later calls fail with ConnectionFailed) because the
// response may still be in flight.
package client

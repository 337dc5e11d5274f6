// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire is the session protocol spoken between clients and an
// instance, and between instances and the seed's registry.
//
// Every message is a frame: a 4-byte big-endian length followed by a
// CBOR body. A connection is a session carrying many exchanges in
// order; each request frame is answered by exactly one response frame
// before the next request is read. The first request of a session must
// be register.
//
// Requests are a [Request] envelope naming the action, with the
// action's fields CBOR-encoded in Body. Responses are a [Response]
// envelope; failures carry the error kind's wire name in Code so the
// caller reconstructs a typed [storeerr.Error].
//
// Blob contents crossing the network travel as a [Payload]: optionally
// compressed and always checksummed, as a CBOR byte string.
package wire

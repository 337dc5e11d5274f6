// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by the
// store's wire protocol and the cluster registry.
//
// All request and response bodies travelling over the IPC socket and the
// RPC endpoint are CBOR. Blob payloads ride inside those bodies as CBOR
// byte strings, so no base64 or hex step is ever needed. The encoder uses
// Core Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. Identical metadata
// therefore always produces identical bytes, which keeps payload checksums
// and test fixtures stable.
//
// Envelopes carry their action-specific part as a RawMessage. Body
// encodes it and Open decodes it once the action is known:
//
//	request.Body, err = codec.Body(value)
//	err = codec.Open(request.Body, &value)
//
// # Limits
//
// The decoder rejects duplicate map keys and indefinite-length items,
// neither of which the encoder produces, and bounds nesting depth, array
// length and map size. Frame size is bounded separately by lib/wire.
//
// # Identifiers
//
// Types implementing encoding.TextMarshaler (objectid.ObjectID,
// objectid.Signature) are written as CBOR text strings in their canonical
// form and read back through UnmarshalText, so a malformed id fails the
// decode of the whole message.
//
// # Struct Tags
//
// Wire types use `cbor` tags. Types that the command-line tool also
// prints as JSON carry a `json` tag of the same name on every field.
// fxamacker/cbor falls back to `json` tags when a field has no `cbor`
// tag.
package codec

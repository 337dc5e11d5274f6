// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectid defines the identifier space of the store.
//
// An [ObjectID] is a 64-bit value that names exactly one immutable object
// for its whole lifetime. Its canonical text form is sixteen lowercase
// hexadecimal digits:
//
//	id, err := objectid.Parse("000043c5c6d5e646")
//	id.String() // "000043c5c6d5e646"
//
// The top bit separates blobs from composite objects. Bits 62..53 carry
// the issuing instance, and the low 53 bits a sequence that only moves
// forward, so an identifier is never reissued after the object it named
// has been deleted, not even after the instance restarts.
//
// A [Signature] is assigned next to the identifier when an object is
// created. Shallow copies receive a new identifier but keep the
// signature, which lets callers recognise two identifiers denoting the
// same underlying data.
package objectid

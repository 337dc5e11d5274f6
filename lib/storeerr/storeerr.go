// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storeerr defines the typed failures every store operation can
// report. An error carries a [Kind] and a human-readable message; the
// kind travels over the wire by name so a client reconstructs the same
// typed error the instance produced:
//
//	if errors.Is(err, storeerr.ErrNotFound) { ... }
//	switch storeerr.KindOf(err) { ... }
package storeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Internal is any failure that does not fit another kind. Foreign
	// errors classify as Internal.
	Internal Kind = iota
	// AllocationFailed: the arena cannot satisfy the request. Callers
	// may retry after freeing unrelated objects.
	AllocationFailed
	// AlreadySealed: the builder or metadata has been finalized.
	AlreadySealed
	// OutOfRange: a write or shrink exceeds the declared size.
	OutOfRange
	// NotSealed: reading a blob whose builder has not been sealed
	// without asking for an unsafe read.
	NotSealed
	// InvalidReference: a member reference does not resolve, or
	// builders form a cycle.
	InvalidReference
	// TypeMismatch: a scalar key was accessed as a member.
	TypeMismatch
	// InvalidMetadataValue: a value that cannot be stored as an
	// attribute.
	InvalidMetadataValue
	// NotFound: the id or name is absent.
	NotFound
	// StillReferenced: a non-forced delete is blocked by live referrers.
	StillReferenced
	// InstanceUnavailable: the target instance is not reachable.
	InstanceUnavailable
	// ConnectionFailed: the transport could not be established or was
	// lost.
	ConnectionFailed
	// Timeout: a deadline elapsed.
	Timeout
	// InvalidArgument: a request the instance does not accept.
	InvalidArgument
	// Unauthenticated: credentials were rejected.
	Unauthenticated
)

var kindNames = [...]string{
	Internal:             "internal",
	AllocationFailed:     "allocation_failed",
	AlreadySealed:        "already_sealed",
	OutOfRange:           "out_of_range",
	NotSealed:            "not_sealed",
	InvalidReference:     "invalid_reference",
	TypeMismatch:         "type_mismatch",
	InvalidMetadataValue: "invalid_metadata_value",
	NotFound:             "not_found",
	StillReferenced:      "still_referenced",
	InstanceUnavailable:  "instance_unavailable",
	ConnectionFailed:     "connection_failed",
	Timeout:              "timeout",
	InvalidArgument:      "invalid_argument",
	Unauthenticated:      "unauthenticated",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind maps a wire name back to a Kind. Unknown names map to
// Internal so a newer instance never breaks an older client.
func ParseKind(name string) Kind {
	for kind, candidate := range kindNames {
		if candidate == name {
			return Kind(kind)
		}
	}
	return Internal
}

// Error is a classified store failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Message
}

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, unwrapping as needed. nil and foreign
// errors report Internal.
func KindOf(err error) Kind {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return Internal
}

// Sentinels for errors.Is.
var (
	ErrAllocationFailed     = &Error{Kind: AllocationFailed}
	ErrAlreadySealed        = &Error{Kind: AlreadySealed}
	ErrOutOfRange           = &Error{Kind: OutOfRange}
	ErrNotSealed            = &Error{Kind: NotSealed}
	ErrInvalidReference     = &Error{Kind: InvalidReference}
	ErrTypeMismatch         = &Error{Kind: TypeMismatch}
	ErrInvalidMetadataValue = &Error{Kind: InvalidMetadataValue}
	ErrNotFound             = &Error{Kind: NotFound}
	ErrStillReferenced      = &Error{Kind: StillReferenced}
	ErrInstanceUnavailable  = &Error{Kind: InstanceUnavailable}
	ErrConnectionFailed     = &Error{Kind: ConnectionFailed}
	ErrTimeout              = &Error{Kind: Timeout}
	ErrInvalidArgument      = &Error{Kind: InvalidArgument}
	ErrUnauthenticated      = &Error{Kind: Unauthenticated}
	ErrInternal             = &Error{Kind: Internal}
)

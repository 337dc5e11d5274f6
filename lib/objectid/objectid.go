// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectid

import (
	"fmt"
	"strconv"
)

// ObjectID identifies an object or a blob within a cluster.
type ObjectID uint64

const (
	// blobBit marks identifiers issued for blobs.
	blobBit ObjectID = 1 << 63

	// EmptyBlobID is the reserved identifier of the zero-length blob.
	// Creating an empty blob never allocates; every caller receives
	// this identifier.
	EmptyBlobID ObjectID = blobBit

	// InvalidObjectID is never issued. Used as "no object".
	InvalidObjectID ObjectID = ^ObjectID(0)
)

// textLength is the width of the canonical hex form.
const textLength = 16

// IsBlob reports whether id was issued for a blob.
func (id ObjectID) IsBlob() bool {
	return id != InvalidObjectID && id&blobBit != 0
}

// IsEmptyBlob reports whether id is the empty-blob sentinel.
func (id ObjectID) IsEmptyBlob() bool {
	return id == EmptyBlobID
}

// Valid reports whether id could have been issued.
func (id ObjectID) Valid() bool {
	return id != InvalidObjectID
}

// Instance returns the instance that issued id.
func (id ObjectID) Instance() InstanceID {
	return InstanceID((uint64(id) >> sequenceBits) & instanceMask)
}

// String returns the canonical sixteen-digit lowercase hex form.
func (id ObjectID) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// MarshalText implements encoding.TextMarshaler.
func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Parse parses the canonical text form. Only sixteen lowercase hex
// digits are accepted, so Parse(id.String()) == id and
// Parse(s).String() == s for every accepted s.
func Parse(text string) (ObjectID, error) {
	if err := checkCanonical(text); err != nil {
		return InvalidObjectID, fmt.Errorf("parsing object id %q: %w", text, err)
	}
	value, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		return InvalidObjectID, fmt.Errorf("parsing object id %q: %w", text, err)
	}
	return ObjectID(value), nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(text string) ObjectID {
	id, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return id
}

func checkCanonical(text string) error {
	if len(text) != textLength {
		return fmt.Errorf("want %d hex digits, got %d characters", textLength, len(text))
	}
	for index := 0; index < len(text); index++ {
		character := text[index]
		if (character < '0' || character > '9') && (character < 'a' || character > 'f') {
			return fmt.Errorf("invalid character %q at offset %d", character, index)
		}
	}
	return nil
}

// Signature is the secondary identity of an object's data.
type Signature uint64

// String returns the canonical sixteen-digit lowercase hex form.
func (s Signature) String() string {
	return fmt.Sprintf("%016x", uint64(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Signature) UnmarshalText(text []byte) error {
	if err := checkCanonical(string(text)); err != nil {
		return fmt.Errorf("parsing signature %q: %w", text, err)
	}
	value, err := strconv.ParseUint(string(text), 16, 64)
	if err != nil {
		return fmt.Errorf("parsing signature %q: %w", text, err)
	}
	*s = Signature(value)
	return nil
}

// InstanceID identifies one member of the cluster.
type InstanceID uint64

// UnspecifiedInstance means "whichever instance the client is attached
// to" when passed to operations that accept a target instance.
const UnspecifiedInstance InstanceID = ^InstanceID(0)

// MaxInstanceID is the largest instance id that fits in an ObjectID.
const MaxInstanceID InstanceID = instanceMask

// String returns the decimal form, matching the status rendering.
func (i InstanceID) String() string {
	return strconv.FormatUint(uint64(i), 10)
}

// ParseInstanceID parses a decimal instance id.
func ParseInstanceID(text string) (InstanceID, error) {
	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return UnspecifiedInstance, fmt.Errorf("parsing instance id %q: %w", text, err)
	}
	if InstanceID(value) > MaxInstanceID {
		return UnspecifiedInstance, fmt.Errorf("instance id %d exceeds maximum %d", value, MaxInstanceID)
	}
	return InstanceID(value), nil
}

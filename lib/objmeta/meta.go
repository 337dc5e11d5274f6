// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objmeta

import (
	"encoding/json"
	"fmt"
	"iter"
	"strconv"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// BlobTypeName is the typename of every blob's record.
const BlobTypeName = "blob"

// Provenance distinguishes metadata under construction from metadata
// reflecting an instance's committed state.
type Provenance int

const (
	Building Provenance = iota
	Fetched
)

func (p Provenance) String() string {
	if p == Building {
		return "building"
	}
	return "fetched"
}

// field is one key of a record. A member field carries the member's id
// (when known) and its metadata (when resolved locally).
type field struct {
	value    string
	isMember bool
	memberID objectid.ObjectID
	member   *ObjectMeta
}

// ObjectMeta is the metadata record of one object.
type ObjectMeta struct {
	provenance Provenance

	id        objectid.ObjectID
	signature objectid.Signature
	typeName  string
	nbytes    int64
	instance  objectid.InstanceID
	global    bool
	persisted bool
	local     bool

	keys   []string
	fields map[string]field
}

// New starts building metadata for an object of the given type.
func New(typeName string) *ObjectMeta {
	return &ObjectMeta{
		provenance: Building,
		id:         objectid.InvalidObjectID,
		typeName:   typeName,
		instance:   objectid.UnspecifiedInstance,
		fields:     make(map[string]field),
	}
}

// Entry is the value stored under one key.
type Entry struct {
	// Value is the text of a scalar attribute.
	Value string
	// IsMember reports that the key was registered with AddMember.
	IsMember bool
	// MemberID is the member's id. InvalidObjectID for a member that
	// is itself still being built.
	MemberID objectid.ObjectID
	// Member is the member's metadata, nil when only its id is known.
	Member *ObjectMeta
}

func (m *ObjectMeta) mutable() error {
	if m.provenance != Building {
		return storeerr.New(storeerr.AlreadySealed, "metadata of %s is read-only", m.id)
	}
	return nil
}

func (m *ObjectMeta) put(key string, f field) {
	if _, exists := m.fields[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.fields[key] = f
}

// SetTypeName sets the typename of building metadata.
func (m *ObjectMeta) SetTypeName(typeName string) error {
	if err := m.mutable(); err != nil {
		return err
	}
	m.typeName = typeName
	return nil
}

// SetGlobal marks building metadata for cluster-wide visibility on
// commit. Committed objects become global only through persist.
func (m *ObjectMeta) SetGlobal(global bool) error {
	if err := m.mutable(); err != nil {
		return err
	}
	m.global = global
	return nil
}

// SetAttribute stores a scalar attribute, or a slice of scalars as a
// JSON array. Setting an existing key replaces it and keeps its
// position. The key "typename" sets the typename and takes a string.
func (m *ObjectMeta) SetAttribute(key string, value any) error {
	if err := m.mutable(); err != nil {
		return err
	}
	if key == "typename" {
		typeName, ok := value.(string)
		if !ok {
			return storeerr.New(storeerr.InvalidArgument, "typename must be a string, not %T", value)
		}
		return m.SetTypeName(typeName)
	}
	if err := CheckKey(key); err != nil {
		return err
	}
	text, err := EncodeValue(value)
	if err != nil {
		return fmt.Errorf("attribute %q: %w", key, err)
	}
	m.put(key, field{value: text})
	return nil
}

// AddMember stores a reference to another object. ref is an
// objectid.ObjectID of a committed object or blob, an *ObjectMeta
// (committed, or building as part of the same commit), or an *Object.
func (m *ObjectMeta) AddMember(key string, ref any) error {
	if err := m.mutable(); err != nil {
		return err
	}
	if err := CheckKey(key); err != nil {
		return err
	}

	var f field
	switch target := ref.(type) {
	case objectid.ObjectID:
		if !target.Valid() {
			return storeerr.New(storeerr.InvalidReference, "member %q: invalid object id", key)
		}
		f = field{isMember: true, memberID: target}
	case *ObjectMeta:
		if target == nil {
			return storeerr.New(storeerr.InvalidReference, "member %q: nil metadata", key)
		}
		f = field{isMember: true, memberID: target.id, member: target}
	case *Object:
		if target == nil {
			return storeerr.New(storeerr.InvalidReference, "member %q: nil object", key)
		}
		f = field{isMember: true, memberID: target.meta.id, member: target.meta}
	default:
		return storeerr.New(storeerr.InvalidArgument, "member %q: unsupported reference type %T", key, ref)
	}
	m.put(key, f)
	return nil
}

// ID returns the object id; InvalidObjectID while building.
func (m *ObjectMeta) ID() objectid.ObjectID { return m.id }

// Signature returns the signature; zero while building.
func (m *ObjectMeta) Signature() objectid.Signature { return m.signature }

// TypeName returns the typename.
func (m *ObjectMeta) TypeName() string { return m.typeName }

// NBytes returns the sum of the sizes of every distinct blob reachable
// from the object, as computed by the instance at commit.
func (m *ObjectMeta) NBytes() int64 { return m.nbytes }

// InstanceID returns the instance that owns the object.
func (m *ObjectMeta) InstanceID() objectid.InstanceID { return m.instance }

// IsGlobal reports whether the object was committed as global.
func (m *ObjectMeta) IsGlobal() bool { return m.global }

// IsPersisted reports whether the object is visible cluster-wide.
func (m *ObjectMeta) IsPersisted() bool { return m.persisted }

// IsLocal reports whether the object lives on the instance the
// metadata was fetched from.
func (m *ObjectMeta) IsLocal() bool { return m.local }

// IsBlob reports whether the record describes a blob.
func (m *ObjectMeta) IsBlob() bool { return m.typeName == BlobTypeName }

// Provenance returns whether the metadata is building or fetched.
func (m *ObjectMeta) Provenance() Provenance { return m.provenance }

// Contains reports whether key is set, as attribute or member.
func (m *ObjectMeta) Contains(key string) bool {
	_, ok := m.fields[key]
	return ok
}

// Get returns the entry stored under key. The typename is reachable
// under its reserved key as well.
func (m *ObjectMeta) Get(key string) (Entry, bool) {
	if key == "typename" {
		return Entry{Value: m.typeName, MemberID: objectid.InvalidObjectID}, true
	}
	f, ok := m.fields[key]
	if !ok {
		return Entry{}, false
	}
	if !f.isMember {
		return Entry{Value: f.value, MemberID: objectid.InvalidObjectID}, true
	}
	return Entry{IsMember: true, MemberID: f.memberID, Member: f.member}, true
}

// GetMember returns the metadata of the member stored under key. It
// fails with TypeMismatch when key is a scalar attribute and NotFound
// when key is absent or its target was never resolved.
func (m *ObjectMeta) GetMember(key string) (*ObjectMeta, error) {
	f, ok := m.fields[key]
	if !ok {
		return nil, storeerr.New(storeerr.NotFound, "no member %q", key)
	}
	if !f.isMember {
		return nil, storeerr.New(storeerr.TypeMismatch, "%q is an attribute, not a member", key)
	}
	if f.member == nil {
		return nil, storeerr.New(storeerr.NotFound, "member %q (%s) is not resolved", key, f.memberID)
	}
	return f.member, nil
}

// GetMemberID returns the id of the member stored under key.
func (m *ObjectMeta) GetMemberID(key string) (objectid.ObjectID, error) {
	entry, ok := m.Get(key)
	switch {
	case !ok:
		return objectid.InvalidObjectID, storeerr.New(storeerr.NotFound, "no member %q", key)
	case !entry.IsMember:
		return objectid.InvalidObjectID, storeerr.New(storeerr.TypeMismatch, "%q is an attribute, not a member", key)
	}
	return entry.MemberID, nil
}

// GetString returns the text of a scalar attribute.
func (m *ObjectMeta) GetString(key string) (string, error) {
	entry, ok := m.Get(key)
	switch {
	case !ok:
		return "", storeerr.New(storeerr.NotFound, "no attribute %q", key)
	case entry.IsMember:
		return "", storeerr.New(storeerr.TypeMismatch, "%q is a member, not an attribute", key)
	}
	return entry.Value, nil
}

// GetInt parses a scalar attribute as a signed integer.
func (m *ObjectMeta) GetInt(key string) (int64, error) {
	text, err := m.GetString(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, storeerr.New(storeerr.TypeMismatch, "attribute %q is not an integer: %q", key, text)
	}
	return value, nil
}

// GetBool parses a scalar attribute as a boolean.
func (m *ObjectMeta) GetBool(key string) (bool, error) {
	text, err := m.GetString(key)
	if err != nil {
		return false, err
	}
	value, err := strconv.ParseBool(text)
	if err != nil {
		return false, storeerr.New(storeerr.TypeMismatch, "attribute %q is not a boolean: %q", key, text)
	}
	return value, nil
}

// Keys iterates over every key in insertion order.
func (m *ObjectMeta) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, key := range m.keys {
			if !yield(key) {
				return
			}
		}
	}
}

// Members iterates over member keys and their ids in insertion order.
func (m *ObjectMeta) Members() iter.Seq2[string, objectid.ObjectID] {
	return func(yield func(string, objectid.ObjectID) bool) {
		for _, key := range m.keys {
			f := m.fields[key]
			if !f.isMember {
				continue
			}
			if !yield(key, f.memberID) {
				return
			}
		}
	}
}

// MemoryUsage returns the bytes of every distinct blob reachable from
// the metadata as far as it is resolved locally. A blob reached through
// several paths counts once.
func (m *ObjectMeta) MemoryUsage() int64 {
	seenIDs := make(map[objectid.ObjectID]bool)
	seenNodes := make(map[*ObjectMeta]bool)
	var total int64
	var walk func(node *ObjectMeta)
	walk = func(node *ObjectMeta) {
		if seenNodes[node] {
			return
		}
		seenNodes[node] = true
		if node.id.Valid() {
			if seenIDs[node.id] {
				return
			}
			seenIDs[node.id] = true
		}
		if node.IsBlob() {
			total += node.nbytes
			return
		}
		for _, key := range node.keys {
			if member := node.fields[key].member; member != nil {
				walk(member)
			}
		}
	}
	walk(m)
	return total
}

// String renders the metadata as an indented JSON document with members
// nested in place.
func (m *ObjectMeta) String() string {
	encoded, err := json.MarshalIndent(m.document(make(map[*ObjectMeta]bool)), "", "    ")
	if err != nil {
		return fmt.Sprintf("<metadata of %s: %v>", m.id, err)
	}
	return string(encoded)
}

// document builds the JSON form. open holds the nodes on the current
// path; building metadata may contain a cycle until NewDraft rejects it.
func (m *ObjectMeta) document(open map[*ObjectMeta]bool) map[string]any {
	if open[m] {
		return map[string]any{"typename": m.typeName, "cycle": true}
	}
	open[m] = true
	defer delete(open, m)

	document := map[string]any{
		"typename": m.typeName,
		"nbytes":   m.nbytes,
		"global":   m.global,
	}
	if m.provenance == Fetched {
		document["id"] = m.id.String()
		document["signature"] = m.signature.String()
		document["instance_id"] = uint64(m.instance)
		document["transient"] = !m.persisted
	}
	for _, key := range m.keys {
		f := m.fields[key]
		switch {
		case !f.isMember:
			document[key] = f.value
		case f.member != nil:
			document[key] = f.member.document(open)
		default:
			document[key] = map[string]any{"id": f.memberID.String()}
		}
	}
	return document
}

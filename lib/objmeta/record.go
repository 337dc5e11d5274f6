// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objmeta

import (
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// Record is the committed form of one object. Members are referenced
// by id; the records of a closure together describe the whole graph.
type Record struct {
	ID        objectid.ObjectID   `cbor:"id"`
	Signature objectid.Signature  `cbor:"signature"`
	TypeName  string              `cbor:"typename"`
	NBytes    int64               `cbor:"nbytes"`
	Instance  objectid.InstanceID `cbor:"instance_id"`
	Global    bool                `cbor:"global,omitempty"`
	Persisted bool                `cbor:"persisted,omitempty"`
	Fields    []Field             `cbor:"fields,omitempty"`
}

// Field is one key of a record: a scalar attribute when Member is nil,
// a member reference otherwise.
type Field struct {
	Key    string             `cbor:"key"`
	Value  string             `cbor:"value,omitempty"`
	Member *objectid.ObjectID `cbor:"member,omitempty"`
}

// MemberField returns a member reference field.
func MemberField(key string, id objectid.ObjectID) Field {
	return Field{Key: key, Member: &id}
}

// IsMember reports whether the field references a member.
func (f Field) IsMember() bool {
	return f.Member != nil
}

// MemberIDs returns the ids of the record's members in field order.
func (r *Record) MemberIDs() []objectid.ObjectID {
	var ids []objectid.ObjectID
	for _, f := range r.Fields {
		if f.Member != nil {
			ids = append(ids, *f.Member)
		}
	}
	return ids
}

// IsBlob reports whether the record describes a blob.
func (r *Record) IsBlob() bool {
	return r.TypeName == BlobTypeName
}

// Clone returns a deep copy, so a record handed out by a catalog can
// never alias the catalog's own.
func (r *Record) Clone() Record {
	clone := *r
	clone.Fields = make([]Field, len(r.Fields))
	for index, f := range r.Fields {
		if f.Member != nil {
			id := *f.Member
			f.Member = &id
		}
		clone.Fields[index] = f
	}
	return clone
}

// FromRecords rebuilds the fetched metadata of root from the records of
// its closure. Objects owned by local are marked local. A member shared
// by several parents resolves to the same *ObjectMeta. Members whose
// records are absent stay unresolved: GetMember reports NotFound for
// them while GetMemberID still answers. The root record must be present.
func FromRecords(root objectid.ObjectID, records []Record, local objectid.InstanceID) (*ObjectMeta, error) {
	byID := make(map[objectid.ObjectID]*Record, len(records))
	for index := range records {
		byID[records[index].ID] = &records[index]
	}
	built := make(map[objectid.ObjectID]*ObjectMeta, len(records))

	var build func(id objectid.ObjectID) (*ObjectMeta, error)
	build = func(id objectid.ObjectID) (*ObjectMeta, error) {
		if meta, ok := built[id]; ok {
			return meta, nil
		}
		record, ok := byID[id]
		if !ok {
			return nil, storeerr.New(storeerr.NotFound, "record of %s is missing from the closure", id)
		}
		meta := &ObjectMeta{
			provenance: Fetched,
			id:         record.ID,
			signature:  record.Signature,
			typeName:   record.TypeName,
			nbytes:     record.NBytes,
			instance:   record.Instance,
			global:     record.Global,
			persisted:  record.Persisted,
			local:      record.Instance == local,
			fields:     make(map[string]field, len(record.Fields)),
		}
		// Commit order guarantees members precede referrers, so a
		// committed graph never recurses into a node being built.
		built[id] = meta
		for _, f := range record.Fields {
			if f.Member == nil {
				meta.put(f.Key, field{value: f.Value})
				continue
			}
			if _, present := byID[*f.Member]; !present {
				// Listings leave blob records out, and a forced delete
				// can leave a referrer behind; the member stays known
				// by id only.
				meta.put(f.Key, field{isMember: true, memberID: *f.Member})
				continue
			}
			member, err := build(*f.Member)
			if err != nil {
				return nil, err
			}
			meta.put(f.Key, field{isMember: true, memberID: *f.Member, member: member})
		}
		return meta, nil
	}
	return build(root)
}

// Object is the immutable view of a committed object.
type Object struct {
	meta *ObjectMeta
}

// NewObject wraps fetched metadata. Building metadata has no object yet.
func NewObject(meta *ObjectMeta) (*Object, error) {
	if meta == nil || meta.provenance != Fetched {
		return nil, storeerr.New(storeerr.InvalidArgument, "objects are only formed from committed metadata")
	}
	return &Object{meta: meta}, nil
}

func (o *Object) ID() objectid.ObjectID {
	return o.meta.id
}

func (o *Object) Signature() objectid.Signature {
	return o.meta.signature
}

func (o *Object) TypeName() string {
	return o.meta.typeName
}

func (o *Object) NBytes() int64 {
	return o.meta.nbytes
}

func (o *Object) InstanceID() objectid.InstanceID {
	return o.meta.instance
}

func (o *Object) IsLocal() bool {
	return o.meta.local
}

func (o *Object) IsPersist() bool {
	return o.meta.persisted
}

func (o *Object) IsGlobal() bool {
	return o.meta.global
}

func (o *Object) Meta() *ObjectMeta {
	return o.meta
}

// Member returns the member object stored under name.
func (o *Object) Member(name string) (*Object, error) {
	member, err := o.meta.GetMember(name)
	if err != nil {
		return nil, err
	}
	return &Object{meta: member}, nil
}

func (o *Object) String() string {
	return o.meta.String()
}

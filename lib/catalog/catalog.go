// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog holds the committed metadata of one instance.
//
// Records are kept in an arena keyed by object id; members are stored
// as ids, never as owning references, so a shared member is one record
// no matter how many objects reach it. A reverse index from each member
// to its referrers backs the reference checks of deletion.
//
// Every call validates completely before changing anything: a failed
// commit creates no record and a failed delete removes none.
//
// The catalog is not synchronized; the instance serializes every call
// under its own lock.
package catalog

import (
	"fmt"
	"maps"
	"slices"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/pattern"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// DefaultListLimit caps listings that do not ask for a limit.
const DefaultListLimit = 5

// Catalog is the committed metadata arena of one instance.
type Catalog struct {
	instance  objectid.InstanceID
	generator *objectid.Generator

	records map[objectid.ObjectID]*objmeta.Record
	// referrers maps a member id to the ids of the records that
	// reference it, counting each reference key.
	referrers map[objectid.ObjectID]map[objectid.ObjectID]int
}

// New returns an empty catalog for instance.
func New(instance objectid.InstanceID, generator *objectid.Generator) *Catalog {
	return &Catalog{
		instance:  instance,
		generator: generator,
		records:   make(map[objectid.ObjectID]*objmeta.Record),
		referrers: make(map[objectid.ObjectID]map[objectid.ObjectID]int),
	}
}

// Len returns the number of records, blobs included.
func (c *Catalog) Len() int {
	return len(c.records)
}

func (c *Catalog) emptyBlob() objmeta.Record {
	return objmeta.Record{
		ID:       objectid.EmptyBlobID,
		TypeName: objmeta.BlobTypeName,
		Instance: c.instance,
	}
}

func (c *Catalog) lookup(id objectid.ObjectID) (objmeta.Record, bool) {
	if id.IsEmptyBlob() {
		return c.emptyBlob(), true
	}
	record, ok := c.records[id]
	if !ok {
		return objmeta.Record{}, false
	}
	return *record, true
}

// Exists reports whether id names a committed object or sealed blob.
func (c *Catalog) Exists(id objectid.ObjectID) bool {
	_, ok := c.lookup(id)
	return ok
}

// Get returns a copy of the record of id.
func (c *Catalog) Get(id objectid.ObjectID) (objmeta.Record, error) {
	record, ok := c.lookup(id)
	if !ok {
		return objmeta.Record{}, storeerr.New(storeerr.NotFound, "object %s does not exist", id)
	}
	return record.Clone(), nil
}

// AddBlob registers a sealed blob as an object of type blob.
func (c *Catalog) AddBlob(id objectid.ObjectID, signature objectid.Signature, size int64) objmeta.Record {
	if id.IsEmptyBlob() {
		return c.emptyBlob()
	}
	record := &objmeta.Record{
		ID:        id,
		Signature: signature,
		TypeName:  objmeta.BlobTypeName,
		NBytes:    size,
		Instance:  c.instance,
	}
	c.records[id] = record
	return record.Clone()
}

// Resolver finds an object that is visible from the catalog's instance
// without being one of its records, and returns its closure.
type Resolver func(id objectid.ObjectID) ([]objmeta.Record, bool)

// Commit creates one record per draft node, children first. Every node
// is validated before any id is issued: member ids must name existing
// records, or objects resolve finds, and node references must point to
// earlier nodes. A nil resolve admits local members only. The nbytes
// of each record is the total size of the distinct blobs it reaches.
//
// A member found through resolve is referenced, never owned: deletes
// here do not reach it, and its owner may delete it regardless.
func (c *Catalog) Commit(draft *objmeta.Draft, resolve Resolver) ([]objmeta.Record, error) {
	external, err := c.validate(draft, resolve)
	if err != nil {
		return nil, err
	}

	created := make([]objmeta.Record, len(draft.Nodes))
	reached := make([]map[objectid.ObjectID]int64, len(draft.Nodes))
	for index, node := range draft.Nodes {
		id, signature := c.generator.NextObject()
		blobs := make(map[objectid.ObjectID]int64)
		record := objmeta.Record{
			ID:        id,
			Signature: signature,
			TypeName:  node.TypeName,
			Instance:  c.instance,
			Global:    node.Global,
		}
		for _, f := range node.Fields {
			switch {
			case f.Node != nil:
				maps.Copy(blobs, reached[*f.Node])
				record.Fields = append(record.Fields, objmeta.MemberField(f.Key, created[*f.Node].ID))
			case f.Member != nil && external[*f.Member] != nil:
				for _, reached := range external[*f.Member] {
					if reached.IsBlob() {
						blobs[reached.ID] = reached.NBytes
					}
				}
				record.Fields = append(record.Fields, objmeta.MemberField(f.Key, *f.Member))
			case f.Member != nil:
				c.collectBlobs(*f.Member, blobs, make(map[objectid.ObjectID]bool))
				record.Fields = append(record.Fields, objmeta.MemberField(f.Key, *f.Member))
			default:
				record.Fields = append(record.Fields, objmeta.Field{Key: f.Key, Value: f.Value})
			}
		}
		for _, size := range blobs {
			record.NBytes += size
		}
		reached[index] = blobs
		created[index] = record
	}

	for index := range created {
		stored := created[index].Clone()
		c.records[stored.ID] = &stored
		c.link(&stored)
	}
	return created, nil
}

// validate checks draft and returns the closures of the members that
// resolve found outside the catalog.
func (c *Catalog) validate(draft *objmeta.Draft, resolve Resolver) (map[objectid.ObjectID][]objmeta.Record, error) {
	if draft == nil || len(draft.Nodes) == 0 {
		return nil, storeerr.New(storeerr.InvalidArgument, "nothing to commit")
	}
	external := make(map[objectid.ObjectID][]objmeta.Record)
	for index, node := range draft.Nodes {
		keys := make(map[string]bool, len(node.Fields))
		for _, f := range node.Fields {
			if err := objmeta.CheckKey(f.Key); err != nil {
				return nil, fmt.Errorf("node %d: %w", index, err)
			}
			if keys[f.Key] {
				return nil, storeerr.New(storeerr.InvalidArgument, "node %d: key %q appears twice", index, f.Key)
			}
			keys[f.Key] = true

			switch {
			case f.Member != nil && f.Node != nil:
				return nil, storeerr.New(storeerr.InvalidArgument, "node %d: field %q is both a member and a node reference", index, f.Key)
			case f.Member != nil:
				if c.Exists(*f.Member) || external[*f.Member] != nil {
					continue
				}
				if resolve != nil {
					if closure, ok := resolve(*f.Member); ok && len(closure) > 0 {
						external[*f.Member] = closure
						continue
					}
				}
				return nil, storeerr.New(storeerr.InvalidReference,
					"node %d: member %q references %s, which does not exist", index, f.Key, *f.Member)
			case f.Node != nil:
				if *f.Node < 0 || *f.Node >= index {
					return nil, storeerr.New(storeerr.InvalidReference,
						"node %d: member %q references node %d, which does not precede it", index, f.Key, *f.Node)
				}
			}
		}
	}
	return external, nil
}

// collectBlobs adds every blob reachable from id to blobs.
func (c *Catalog) collectBlobs(id objectid.ObjectID, blobs map[objectid.ObjectID]int64, visited map[objectid.ObjectID]bool) {
	if visited[id] {
		return
	}
	visited[id] = true
	record, ok := c.lookup(id)
	if !ok {
		return
	}
	if record.IsBlob() {
		blobs[id] = record.NBytes
		return
	}
	for _, member := range record.MemberIDs() {
		c.collectBlobs(member, blobs, visited)
	}
}

func (c *Catalog) link(record *objmeta.Record) {
	for _, member := range record.MemberIDs() {
		if member.IsEmptyBlob() {
			continue
		}
		referrers := c.referrers[member]
		if referrers == nil {
			referrers = make(map[objectid.ObjectID]int)
			c.referrers[member] = referrers
		}
		referrers[record.ID]++
	}
}

func (c *Catalog) unlink(record *objmeta.Record) {
	for _, member := range record.MemberIDs() {
		referrers := c.referrers[member]
		if referrers == nil {
			continue
		}
		delete(referrers, record.ID)
		if len(referrers) == 0 {
			delete(c.referrers, member)
		}
	}
}

// Referrers returns the ids of the records that reference id, sorted.
func (c *Catalog) Referrers(id objectid.ObjectID) []objectid.ObjectID {
	return slices.Sorted(maps.Keys(c.referrers[id]))
}

// Closure returns the records of id and of everything it reaches,
// members before their referrers, id last. Members removed by a forced
// delete are skipped.
func (c *Catalog) Closure(id objectid.ObjectID) ([]objmeta.Record, error) {
	if !c.Exists(id) {
		return nil, storeerr.New(storeerr.NotFound, "object %s does not exist", id)
	}
	var closure []objmeta.Record
	visited := make(map[objectid.ObjectID]bool)
	var walk func(objectid.ObjectID)
	walk = func(current objectid.ObjectID) {
		if visited[current] {
			return
		}
		visited[current] = true
		record, ok := c.lookup(current)
		if !ok {
			return
		}
		for _, member := range record.MemberIDs() {
			walk(member)
		}
		closure = append(closure, record.Clone())
	}
	walk(id)
	return closure, nil
}

// List returns the ids of committed objects whose typename matches,
// in id order, at most limit of them (DefaultListLimit when limit is
// not positive). Blobs are not listed.
func (c *Catalog) List(typePattern string, regex bool, limit int) ([]objectid.ObjectID, error) {
	match, err := pattern.Compile(typePattern, regex)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var matched []objectid.ObjectID
	for _, id := range slices.Sorted(maps.Keys(c.records)) {
		record := c.records[id]
		if record.IsBlob() || !match(record.TypeName) {
			continue
		}
		matched = append(matched, id)
		if len(matched) == limit {
			break
		}
	}
	return matched, nil
}

// Persist marks id and everything it reaches as visible cluster-wide
// and returns the closure. Persisting twice is harmless.
func (c *Catalog) Persist(id objectid.ObjectID) ([]objmeta.Record, error) {
	closure, err := c.Closure(id)
	if err != nil {
		return nil, err
	}
	for index := range closure {
		closure[index].Persisted = true
		if record, ok := c.records[closure[index].ID]; ok {
			record.Persisted = true
		}
	}
	return closure, nil
}

// ShallowCopy creates a new record with the attributes and member
// references of id and a new id, keeping the signature. extra
// overrides or adds attributes; its values must be scalars. The copy
// is local: it is not persisted even when the source is.
func (c *Catalog) ShallowCopy(id objectid.ObjectID, extra map[string]any) (objmeta.Record, error) {
	source, ok := c.lookup(id)
	if !ok {
		return objmeta.Record{}, storeerr.New(storeerr.NotFound, "object %s does not exist", id)
	}
	if source.IsBlob() {
		return objmeta.Record{}, storeerr.New(storeerr.InvalidArgument, "blob %s cannot be copied; reference it instead", id)
	}

	copied := source.Clone()
	positions := make(map[string]int, len(copied.Fields))
	for index, f := range copied.Fields {
		positions[f.Key] = index
	}
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		if err := objmeta.CheckKey(key); err != nil {
			return objmeta.Record{}, err
		}
		text, err := objmeta.EncodeScalar(extra[key])
		if err != nil {
			return objmeta.Record{}, fmt.Errorf("extra metadata %q: %w", key, err)
		}
		position, exists := positions[key]
		switch {
		case !exists:
			copied.Fields = append(copied.Fields, objmeta.Field{Key: key, Value: text})
		case copied.Fields[position].IsMember():
			return objmeta.Record{}, storeerr.New(storeerr.InvalidMetadataValue, "extra metadata %q would replace a member", key)
		default:
			copied.Fields[position].Value = text
		}
	}

	copied.ID, _ = c.generator.NextObject()
	copied.Instance = c.instance
	copied.Global = false
	copied.Persisted = false

	stored := copied.Clone()
	c.records[stored.ID] = &stored
	c.link(&stored)
	return copied, nil
}

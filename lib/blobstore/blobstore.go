// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore tracks the lifecycle of every blob an instance
// holds: which arena span it occupies, who may still write it, and
// whether it has been sealed.
//
// A blob starts as a builder owned by one session. The owner may shrink
// it, then either seals it (it becomes immutable and readable by anyone
// holding the id) or aborts it (its span is freed and nothing becomes
// visible). Both transitions are terminal.
//
// The table itself is not synchronized; the instance serializes every
// call under its own lock.
package blobstore

import (
	"slices"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/shm"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// State is the lifecycle state of a blob.
type State int

const (
	Building State = iota
	Sealed
	Aborted
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Sealed:
		return "sealed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Blob describes one blob. Values returned by the table are snapshots.
type Blob struct {
	ID        objectid.ObjectID
	Signature objectid.Signature
	// Offset of the first byte in the arena. Meaningless for the empty
	// blob.
	Offset int64
	// Size is the logical length.
	Size int64
	// Reserved is the arena span length, Size rounded up.
	Reserved int64
	State    State
	// Owner is the session that created a builder. Empty for blobs
	// created from a remote payload, which are sealed on arrival.
	Owner string
}

// Empty is the reserved zero-length blob. It has no span.
var Empty = Blob{ID: objectid.EmptyBlobID, State: Sealed}

// Table is the blob registry of one instance.
type Table struct {
	arena     *shm.Arena
	generator *objectid.Generator

	blobs map[objectid.ObjectID]*Blob
	// starts holds the offsets of every live span, sorted, for Find.
	starts   []int64
	atOffset map[int64]objectid.ObjectID
}

// NewTable returns an empty table allocating from arena and naming
// blobs with generator.
func NewTable(arena *shm.Arena, generator *objectid.Generator) *Table {
	return &Table{
		arena:     arena,
		generator: generator,
		blobs:     make(map[objectid.ObjectID]*Blob),
		atOffset:  make(map[int64]objectid.ObjectID),
	}
}

// Create allocates a builder of size bytes owned by owner. size 0
// returns the empty blob without allocating.
func (t *Table) Create(owner string, size int64) (Blob, error) {
	if size < 0 {
		return Blob{}, storeerr.New(storeerr.InvalidArgument, "blob size must not be negative, got %d", size)
	}
	if size == 0 {
		return Empty, nil
	}
	offset, reserved, err := t.arena.Allocate(size)
	if err != nil {
		return Blob{}, err
	}
	id, signature := t.generator.NextBlob()
	blob := &Blob{
		ID:        id,
		Signature: signature,
		Offset:    offset,
		Size:      size,
		Reserved:  reserved,
		State:     Building,
		Owner:     owner,
	}
	t.insert(blob)
	return *blob, nil
}

// CreateFromPayload allocates a blob, copies payload into it and seals
// it in one step. Remote clients never hold a builder: the instance
// receiving the payload performs the sealing.
func (t *Table) CreateFromPayload(payload []byte) (Blob, error) {
	if len(payload) == 0 {
		return Empty, nil
	}
	blob, err := t.Create("", int64(len(payload)))
	if err != nil {
		return Blob{}, err
	}
	if _, err := t.arena.WriteAt(payload, blob.Offset); err != nil {
		t.remove(blob.ID)
		return Blob{}, storeerr.New(storeerr.Internal, "writing remote payload: %v", err)
	}
	record := t.blobs[blob.ID]
	record.State = Sealed
	return *record, nil
}

// builder returns the record for a write-phase operation by owner.
func (t *Table) builder(owner string, id objectid.ObjectID) (*Blob, error) {
	blob, ok := t.blobs[id]
	if !ok {
		return nil, storeerr.New(storeerr.NotFound, "blob %s does not exist", id)
	}
	if blob.State != Building {
		return nil, storeerr.New(storeerr.AlreadySealed, "blob %s is already sealed", id)
	}
	if blob.Owner != owner {
		return nil, storeerr.New(storeerr.InvalidArgument, "blob %s is owned by another session", id)
	}
	return blob, nil
}

// Shrink reduces the logical size of a builder. The tail of the
// reservation returns to the arena.
func (t *Table) Shrink(owner string, id objectid.ObjectID, size int64) (Blob, error) {
	if id.IsEmptyBlob() {
		if size != 0 {
			return Blob{}, storeerr.New(storeerr.OutOfRange, "cannot grow the empty blob to %d bytes", size)
		}
		return Empty, nil
	}
	blob, err := t.builder(owner, id)
	if err != nil {
		return Blob{}, err
	}
	if size < 0 || size > blob.Size {
		return Blob{}, storeerr.New(storeerr.OutOfRange,
			"blob %s can only shrink: size %d, requested %d", id, blob.Size, size)
	}
	blob.Reserved = t.arena.Shrink(blob.Offset, blob.Reserved, size)
	blob.Size = size
	return *blob, nil
}

// Seal makes a builder immutable and readable by every holder of the id.
func (t *Table) Seal(owner string, id objectid.ObjectID) (Blob, error) {
	if id.IsEmptyBlob() {
		return Empty, nil
	}
	blob, err := t.builder(owner, id)
	if err != nil {
		return Blob{}, err
	}
	blob.State = Sealed
	return *blob, nil
}

// Abort frees a builder's span without publishing it. The id is never
// issued again.
func (t *Table) Abort(owner string, id objectid.ObjectID) error {
	if id.IsEmptyBlob() {
		return nil
	}
	if _, err := t.builder(owner, id); err != nil {
		return err
	}
	t.remove(id)
	return nil
}

// AbortOwner aborts every builder owned by owner and returns their ids.
// Called when a session ends with builders still open.
func (t *Table) AbortOwner(owner string) []objectid.ObjectID {
	var aborted []objectid.ObjectID
	for id, blob := range t.blobs {
		if blob.State == Building && blob.Owner == owner {
			aborted = append(aborted, id)
		}
	}
	slices.Sort(aborted)
	for _, id := range aborted {
		t.remove(id)
	}
	return aborted
}

// Get returns a blob. A builder is only returned when unsafe is set;
// the caller then accepts that its contents may still change.
func (t *Table) Get(id objectid.ObjectID, unsafe bool) (Blob, error) {
	if id.IsEmptyBlob() {
		return Empty, nil
	}
	blob, ok := t.blobs[id]
	if !ok {
		return Blob{}, storeerr.New(storeerr.NotFound, "blob %s does not exist", id)
	}
	if blob.State == Building && !unsafe {
		return Blob{}, storeerr.New(storeerr.NotSealed, "blob %s has not been sealed", id)
	}
	return *blob, nil
}

// Bytes returns the arena bytes of a blob.
func (t *Table) Bytes(blob Blob) ([]byte, error) {
	if blob.Size == 0 {
		return nil, nil
	}
	return t.arena.Bytes(blob.Offset, blob.Size)
}

// Release frees a sealed blob whose object has been deleted.
func (t *Table) Release(id objectid.ObjectID) error {
	if id.IsEmptyBlob() {
		return nil
	}
	blob, ok := t.blobs[id]
	if !ok {
		return storeerr.New(storeerr.NotFound, "blob %s does not exist", id)
	}
	if blob.State != Sealed {
		return storeerr.New(storeerr.NotSealed, "blob %s is still being built", id)
	}
	t.remove(id)
	return nil
}

// AllocatedSize reports the arena bytes reserved for a blob. It may
// exceed the logical size.
func (t *Table) AllocatedSize(id objectid.ObjectID) (int64, error) {
	if id.IsEmptyBlob() {
		return 0, nil
	}
	blob, ok := t.blobs[id]
	if !ok {
		return 0, storeerr.New(storeerr.NotFound, "blob %s does not exist", id)
	}
	return blob.Reserved, nil
}

// Find returns the blob whose span contains the arena offset.
func (t *Table) Find(offset int64) (objectid.ObjectID, bool) {
	index, found := slices.BinarySearch(t.starts, offset)
	if !found {
		// The candidate is the span starting before offset.
		if index == 0 {
			return objectid.InvalidObjectID, false
		}
		index--
	}
	id := t.atOffset[t.starts[index]]
	blob := t.blobs[id]
	if offset >= blob.Offset+max(blob.Size, 1) {
		return objectid.InvalidObjectID, false
	}
	return id, true
}

// Len returns the number of live blobs, builders included.
func (t *Table) Len() int {
	return len(t.blobs)
}

func (t *Table) insert(blob *Blob) {
	t.blobs[blob.ID] = blob
	index, _ := slices.BinarySearch(t.starts, blob.Offset)
	t.starts = slices.Insert(t.starts, index, blob.Offset)
	t.atOffset[blob.Offset] = blob.ID
}

func (t *Table) remove(id objectid.ObjectID) {
	blob := t.blobs[id]
	delete(t.blobs, id)
	if index, found := slices.BinarySearch(t.starts, blob.Offset); found {
		t.starts = slices.Delete(t.starts, index, index+1)
	}
	delete(t.atOffset, blob.Offset)
	t.arena.Free(blob.Offset, blob.Reserved)
	blob.State = Aborted
}

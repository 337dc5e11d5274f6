// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/shm"
	"github.com/BSWANG/v6d/lib/storeerr"
)

func newTestTable(t *testing.T, size int64) (*Table, *shm.Arena) {
	t.Helper()
	arena, err := shm.Create(filepath.Join(t.TempDir(), "arena"), size)
	if err != nil {
		t.Fatalf("shm.Create: %v", err)
	}
	t.Cleanup(func() { arena.Close() })
	generator, err := objectid.NewGenerator(1, time.Now)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return NewTable(arena, generator), arena
}

func requireKind(t *testing.T, err error, want *storeerr.Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want kind %v", err, want.Kind)
	}
}

func TestCreateSealGet(t *testing.T) {
	table, arena := newTestTable(t, 1<<16)

	blob, err := table.Create("session", 16)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !blob.ID.IsBlob() || blob.State != Building {
		t.Fatalf("Create returned %+v", blob)
	}

	want := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if _, err := arena.WriteAt(want, blob.Offset); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	_, err = table.Get(blob.ID, false)
	requireKind(t, err, storeerr.ErrNotSealed)

	if _, err := table.Seal("session", blob.ID); err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed, err := table.Get(blob.ID, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, err := table.Bytes(sealed)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("bytes = %x, want %x", got, want)
	}

	allocated, err := table.AllocatedSize(blob.ID)
	if err != nil || allocated < 16 {
		t.Errorf("AllocatedSize = %d, %v; want >= 16", allocated, err)
	}
}

func TestUnsafeReadOfBuilder(t *testing.T) {
	table, _ := newTestTable(t, 1<<16)
	blob, _ := table.Create("session", 8)
	got, err := table.Get(blob.ID, true)
	if err != nil {
		t.Fatalf("unsafe Get: %v", err)
	}
	if got.State != Building {
		t.Errorf("state = %v, want building", got.State)
	}
}

func TestSealedBuilderRejectsMutation(t *testing.T) {
	table, _ := newTestTable(t, 1<<16)
	blob, _ := table.Create("session", 32)
	if _, err := table.Seal("session", blob.ID); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	_, err := table.Seal("session", blob.ID)
	requireKind(t, err, storeerr.ErrAlreadySealed)
	_, err = table.Shrink("session", blob.ID, 8)
	requireKind(t, err, storeerr.ErrAlreadySealed)
	requireKind(t, table.Abort("session", blob.ID), storeerr.ErrAlreadySealed)
}

func TestShrinkOnlyDecreases(t *testing.T) {
	table, arena := newTestTable(t, 1<<16)
	blob, _ := table.Create("session", 1000)

	_, err := table.Shrink("session", blob.ID, 1001)
	requireKind(t, err, storeerr.ErrOutOfRange)

	shrunk, err := table.Shrink("session", blob.ID, 10)
	if err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if shrunk.Size != 10 || shrunk.Reserved != shm.Alignment {
		t.Errorf("shrunk = %+v", shrunk)
	}
	used, _ := arena.Usage()
	if used != shm.Alignment {
		t.Errorf("arena usage after shrink = %d, want %d", used, shm.Alignment)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	table, _ := newTestTable(t, 1<<16)
	blob, _ := table.Create("alice", 8)

	_, err := table.Seal("bob", blob.ID)
	requireKind(t, err, storeerr.ErrInvalidArgument)
	requireKind(t, table.Abort("bob", blob.ID), storeerr.ErrInvalidArgument)
}

func TestCreateAbortNeutral(t *testing.T) {
	table, arena := newTestTable(t, 1<<20)
	before, _ := arena.Usage()

	for _, size := range []int64{0, 1, 16, 64, 65, 8192, 123457} {
		blob, err := table.Create("session", size)
		if err != nil {
			t.Fatalf("Create(%d): %v", size, err)
		}
		if err := table.Abort("session", blob.ID); err != nil {
			t.Fatalf("Abort(%d): %v", size, err)
		}
		after, _ := arena.Usage()
		if after != before {
			t.Errorf("size %d: usage %d after abort, want %d", size, after, before)
		}
	}
	if table.Len() != 0 {
		t.Errorf("table holds %d blobs after aborting all", table.Len())
	}
}

func TestAbortedIDIsGone(t *testing.T) {
	table, _ := newTestTable(t, 1<<16)
	blob, _ := table.Create("session", 8)
	if err := table.Abort("session", blob.ID); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	_, err := table.Get(blob.ID, true)
	requireKind(t, err, storeerr.ErrNotFound)

	again, _ := table.Create("session", 8)
	if again.ID == blob.ID {
		t.Errorf("aborted id %s was reissued", blob.ID)
	}
}

func TestEmptyBlob(t *testing.T) {
	table, arena := newTestTable(t, 1<<16)

	blob, err := table.Create("session", 0)
	if err != nil {
		t.Fatalf("Create(0): %v", err)
	}
	if blob.ID != objectid.EmptyBlobID || blob.State != Sealed {
		t.Errorf("Create(0) = %+v, want the empty sentinel", blob)
	}
	if used, _ := arena.Usage(); used != 0 {
		t.Errorf("empty blob allocated %d bytes", used)
	}
	got, err := table.Get(objectid.EmptyBlobID, false)
	if err != nil || got.Size != 0 {
		t.Errorf("Get(empty) = %+v, %v", got, err)
	}
}

func TestAllocationFailedIsRecoverable(t *testing.T) {
	table, _ := newTestTable(t, 4096)

	first, err := table.Create("session", 4096)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = table.Create("session", 1)
	requireKind(t, err, storeerr.ErrAllocationFailed)

	if err := table.Abort("session", first.ID); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := table.Create("session", 1); err != nil {
		t.Errorf("Create after freeing: %v", err)
	}
}

func TestAbortOwner(t *testing.T) {
	table, arena := newTestTable(t, 1<<16)
	left, _ := table.Create("gone", 8)
	kept, _ := table.Create("gone", 8)
	table.Seal("gone", kept.ID)
	other, _ := table.Create("alive", 8)

	aborted := table.AbortOwner("gone")
	if len(aborted) != 1 || aborted[0] != left.ID {
		t.Fatalf("AbortOwner = %v, want [%s]", aborted, left.ID)
	}
	if _, err := table.Get(kept.ID, false); err != nil {
		t.Errorf("sealed blob of ended session: %v", err)
	}
	if _, err := table.Get(other.ID, true); err != nil {
		t.Errorf("builder of another session: %v", err)
	}
	if used, _ := arena.Usage(); used != 2*shm.Alignment {
		t.Errorf("usage = %d, want %d", used, 2*shm.Alignment)
	}
}

func TestCreateFromPayload(t *testing.T) {
	table, _ := newTestTable(t, 1<<16)
	payload := []byte("remote payload")

	blob, err := table.CreateFromPayload(payload)
	if err != nil {
		t.Fatalf("CreateFromPayload: %v", err)
	}
	if blob.State != Sealed {
		t.Errorf("state = %v, want sealed", blob.State)
	}
	got, _ := table.Bytes(blob)
	if !bytes.Equal(got, payload) {
		t.Errorf("bytes = %q, want %q", got, payload)
	}
}

func TestReleaseTwice(t *testing.T) {
	table, _ := newTestTable(t, 1<<16)
	blob, _ := table.CreateFromPayload([]byte("x"))
	if err := table.Release(blob.ID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	requireKind(t, table.Release(blob.ID), storeerr.ErrNotFound)
}

func TestFind(t *testing.T) {
	table, _ := newTestTable(t, 1<<16)
	first, _ := table.Create("s", 100)
	second, _ := table.Create("s", 10)

	tests := []struct {
		offset int64
		want   objectid.ObjectID
		found  bool
	}{
		{first.Offset, first.ID, true},
		{first.Offset + 99, first.ID, true},
		{first.Offset + 100, objectid.InvalidObjectID, false},
		{second.Offset + 5, second.ID, true},
		{second.Offset + 4000, objectid.InvalidObjectID, false},
	}
	for _, test := range tests {
		got, found := table.Find(test.offset)
		if got != test.want || found != test.found {
			t.Errorf("Find(%d) = (%s, %v), want (%s, %v)", test.offset, got, found, test.want, test.found)
		}
	}
}

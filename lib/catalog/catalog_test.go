// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
)

type fixture struct {
	t         *testing.T
	catalog   *Catalog
	generator *objectid.Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	generator, err := objectid.NewGenerator(1, time.Now)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return &fixture{t: t, catalog: New(1, generator), generator: generator}
}

func (f *fixture) blob(size int64) objectid.ObjectID {
	id, signature := f.generator.NextBlob()
	f.catalog.AddBlob(id, signature, size)
	return id
}

// commit commits meta and returns the root record.
func (f *fixture) commit(meta *objmeta.ObjectMeta) objmeta.Record {
	f.t.Helper()
	draft, err := objmeta.NewDraft(meta)
	if err != nil {
		f.t.Fatalf("NewDraft: %v", err)
	}
	records, err := f.catalog.Commit(draft, nil)
	if err != nil {
		f.t.Fatalf("Commit: %v", err)
	}
	return records[len(records)-1]
}

func (f *fixture) object(typeName string, members map[string]objectid.ObjectID) objmeta.Record {
	f.t.Helper()
	meta := objmeta.New(typeName)
	for _, key := range slices.Sorted(maps.Keys(members)) {
		if err := meta.AddMember(key, members[key]); err != nil {
			f.t.Fatalf("AddMember: %v", err)
		}
	}
	return f.commit(meta)
}

func TestCommitEndToEndShape(t *testing.T) {
	f := newFixture(t)
	data := f.blob(16)

	meta := objmeta.New("bytes")
	meta.SetAttribute("length", 16)
	meta.AddMember("data", data)
	root := f.commit(meta)

	if root.TypeName != "bytes" || root.NBytes != 16 || root.Instance != 1 {
		t.Errorf("root = %+v", root)
	}
	if root.ID.IsBlob() || !root.ID.Valid() {
		t.Errorf("root id %s", root.ID)
	}

	closure, err := f.catalog.Closure(root.ID)
	if err != nil {
		t.Fatalf("Closure: %v", err)
	}
	fetched, err := objmeta.FromRecords(root.ID, closure, 1)
	if err != nil {
		t.Fatalf("FromRecords: %v", err)
	}
	member, err := fetched.GetMember("data")
	if err != nil || member.ID() != data || member.NBytes() != 16 {
		t.Errorf("member data = %v, %v", member, err)
	}
}

func TestCommitDiamondCountsSharedBlobOnce(t *testing.T) {
	f := newFixture(t)
	sharedBlob := f.blob(100)
	ownBlob := f.blob(7)

	b := f.object("B", map[string]objectid.ObjectID{"payload": sharedBlob})
	if b.NBytes != 100 {
		t.Fatalf("B.NBytes = %d", b.NBytes)
	}
	left := f.object("left", map[string]objectid.ObjectID{"b": b.ID})
	right := f.object("right", map[string]objectid.ObjectID{"b": b.ID})

	a := f.object("A", map[string]objectid.ObjectID{"left": left.ID, "right": right.ID, "own": ownBlob})
	if a.NBytes != 107 {
		t.Errorf("A.NBytes = %d, want 107", a.NBytes)
	}
}

func TestCommitDiamondWithinOneDraft(t *testing.T) {
	f := newFixture(t)
	sharedBlob := f.blob(40)

	shared := objmeta.New("shared")
	shared.AddMember("blob", sharedBlob)
	left := objmeta.New("left")
	left.AddMember("s", shared)
	right := objmeta.New("right")
	right.AddMember("s", shared)
	root := objmeta.New("root")
	root.AddMember("left", left)
	root.AddMember("right", right)

	draft, _ := objmeta.NewDraft(root)
	records, err := f.catalog.Commit(draft, nil)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("created %d records, want 4", len(records))
	}
	if got := records[len(records)-1].NBytes; got != 40 {
		t.Errorf("root NBytes = %d, want 40", got)
	}
}

func TestCommitValidatesBeforeMutating(t *testing.T) {
	f := newFixture(t)
	good := f.blob(8)
	before := f.catalog.Len()

	child := objmeta.New("child")
	child.AddMember("data", good)
	root := objmeta.New("root")
	root.AddMember("child", child)
	root.AddMember("dangling", objectid.ObjectID(0x8000000000000999))

	draft, _ := objmeta.NewDraft(root)
	_, err := f.catalog.Commit(draft, nil)
	if !errors.Is(err, storeerr.ErrInvalidReference) {
		t.Fatalf("Commit with dangling member = %v, want InvalidReference", err)
	}
	if f.catalog.Len() != before {
		t.Errorf("failed commit changed the catalog: %d records, want %d", f.catalog.Len(), before)
	}
}

func TestCommitResolvesVisibleMembers(t *testing.T) {
	f := newFixture(t)
	remote, err := objectid.NewGenerator(2, time.Now)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	remoteBlob, _ := remote.NextBlob()
	remoteObject, _ := remote.NextObject()
	visible := map[objectid.ObjectID][]objmeta.Record{
		remoteObject: {
			{ID: remoteBlob, TypeName: objmeta.BlobTypeName, NBytes: 100, Instance: 2, Persisted: true},
			{ID: remoteObject, TypeName: "remote", NBytes: 100, Instance: 2, Persisted: true,
				Fields: []objmeta.Field{objmeta.MemberField("data", remoteBlob)}},
		},
	}
	resolve := func(id objectid.ObjectID) ([]objmeta.Record, bool) {
		closure, ok := visible[id]
		return closure, ok
	}

	local := f.blob(10)
	root := objmeta.New("pair")
	root.AddMember("local", local)
	root.AddMember("remote", remoteObject)
	draft, _ := objmeta.NewDraft(root)

	if _, err := f.catalog.Commit(draft, nil); !errors.Is(err, storeerr.ErrInvalidReference) {
		t.Fatalf("Commit without resolver = %v, want InvalidReference", err)
	}
	records, err := f.catalog.Commit(draft, resolve)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	created := records[len(records)-1]
	if created.NBytes != 110 {
		t.Errorf("nbytes = %d, want 110 across local and remote blobs", created.NBytes)
	}

	removal, err := f.catalog.Delete([]objectid.ObjectID{created.ID}, DefaultDeleteOptions)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if want := []objectid.ObjectID{local, created.ID}; !slices.Equal(removal.Removed, sortedIDs(want)) {
		t.Errorf("removed = %v, want %v; remote members are never owned", removal.Removed, want)
	}
}

func sortedIDs(ids []objectid.ObjectID) []objectid.ObjectID {
	return slices.Sorted(slices.Values(ids))
}

func TestCommitRejectsForwardNodeReference(t *testing.T) {
	f := newFixture(t)
	forward := 1
	draft := &objmeta.Draft{Nodes: []objmeta.DraftNode{
		{TypeName: "a", Fields: []objmeta.DraftField{{Key: "next", Node: &forward}}},
		{TypeName: "b"},
	}}
	if _, err := f.catalog.Commit(draft, nil); !errors.Is(err, storeerr.ErrInvalidReference) {
		t.Errorf("Commit = %v, want InvalidReference", err)
	}
	if _, err := f.catalog.Commit(&objmeta.Draft{}, nil); !errors.Is(err, storeerr.ErrInvalidArgument) {
		t.Errorf("Commit(empty) = %v, want InvalidArgument", err)
	}
}

func TestCommitAcceptsEmptyBlob(t *testing.T) {
	f := newFixture(t)
	root := f.object("empty", map[string]objectid.ObjectID{"data": objectid.EmptyBlobID})
	if root.NBytes != 0 {
		t.Errorf("NBytes = %d, want 0", root.NBytes)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.blob(1)
	var tensors []objectid.ObjectID
	for range 7 {
		tensors = append(tensors, f.object("vineyard::Tensor", nil).ID)
	}
	frame := f.object("vineyard::DataFrame", nil)

	ids, err := f.catalog.List("vineyard::Tensor", false, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !slices.Equal(ids, tensors[:DefaultListLimit]) {
		t.Errorf("List default limit = %v, want first %d tensors", ids, DefaultListLimit)
	}

	ids, _ = f.catalog.List("*", false, 100)
	if len(ids) != 8 {
		t.Errorf("List(*) returned %d, want 8 (blobs excluded)", len(ids))
	}

	ids, _ = f.catalog.List(".*Frame", true, 10)
	if len(ids) != 1 || ids[0] != frame.ID {
		t.Errorf("List(regex) = %v, want [%s]", ids, frame.ID)
	}

	if _, err := f.catalog.List("[", false, 1); !errors.Is(err, storeerr.ErrInvalidArgument) {
		t.Errorf("List(bad glob) = %v", err)
	}
}

func TestPersistMarksClosure(t *testing.T) {
	f := newFixture(t)
	data := f.blob(4)
	root := f.object("bytes", map[string]objectid.ObjectID{"data": data})

	closure, err := f.catalog.Persist(root.ID)
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(closure) != 2 {
		t.Fatalf("closure has %d records", len(closure))
	}
	for _, id := range []objectid.ObjectID{root.ID, data} {
		record, _ := f.catalog.Get(id)
		if !record.Persisted {
			t.Errorf("%s not persisted", id)
		}
	}
	if _, err := f.catalog.Persist(root.ID); err != nil {
		t.Errorf("second Persist: %v", err)
	}
	if _, err := f.catalog.Persist(0x1234); !errors.Is(err, storeerr.ErrNotFound) {
		t.Errorf("Persist(absent) = %v, want NotFound", err)
	}
}

func TestShallowCopy(t *testing.T) {
	f := newFixture(t)
	data := f.blob(16)
	meta := objmeta.New("bytes")
	meta.SetAttribute("label", "original")
	meta.AddMember("data", data)
	source := f.commit(meta)

	copied, err := f.catalog.ShallowCopy(source.ID, map[string]any{"label": "copy", "extra": 3})
	if err != nil {
		t.Fatalf("ShallowCopy: %v", err)
	}
	if copied.ID == source.ID {
		t.Error("copy reuses the source id")
	}
	if copied.Signature != source.Signature {
		t.Error("copy has a different signature")
	}
	fetched, _ := objmeta.FromRecords(copied.ID, []objmeta.Record{copied}, 1)
	if label, _ := fetched.GetString("label"); label != "copy" {
		t.Errorf("label = %q", label)
	}
	if id, _ := fetched.GetMemberID("data"); id != data {
		t.Errorf("copy's data = %s, want the same blob %s", id, data)
	}
	if got := f.catalog.Referrers(data); len(got) != 2 {
		t.Errorf("blob referrers = %v, want source and copy", got)
	}
}

func TestShallowCopyRejects(t *testing.T) {
	f := newFixture(t)
	data := f.blob(16)
	source := f.object("bytes", map[string]objectid.ObjectID{"data": data})
	before := f.catalog.Len()

	tests := []struct {
		name  string
		id    objectid.ObjectID
		extra map[string]any
		want  *storeerr.Error
	}{
		{"nested value", source.ID, map[string]any{"k": map[string]any{"a": 1}}, storeerr.ErrInvalidMetadataValue},
		{"slice value", source.ID, map[string]any{"k": []int{1}}, storeerr.ErrInvalidMetadataValue},
		{"replaces member", source.ID, map[string]any{"data": "x"}, storeerr.ErrInvalidMetadataValue},
		{"reserved key", source.ID, map[string]any{"typename": "x"}, storeerr.ErrInvalidArgument},
		{"blob source", data, nil, storeerr.ErrInvalidArgument},
		{"absent source", 0x4242, nil, storeerr.ErrNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := f.catalog.ShallowCopy(test.id, test.extra)
			if !errors.Is(err, test.want) {
				t.Errorf("ShallowCopy = %v, want %v", err, test.want.Kind)
			}
		})
	}
	if f.catalog.Len() != before {
		t.Errorf("rejected copies changed the catalog")
	}
}

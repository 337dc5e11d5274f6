// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objmeta

import (
	"errors"
	"testing"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
)

func TestDraftOrdersChildrenFirst(t *testing.T) {
	child := New("child")
	child.AddMember("data", objectid.ObjectID(0x8000000000000001))
	root := New("root")
	root.SetAttribute("label", "x")
	root.AddMember("child", child)

	draft, err := NewDraft(root)
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if len(draft.Nodes) != 2 {
		t.Fatalf("draft has %d nodes, want 2", len(draft.Nodes))
	}
	if draft.Nodes[0].TypeName != "child" || draft.Nodes[draft.Root()].TypeName != "root" {
		t.Errorf("node order = %s, %s", draft.Nodes[0].TypeName, draft.Nodes[1].TypeName)
	}
	reference := draft.Nodes[1].Fields[1]
	if reference.Node == nil || *reference.Node != 0 {
		t.Errorf("root's child field = %+v, want node 0", reference)
	}
	blob := draft.Nodes[0].Fields[0]
	if blob.Member == nil || *blob.Member != 0x8000000000000001 {
		t.Errorf("child's data field = %+v", blob)
	}
}

func TestDraftSharedSiblingEmittedOnce(t *testing.T) {
	shared := New("shared")
	left := New("left")
	left.AddMember("s", shared)
	right := New("right")
	right.AddMember("s", shared)
	root := New("root")
	root.AddMember("left", left)
	root.AddMember("right", right)

	draft, err := NewDraft(root)
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if len(draft.Nodes) != 4 {
		t.Fatalf("draft has %d nodes, want 4", len(draft.Nodes))
	}
	if *draft.Nodes[1].Fields[0].Node != *draft.Nodes[2].Fields[0].Node {
		t.Error("left and right reference different nodes for the shared sibling")
	}
}

func TestDraftRejectsCycle(t *testing.T) {
	first := New("first")
	second := New("second")
	first.AddMember("next", second)
	second.AddMember("back", first)

	if _, err := NewDraft(first); !errors.Is(err, storeerr.ErrInvalidReference) {
		t.Errorf("NewDraft(cycle) = %v, want InvalidReference", err)
	}

	self := New("self")
	self.AddMember("me", self)
	if _, err := NewDraft(self); !errors.Is(err, storeerr.ErrInvalidReference) {
		t.Errorf("NewDraft(self-reference) = %v, want InvalidReference", err)
	}
}

func TestDraftReferencesFetchedMembersByID(t *testing.T) {
	fetched := fetchedFixture(t)
	root := New("wrapper")
	root.AddMember("inner", fetched)

	draft, err := NewDraft(root)
	if err != nil {
		t.Fatalf("NewDraft: %v", err)
	}
	if len(draft.Nodes) != 1 {
		t.Fatalf("draft has %d nodes, want 1", len(draft.Nodes))
	}
	field := draft.Nodes[0].Fields[0]
	if field.Member == nil || *field.Member != fetched.ID() {
		t.Errorf("inner field = %+v, want member %s", field, fetched.ID())
	}
}

func TestAddMemberRejectsInvalid(t *testing.T) {
	meta := New("x")
	if err := meta.AddMember("m", objectid.InvalidObjectID); !errors.Is(err, storeerr.ErrInvalidReference) {
		t.Errorf("AddMember(invalid id) = %v", err)
	}
	if err := meta.AddMember("m", "not a reference"); !errors.Is(err, storeerr.ErrInvalidArgument) {
		t.Errorf("AddMember(string) = %v", err)
	}
}

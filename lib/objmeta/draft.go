// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objmeta

import (
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// Draft is a building graph flattened for commit. Nodes are ordered so
// that every node appears after every node it references; the root is
// last.
type Draft struct {
	Nodes []DraftNode `cbor:"nodes"`
}

// DraftNode is one object to create.
type DraftNode struct {
	TypeName string       `cbor:"typename"`
	Global   bool         `cbor:"global,omitempty"`
	Fields   []DraftField `cbor:"fields,omitempty"`
}

// DraftField is one key of a draft node. Exactly one of three shapes:
// a scalar (Member and Node nil), a reference to a committed object
// (Member set), or a reference to an earlier node of the same draft
// (Node set).
type DraftField struct {
	Key    string             `cbor:"key"`
	Value  string             `cbor:"value,omitempty"`
	Member *objectid.ObjectID `cbor:"member,omitempty"`
	Node   *int               `cbor:"node,omitempty"`
}

// Root returns the index of the root node.
func (d *Draft) Root() int {
	return len(d.Nodes) - 1
}

// NewDraft flattens building metadata and every building member it
// reaches. A builder shared by several parents becomes one node. A
// cycle among builders fails with InvalidReference.
func NewDraft(root *ObjectMeta) (*Draft, error) {
	if root == nil {
		return nil, storeerr.New(storeerr.InvalidArgument, "nil metadata")
	}
	if root.provenance != Building {
		return nil, storeerr.New(storeerr.AlreadySealed, "metadata of %s is already committed", root.id)
	}

	const visiting = -1
	draft := &Draft{}
	index := make(map[*ObjectMeta]int)

	var visit func(node *ObjectMeta, path string) (int, error)
	visit = func(node *ObjectMeta, path string) (int, error) {
		if position, seen := index[node]; seen {
			if position == visiting {
				return 0, storeerr.New(storeerr.InvalidReference, "members form a cycle at %s", path)
			}
			return position, nil
		}
		index[node] = visiting

		out := DraftNode{TypeName: node.typeName, Global: node.global}
		for _, key := range node.keys {
			f := node.fields[key]
			switch {
			case !f.isMember:
				out.Fields = append(out.Fields, DraftField{Key: key, Value: f.value})
			case f.member != nil && f.member.provenance == Building:
				child, err := visit(f.member, path+"."+key)
				if err != nil {
					return 0, err
				}
				out.Fields = append(out.Fields, DraftField{Key: key, Node: &child})
			default:
				id := f.memberID
				if f.member != nil {
					id = f.member.id
				}
				out.Fields = append(out.Fields, DraftField{Key: key, Member: &id})
			}
		}

		position := len(draft.Nodes)
		draft.Nodes = append(draft.Nodes, out)
		index[node] = position
		return position, nil
	}

	if _, err := visit(root, rootLabel(root)); err != nil {
		return nil, err
	}
	return draft, nil
}

func rootLabel(meta *ObjectMeta) string {
	if meta.typeName == "" {
		return "<root>"
	}
	return meta.typeName
}

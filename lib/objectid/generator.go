// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectid

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

const (
	sequenceBits = 53
	sequenceMask = 1<<sequenceBits - 1
	instanceBits = 10
	instanceMask = 1<<instanceBits - 1
)

// signatureDomain separates signature hashes from any other BLAKE3 use.
var signatureDomain = [32]byte{
	'v', '6', 'd', '.', 'o', 'b', 'j', 'e', 'c', 't', '.',
	's', 'i', 'g', 'n', 'a', 't', 'u', 'r', 'e',
}

// Generator issues identifiers and signatures for one instance.
//
// The sequence starts at the current wall-clock time in microseconds and
// is incremented for every identifier. If the clock is ahead of the
// sequence, the sequence jumps forward to it; it never moves back. A
// restarted instance therefore continues above anything it issued
// before, as long as it issued fewer than one identifier per microsecond
// on average.
//
// Generator is safe for concurrent use.
type Generator struct {
	instance InstanceID
	now      func() time.Time

	mu       sync.Mutex
	sequence uint64
	hasher   *blake3.Hasher
}

// NewGenerator returns a generator for the given instance. now supplies
// wall-clock time; pass a clock's Now method.
func NewGenerator(instance InstanceID, now func() time.Time) (*Generator, error) {
	if instance > MaxInstanceID {
		return nil, fmt.Errorf("instance id %d exceeds maximum %d", instance, MaxInstanceID)
	}
	hasher, err := blake3.NewKeyed(signatureDomain[:])
	if err != nil {
		return nil, fmt.Errorf("initializing signature hasher: %w", err)
	}
	return &Generator{
		instance: instance,
		now:      now,
		hasher:   hasher,
	}, nil
}

// Instance returns the instance the generator issues for.
func (g *Generator) Instance() InstanceID {
	return g.instance
}

// NextObject issues an identifier for a composite object together with
// its signature.
func (g *Generator) NextObject() (ObjectID, Signature) {
	return g.next(0)
}

// NextBlob issues an identifier for a blob together with its signature.
func (g *Generator) NextBlob() (ObjectID, Signature) {
	return g.next(blobBit)
}

func (g *Generator) next(kind ObjectID) (ObjectID, Signature) {
	g.mu.Lock()
	defer g.mu.Unlock()

	wall := uint64(g.now().UnixMicro()) & sequenceMask
	if wall > g.sequence {
		g.sequence = wall
	} else {
		g.sequence = (g.sequence + 1) & sequenceMask
	}
	// The empty-blob sentinel is instance 0, sequence 0.
	if g.sequence == 0 {
		g.sequence = 1
	}

	id := kind | ObjectID(uint64(g.instance)<<sequenceBits) | ObjectID(g.sequence)
	return id, g.sign(id)
}

// sign derives the signature of a freshly issued id. Must be called with
// g.mu held: the hasher is reused.
func (g *Generator) sign(id ObjectID) Signature {
	var input [16]byte
	binary.BigEndian.PutUint64(input[:8], uint64(id))
	binary.BigEndian.PutUint64(input[8:], uint64(g.now().UnixNano()))

	g.hasher.Reset()
	g.hasher.Write(input[:])
	var digest [32]byte
	g.hasher.Sum(digest[:0])
	// Signatures share the text form of ids; clear the blob bit so a
	// signature is never mistaken for a blob id when printed.
	return Signature(binary.BigEndian.Uint64(digest[:8]) &^ uint64(blobBit))
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package client

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/shm"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/wire"
)

// DefaultCopyConcurrency is the number of workers Copy uses when the
// caller passes no concurrency.
const DefaultCopyConcurrency = 6

// parallelCopyThreshold is the smallest copy split across workers.
const parallelCopyThreshold = 4 << 20

// IPCClient is a session with a colocated instance. It maps the
// instance's arena, so blob contents are read and written in place.
type IPCClient struct {
	*base
	mapping *shm.Mapping
}

var _ Client = (*IPCClient)(nil)

// ConnectIPC registers a session on the instance listening at socket
// and maps its arena.
func ConnectIPC(ctx context.Context, socket string, options Options) (*IPCClient, error) {
	session, err := open(ctx, "unix", socket, wire.IPC, options)
	if err != nil {
		return nil, err
	}
	mapping, err := shm.Open(session.session.ArenaPath, session.session.ArenaSize)
	if err != nil {
		session.close()
		return nil, storeerr.New(storeerr.ConnectionFailed, "mapping the arena of %s: %v", socket, err)
	}
	return &IPCClient{base: session, mapping: mapping}, nil
}

// Close ends the session and unmaps the arena. Builders the session
// still holds are aborted by the instance. Views returned by GetBlob
// must not be used afterwards.
func (c *IPCClient) Close() error {
	return errors.Join(c.close(), c.mapping.Close())
}

func (c *IPCClient) view(buffer wire.Buffer) ([]byte, error) {
	if buffer.Size == 0 {
		return nil, nil
	}
	data, err := c.mapping.Bytes(buffer.Offset, buffer.Size)
	if err != nil {
		return nil, storeerr.New(storeerr.Internal, "blob %s: %v", buffer.ID, err)
	}
	return data, nil
}

// CreateBlob allocates a builder of size bytes in the arena. A zero
// size returns the empty-blob builder without allocating.
func (c *IPCClient) CreateBlob(ctx context.Context, size int64) (*BlobBuilder, error) {
	if size == 0 {
		return c.CreateEmptyBlob(), nil
	}
	if size < 0 {
		return nil, storeerr.New(storeerr.InvalidArgument, "blob size %d is negative", size)
	}
	var buffer wire.Buffer
	if err := c.call(ctx, wire.ActionCreateBuffer, wire.CreateBufferRequest{Size: size}, &buffer); err != nil {
		return nil, err
	}
	data, err := c.view(buffer)
	if err != nil {
		return nil, err
	}
	return &BlobBuilder{client: c, id: buffer.ID, offset: buffer.Offset, size: buffer.Size, data: data}, nil
}

// CreateEmptyBlob returns a builder for the zero-length blob. Every
// empty blob shares one reserved id and no arena space.
func (c *IPCClient) CreateEmptyBlob() *BlobBuilder {
	return &BlobBuilder{client: c, id: objectid.EmptyBlobID}
}

// GetBlob returns a zero-copy view of a blob. With unsafe set a blob
// still being written is returned as well; the reader accepts torn
// reads.
func (c *IPCClient) GetBlob(ctx context.Context, id objectid.ObjectID, unsafe bool) (*Blob, error) {
	blobs, err := c.GetBlobs(ctx, []objectid.ObjectID{id}, unsafe)
	if err != nil {
		return nil, err
	}
	return blobs[0], nil
}

// GetBlobs returns views of every blob in ids, in order.
func (c *IPCClient) GetBlobs(ctx context.Context, ids []objectid.ObjectID, unsafe bool) ([]*Blob, error) {
	var response wire.GetBuffersResponse
	if err := c.call(ctx, wire.ActionGetBuffers, wire.GetBuffersRequest{IDs: ids, Unsafe: unsafe}, &response); err != nil {
		return nil, err
	}
	if len(response.Buffers) != len(ids) {
		return nil, storeerr.New(storeerr.Internal, "get_buffers returned %d of %d blobs", len(response.Buffers), len(ids))
	}
	blobs := make([]*Blob, 0, len(ids))
	for _, buffer := range response.Buffers {
		data, err := c.view(buffer)
		if err != nil {
			return nil, err
		}
		blob := &Blob{id: buffer.ID, data: data}
		if len(data) > 0 {
			blob.address = c.mapping.Address(buffer.Offset)
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

// AllocatedSize returns the arena bytes reserved for id: the blob's
// reservation, or the sum over every distinct blob an object reaches.
func (c *IPCClient) AllocatedSize(ctx context.Context, id objectid.ObjectID) (int64, error) {
	var response wire.SizeResponse
	if err := c.call(ctx, wire.ActionAllocatedSize, wire.BufferRequest{ID: id}, &response); err != nil {
		return 0, err
	}
	return response.Size, nil
}

// IsSharedMemory reports whether address points into the arena.
func (c *IPCClient) IsSharedMemory(address uintptr) bool {
	return c.mapping.Contains(address)
}

// FindSharedMemory returns the blob whose bytes contain address.
func (c *IPCClient) FindSharedMemory(ctx context.Context, address uintptr) (objectid.ObjectID, error) {
	offset, ok := c.mapping.Offset(address)
	if !ok {
		return objectid.InvalidObjectID, storeerr.New(storeerr.NotFound, "address %#x is outside the arena", address)
	}
	var response wire.ObjectResponse
	if err := c.call(ctx, wire.ActionFindBuffer, wire.FindBufferRequest{Offset: offset}, &response); err != nil {
		return objectid.InvalidObjectID, err
	}
	return response.ID, nil
}

// builderState is the lifecycle position of a BlobBuilder.
type builderState int

const (
	building builderState = iota
	sealed
	aborted
)

// BlobBuilder is the write phase of a blob. It belongs to the session
// that created it until Seal or Abort. Writes to disjoint ranges may
// run concurrently; overlapping concurrent writes are not arbitrated.
type BlobBuilder struct {
	client *IPCClient
	id     objectid.ObjectID
	offset int64

	mu    sync.RWMutex
	state builderState
	size  int64
	data  []byte
}

func (b *BlobBuilder) ID() objectid.ObjectID { return b.id }

// Size returns the current logical size.
func (b *BlobBuilder) Size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Bytes returns the writable mapped bytes, or nil once the builder is
// sealed or aborted.
func (b *BlobBuilder) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != building {
		return nil
	}
	return b.data[:b.size]
}

// Address returns the address of the first byte in this process; 0 for
// the empty blob.
func (b *BlobBuilder) Address() uintptr {
	if b.data == nil {
		return 0
	}
	return b.client.mapping.Address(b.offset)
}

// writable checks that [offset, offset+length) can be written. Callers
// hold mu for reading.
func (b *BlobBuilder) writable(offset, length int64) error {
	switch b.state {
	case sealed:
		return storeerr.New(storeerr.AlreadySealed, "blob %s is already sealed", b.id)
	case aborted:
		return storeerr.New(storeerr.InvalidArgument, "blob %s was aborted", b.id)
	}
	if offset < 0 || length < 0 || offset+length > b.size {
		return storeerr.New(storeerr.OutOfRange,
			"write [%d, %d) outside blob %s of %d bytes", offset, offset+length, b.id, b.size)
	}
	return nil
}

// WriteAt copies p into the blob at offset.
func (b *BlobBuilder) WriteAt(p []byte, offset int64) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.writable(offset, int64(len(p))); err != nil {
		return 0, err
	}
	return copy(b.data[offset:], p), nil
}

// Copy writes source into the blob at offset. Large copies are split
// into concurrency disjoint ranges written in parallel; a concurrency
// of zero or less uses DefaultCopyConcurrency.
func (b *BlobBuilder) Copy(offset int64, source []byte, concurrency int) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	length := int64(len(source))
	if err := b.writable(offset, length); err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = DefaultCopyConcurrency
	}
	if concurrency == 1 || length < parallelCopyThreshold {
		copy(b.data[offset:], source)
		return nil
	}

	destination := b.data[offset : offset+length]
	chunk := (length + int64(concurrency) - 1) / int64(concurrency)
	var group errgroup.Group
	group.SetLimit(concurrency)
	for start := int64(0); start < length; start += chunk {
		end := min(start+chunk, length)
		group.Go(func() error {
			copy(destination[start:end], source[start:end])
			return nil
		})
	}
	return group.Wait()
}

// Shrink reduces the logical size before sealing. The released tail
// returns to the arena.
func (b *BlobBuilder) Shrink(ctx context.Context, size int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writable(0, 0); err != nil {
		return err
	}
	if size > b.size || size < 0 {
		return storeerr.New(storeerr.OutOfRange, "blob %s can only shrink: size %d, requested %d", b.id, b.size, size)
	}
	if b.id.IsEmptyBlob() {
		return nil
	}
	var buffer wire.Buffer
	request := wire.ShrinkBufferRequest{ID: b.id, Size: size}
	if err := b.client.call(ctx, wire.ActionShrinkBuffer, request, &buffer); err != nil {
		return err
	}
	b.size = buffer.Size
	return nil
}

// Seal makes the blob immutable and readable by id. The builder is
// unusable afterwards.
func (b *BlobBuilder) Seal(ctx context.Context) (*Blob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writable(0, 0); err != nil {
		return nil, err
	}
	if !b.id.IsEmptyBlob() {
		var buffer wire.Buffer
		if err := b.client.call(ctx, wire.ActionSealBuffer, wire.BufferRequest{ID: b.id}, &buffer); err != nil {
			return nil, err
		}
	}
	b.state = sealed
	blob := &Blob{id: b.id}
	if b.size > 0 {
		blob.data = b.data[:b.size:b.size]
		blob.address = b.client.mapping.Address(b.offset)
	}
	return blob, nil
}

// Abort releases the builder's allocation without publishing it.
func (b *BlobBuilder) Abort(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case sealed:
		return storeerr.New(storeerr.AlreadySealed, "blob %s is already sealed", b.id)
	case aborted:
		return nil
	}
	if !b.id.IsEmptyBlob() {
		if err := b.client.call(ctx, wire.ActionAbortBuffer, wire.BufferRequest{ID: b.id}, nil); err != nil {
			return err
		}
	}
	b.state = aborted
	return nil
}

// Blob is a sealed blob viewed in place in the arena. Its bytes are
// valid until the owning client is closed and must not be modified.
type Blob struct {
	id      objectid.ObjectID
	address uintptr
	data    []byte
}

func (b *Blob) ID() objectid.ObjectID { return b.id }
func (b *Blob) Size() int64           { return int64(len(b.data)) }
func (b *Blob) IsEmpty() bool         { return len(b.data) == 0 }

// Bytes returns the mapped contents without copying.
func (b *Blob) Bytes() []byte { return b.data }

// Address returns the address of the first byte; 0 for an empty blob.
func (b *Blob) Address() uintptr { return b.address }

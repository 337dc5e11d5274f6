// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"unsafe"

	"github.com/jellydator/ttlcache/v3"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/wire"
)

// RPCClient is a session with an instance over TCP. Blob contents are
// copied over the connection.
type RPCClient struct {
	*base
}

var _ Client = (*RPCClient)(nil)

// ConnectRPC registers a session on the instance at host:port.
func ConnectRPC(ctx context.Context, host string, port int, options Options) (*RPCClient, error) {
	return ConnectRPCEndpoint(ctx, net.JoinHostPort(host, strconv.Itoa(port)), options)
}

// ConnectRPCEndpoint registers a session on the instance at endpoint,
// a host:port pair.
func ConnectRPCEndpoint(ctx context.Context, endpoint string, options Options) (*RPCClient, error) {
	session, err := open(ctx, "tcp", endpoint, wire.RPC, options)
	if err != nil {
		return nil, err
	}
	ttl := options.MetaCacheTTL
	if ttl == 0 {
		ttl = DefaultMetaCacheTTL
	}
	if ttl > 0 {
		session.metas = ttlcache.New[objectid.ObjectID, *objmeta.ObjectMeta](
			ttlcache.WithTTL[objectid.ObjectID, *objmeta.ObjectMeta](ttl),
			ttlcache.WithDisableTouchOnHit[objectid.ObjectID, *objmeta.ObjectMeta](),
		)
	}
	return &RPCClient{base: session}, nil
}

// Close ends the session.
func (c *RPCClient) Close() error {
	return c.close()
}

// RemoteInstanceID returns the id of the connected instance.
func (c *RPCClient) RemoteInstanceID() objectid.InstanceID {
	return c.session.InstanceID
}

// IsFetchable reports whether the blobs of meta can be fetched through
// this session: only the instance that owns an object serves its blobs.
func (c *RPCClient) IsFetchable(meta *objmeta.ObjectMeta) bool {
	return meta != nil && meta.InstanceID() == c.session.InstanceID
}

// CreateRemoteBlob sends the builder's contents once; the instance
// stores and seals them. Changes to the builder afterwards do not reach
// the stored blob.
func (c *RPCClient) CreateRemoteBlob(ctx context.Context, builder *RemoteBlobBuilder) (objectid.ObjectID, error) {
	data, err := builder.snapshot()
	if err != nil {
		return objectid.InvalidObjectID, err
	}
	payload, err := wire.EncodePayload(data, c.session.Compression)
	if err != nil {
		return objectid.InvalidObjectID, err
	}
	var buffer wire.Buffer
	if err := c.call(ctx, wire.ActionCreateRemoteBuffer, wire.CreateRemoteBufferRequest{Payload: payload}, &buffer); err != nil {
		return objectid.InvalidObjectID, err
	}
	return buffer.ID, nil
}

// GetRemoteBlob fetches one blob's contents.
func (c *RPCClient) GetRemoteBlob(ctx context.Context, id objectid.ObjectID, unsafe bool) (*RemoteBlob, error) {
	blobs, err := c.GetRemoteBlobs(ctx, []objectid.ObjectID{id}, unsafe)
	if err != nil {
		return nil, err
	}
	return blobs[0], nil
}

// GetRemoteBlobs fetches the contents of every blob in ids, in order.
// With unsafe set blobs still being written are copied as they are.
func (c *RPCClient) GetRemoteBlobs(ctx context.Context, ids []objectid.ObjectID, unsafe bool) ([]*RemoteBlob, error) {
	var response wire.GetRemoteBuffersResponse
	if err := c.call(ctx, wire.ActionGetRemoteBuffers, wire.GetBuffersRequest{IDs: ids, Unsafe: unsafe}, &response); err != nil {
		return nil, err
	}
	if len(response.Buffers) != len(ids) {
		return nil, storeerr.New(storeerr.Internal, "get_remote_buffers returned %d of %d blobs", len(response.Buffers), len(ids))
	}
	blobs := make([]*RemoteBlob, 0, len(ids))
	for _, buffer := range response.Buffers {
		data, err := buffer.Payload.Decode()
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, &RemoteBlob{id: buffer.ID, instance: c.session.InstanceID, data: data})
	}
	return blobs, nil
}

// RemoteBlobBuilder holds blob contents in process memory until they
// are sent with CreateRemoteBlob.
type RemoteBlobBuilder struct {
	mu      sync.Mutex
	data    []byte
	aborted bool
}

// NewRemoteBlobBuilder allocates a zeroed builder of size bytes.
func NewRemoteBlobBuilder(size int64) *RemoteBlobBuilder {
	return &RemoteBlobBuilder{data: make([]byte, size)}
}

// WrapRemoteBlobBuilder uses data as the builder's contents without
// copying.
func WrapRemoteBlobBuilder(data []byte) *RemoteBlobBuilder {
	return &RemoteBlobBuilder{data: data}
}

func (b *RemoteBlobBuilder) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.data))
}

// Bytes returns the contents, writable until the builder is aborted.
func (b *RemoteBlobBuilder) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Copy writes source into the builder at offset.
func (b *RemoteBlobBuilder) Copy(offset int64, source []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return storeerr.New(storeerr.InvalidArgument, "remote blob builder was aborted")
	}
	end := offset + int64(len(source))
	if offset < 0 || end > int64(len(b.data)) {
		return storeerr.New(storeerr.OutOfRange, "write [%d, %d) outside builder of %d bytes", offset, end, len(b.data))
	}
	copy(b.data[offset:], source)
	return nil
}

// Abort drops the contents. The builder can no longer be sent.
func (b *RemoteBlobBuilder) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.aborted = true
	b.data = nil
}

func (b *RemoteBlobBuilder) snapshot() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.aborted {
		return nil, storeerr.New(storeerr.InvalidArgument, "remote blob builder was aborted")
	}
	return b.data, nil
}

// RemoteBlob is a copy of a blob's contents fetched over RPC.
type RemoteBlob struct {
	id       objectid.ObjectID
	instance objectid.InstanceID
	data     []byte
}

func (b *RemoteBlob) ID() objectid.ObjectID {
	return b.id
}

// InstanceID returns the instance the blob was fetched from.
func (b *RemoteBlob) InstanceID() objectid.InstanceID {
	return b.instance
}

func (b *RemoteBlob) Size() int64 {
	return int64(len(b.data))
}

func (b *RemoteBlob) IsEmpty() bool {
	return len(b.data) == 0
}

func (b *RemoteBlob) Bytes() []byte {
	return b.data
}

// Address returns the address of the copy's first byte in this
// process; 0 for an empty blob.
func (b *RemoteBlob) Address() uintptr {
	if len(b.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b.data)))
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/BSWANG/v6d/lib/clock"
	"github.com/BSWANG/v6d/lib/cluster"
	"github.com/BSWANG/v6d/lib/instance"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/server"
	"github.com/BSWANG/v6d/lib/shm"
	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/testutil"
	"github.com/BSWANG/v6d/lib/wire"
)

const testArenaSize = 32 << 20

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// endpoints are the listeners of one running test instance.
type endpoints struct {
	socket string
	rpc    string
}

// startInstance runs an instance serving IPC and RPC until the test
// ends.
func startInstance(t *testing.T, id objectid.InstanceID) endpoints {
	t.Helper()
	arena, err := shm.Create(testutil.ArenaPath(t), testArenaSize)
	if err != nil {
		t.Fatalf("creating arena: %v", err)
	}
	t.Cleanup(func() { arena.Close() })

	registry := cluster.NewMemory(clock.Real(), 0)
	inst, err := instance.New(context.Background(), instance.Config{
		Info:     cluster.InstanceInfo{ID: id, Hostname: "client-test"},
		Arena:    arena,
		Registry: registry,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("instance.New: %v", err)
	}

	socket := filepath.Join(testutil.SocketDir(t), "v6d.sock")
	ipcListener, err := server.Listen(wire.IPC, socket)
	if err != nil {
		t.Fatalf("Listen ipc: %v", err)
	}
	rpcListener, err := server.Listen(wire.RPC, "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen rpc: %v", err)
	}
	result := endpoints{socket: socket, rpc: rpcListener.Addr().String()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	serve := func(kind wire.SessionKind, listener net.Listener) {
		srv := server.New(server.Config{
			Kind:        kind,
			Instance:    inst,
			Version:     "test",
			IPCSocket:   result.socket,
			RPCEndpoint: result.rpc,
			Logger:      testLogger(),
		})
		go func() {
			defer func() { done <- struct{}{} }()
			srv.Serve(ctx, listener)
		}()
	}
	serve(wire.IPC, ipcListener)
	serve(wire.RPC, rpcListener)
	t.Cleanup(func() {
		cancel()
		for range 2 {
			testutil.RequireReceive(t, done, 5*time.Second, "server shutdown")
		}
	})
	return result
}

func connectIPC(t *testing.T, socket string) *IPCClient {
	t.Helper()
	c, err := ConnectIPC(context.Background(), socket, Options{Logger: testLogger()})
	if err != nil {
		t.Fatalf("ConnectIPC: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func connectRPC(t *testing.T, endpoint string, options Options) *RPCClient {
	t.Helper()
	options.Logger = testLogger()
	c, err := ConnectRPCEndpoint(context.Background(), endpoint, options)
	if err != nil {
		t.Fatalf("ConnectRPCEndpoint: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// bytesObject commits a "bytes" object over one blob.
func bytesObject(t *testing.T, c Client, blob objectid.ObjectID, size int) *objmeta.ObjectMeta {
	t.Helper()
	meta := objmeta.New("bytes")
	if err := meta.AddMember("data", blob); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := meta.SetAttribute("size", size); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	committed, err := c.CreateMetadata(context.Background(), meta)
	if err != nil {
		t.Fatalf("CreateMetadata: %v", err)
	}
	return committed
}

func TestIPCBlobRoundTrip(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	if !c.IsIPC() || c.IsRPC() || c.InstanceID() != 3 || c.Version() != "test" {
		t.Fatalf("session = ipc %v, instance %d, version %q", c.IsIPC(), c.InstanceID(), c.Version())
	}
	if c.IPCSocket() != ep.socket || c.RPCEndpoint() != ep.rpc {
		t.Errorf("endpoints = %q, %q", c.IPCSocket(), c.RPCEndpoint())
	}

	builder, err := c.CreateBlob(ctx, 16)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	data := make([]byte, 16)
	for index := range data {
		data[index] = byte(index)
	}
	if err := builder.Copy(0, data, 0); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	sealed, err := builder.Seal(ctx)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	meta := bytesObject(t, c, sealed.ID(), 16)
	if meta.NBytes() != 16 || meta.Provenance() != objmeta.Fetched || !meta.IsLocal() {
		t.Errorf("committed = nbytes %d, %v, local %v", meta.NBytes(), meta.Provenance(), meta.IsLocal())
	}

	object, err := c.GetObject(ctx, meta.ID())
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	member, err := object.Member("data")
	if err != nil {
		t.Fatalf("Member: %v", err)
	}
	blob, err := c.GetBlob(ctx, member.ID(), false)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if !bytes.Equal(blob.Bytes(), data) {
		t.Errorf("blob = %v, want %v", blob.Bytes(), data)
	}
	if blob.Address() != sealed.Address() || !c.IsSharedMemory(blob.Address()) {
		t.Errorf("address %#x is not the sealed blob's %#x in shared memory", blob.Address(), sealed.Address())
	}
	found, err := c.FindSharedMemory(ctx, blob.Address()+5)
	if err != nil || found != sealed.ID() {
		t.Errorf("FindSharedMemory = %s, %v; want %s", found, err, sealed.ID())
	}
	size, err := c.AllocatedSize(ctx, meta.ID())
	if err != nil || size < 16 {
		t.Errorf("AllocatedSize = %d, %v", size, err)
	}

	outside := make([]byte, 1)
	if c.IsSharedMemory(uintptr(unsafe.Pointer(&outside[0]))) {
		t.Error("a heap address is reported as shared memory")
	}
}

func TestBlobBuilderGuards(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	builder, err := c.CreateBlob(ctx, 100)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	testutil.RequireKind(t, builder.Copy(90, make([]byte, 20), 1), storeerr.OutOfRange)
	if _, err := builder.WriteAt([]byte("tail"), 96); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	testutil.RequireKind(t, builder.Shrink(ctx, 200), storeerr.OutOfRange)
	if err := builder.Shrink(ctx, 40); err != nil {
		t.Fatalf("Shrink: %v", err)
	}
	if builder.Size() != 40 || len(builder.Bytes()) != 40 {
		t.Errorf("size after shrink = %d (%d bytes)", builder.Size(), len(builder.Bytes()))
	}
	testutil.RequireKind(t, builder.Copy(30, make([]byte, 20), 1), storeerr.OutOfRange)

	if _, err := c.GetBlob(ctx, builder.ID(), false); storeerr.KindOf(err) != storeerr.NotSealed {
		t.Errorf("reading an unsealed blob: %v", err)
	}
	if _, err := c.GetBlob(ctx, builder.ID(), true); err != nil {
		t.Errorf("unsafe read of an unsealed blob: %v", err)
	}

	blob, err := builder.Seal(ctx)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if blob.Size() != 40 {
		t.Errorf("sealed size = %d", blob.Size())
	}
	testutil.RequireKind(t, builder.Copy(0, []byte{1}, 1), storeerr.AlreadySealed)
	testutil.RequireKind(t, builder.Abort(ctx), storeerr.AlreadySealed)
	testutil.RequireKind(t, builder.Shrink(ctx, 1), storeerr.AlreadySealed)
	if _, err := builder.Seal(ctx); storeerr.KindOf(err) != storeerr.AlreadySealed {
		t.Errorf("second Seal: %v", err)
	}
	if builder.Bytes() != nil {
		t.Error("sealed builder still exposes writable bytes")
	}
}

func TestBlobBuilderAbortReleasesMemory(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	builder, err := c.CreateBlob(ctx, 4096)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	if err := builder.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if _, err := c.GetBlob(ctx, builder.ID(), true); storeerr.KindOf(err) != storeerr.NotFound {
		t.Errorf("aborted blob: %v", err)
	}
	status, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.MemoryUsage != 0 {
		t.Errorf("memory usage after abort = %d", status.MemoryUsage)
	}

	_, err = c.CreateBlob(ctx, testArenaSize*2)
	testutil.RequireKind(t, err, storeerr.AllocationFailed)
}

func TestParallelCopy(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	source := make([]byte, 9<<20)
	for index := range source {
		source[index] = byte(index * 31)
	}
	builder, err := c.CreateBlob(ctx, int64(len(source))+10)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	if err := builder.Copy(10, source, 4); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	blob, err := builder.Seal(ctx)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !bytes.Equal(blob.Bytes()[10:], source) {
		t.Error("parallel copy corrupted the contents")
	}
}

func TestEmptyBlob(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	builder, err := c.CreateBlob(ctx, 0)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	if builder.ID() != objectid.EmptyBlobID || builder.Address() != 0 {
		t.Errorf("empty builder = %s at %#x", builder.ID(), builder.Address())
	}
	blob, err := builder.Seal(ctx)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !blob.IsEmpty() {
		t.Error("empty blob has contents")
	}
	fetched, err := c.GetBlob(ctx, objectid.EmptyBlobID, false)
	if err != nil || !fetched.IsEmpty() {
		t.Errorf("GetBlob(empty) = %v, %v", fetched, err)
	}
	meta := bytesObject(t, c, objectid.EmptyBlobID, 0)
	if meta.NBytes() != 0 {
		t.Errorf("nbytes over the empty blob = %d", meta.NBytes())
	}
}

func TestRPCRemoteBlobs(t *testing.T) {
	ep := startInstance(t, 5)
	for _, compression := range []wire.Compression{wire.CompressionNone, wire.CompressionLZ4, wire.CompressionZstd} {
		t.Run(string(compression), func(t *testing.T) {
			c := connectRPC(t, ep.rpc, Options{Compression: compression})
			ctx := context.Background()
			if !c.IsRPC() || c.RemoteInstanceID() != 5 {
				t.Fatalf("session = rpc %v, instance %d", c.IsRPC(), c.RemoteInstanceID())
			}

			builder := NewRemoteBlobBuilder(1 << 16)
			if err := builder.Copy(100, bytes.Repeat([]byte("v6d"), 1000)); err != nil {
				t.Fatalf("Copy: %v", err)
			}
			testutil.RequireKind(t, builder.Copy(1<<16-1, []byte("xy")), storeerr.OutOfRange)
			id, err := c.CreateRemoteBlob(ctx, builder)
			if err != nil {
				t.Fatalf("CreateRemoteBlob: %v", err)
			}
			builder.Bytes()[0] = 0xff

			blob, err := c.GetRemoteBlob(ctx, id, false)
			if err != nil {
				t.Fatalf("GetRemoteBlob: %v", err)
			}
			if blob.Size() != 1<<16 || blob.InstanceID() != 5 || blob.Bytes()[0] != 0 {
				t.Errorf("remote blob = %d bytes from %d, first byte %d", blob.Size(), blob.InstanceID(), blob.Bytes()[0])
			}
			if !bytes.Equal(blob.Bytes()[100:3100], bytes.Repeat([]byte("v6d"), 1000)) {
				t.Error("remote blob contents differ")
			}

			meta := bytesObject(t, c, id, 1<<16)
			if !c.IsFetchable(meta) {
				t.Error("object owned by the connected instance is not fetchable")
			}
		})
	}
}

func TestRemoteBlobBuilderAbort(t *testing.T) {
	ep := startInstance(t, 5)
	c := connectRPC(t, ep.rpc, Options{})
	builder := WrapRemoteBlobBuilder([]byte("payload"))
	if builder.Size() != 7 {
		t.Errorf("wrapped size = %d", builder.Size())
	}
	builder.Abort()
	_, err := c.CreateRemoteBlob(context.Background(), builder)
	testutil.RequireKind(t, err, storeerr.InvalidArgument)
}

func TestMetadataCache(t *testing.T) {
	ep := startInstance(t, 5)
	ipc := connectIPC(t, ep.socket)
	rpc := connectRPC(t, ep.rpc, Options{})
	ctx := context.Background()

	builder := WrapRemoteBlobBuilder([]byte("cached"))
	blob, err := rpc.CreateRemoteBlob(ctx, builder)
	if err != nil {
		t.Fatalf("CreateRemoteBlob: %v", err)
	}
	meta := bytesObject(t, rpc, blob, 6)
	first, err := rpc.GetMeta(ctx, meta.ID(), false)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}

	// Deleted behind the RPC client's back: the cache still answers.
	if err := ipc.Delete(ctx, []objectid.ObjectID{meta.ID()}, DeleteOptions{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	cached, err := rpc.GetMeta(ctx, meta.ID(), false)
	if err != nil || cached != first {
		t.Fatalf("cached GetMeta = %p, %v; want %p", cached, err, first)
	}

	if err := rpc.SyncMeta(ctx); err != nil {
		t.Fatalf("SyncMeta: %v", err)
	}
	_, err = rpc.GetMeta(ctx, meta.ID(), false)
	testutil.RequireKind(t, err, storeerr.NotFound)
	if rpc.Exists(ctx, meta.ID()) {
		t.Error("deleted object still exists")
	}
}

func TestDeleteOptions(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	builder, err := c.CreateBlob(ctx, 8)
	if err != nil {
		t.Fatalf("CreateBlob: %v", err)
	}
	sealed, err := builder.Seal(ctx)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	inner := bytesObject(t, c, sealed.ID(), 8)
	outer := objmeta.New("vineyard::Tuple")
	if err := outer.AddMember("item", inner); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	committedOuter, err := c.CreateMetadata(ctx, outer)
	if err != nil {
		t.Fatalf("CreateMetadata: %v", err)
	}

	err = c.Delete(ctx, []objectid.ObjectID{inner.ID()}, DeleteOptions{})
	testutil.RequireKind(t, err, storeerr.StillReferenced)

	if err := c.Delete(ctx, []objectid.ObjectID{committedOuter.ID()}, DeleteOptions{Shallow: true}); err != nil {
		t.Fatalf("shallow Delete: %v", err)
	}
	if !c.Exists(ctx, inner.ID()) {
		t.Error("shallow delete removed the member")
	}
	if err := c.Delete(ctx, []objectid.ObjectID{inner.ID()}, DeleteOptions{}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if c.Exists(ctx, sealed.ID()) {
		t.Error("deep delete left the blob behind")
	}
}

func TestNamesAcrossSessions(t *testing.T) {
	ep := startInstance(t, 3)
	writer := connectIPC(t, ep.socket)
	reader := connectRPC(t, ep.rpc, Options{})
	ctx := context.Background()

	meta := objmeta.New("vineyard::Scalar")
	if err := meta.SetAttribute("value", 42); err != nil {
		t.Fatalf("SetAttribute: %v", err)
	}
	committed, err := writer.CreateMetadata(ctx, meta)
	if err != nil {
		t.Fatalf("CreateMetadata: %v", err)
	}

	resolved := make(chan objectid.ObjectID, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		id, err := reader.GetName(waitCtx, "answer", true)
		if err != nil {
			t.Errorf("GetName(wait): %v", err)
		}
		resolved <- id
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := writer.Status(ctx)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.DeferredRequests == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("name wait never became deferred")
		}
		time.Sleep(time.Millisecond)
	}
	if err := writer.PutName(ctx, "answer", committed.ID()); err != nil {
		t.Fatalf("PutName: %v", err)
	}
	if id := testutil.RequireReceive(t, resolved, 5*time.Second, "waiting for name"); id != committed.ID() {
		t.Errorf("GetName = %s, want %s", id, committed.ID())
	}

	names, err := reader.ListNames(ctx, "ans*", false, 0)
	if err != nil || names["answer"] != committed.ID() {
		t.Errorf("ListNames = %v, %v", names, err)
	}
	if err := reader.DropName(ctx, "answer"); err != nil {
		t.Fatalf("DropName: %v", err)
	}
	_, err = reader.GetName(ctx, "answer", false)
	testutil.RequireKind(t, err, storeerr.NotFound)

	shortCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = writer.GetName(shortCtx, "never", true)
	testutil.RequireKind(t, err, storeerr.Timeout)
	if !writer.Connected() {
		t.Error("a server-side name timeout broke the session")
	}
}

func TestListAndCopy(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	for value := range 3 {
		meta := objmeta.New("vineyard::Scalar")
		if err := meta.SetAttribute("value", value); err != nil {
			t.Fatalf("SetAttribute: %v", err)
		}
		if _, err := c.CreateMetadata(ctx, meta); err != nil {
			t.Fatalf("CreateMetadata: %v", err)
		}
	}
	objects, err := c.ListObjects(ctx, "vineyard::*", false, 0)
	if err != nil || len(objects) != 3 {
		t.Fatalf("ListObjects = %d objects, %v", len(objects), err)
	}
	limited, err := c.ListMetadatas(ctx, `^vineyard::Scalar$`, true, 2, true)
	if err != nil || len(limited) != 2 {
		t.Fatalf("ListMetadatas(limit 2) = %d, %v", len(limited), err)
	}

	source := objects[0]
	copied, err := c.ShallowCopy(ctx, source.ID(), map[string]any{"label": "copy"})
	if err != nil {
		t.Fatalf("ShallowCopy: %v", err)
	}
	copyMeta, err := c.GetMeta(ctx, copied, false)
	if err != nil {
		t.Fatalf("GetMeta: %v", err)
	}
	if label, _ := copyMeta.GetString("label"); label != "copy" {
		t.Errorf("copy label = %q", label)
	}
	_, err = c.ShallowCopy(ctx, source.ID(), map[string]any{"nested": map[string]int{"a": 1}})
	testutil.RequireKind(t, err, storeerr.InvalidMetadataValue)

	if err := c.Persist(ctx, copied); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	remaining, err := c.ListObjects(ctx, "*", false, 0)
	if err != nil || len(remaining) != 0 {
		t.Errorf("objects after Clear = %d, %v", len(remaining), err)
	}
}

func TestCreateMetadataOn(t *testing.T) {
	ep := startInstance(t, 3)
	c := connectIPC(t, ep.socket)
	ctx := context.Background()

	meta := objmeta.New("vineyard::Scalar")
	if _, err := c.CreateMetadataOn(ctx, meta, 99); storeerr.KindOf(err) != storeerr.InstanceUnavailable {
		t.Fatalf("CreateMetadataOn(99): %v", err)
	}
	committed, err := c.CreateMetadataOn(ctx, meta, 3)
	if err != nil {
		t.Fatalf("CreateMetadataOn(3): %v", err)
	}
	if committed.InstanceID() != 3 {
		t.Errorf("instance = %d", committed.InstanceID())
	}
	info, err := c.Meta(ctx)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if entry, ok := info[3]; !ok || entry.Hostname != "client-test" {
		t.Errorf("Meta = %+v", info)
	}
	if trimmed, err := c.MemoryTrim(ctx); err != nil {
		t.Errorf("MemoryTrim = %v, %v", trimmed, err)
	}
}

func TestConnectFromEnvironment(t *testing.T) {
	ep := startInstance(t, 3)
	ctx := context.Background()

	t.Setenv(EnvIPCSocket, "")
	t.Setenv(EnvRPCEndpoint, "")
	_, err := Connect(ctx, Options{})
	testutil.RequireKind(t, err, storeerr.ConnectionFailed)

	t.Setenv(EnvIPCSocket, filepath.Join(t.TempDir(), "absent.sock"))
	t.Setenv(EnvRPCEndpoint, ep.rpc)
	c, err := Connect(ctx, Options{})
	if err != nil {
		t.Fatalf("Connect with a dead socket: %v", err)
	}
	if !c.IsRPC() {
		t.Error("fallback did not reach the RPC endpoint")
	}
	c.Close()

	t.Setenv(EnvIPCSocket, ep.socket)
	c, err = Connect(ctx, Options{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if !c.IsIPC() {
		t.Error("socket set but the session is not IPC")
	}
}

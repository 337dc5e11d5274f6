// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package instance

import (
	"github.com/BSWANG/v6d/lib/blobstore"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// CreateBlob allocates a builder owned by session.
func (i *Instance) CreateBlob(session Session, size int64) (blobstore.Blob, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.blobs.Create(session.ID, size)
}

// SealBlob seals a builder and registers it as a catalog object of
// type blob.
func (i *Instance) SealBlob(session Session, id objectid.ObjectID) (blobstore.Blob, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	blob, err := i.blobs.Seal(session.ID, id)
	if err != nil {
		return blobstore.Blob{}, err
	}
	i.catalog.AddBlob(blob.ID, blob.Signature, blob.Size)
	return blob, nil
}

// ShrinkBlob reduces a builder's size.
func (i *Instance) ShrinkBlob(session Session, id objectid.ObjectID, size int64) (blobstore.Blob, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.blobs.Shrink(session.ID, id, size)
}

// AbortBlob discards a builder.
func (i *Instance) AbortBlob(session Session, id objectid.ObjectID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.blobs.Abort(session.ID, id)
}

// GetBlobs returns the blobs named by ids, in order. Builders are
// returned only when unsafe is set. Blobs of another instance cannot
// be served here.
func (i *Instance) GetBlobs(ids []objectid.ObjectID, unsafe bool) ([]blobstore.Blob, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	blobs := make([]blobstore.Blob, 0, len(ids))
	for _, id := range ids {
		blob, err := i.localBlobLocked(id, unsafe)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, blob)
	}
	return blobs, nil
}

func (i *Instance) localBlobLocked(id objectid.ObjectID, unsafe bool) (blobstore.Blob, error) {
	if !id.IsBlob() {
		return blobstore.Blob{}, storeerr.New(storeerr.InvalidArgument, "%s is not a blob id", id)
	}
	if !id.IsEmptyBlob() && id.Instance() != i.info.ID {
		if _, visible := i.view.Get(id); visible {
			return blobstore.Blob{}, storeerr.New(storeerr.InstanceUnavailable,
				"blob %s lives on instance %s; fetch it there", id, id.Instance())
		}
	}
	return i.blobs.Get(id, unsafe)
}

// CreateRemoteBlob stores and seals a blob received over the network.
func (i *Instance) CreateRemoteBlob(payload []byte) (blobstore.Blob, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	blob, err := i.blobs.CreateFromPayload(payload)
	if err != nil {
		return blobstore.Blob{}, err
	}
	i.catalog.AddBlob(blob.ID, blob.Signature, blob.Size)
	return blob, nil
}

// BlobContents is a blob with a private copy of its bytes.
type BlobContents struct {
	Blob  blobstore.Blob
	Bytes []byte
}

// GetRemoteBlobs copies the contents of the blobs named by ids, in
// order. The copy is taken under the lock, so a concurrent delete
// cannot recycle the span mid-read.
func (i *Instance) GetRemoteBlobs(ids []objectid.ObjectID, unsafe bool) ([]BlobContents, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	contents := make([]BlobContents, 0, len(ids))
	for _, id := range ids {
		blob, err := i.localBlobLocked(id, unsafe)
		if err != nil {
			return nil, err
		}
		data, err := i.blobs.Bytes(blob)
		if err != nil {
			return nil, storeerr.New(storeerr.Internal, "reading blob %s: %v", id, err)
		}
		contents = append(contents, BlobContents{Blob: blob, Bytes: append([]byte(nil), data...)})
	}
	return contents, nil
}

// AllocatedSize reports the arena bytes reserved for a blob, or for
// the distinct blobs an object reaches.
func (i *Instance) AllocatedSize(id objectid.ObjectID) (int64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if id.IsBlob() {
		return i.blobs.AllocatedSize(id)
	}
	closure, err := i.catalog.Closure(id)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, record := range closure {
		if !record.IsBlob() {
			continue
		}
		reserved, err := i.blobs.AllocatedSize(record.ID)
		if err != nil {
			continue
		}
		total += reserved
	}
	return total, nil
}

// FindBlob maps an offset into the arena back to the blob covering it.
func (i *Instance) FindBlob(offset int64) (objectid.ObjectID, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.blobs.Find(offset)
	if !ok {
		return objectid.InvalidObjectID, storeerr.New(storeerr.NotFound, "no blob covers arena offset %d", offset)
	}
	return id, nil
}

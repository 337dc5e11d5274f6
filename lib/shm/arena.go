// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package shm

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// Alignment is the granularity of every reservation. Rounding is visible
// to clients through allocated_size.
const Alignment = 64

// span is a free range of the arena. clean records that its whole pages
// have already been returned to the kernel by Trim.
type span struct {
	offset int64
	length int64
	clean  bool
}

// Arena is the instance side of the shared-memory file: the mapping
// plus the allocator that hands out spans of it.
//
// Arena is safe for concurrent use.
type Arena struct {
	*Mapping

	mu   sync.Mutex
	free []span // sorted by offset, never adjacent
	used int64
}

// Create creates the arena file at path, sizes it, and maps it. The
// file must not already exist: a leftover file from a crashed instance
// would carry another instance's blobs.
func Create(path string, size int64) (*Arena, error) {
	if size < Alignment {
		return nil, fmt.Errorf("arena size must be at least %d bytes, got %d", Alignment, size)
	}
	size = size &^ (Alignment - 1)

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_EXCL|unix.O_RDWR, 0o660)
	if err != nil {
		return nil, fmt.Errorf("creating arena %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, fmt.Errorf("truncating arena to %d bytes: %w", size, err)
	}

	mapping, err := mapFile(path, fd, size)
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	return &Arena{
		Mapping: mapping,
		free:    []span{{offset: 0, length: size, clean: true}},
	}, nil
}

// RoundUp returns the reservation size for a request of size bytes.
func RoundUp(size int64) int64 {
	return (size + Alignment - 1) &^ (Alignment - 1)
}

// Allocate reserves a span of at least size bytes and returns its offset
// and reserved length. It fails with AllocationFailed when no free span
// is large enough; nothing is evicted to make room.
func (a *Arena) Allocate(size int64) (offset, reserved int64, err error) {
	if size <= 0 {
		return 0, 0, storeerr.New(storeerr.InvalidArgument, "allocation size must be positive, got %d", size)
	}
	reserved = RoundUp(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	for index := range a.free {
		candidate := &a.free[index]
		if candidate.length < reserved {
			continue
		}
		offset = candidate.offset
		if candidate.length == reserved {
			a.free = append(a.free[:index], a.free[index+1:]...)
		} else {
			candidate.offset += reserved
			candidate.length -= reserved
		}
		a.used += reserved
		return offset, reserved, nil
	}
	return 0, 0, storeerr.New(storeerr.AllocationFailed,
		"cannot reserve %d bytes: %d of %d bytes in use", reserved, a.used, a.Size())
}

// Free returns a span obtained from Allocate. Adjacent free spans are
// merged.
func (a *Arena) Free(offset, reserved int64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	index := sort.Search(len(a.free), func(i int) bool { return a.free[i].offset > offset })
	a.free = append(a.free, span{})
	copy(a.free[index+1:], a.free[index:])
	a.free[index] = span{offset: offset, length: reserved}
	a.used -= reserved

	// Merge with the successor, then the predecessor.
	if index+1 < len(a.free) && a.free[index].offset+a.free[index].length == a.free[index+1].offset {
		a.free[index].length += a.free[index+1].length
		a.free = append(a.free[:index+1], a.free[index+2:]...)
	}
	if index > 0 && a.free[index-1].offset+a.free[index-1].length == a.free[index].offset {
		a.free[index-1].length += a.free[index].length
		a.free[index-1].clean = false
		a.free = append(a.free[:index], a.free[index+1:]...)
	}
}

// Shrink returns the tail of a reservation beyond newSize to the arena
// and reports the new reserved length. A reservation never shrinks below
// one alignment unit, so the span keeps its offset.
func (a *Arena) Shrink(offset, reserved, newSize int64) int64 {
	kept := max(RoundUp(newSize), Alignment)
	if kept >= reserved {
		return reserved
	}
	a.Free(offset+kept, reserved-kept)
	return kept
}

// Usage reports reserved and total bytes.
func (a *Arena) Usage() (used, limit int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used, a.Size()
}

// Trim hands the whole pages of every free span back to the kernel and
// reports whether any memory was released. Trimmed pages read as zero
// when they are allocated again.
func (a *Arena) Trim() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	page := int64(os.Getpagesize())
	released := false
	for index := range a.free {
		free := &a.free[index]
		if free.clean {
			continue
		}
		start := (free.offset + page - 1) &^ (page - 1)
		end := (free.offset + free.length) &^ (page - 1)
		if end > start {
			region := a.data[start:end]
			err := unix.Madvise(region, unix.MADV_REMOVE)
			if errors.Is(err, unix.EINVAL) || errors.Is(err, unix.EOPNOTSUPP) {
				// Not a tmpfs-backed file; dropping the pages from this
				// mapping is the best available.
				err = unix.Madvise(region, unix.MADV_DONTNEED)
			}
			if err != nil {
				return released, fmt.Errorf("releasing arena pages [%d, %d): %w", start, end, err)
			}
			released = true
		}
		free.clean = true
	}
	return released, nil
}

// Close unmaps the arena and removes its file.
func (a *Arena) Close() error {
	path := a.Path()
	err := a.Mapping.Close()
	if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) && err == nil {
		err = fmt.Errorf("removing arena file: %w", removeErr)
	}
	return err
}

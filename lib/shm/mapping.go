// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package shm

import (
	"fmt"
	"runtime/debug"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Mapping is an arena file mapped read/write into this process.
//
// Bytes returns slices aliasing the mapping; they stay valid until
// Close. Concurrent readers need no coordination. Writers must keep to
// spans they own.
type Mapping struct {
	path string
	fd   int
	data []byte
	base uintptr
}

// Open maps an existing arena file. size must match the file size the
// instance reported at registration.
func Open(path string, size int64) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("arena size must be positive, got %d", size)
	}

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening arena %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stating arena %s: %w", path, err)
	}
	if stat.Size != size {
		unix.Close(fd)
		return nil, fmt.Errorf("arena %s is %d bytes but %d was expected", path, stat.Size, size)
	}

	return mapFile(path, fd, size)
}

func mapFile(path string, fd int, size int64) (*Mapping, error) {
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("memory-mapping arena %s: %w", path, err)
	}
	return &Mapping{
		path: path,
		fd:   fd,
		data: data,
		base: uintptr(unsafe.Pointer(&data[0])),
	}, nil
}

// Path returns the arena file path.
func (m *Mapping) Path() string {
	return m.path
}

// Size returns the mapped length in bytes.
func (m *Mapping) Size() int64 {
	return int64(len(m.data))
}

// Bytes returns the mapped bytes in [offset, offset+length).
func (m *Mapping) Bytes(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil, fmt.Errorf("span [%d, %d) outside arena of %d bytes", offset, offset+length, len(m.data))
	}
	return m.data[offset : offset+length : offset+length], nil
}

// ReadAt copies mapped bytes into p. A fault on the backing file (for
// example after the instance truncated it) is reported as an error
// instead of crashing the process.
func (m *Mapping) ReadAt(p []byte, offset int64) (count int, err error) {
	if offset < 0 || offset+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("read [%d, %d) outside arena of %d bytes", offset, offset+int64(len(p)), len(m.data))
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault reading arena at offset %d: %v", offset, r)
		}
	}()

	return copy(p, m.data[offset:]), nil
}

// WriteAt copies p into the mapping at offset, with the same fault
// protection as ReadAt.
func (m *Mapping) WriteAt(p []byte, offset int64) (count int, err error) {
	if offset < 0 || offset+int64(len(p)) > int64(len(m.data)) {
		return 0, fmt.Errorf("write [%d, %d) outside arena of %d bytes", offset, offset+int64(len(p)), len(m.data))
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fmt.Errorf("page fault writing arena at offset %d: %v", offset, r)
		}
	}()

	return copy(m.data[offset:], p), nil
}

// Address returns the address in this process of the byte at offset.
func (m *Mapping) Address(offset int64) uintptr {
	return m.base + uintptr(offset)
}

// Contains reports whether address lies inside this mapping.
func (m *Mapping) Contains(address uintptr) bool {
	return address >= m.base && address < m.base+uintptr(len(m.data))
}

// Offset translates an address inside the mapping to an arena offset.
func (m *Mapping) Offset(address uintptr) (int64, bool) {
	if !m.Contains(address) {
		return 0, false
	}
	return int64(address - m.base), true
}

// Close unmaps the arena and closes the file descriptor. Slices
// returned by Bytes must not be used afterwards.
func (m *Mapping) Close() error {
	if m.data == nil {
		return nil
	}
	var firstErr error
	if err := unix.Munmap(m.data); err != nil {
		firstErr = fmt.Errorf("unmapping arena: %w", err)
	}
	if err := unix.Close(m.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing arena fd: %w", err)
	}
	m.data = nil
	m.fd = -1
	return firstErr
}

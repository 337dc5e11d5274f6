// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// SocketDir creates a temporary directory suitable for Unix domain
// sockets. It is removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "v6d-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

// ArenaPath returns a path at which a test may create an arena file.
// The file lives on /dev/shm when that is a writable directory, in
// t.TempDir() otherwise. Any file left at the path is removed when the
// test completes.
func ArenaPath(t *testing.T) string {
	t.Helper()
	directory := t.TempDir()
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		if shmDirectory, err := os.MkdirTemp("/dev/shm", "v6d-test-*"); err == nil {
			directory = shmDirectory
			t.Cleanup(func() {
				_ = os.RemoveAll(shmDirectory)
			})
		}
	}
	return filepath.Join(directory, "arena")
}

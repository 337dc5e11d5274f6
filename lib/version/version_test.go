// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	saved := GitDirty
	t.Cleanup(func() { GitDirty = saved })

	GitDirty = "true"
	if !strings.Contains(Info(), "-dirty") {
		t.Errorf("Info() = %q, want a -dirty marker", Info())
	}
	if !strings.HasPrefix(Full(), Info()) {
		t.Errorf("Full() = %q does not start with Info()", Full())
	}
}

func TestCompatible(t *testing.T) {
	saved := Version
	t.Cleanup(func() { Version = saved })

	tests := []struct {
		local, remote string
		want          bool
	}{
		{"0.1.0-dev", "0.1.7", true},
		{"0.1.0", "0.2.0", false},
		{"1.2.0", "v1.9.3", true},
		{"1.2.0", "2.0.0", false},
		{"1.2.0", "test", true},
		{"unknown", "3.0.0", true},
	}
	for _, test := range tests {
		Version = test.local
		if got := Compatible(test.remote); got != test.want {
			t.Errorf("Compatible(%q) with local %q = %v, want %v", test.remote, test.local, got, test.want)
		}
	}
}

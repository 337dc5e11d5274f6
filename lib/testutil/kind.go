// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"testing"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// RequireKind fails the test unless err is a store error of the given
// kind.
//
//	_, err := client.GetName(ctx, "absent", false)
//	testutil.RequireKind(t, err, storeerr.NotFound)
func RequireKind(t testing.TB, err error, want storeerr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("got no error, want %v", want)
	}
	if got := storeerr.KindOf(err); got != want {
		t.Fatalf("error %q has kind %v, want %v", err, got, want)
	}
}

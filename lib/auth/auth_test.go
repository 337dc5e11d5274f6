// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/BSWANG/v6d/lib/storeerr"
	"github.com/BSWANG/v6d/lib/testutil"
)

func hashed(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	return string(hash)
}

func TestDisabledAcceptsAnyone(t *testing.T) {
	var users Users
	if users.Enabled() {
		t.Fatal("empty user set reports authentication enabled")
	}
	if err := users.Verify("", ""); err != nil {
		t.Errorf("Verify with authentication disabled: %v", err)
	}
}

func TestVerify(t *testing.T) {
	users := Users{"alice": hashed(t, "s3cret")}
	if err := users.Verify("alice", "s3cret"); err != nil {
		t.Errorf("Verify with the right password: %v", err)
	}
	testutil.RequireKind(t, users.Verify("alice", "guess"), storeerr.Unauthenticated)
	testutil.RequireKind(t, users.Verify("mallory", "s3cret"), storeerr.Unauthenticated)
	testutil.RequireKind(t, users.Verify("", ""), storeerr.Unauthenticated)
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	users := Users{"bob": hash}
	if err := users.Verify("bob", "hunter2"); err != nil {
		t.Errorf("Verify with a HashPassword hash: %v", err)
	}
	if err := users.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateRejectsPlaintext(t *testing.T) {
	users := Users{"carol": "plaintext"}
	if err := users.Validate(); err == nil {
		t.Fatal("Validate accepted a plaintext password")
	}
}

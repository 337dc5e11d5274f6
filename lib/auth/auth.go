// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth checks the username/password presented when a session
// registers. Passwords are stored as bcrypt hashes; with no users
// configured every session is accepted anonymously.
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// Users maps a username to the bcrypt hash of its password.
type Users map[string]string

// Enabled reports whether sessions must authenticate.
func (u Users) Enabled() bool {
	return len(u) > 0
}

// Verify checks a username/password pair. Any mismatch, including an
// unknown user, fails with Unauthenticated without saying which part
// was wrong.
func (u Users) Verify(username, password string) error {
	if !u.Enabled() {
		return nil
	}
	hash, ok := u[username]
	if !ok {
		// Spend the same work as a real comparison.
		bcrypt.CompareHashAndPassword(placeholderHash, []byte(password))
		return storeerr.New(storeerr.Unauthenticated, "invalid username or password")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return storeerr.New(storeerr.Unauthenticated, "invalid username or password")
	default:
		return fmt.Errorf("checking password of %q: %w", username, err)
	}
}

// Validate reports users whose stored hash is not a bcrypt hash.
func (u Users) Validate() error {
	var errs []error
	for username, hash := range u {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			errs = append(errs, fmt.Errorf("user %q: password hash: %w", username, err))
		}
	}
	return errors.Join(errs...)
}

// HashPassword returns the bcrypt hash to store for password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

var placeholderHash, _ = bcrypt.GenerateFromPassword([]byte("placeholder"), bcrypt.DefaultCost)

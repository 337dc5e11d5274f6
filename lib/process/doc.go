// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers shared by the v6d and
// v6d-daemon binaries: reporting the error that ends main() on stderr,
// where the structured logger may not exist yet, and choosing the exit
// code.
package process

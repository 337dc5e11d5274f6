// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version identifies a v6d build.
//
// The release version, git commit, dirty flag and build time are set
// with -ldflags -X at link time and read "unknown" or "0.1.0-dev" in
// development builds and tests. [Info] and [Full] render them for the
// --version flags; [Short] is the bare version the daemon reports in
// every register response.
//
// [Compatible] decides whether a client and server version can share a
// session: equal major versions, and equal minor versions while the
// major version is zero. Clients log a warning when it fails rather
// than refusing to connect.
package version

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the configuration of a v6d daemon.
//
// Configuration comes from a single file named by the V6D_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery and no search path. Files ending
// in .json or .jsonc are read as JSON with comments and trailing
// commas; anything else is YAML.
//
// After loading, ${VAR} and ${VAR:-default} patterns in path fields
// are expanded from the environment. Sizes accept byte counts or
// human-readable strings ("256MiB", "1.5 GB"), durations accept Go
// duration strings ("5s").
//
// Key exports:
//
//   - [Config] -- the daemon configuration
//   - [Default] -- a Config with single-host defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [Config.Validate] -- reports every problem at once
package config

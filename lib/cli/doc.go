// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the v6d tool.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/v6d/main.go and dispatched via [Command.Execute], which handles
// flag parsing, subcommand routing, and structured help output with
// examples.
//
// An unknown subcommand or flag gets a suggestion: the one known name
// it is a prefix of, or else the nearest name within an edit distance
// of 3.
//
// [ConnectionFlags] binds the --socket, --rpc, --username and
// --password flags shared by every command that talks to an instance,
// and [Table] renders listings, styled when stdout is a terminal.
package cli

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/BSWANG/v6d/lib/cli"
	"github.com/BSWANG/v6d/lib/client"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// --- names ---

func namesCommand() *cli.Command {
	var (
		conn  connection
		regex bool
		limit int
	)
	return &cli.Command{
		Name:    "names",
		Summary: "List name bindings",
		Usage:   "v6d names [PATTERN] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("names", true)
			flagSet.BoolVar(&regex, "regex", false, "treat PATTERN as a regular expression")
			flagSet.IntVar(&limit, "limit", defaultListLimit, "maximum number of names")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.RequireArgs(args, 1, "v6d names [PATTERN] [flags]")
			}
			pattern := "*"
			if regex {
				pattern = ".*"
			}
			if len(args) == 1 {
				pattern = args[0]
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				bindings, err := session.ListNames(ctx, pattern, regex, limit)
				if err != nil {
					return err
				}
				if conn.json {
					return cli.WriteJSON(stdout, bindings)
				}
				names := make([]string, 0, len(bindings))
				for name := range bindings {
					names = append(names, name)
				}
				slices.Sort(names)
				table := cli.NewTable("NAME", "OBJECT")
				for _, name := range names {
					table.Row(name, bindings[name].String())
				}
				return renderTable(table)
			})
		},
	}
}

// --- put-name ---

func putNameCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "put-name",
		Summary: "Bind a name to an object",
		Description: `Bind NAME to the object ID, replacing any earlier binding. Sessions
waiting on NAME with get-name --wait are released.`,
		Usage: "v6d put-name NAME ID [flags]",
		Flags: func() *pflag.FlagSet { return conn.flags("put-name", false) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 2, "v6d put-name NAME ID [flags]"); err != nil {
				return err
			}
			id, err := objectid.Parse(args[1])
			if err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				return session.PutName(ctx, args[0], id)
			})
		},
	}
}

// --- get-name ---

func getNameCommand() *cli.Command {
	var (
		conn    connection
		wait    bool
		timeout time.Duration
	)
	return &cli.Command{
		Name:    "get-name",
		Summary: "Resolve a name",
		Description: `Print the object bound to NAME. With --wait the command blocks until
the name is bound or --timeout passes. Exits 1 without an error message
when the name is unbound.`,
		Usage: "v6d get-name NAME [flags]",
		Examples: []cli.Example{
			{Description: "Wait up to a minute for a producer", Command: "v6d get-name dataset/train --wait --timeout 1m"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("get-name", false)
			flagSet.BoolVar(&wait, "wait", false, "block until the name is bound")
			flagSet.DurationVar(&timeout, "timeout", callTimeout, "how long to wait with --wait")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "v6d get-name NAME [flags]"); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return conn.sessionContext(ctx, func(ctx context.Context, session client.Client) error {
				id, err := session.GetName(ctx, args[0], wait)
				if errors.Is(err, storeerr.ErrNotFound) || (wait && errors.Is(err, storeerr.ErrTimeout)) {
					return &cli.ExitError{Code: 1}
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, id)
				return nil
			})
		},
	}
}

// --- drop-name ---

func dropNameCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "drop-name",
		Summary: "Remove a name binding",
		Usage:   "v6d drop-name NAME [flags]",
		Flags:   func() *pflag.FlagSet { return conn.flags("drop-name", false) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "v6d drop-name NAME [flags]"); err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				return session.DropName(ctx, args[0])
			})
		},
	}
}

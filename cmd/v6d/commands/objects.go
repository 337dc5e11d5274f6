// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/BSWANG/v6d/lib/cli"
	"github.com/BSWANG/v6d/lib/client"
	"github.com/BSWANG/v6d/lib/objmeta"
)

// defaultListLimit matches the instance's own default.
const defaultListLimit = 5

// --- ls ---

type objectSummary struct {
	ID        string `json:"id"`
	TypeName  string `json:"typename"`
	NBytes    int64  `json:"nbytes"`
	Instance  uint64 `json:"instance_id"`
	Global    bool   `json:"global"`
	Persisted bool   `json:"persist"`
}

func summarize(meta *objmeta.ObjectMeta) objectSummary {
	return objectSummary{
		ID:        meta.ID().String(),
		TypeName:  meta.TypeName(),
		NBytes:    meta.NBytes(),
		Instance:  uint64(meta.InstanceID()),
		Global:    meta.IsGlobal(),
		Persisted: meta.IsPersisted(),
	}
}

func listCommand() *cli.Command {
	var (
		conn  connection
		regex bool
		limit int
	)
	return &cli.Command{
		Name:    "ls",
		Summary: "List objects by typename",
		Description: `List the instance's objects whose typename matches PATTERN, a glob
by default or a regular expression with --regex. Without PATTERN every
object is listed, up to --limit. Blobs are never listed on their own.`,
		Usage: "v6d ls [PATTERN] [flags]",
		Examples: []cli.Example{
			{Description: "List the first five objects", Command: "v6d ls"},
			{Description: "List tensors by regular expression", Command: `v6d ls --regex 'vineyard::Tensor<.*>' --limit 100`},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("ls", true)
			flagSet.BoolVar(&regex, "regex", false, "treat PATTERN as a regular expression")
			flagSet.IntVar(&limit, "limit", defaultListLimit, "maximum number of objects")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 1 {
				return cli.RequireArgs(args, 1, "v6d ls [PATTERN] [flags]")
			}
			pattern := "*"
			if regex {
				pattern = ".*"
			}
			if len(args) == 1 {
				pattern = args[0]
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				metas, err := session.ListMetadatas(ctx, pattern, regex, limit, true)
				if err != nil {
					return err
				}
				summaries := make([]objectSummary, 0, len(metas))
				for _, meta := range metas {
					summaries = append(summaries, summarize(meta))
				}
				if conn.json {
					return cli.WriteJSON(stdout, summaries)
				}
				table := cli.NewTable("ID", "TYPE", "SIZE", "INSTANCE", "FLAGS")
				for _, summary := range summaries {
					var flags []string
					if summary.Global {
						flags = append(flags, "global")
					}
					if summary.Persisted {
						flags = append(flags, "persist")
					}
					table.Row(summary.ID, summary.TypeName, cli.Bytes(summary.NBytes),
						strconv.FormatUint(summary.Instance, 10), strings.Join(flags, ","))
				}
				return renderTable(table)
			})
		},
	}
}

// --- show ---

func showCommand() *cli.Command {
	var (
		conn connection
		sync bool
	)
	return &cli.Command{
		Name:    "show",
		Summary: "Print an object's metadata",
		Description: `Print the metadata tree of an object as JSON, with members nested in
place. --sync refreshes the instance's view of the cluster first, so
objects persisted elsewhere moments ago resolve.`,
		Usage: "v6d show ID [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("show", false)
			flagSet.BoolVar(&sync, "sync", false, "sync with the cluster before resolving")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "v6d show ID [flags]"); err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				meta, err := session.GetMeta(ctx, ids[0], sync)
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, meta.String())
				return nil
			})
		},
	}
}

// --- delete ---

func deleteCommand() *cli.Command {
	var (
		conn    connection
		force   bool
		shallow bool
	)
	return &cli.Command{
		Name:    "delete",
		Summary: "Delete objects",
		Description: `Delete objects and, unless --shallow, every member no other object
still references. An object that another object references is refused
unless --force, which leaves the referrer dangling.`,
		Usage: "v6d delete ID... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("delete", false)
			flagSet.BoolVar(&force, "force", false, "delete even when referenced")
			flagSet.BoolVar(&shallow, "shallow", false, "leave members in place")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.RequireArgs(args, 1, "v6d delete ID... [flags]")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				return session.Delete(ctx, ids, client.DeleteOptions{Force: force, Shallow: shallow})
			})
		},
	}
}

// --- persist ---

func persistCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "persist",
		Summary: "Make an object visible to the cluster",
		Description: `Publish an object and its members to the cluster registry so other
instances can resolve it. Persisting is idempotent.`,
		Usage: "v6d persist ID [flags]",
		Flags: func() *pflag.FlagSet { return conn.flags("persist", false) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "v6d persist ID [flags]"); err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				return session.Persist(ctx, ids[0])
			})
		},
	}
}

// --- copy ---

func copyCommand() *cli.Command {
	var (
		conn connection
		sets []string
	)
	return &cli.Command{
		Name:    "copy",
		Summary: "Shallow-copy an object",
		Description: `Create a new object sharing the members of ID, with attributes
replaced or added by --set. Values that parse as integers, floats or
booleans are stored as such; anything else is a string. Prints the new
object's id.`,
		Usage: "v6d copy ID [--set KEY=VALUE]... [flags]",
		Examples: []cli.Example{
			{Description: "Copy and relabel", Command: "v6d copy o0003f2c8a1b2c3d4 --set label=train --set epoch=3"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("copy", false)
			flagSet.StringArrayVar(&sets, "set", nil, "attribute to set, KEY=VALUE (repeatable)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, "v6d copy ID [--set KEY=VALUE]... [flags]"); err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			extra, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				copied, err := session.ShallowCopy(ctx, ids[0], extra)
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, copied)
				return nil
			})
		},
	}
}

// parseAssignments turns KEY=VALUE pairs into typed attribute values.
func parseAssignments(assignments []string) (map[string]any, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	extra := make(map[string]any, len(assignments))
	for _, assignment := range assignments {
		key, value, ok := strings.Cut(assignment, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--set %q: expected KEY=VALUE", assignment)
		}
		extra[key] = scalar(value)
	}
	return extra, nil
}

func scalar(text string) any {
	if integer, err := strconv.ParseInt(text, 10, 64); err == nil {
		return integer
	}
	if float, err := strconv.ParseFloat(text, 64); err == nil {
		return float
	}
	switch text {
	case "true":
		return true
	case "false":
		return false
	}
	return text
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package commands

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/BSWANG/v6d/lib/cli"
	"github.com/BSWANG/v6d/lib/client"
	"github.com/BSWANG/v6d/lib/objectid"
)

// --- status ---

func statusCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "status",
		Summary: "Show the instance's status",
		Description: `Print the status block of the connected instance: memory usage
and limit, deferred name waits and open sessions.`,
		Usage: "v6d status [flags]",
		Flags: func() *pflag.FlagSet { return conn.flags("status", true) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "v6d status [flags]"); err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				status, err := session.Status(ctx)
				if err != nil {
					return err
				}
				if conn.json {
					return cli.WriteJSON(stdout, status)
				}
				fmt.Fprintln(stdout, status.String())
				fmt.Fprintf(stdout, "    memory: %s of %s\n", cli.Bytes(status.MemoryUsage), cli.Bytes(status.MemoryLimit))
				return nil
			})
		},
	}
}

// --- meta ---

func metaCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "meta",
		Summary: "List the instances of the cluster",
		Usage:   "v6d meta [flags]",
		Flags:   func() *pflag.FlagSet { return conn.flags("meta", true) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "v6d meta [flags]"); err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				meta, err := session.Meta(ctx)
				if err != nil {
					return err
				}
				if conn.json {
					keyed := make(map[string]any, len(meta))
					for id, entry := range meta {
						keyed[strconv.FormatUint(uint64(id), 10)] = entry
					}
					return cli.WriteJSON(stdout, keyed)
				}
				ids := make([]objectid.InstanceID, 0, len(meta))
				for id := range meta {
					ids = append(ids, id)
				}
				slices.Sort(ids)
				table := cli.NewTable("INSTANCE", "HOSTNAME", "HOSTID", "IPC SOCKET", "RPC ENDPOINT", "JOINED")
				for _, id := range ids {
					entry := meta[id]
					marker := ""
					if id == session.InstanceID() {
						marker = "*"
					}
					table.Row(strconv.FormatUint(uint64(id), 10)+marker, entry.Hostname, entry.HostID,
						entry.IPCSocket, entry.RPCEndpoint, entry.Timestamp.Format("2006-01-02 15:04:05"))
				}
				return renderTable(table)
			})
		},
	}
}

// --- trim ---

func trimCommand() *cli.Command {
	var conn connection
	return &cli.Command{
		Name:    "trim",
		Summary: "Return unused shared memory to the kernel",
		Description: `Release the pages of the arena that hold no blob. The arena's
capacity is unchanged; released pages are faulted back in on demand.`,
		Usage: "v6d trim [flags]",
		Flags: func() *pflag.FlagSet { return conn.flags("trim", false) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "v6d trim [flags]"); err != nil {
				return err
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				trimmed, err := session.MemoryTrim(ctx)
				if err != nil {
					return err
				}
				if trimmed {
					fmt.Fprintln(stdout, "released unused pages")
				} else {
					fmt.Fprintln(stdout, "nothing to release")
				}
				return nil
			})
		},
	}
}

// --- clear ---

func clearCommand() *cli.Command {
	var conn connection
	var confirm bool
	return &cli.Command{
		Name:    "clear",
		Summary: "Delete every object and name on the instance",
		Description: `Drop every object, blob and name the instance holds. Persisted
objects are withdrawn from the cluster. Requires --yes.`,
		Usage: "v6d clear --yes [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := conn.flags("clear", false)
			flagSet.BoolVar(&confirm, "yes", false, "confirm clearing the instance")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "v6d clear --yes [flags]"); err != nil {
				return err
			}
			if !confirm {
				return fmt.Errorf("clear deletes everything on the instance; pass --yes to confirm")
			}
			return conn.session(ctx, func(ctx context.Context, session client.Client) error {
				return session.Clear(ctx)
			})
		},
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

// Package commands builds the v6d CLI command tree. Every command that
// talks to an instance shares the connection flags from
// [cli.ConnectionFlags] and a thirty second call deadline.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/BSWANG/v6d/lib/cli"
	"github.com/BSWANG/v6d/lib/client"
	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/version"
)

// callTimeout bounds a command's calls to the instance.
const callTimeout = 30 * time.Second

// stdout is where command output goes. Tests replace it.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// Root builds and returns the complete v6d command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "v6d",
		Description: `v6d: shared-memory object store.

Inspect and maintain a running v6d-daemon. Commands reach the instance
through --socket or --rpc, falling back to $VINEYARD_IPC_SOCKET and
$VINEYARD_RPC_ENDPOINT.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			metaCommand(),
			listCommand(),
			showCommand(),
			namesCommand(),
			putNameCommand(),
			getNameCommand(),
			dropNameCommand(),
			putCommand(),
			getCommand(),
			deleteCommand(),
			persistCommand(),
			copyCommand(),
			trimCommand(),
			clearCommand(),
			hashPasswordCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string) error {
					fmt.Fprintf(stdout, "v6d %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// connection holds the flags of a command that opens a session.
type connection struct {
	cli.ConnectionFlags
	logLevel string
	json     bool
}

// flags returns a flag set carrying the connection flags. withJSON
// adds --json for commands with structured output.
func (c *connection) flags(name string, withJSON bool) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	c.AddFlags(flagSet)
	flagSet.StringVar(&c.logLevel, "log-level", "warn", "client log level: debug, info, warn or error")
	if withJSON {
		flagSet.BoolVar(&c.json, "json", false, "print JSON instead of text")
	}
	return flagSet
}

// open connects to the instance.
func (c *connection) open(ctx context.Context) (client.Client, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return c.Connect(ctx, cli.NewCommandLogger(level))
}

// session connects and runs fn under the call deadline.
func (c *connection) session(ctx context.Context, fn func(context.Context, client.Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return c.sessionContext(ctx, fn)
}

// sessionContext connects and runs fn under ctx as given.
func (c *connection) sessionContext(ctx context.Context, fn func(context.Context, client.Client) error) error {
	session, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(ctx, session)
}

func parseIDs(args []string) ([]objectid.ObjectID, error) {
	ids := make([]objectid.ObjectID, 0, len(args))
	for _, arg := range args {
		id, err := objectid.Parse(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func renderTable(table *cli.Table) error {
	styled := false
	if file, ok := stdout.(*os.File); ok {
		styled = cli.Styled(file)
	}
	return table.Render(stdout, styled)
}

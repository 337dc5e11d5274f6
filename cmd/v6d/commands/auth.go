// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/BSWANG/v6d/lib/auth"
	"github.com/BSWANG/v6d/lib/cli"
)

// --- hash-password ---

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:    "hash-password",
		Summary: "Hash a password for the daemon's auth.users",
		Description: `Read a password and print its bcrypt hash, ready to paste under
auth.users in the daemon config. The password is read without echo
from a terminal, or as the first line of stdin otherwise.`,
		Usage: "v6d hash-password",
		Examples: []cli.Example{
			{Description: "Hash a password from a pipe", Command: "printf '%s\\n' \"$PASSWORD\" | v6d hash-password"},
		},
		Run: func(_ context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, "v6d hash-password"); err != nil {
				return err
			}
			password, err := readPassword()
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("empty password")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, hash)
			return nil
		},
	}
}

func readPassword() (string, error) {
	if file, ok := stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(password), nil
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

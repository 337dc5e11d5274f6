// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// exitCoder is an error that carries its own exit code. Such errors
// have already reported themselves, so nothing is printed.
type exitCoder interface {
	ExitCode() int
}

// Fatal reports err and exits with its code. It never returns.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes "error: err" to w unless err carries its own exit
// code, and returns the code the process should exit with: 0 for nil,
// the error's own code, or 1.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var coder exitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}

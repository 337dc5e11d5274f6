// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// maxStyledCellWidth clips cells on terminals so one long typename
// does not push every other column off screen.
const maxStyledCellWidth = 64

// Table is a column-aligned listing. Headers are styled when the
// output is a terminal.
type Table struct {
	Headers []string
	rows    [][]string
}

// NewTable starts a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// Row appends one row. Missing cells render empty; extra cells are
// dropped.
func (t *Table) Row(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	plainStyle  = lipgloss.NewStyle()
)

// Render writes the table to w. styled selects terminal styling and
// clips cells wider than the terminal can reasonably show.
func (t *Table) Render(w io.Writer, styled bool) error {
	if styled {
		for _, row := range t.rows {
			for column, cell := range row {
				row[column] = ansi.Truncate(cell, maxStyledCellWidth, "…")
			}
		}
	}
	widths := make([]int, len(t.Headers))
	for column, header := range t.Headers {
		widths[column] = lipgloss.Width(header)
	}
	for _, row := range t.rows {
		for column, cell := range row {
			widths[column] = max(widths[column], lipgloss.Width(cell))
		}
	}

	header := plainStyle
	if styled {
		header = headerStyle
	}
	var out strings.Builder
	writeRow := func(cells []string, style lipgloss.Style) {
		for column, cell := range cells {
			if column > 0 {
				out.WriteString("  ")
			}
			padding := ""
			if column < len(cells)-1 {
				padding = strings.Repeat(" ", widths[column]-lipgloss.Width(cell))
			}
			out.WriteString(style.Render(cell))
			out.WriteString(padding)
		}
		out.WriteString("\n")
	}
	writeRow(t.Headers, header)
	for _, row := range t.rows {
		writeRow(row, plainStyle)
	}
	_, err := io.WriteString(w, out.String())
	return err
}

// Print renders the table to stdout.
func (t *Table) Print() error {
	return t.Render(os.Stdout, Styled(os.Stdout))
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Styled reports whether output to f should be styled: f is a terminal
// and NO_COLOR is not set.
func Styled(f *os.File) bool {
	return IsTerminal(f) && !termenv.EnvNoColor()
}

// WriteJSON marshals value as indented JSON and writes it to w.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// Bytes renders a byte count for humans ("1.5 MiB").
func Bytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("-%s", humanize.IBytes(uint64(-n)))
	}
	return humanize.IBytes(uint64(n))
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maxSuggestDistance is the largest edit distance still worth
// suggesting.
const maxSuggestDistance = 3

// suggestCommand names the subcommand the user most likely meant, or
// returns "".
func suggestCommand(unknown string, commands []*Command) string {
	names := make([]string, 0, len(commands))
	for _, command := range commands {
		names = append(names, command.Name)
	}
	return closest(unknown, names)
}

// suggestFlag looks at the first flag in args that flagSet does not
// define and returns the closest defined flag as "--name", or "".
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var names []string
	flagSet.VisitAll(func(f *pflag.Flag) {
		names = append(names, f.Name)
	})

	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		name, isFlag := flagName(arg)
		if !isFlag || known(flagSet, name) {
			continue
		}
		if suggestion := closest(name, names); suggestion != "" {
			return "--" + suggestion
		}
		return ""
	}
	return ""
}

// flagName strips the dashes and any "=value" from a flag argument.
func flagName(arg string) (string, bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", false
	}
	name := strings.TrimLeft(arg, "-")
	name, _, _ = strings.Cut(name, "=")
	return name, name != ""
}

func known(flagSet *pflag.FlagSet, name string) bool {
	if flagSet.Lookup(name) != nil {
		return true
	}
	return len(name) == 1 && flagSet.ShorthandLookup(name) != nil
}

// closest returns the candidate nearest to input. A candidate that
// input is the only prefix of wins outright; otherwise the smallest
// edit distance within maxSuggestDistance wins, earlier candidates
// breaking ties.
func closest(input string, candidates []string) string {
	var prefixed []string
	for _, candidate := range candidates {
		if input != "" && strings.HasPrefix(candidate, input) {
			prefixed = append(prefixed, candidate)
		}
	}
	if len(prefixed) == 1 {
		return prefixed[0]
	}

	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if distance := levenshtein(input, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// levenshtein returns the edit distance between a and b in runes.
func levenshtein(a, b string) int {
	source, target := []rune(a), []rune(b)
	if len(source) < len(target) {
		source, target = target, source
	}
	row := make([]int, len(target)+1)
	for column := range row {
		row[column] = column
	}
	for _, s := range source {
		diagonal := row[0]
		row[0]++
		for column, t := range target {
			substitution := diagonal
			if s != t {
				substitution++
			}
			diagonal = row[column+1]
			row[column+1] = min(row[column+1]+1, row[column]+1, substitution)
		}
	}
	return row[len(target)]
}

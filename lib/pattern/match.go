// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pattern compiles the patterns accepted by the listing
// operations: typenames for objects, names for the name registry.
//
// Glob patterns follow path.Match with one extension for hierarchical
// names such as "dataset/train/part-0":
//
//   - "*" and "?" never cross a "/"
//   - "prefix/**" matches prefix and everything below it
//   - "**/suffix" matches suffix at any depth
//   - "prefix/**/suffix" matches zero or more segments in between
//   - "**" matches everything
//
// With regex set the pattern is a Go regular expression matched against
// the whole string.
package pattern

import (
	"path"
	"regexp"
	"strings"

	"github.com/BSWANG/v6d/lib/storeerr"
)

// Matcher reports whether a typename or name matches a compiled pattern.
type Matcher func(string) bool

// Compile compiles pattern. An empty pattern matches everything. A
// malformed pattern fails with InvalidArgument.
func Compile(pattern string, regex bool) (Matcher, error) {
	if pattern == "" {
		return func(string) bool { return true }, nil
	}
	if regex {
		expression, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, storeerr.New(storeerr.InvalidArgument, "invalid regular expression %q: %v", pattern, err)
		}
		return expression.MatchString, nil
	}
	for _, piece := range strings.Split(pattern, "**") {
		if _, err := path.Match(piece, ""); err != nil {
			return nil, storeerr.New(storeerr.InvalidArgument, "invalid glob %q: %v", pattern, err)
		}
	}
	return func(s string) bool { return matchGlobTree(pattern, s) }, nil
}

func matchGlobTree(pattern, s string) bool {
	if pattern == "**" {
		return true
	}
	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, s)
	}

	if prefix, found := strings.CutSuffix(pattern, "/**"); found {
		return matchGlob(prefix, s) || hasMatchingPrefix(prefix, s)
	}
	if suffix, found := strings.CutPrefix(pattern, "**/"); found {
		return matchGlob(suffix, s) || hasMatchingSuffix(suffix, s)
	}

	prefix, suffix, found := strings.Cut(pattern, "/**/")
	if !found {
		// More than one ** or a ** inside a segment.
		return false
	}
	if matchGlob(prefix+"/"+suffix, s) {
		return true
	}

	prefixDepth := strings.Count(prefix, "/") + 1
	suffixDepth := strings.Count(suffix, "/") + 1
	segments := strings.Split(s, "/")
	if len(segments) < prefixDepth+1+suffixDepth {
		return false
	}
	if !matchGlob(prefix, strings.Join(segments[:prefixDepth], "/")) {
		return false
	}
	if !matchGlob(suffix, strings.Join(segments[len(segments)-suffixDepth:], "/")) {
		return false
	}
	for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
		if segment == "" {
			return false
		}
	}
	return true
}

func matchGlob(pattern, s string) bool {
	matched, err := path.Match(pattern, s)
	return err == nil && matched
}

// hasMatchingPrefix reports whether s starts with segments matching
// pattern and has at least one segment after them.
func hasMatchingPrefix(pattern, s string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(s, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[:depth], "/"))
}

// hasMatchingSuffix reports whether s ends with segments matching
// pattern and has at least one segment before them.
func hasMatchingSuffix(pattern, s string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(s, "/")
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[len(segments)-depth:], "/"))
}

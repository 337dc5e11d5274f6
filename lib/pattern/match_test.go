// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pattern

import (
	"errors"
	"testing"

	"github.com/BSWANG/v6d/lib/storeerr"
)

func TestGlob(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		input   string
		want    bool
	}{
		{"empty matches all", "", "anything", true},
		{"exact", "bytes", "bytes", true},
		{"exact mismatch", "bytes", "blob", false},
		{"star", "vineyard::*", "vineyard::Tensor", true},
		{"star prefix", "*Tensor", "vineyard::Tensor", true},
		{"question mark", "blo?", "blob", true},
		{"class", "[bt]ytes", "bytes", true},
		{"star does not cross slash", "dataset/*", "dataset/train/part-0", false},
		{"star single segment", "dataset/*", "dataset/train", true},
		{"universal", "**", "a/b/c", true},
		{"suffix doublestar child", "dataset/**", "dataset/train/part-0", true},
		{"suffix doublestar exact prefix", "dataset/**", "dataset", true},
		{"suffix doublestar partial prefix", "dataset/**", "datasets/x", false},
		{"prefix doublestar", "**/part-0", "dataset/train/part-0", true},
		{"prefix doublestar exact", "**/part-0", "part-0", true},
		{"interior zero segments", "dataset/**/part-?", "dataset/part-1", true},
		{"interior two segments", "dataset/**/part-?", "dataset/a/b/part-1", true},
		{"interior empty segment", "dataset/**/part-?", "dataset//part-1", false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			matcher, err := Compile(test.pattern, false)
			if err != nil {
				t.Fatalf("Compile(%q): %v", test.pattern, err)
			}
			if got := matcher(test.input); got != test.want {
				t.Errorf("%q matching %q = %v, want %v", test.pattern, test.input, got, test.want)
			}
		})
	}
}

func TestRegex(t *testing.T) {
	matcher, err := Compile(`vineyard::(Tensor|DataFrame)`, true)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for input, want := range map[string]bool{
		"vineyard::Tensor":      true,
		"vineyard::DataFrame":   true,
		"vineyard::TensorX":     false,
		"xvineyard::Tensor":     false,
		"vineyard::RecordBatch": false,
	} {
		if got := matcher(input); got != want {
			t.Errorf("matching %q = %v, want %v", input, got, want)
		}
	}
}

func TestMalformedPatterns(t *testing.T) {
	if _, err := Compile("[unclosed", false); !errors.Is(err, storeerr.ErrInvalidArgument) {
		t.Errorf("Compile(bad glob) = %v, want InvalidArgument", err)
	}
	if _, err := Compile("(unclosed", true); !errors.Is(err, storeerr.ErrInvalidArgument) {
		t.Errorf("Compile(bad regex) = %v, want InvalidArgument", err)
	}
}

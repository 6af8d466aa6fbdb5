// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   string
		want string
	}{
		{in: "db/units/units", want: "db/units/units"},
		{in: `DB\Units\Units`, want: "db/units/units"},
		{in: "./text/en/core.loc", want: "text/en/core.loc"},
		{in: "/leading/slash", want: "leading/slash"},
		{in: "  spaced/path  ", want: "spaced/path"},
		{in: "a//b/./c", want: "a/b/c"},
		{in: "a/../b", want: "b"},
		{in: "", want: ""},
		{in: ".", want: ""},
		{in: "/", want: ""},
	}

	for _, tc := range testCases {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeEntryPathErrors(t *testing.T) {
	t.Parallel()

	if _, err := normalizeEntryPath(""); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("empty path: expected ErrInvalidEntryPath, got %v", err)
	}

	if _, err := normalizeEntryPath("   "); !errors.Is(err, ErrInvalidEntryPath) {
		t.Fatalf("blank path: expected ErrInvalidEntryPath, got %v", err)
	}

	long := strings.Repeat("a", maxEntryPathLen+1)
	if _, err := normalizeEntryPath(long); !errors.Is(err, ErrEntryPathTooLong) {
		t.Fatalf("long path: expected ErrEntryPathTooLong, got %v", err)
	}
}

func TestHasDirPrefix(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		p      string
		prefix string
		want   bool
	}{
		{p: "db/units/units", prefix: "db", want: true},
		{p: "db/units/units", prefix: "db/units", want: true},
		{p: "db/units/units", prefix: "db/units/units", want: true},
		{p: "db/units_extra/units", prefix: "db/units", want: false},
		{p: "other/file", prefix: "db", want: false},
	}

	for _, tc := range testCases {
		if got := hasDirPrefix(tc.p, tc.prefix); got != tc.want {
			t.Errorf("hasDirPrefix(%q, %q) = %v, want %v", tc.p, tc.prefix, got, tc.want)
		}
	}
}

func TestTableNameFromPath(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		p    string
		name string
		ok   bool
	}{
		{p: "db/units_tables/units", name: "units_tables", ok: true},
		{p: `DB\Units\data`, name: "units", ok: true},
		{p: "db/units", ok: false},
		{p: "data/db/units/units", ok: false},
		{p: "text/en/core.loc", ok: false},
	}

	for _, tc := range testCases {
		name, ok := tableNameFromPath(tc.p)
		if name != tc.name || ok != tc.ok {
			t.Errorf("tableNameFromPath(%q) = (%q, %v), want (%q, %v)", tc.p, name, ok, tc.name, tc.ok)
		}
	}
}

func TestIsLocPath(t *testing.T) {
	t.Parallel()

	if !isLocPath("text/en/core.loc") {
		t.Error("expected .loc path to be recognized")
	}
	if !isLocPath(`Text\EN\Core.LOC`) {
		t.Error("expected case-insensitive .loc match")
	}
	if isLocPath("text/en/core.txt") {
		t.Error("unexpected loc match for .txt")
	}
}

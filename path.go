// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"fmt"
	"path"
	"strings"
)

// NormalizePath converts an archive entry path to normalized slash-separated
// form. It trims spaces, accepts both "/" and "\", removes leading "./" and
// "/", cleans "." segments, and lower-cases the result to match the
// case-insensitive index encoding.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.ReplaceAll(raw, `\`, `/`)
	raw = strings.TrimPrefix(raw, "./")
	raw = strings.TrimPrefix(raw, "/")
	raw = path.Clean("/" + raw)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "." {
		return ""
	}

	return strings.ToLower(strings.TrimSuffix(raw, "/"))
}

// normalizeEntryPath converts an input path to canonical archive form.
func normalizeEntryPath(raw string) (string, error) {
	normalized := NormalizePath(raw)
	if normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryPath, raw)
	}

	if strings.ContainsRune(normalized, 0) {
		return "", fmt.Errorf("%w: %q contains NUL", ErrInvalidEntryPath, raw)
	}

	if len(normalized) > maxEntryPathLen {
		return "", fmt.Errorf("%w: %q", ErrEntryPathTooLong, raw)
	}

	return normalized, nil
}

// hasDirPrefix reports whether p is equal to prefix or inside that directory.
func hasDirPrefix(p string, prefix string) bool {
	p = NormalizePath(p)
	prefix = NormalizePath(prefix)

	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// tableNameFromPath extracts the table name from a DB entry path.
// DB tables live under "db/<table_name>/<file>".
func tableNameFromPath(p string) (string, bool) {
	parts := strings.Split(NormalizePath(p), "/")
	if len(parts) < 3 || parts[0] != "db" || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

// isLocPath reports whether the entry path addresses a localisation table.
func isLocPath(p string) bool {
	return strings.HasSuffix(NormalizePath(p), ".loc")
}

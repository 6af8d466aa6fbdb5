// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestExtractAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := buildTestArchive(t, PFH5)
	if err := a.ToggleCompression(true); err != nil {
		t.Fatalf("ToggleCompression: %v", err)
	}

	packPath := filepath.Join(dir, "out.pack")
	saveTo(t, a, packPath)

	opened, err := Open([]string{packPath}, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = opened.Close() }()

	var mu sync.Mutex
	done := make(map[string]int64)

	outDir := filepath.Join(dir, "extracted")
	err = opened.Extract(t.Context(), outDir, &ExtractOptions{
		OnEntryDone: func(path string, written int64, _ string) {
			mu.Lock()
			done[path] = written
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if len(done) != len(testPayloads) {
		t.Fatalf("progress events = %d, want %d", len(done), len(testPayloads))
	}

	for path, want := range testPayloads {
		got, err := os.ReadFile(filepath.Join(outDir, filepath.FromSlash(path)))
		if err != nil {
			t.Fatalf("ReadFile %s: %v", path, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("extracted %s differs from source", path)
		}
		if done[path] != int64(len(want)) {
			t.Fatalf("reported %d bytes for %s, want %d", done[path], path, len(want))
		}
	}
}

func TestExtractFiltered(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := buildTestArchive(t, PFH2)
	packPath := filepath.Join(dir, "out.pack")
	saveTo(t, a, packPath)

	opened, err := Open([]string{packPath}, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = opened.Close() }()

	outDir := filepath.Join(dir, "extracted")
	err = opened.Extract(t.Context(), outDir, &ExtractOptions{Paths: []string{"data"}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "data", "small.txt")); err != nil {
		t.Fatalf("filtered entry missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "scripts", "init.lua")); err == nil {
		t.Fatal("entry outside filter was extracted")
	}
}

func TestExtractNoMatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := buildTestArchive(t, PFH2)
	packPath := filepath.Join(dir, "out.pack")
	saveTo(t, a, packPath)

	opened, err := Open([]string{packPath}, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = opened.Close() }()

	err = opened.Extract(t.Context(), filepath.Join(dir, "x"), &ExtractOptions{Paths: []string{"nothing/here"}})
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestExtractOutputPathEscapes(t *testing.T) {
	t.Parallel()

	if _, err := extractOutputPath("/tmp/out", "../escape.txt"); !errors.Is(err, ErrInvalidExtractPath) {
		t.Fatalf("expected ErrInvalidExtractPath, got %v", err)
	}
	if _, err := extractOutputPath("/tmp/out", "/abs/path.txt"); !errors.Is(err, ErrInvalidExtractPath) {
		t.Fatalf("expected ErrInvalidExtractPath, got %v", err)
	}
	if _, err := extractOutputPath("/tmp/out", "ok/inside.txt"); err != nil {
		t.Fatalf("extractOutputPath: %v", err)
	}
}

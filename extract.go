// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Extract writes entry bodies under dstDir, mirroring entry paths as
// directories. Stored transforms are always undone: extracted files hold
// plain bytes. Entries run through a bounded worker pool; the first error
// cancels remaining work.
func (a *Archive) Extract(ctx context.Context, dstDir string, opts *ExtractOptions) error {
	if opts == nil {
		opts = &ExtractOptions{}
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	selected := a.selectEntries(opts.Paths)
	if len(opts.Paths) != 0 && len(selected) == 0 {
		return fmt.Errorf("%w: no entries match", ErrEntryNotFound)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, e := range selected {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			outputPath, err := extractOutputPath(dstDir, e.Path)
			if err != nil {
				return err
			}

			written, err := extractEntry(e, outputPath)
			if err != nil {
				return err
			}

			if opts.OnEntryDone != nil {
				opts.OnEntryDone(e.Path, written, outputPath)
			}

			return nil
		})
	}

	return g.Wait()
}

// selectEntries returns the entries to extract: all of them, or those whose
// path matches a filter exactly or sits under a filter directory.
func (a *Archive) selectEntries(filters []string) []*Entry {
	if len(filters) == 0 {
		return a.entries
	}

	canonical := make([]string, 0, len(filters))
	for _, f := range filters {
		canonical = append(canonical, NormalizePath(f))
	}

	var selected []*Entry
	for _, e := range a.entries {
		for _, f := range canonical {
			if e.Path == f || hasDirPrefix(e.Path, f) {
				selected = append(selected, e)
				break
			}
		}
	}

	return selected
}

// extractOutputPath maps an entry path to a location under dstDir, rejecting
// anything that would escape it.
func extractOutputPath(dstDir, entryPath string) (string, error) {
	if strings.HasPrefix(entryPath, "../") || entryPath == ".." || filepath.IsAbs(entryPath) {
		return "", fmt.Errorf("%w: %s", ErrInvalidExtractPath, entryPath)
	}

	out := filepath.Join(dstDir, filepath.FromSlash(entryPath))

	rel, err := filepath.Rel(dstDir, out)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidExtractPath, entryPath)
	}

	return out, nil
}

// extractEntry writes one decoded entry body to outputPath.
func extractEntry(e *Entry, outputPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return 0, fmt.Errorf("create dir for %s: %w", e.Path, err)
	}

	f, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", outputPath, err)
	}

	written, err := writeDecodedBody(e, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		_ = os.Remove(outputPath)
		return 0, fmt.Errorf("extract %s: %w", e.Path, err)
	}

	return written, nil
}

// writeDecodedBody streams an untransformed on-disk body straight from the
// archive file; transformed or in-memory bodies go through the decode cache.
func writeDecodedBody(e *Entry, f *os.File) (int64, error) {
	compressed, encrypted := e.wireState()
	if !e.InMemory() && !compressed && !encrypted {
		if err := e.src.copyTo(f, e.offset, e.size, nil); err != nil {
			return 0, err
		}

		return int64(e.size), nil
	}

	data, err := e.ReadDecoded()
	if err != nil {
		return 0, err
	}

	n, err := f.Write(data)
	return int64(n), err
}

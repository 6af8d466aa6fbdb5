// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/woozymasta/pathrules"
)

// saveCopyBufferSize is the streaming buffer for unchanged on-disk payloads.
const saveCopyBufferSize = 64 * 1024

// savePlanItem is one entry staged for writing. body is nil when the stored
// bytes can be streamed from the source archive unchanged.
type savePlanItem struct {
	entry      *Entry
	body       []byte
	size       uint32
	compressed bool
	encrypted  bool
	reencoded  bool
}

// Save writes the archive to path, or to its current FilePath when path is
// empty, with default options.
func (a *Archive) Save(path string) (*SaveResult, error) {
	return a.SaveWithOptions(path, SaveOptions{})
}

// SaveWithOptions writes the archive: header, dependency index, entry index,
// then bodies contiguously in index order.
//
// Entries whose stored transforms diverge from the archive's target bitmask
// are materialized and re-encoded; matching entries are streamed unchanged.
// The write is staged to a temporary file in the destination directory and
// renamed over the target only after a full successful write, so an encode
// failure never touches the previous on-disk archive.
func (a *Archive) SaveWithOptions(path string, opts SaveOptions) (*SaveResult, error) {
	opts.applyDefaults()

	if !a.Version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormatVersion, a.Version)
	}

	destination := path
	if destination == "" {
		destination = a.FilePath
	}
	if destination == "" {
		return nil, ErrNoFilePath
	}

	matcher, err := newCompressMatcher(opts.Compress, opts.CompressMatcherOptions)
	if err != nil {
		return nil, err
	}

	plan, err := a.buildSavePlan(matcher, opts.MinCompressSize)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, item := range plan {
		total += int64(item.size)
	}
	if total > maxArchiveData {
		return nil, fmt.Errorf("%w: total payload %d", ErrSizeOverflow, total)
	}

	if a.Timestamp == 0 && formatTable[a.Version].hasCreationTime {
		a.Timestamp = time.Now().Unix()
	}

	indexBlock := buildEntryIndex(plan, a.Version, a.HasIndexTimestamps())
	if a.HasIndexEncrypted() {
		indexBlock = obfuscateData(indexBlock, a.Version)
	}

	depBlock := buildDependencyIndex(a.Dependencies)
	header := a.buildHeader(len(plan), len(depBlock), len(indexBlock))

	if err := a.writeStaged(destination, opts, header, depBlock, indexBlock, plan); err != nil {
		return nil, err
	}

	a.FilePath = destination

	res := &SaveResult{
		WrittenEntries: len(plan),
		DataSize:       total,
		IndexSize:      int64(len(indexBlock)),
	}
	for _, item := range plan {
		if item.reencoded {
			res.ReencodedEntries++
		}
	}

	return res, nil
}

// buildSavePlan decides per entry whether stored bytes can be reused or the
// body must be re-encoded under the archive's target transforms.
func (a *Archive) buildSavePlan(matcher *compressMatcher, minCompressSize uint32) ([]savePlanItem, error) {
	plan := make([]savePlanItem, 0, len(a.entries)+1)
	for _, e := range a.entries {
		item, err := a.planEntry(e, matcher, minCompressSize)
		if err != nil {
			return nil, err
		}

		plan = append(plan, item)
	}

	if a.Notes != "" {
		notes := &Entry{Path: reservedNotesPath, data: []byte(a.Notes), inMemory: true}
		item, err := a.planEntry(notes, matcher, minCompressSize)
		if err != nil {
			return nil, err
		}

		plan = append(plan, item)
	}

	return plan, nil
}

// planEntry stages one entry for writing.
func (a *Archive) planEntry(e *Entry, matcher *compressMatcher, minCompressSize uint32) (savePlanItem, error) {
	wantCompress := a.HasDataCompressed() && matcher.Match(e.Path)
	wantEncrypt := a.HasDataEncrypted()

	curCompressed, curEncrypted := e.wireState()
	if wantCompress && !curCompressed && e.Size() < minCompressSize {
		// Too small to ever compress; the plain body already matches.
		wantCompress = false
	}
	cipherMatches := !curEncrypted || e.SourceVersion == a.Version
	if curCompressed == wantCompress && curEncrypted == wantEncrypt && cipherMatches {
		return savePlanItem{
			entry:      e,
			size:       e.Size(),
			compressed: curCompressed,
			encrypted:  curEncrypted,
		}, nil
	}

	plain, err := e.ReadDecoded()
	if err != nil {
		return savePlanItem{}, fmt.Errorf("re-encode %s: %w", e.Path, err)
	}

	body := plain
	compressed := false
	if wantCompress && uint32(len(plain)) >= minCompressSize { //nolint:gosec // bounded below
		// Compression is kept only when it actually shrinks the payload.
		if c := compressData(plain); len(c) < len(plain) {
			body = c
			compressed = true
		}
	}

	if wantEncrypt {
		body = obfuscateData(body, a.Version)
	}

	if int64(len(body)) > maxEntryDataSize {
		return savePlanItem{}, fmt.Errorf("%w: entry %s size %d", ErrSizeOverflow, e.Path, len(body))
	}

	return savePlanItem{
		entry:      e,
		body:       body,
		size:       uint32(len(body)),
		compressed: compressed,
		encrypted:  wantEncrypt,
		reencoded:  true,
	}, nil
}

// buildHeader serializes the fixed header and optional creation timestamp.
func (a *Archive) buildHeader(entryCount, depSize, indexSize int) []byte {
	ft := formatTable[a.Version]

	size := fixedHeaderSize
	if ft.hasCreationTime {
		size += 8
	}

	header := make([]byte, size)
	copy(header, ft.magic[:])
	binary.LittleEndian.PutUint32(header[4:8], uint32(a.flags))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(a.Dependencies)))  //nolint:gosec // dependency counts are small
	binary.LittleEndian.PutUint32(header[12:16], uint32(depSize))             //nolint:gosec // index sizes are bounded by maxArchiveData
	binary.LittleEndian.PutUint32(header[16:20], uint32(entryCount))          //nolint:gosec // entry counts are bounded by index size
	binary.LittleEndian.PutUint32(header[20:24], uint32(indexSize))           //nolint:gosec // index sizes are bounded by maxArchiveData
	if ft.hasCreationTime {
		binary.LittleEndian.PutUint64(header[24:32], uint64(a.Timestamp)) //nolint:gosec // raw i64 bits
	}

	return header
}

// buildDependencyIndex serializes declared dependency names NUL-terminated.
func buildDependencyIndex(deps []string) []byte {
	var out bytes.Buffer
	for _, name := range deps {
		out.WriteString(name)
		out.WriteByte(0)
	}

	return out.Bytes()
}

// buildEntryIndex serializes the entry index using the revision's
// conventions: optional i64 timestamp, size field with marker bits, path.
func buildEntryIndex(plan []savePlanItem, version FormatVersion, withTimestamps bool) []byte {
	ft := formatTable[version]

	var out bytes.Buffer
	var scratch [8]byte
	for _, item := range plan {
		if withTimestamps {
			binary.LittleEndian.PutUint64(scratch[:], uint64(item.entry.Timestamp)) //nolint:gosec // raw i64 bits
			out.Write(scratch[:8])
		}

		sizeField := item.size
		if item.encrypted && ft.entryEncryptedBit {
			sizeField |= sizeFieldEncrypted
		}
		if item.compressed && ft.entryCompressedBit {
			sizeField |= sizeFieldCompressed
		}

		binary.LittleEndian.PutUint32(scratch[:4], sizeField)
		out.Write(scratch[:4])

		if ft.lengthPrefixedPaths {
			binary.LittleEndian.PutUint16(scratch[:2], uint16(len(item.entry.Path))) //nolint:gosec // bounded by maxEntryPathLen
			out.Write(scratch[:2])
			out.WriteString(item.entry.Path)
		} else {
			out.WriteString(item.entry.Path)
			out.WriteByte(0)
		}
	}

	return out.Bytes()
}

// writeStaged writes the full archive into a temporary file next to the
// destination, then rotates backups and renames it into place.
func (a *Archive) writeStaged(destination string, opts SaveOptions, header, depBlock, indexBlock []byte, plan []savePlanItem) error {
	dir := filepath.Dir(destination)
	tmp, err := os.CreateTemp(dir, filepath.Base(destination)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}

	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	w := bufio.NewWriterSize(tmp, DefaultWriteBuffer)
	for _, block := range [][]byte{header, depBlock, indexBlock} {
		if _, err := w.Write(block); err != nil {
			cleanup()
			return fmt.Errorf("write archive structure: %w", err)
		}
	}

	copyBuf := make([]byte, saveCopyBufferSize)
	for _, item := range plan {
		if err := writePlanPayload(w, item, copyBuf); err != nil {
			cleanup()
			return err
		}

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(SaveEntryProgress{
				Path:       item.entry.Path,
				Size:       item.size,
				Compressed: item.compressed,
				Encrypted:  item.encrypted,
				Reencoded:  item.reencoded,
			})
		}
	}

	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush archive: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync archive: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close staging file: %w", err)
	}

	if err := rotateBackups(destination, opts.BackupKeep); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, destination); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace destination archive: %w", err)
	}

	return nil
}

// writePlanPayload writes one staged entry body, streaming unchanged on-disk
// payloads through the shared handle.
func writePlanPayload(w *bufio.Writer, item savePlanItem, copyBuf []byte) error {
	if item.body != nil {
		if _, err := w.Write(item.body); err != nil {
			return fmt.Errorf("write payload %s: %w", item.entry.Path, err)
		}

		return nil
	}

	e := item.entry
	if e.inMemory {
		if _, err := w.Write(e.data); err != nil {
			return fmt.Errorf("write payload %s: %w", e.Path, err)
		}

		return nil
	}

	if err := e.src.copyTo(w, e.offset, e.size, copyBuf); err != nil {
		return fmt.Errorf("copy payload %s: %w", e.Path, err)
	}

	return nil
}

// rotateBackups rotates existing backup generations of destination before a
// new save replaces it. keep 0 leaves no backup; the rename-over-destination
// is atomic either way.
func rotateBackups(destination string, keep int) error {
	if keep <= 0 {
		return nil
	}

	if _, err := os.Stat(destination); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	backupPath := destination + ".bak"
	oldest := fmt.Sprintf("%s.%d", backupPath, keep-1)
	if keep > 1 {
		if err := removeIfExists(oldest); err != nil {
			return err
		}

		for i := keep - 2; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d", backupPath, i)
			to := fmt.Sprintf("%s.%d", backupPath, i+1)
			if err := renameIfExists(from, to); err != nil {
				return err
			}
		}

		if err := renameIfExists(backupPath, backupPath+".1"); err != nil {
			return err
		}
	} else if err := removeIfExists(backupPath); err != nil {
		return err
	}

	if err := os.Rename(destination, backupPath); err != nil {
		return fmt.Errorf("move archive to backup: %w", err)
	}

	return nil
}

// renameIfExists renames source to destination when source exists.
func renameIfExists(from string, to string) error {
	_, err := os.Stat(from)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}

	if err := removeIfExists(to); err != nil {
		return err
	}

	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}

	return nil
}

// removeIfExists removes file when present.
func removeIfExists(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) || err == nil {
		return nil
	}

	return fmt.Errorf("remove %s: %w", path, err)
}

// compressMatcher holds compiled path rules for save-time compression.
type compressMatcher struct {
	matcher *pathrules.Matcher
}

// newCompressMatcher compiles compression path rules. Empty rules yield a
// nil matcher, which includes every path.
func newCompressMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*compressMatcher, error) {
	if len(rules) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("compile compress rules: %w", err)
	}

	return &compressMatcher{matcher: matcher}, nil
}

// Match reports whether path is selected for compression.
func (m *compressMatcher) Match(path string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Open opens one or more Pack files and merges their indices in the order
// given: entries from later archives override earlier ones at the same path,
// so several archives read as one logical view.
//
// With lazy true, entry bodies stay on disk behind a shared file handle
// until first read; otherwise all bodies are loaded eagerly and the files
// are closed before returning. Laziness is an optimization only — decoded
// bytes are identical either way.
func Open(paths []string, lazy bool) (*Archive, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no paths given", ErrNoFilePath)
	}

	merged, err := openSingle(paths[0], lazy)
	if err != nil {
		return nil, err
	}

	if len(paths) > 1 {
		// A merged view has no single on-disk location.
		merged.FilePath = ""
	}

	for _, path := range paths[1:] {
		next, err := openSingle(path, lazy)
		if err != nil {
			_ = merged.Close()
			return nil, err
		}

		for _, e := range next.entries {
			if err := merged.Add(e, true); err != nil {
				_ = merged.Close()
				_ = next.Close()
				return nil, err
			}
		}

		merged.files = append(merged.files, next.files...)
	}

	return merged, nil
}

// ListEntries returns entry metadata for one Pack file without keeping it open.
func ListEntries(path string) ([]EntrySummary, error) {
	a, err := openSingle(path, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	return a.Entries(), nil
}

// openSingle opens and parses one Pack file.
func openSingle(path string, lazy bool) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open Pack: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat: %w", err)
	}

	a, err := parseArchive(f, fi.Size(), path, lazy)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return a, nil
}

// parseArchive reads header, dependency index, entry index, and body layout
// from an open file. Ownership of f passes to the archive on success when
// lazy; otherwise f is closed before returning.
func parseArchive(f *os.File, size int64, path string, lazy bool) (*Archive, error) {
	header := make([]byte, fixedHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrCorruptData)
	}

	version, err := parseFormatMagic(header[:magicSize])
	if err != nil {
		return nil, err
	}

	ft := formatTable[version]
	flags := Flags(binary.LittleEndian.Uint32(header[4:8]))
	if illegal := flags &^ ft.bits.legal(); illegal != 0 {
		return nil, fmt.Errorf("%w: bitmask %#x carries bits illegal under %s", ErrCorruptData, uint32(flags), version)
	}

	depCount := binary.LittleEndian.Uint32(header[8:12])
	depSize := binary.LittleEndian.Uint32(header[12:16])
	entryCount := binary.LittleEndian.Uint32(header[16:20])
	indexSize := binary.LittleEndian.Uint32(header[20:24])

	var timestamp int64
	headerEnd := int64(fixedHeaderSize)
	if ft.hasCreationTime {
		var ts [8]byte
		if _, err := io.ReadFull(f, ts[:]); err != nil {
			return nil, fmt.Errorf("%w: short creation timestamp", ErrCorruptData)
		}

		timestamp = int64(binary.LittleEndian.Uint64(ts[:])) //nolint:gosec // timestamps are stored as raw i64 bits
		headerEnd += 8
	}

	if int64(depSize)+int64(indexSize) > size-headerEnd {
		return nil, fmt.Errorf("%w: index sizes exceed file size", ErrCorruptData)
	}

	depBlock := make([]byte, depSize)
	if _, err := io.ReadFull(f, depBlock); err != nil {
		return nil, fmt.Errorf("%w: short dependency index", ErrCorruptData)
	}

	deps, err := parseDependencyIndex(depBlock, depCount)
	if err != nil {
		return nil, err
	}

	indexBlock := make([]byte, indexSize)
	if _, err := io.ReadFull(f, indexBlock); err != nil {
		return nil, fmt.Errorf("%w: short entry index", ErrCorruptData)
	}

	hasTimestamps := flags&ft.bits.indexTimestamps != 0
	if flags&ft.bits.indexEncrypted != 0 {
		indexBlock = deobfuscateData(indexBlock, version)
	}

	records, err := parseEntryIndex(indexBlock, entryCount, version, hasTimestamps)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		Version:      version,
		FilePath:     path,
		Timestamp:    timestamp,
		Dependencies: deps,
		flags:        flags,
		index:        make(map[string]int, len(records)),
	}

	shared := &sharedFile{f: f}
	dataStart := headerEnd + int64(depSize) + int64(indexSize)
	offset := dataStart
	for _, rec := range records {
		end := offset + int64(rec.size)
		if end > size {
			return nil, fmt.Errorf("%w: entry %s payload out of file bounds", ErrCorruptData, rec.path)
		}

		e := newDiskEntry(rec.path, rec.timestamp, rec.compressed, rec.encrypted, version, shared, offset, rec.size)
		if err := a.Add(e, false); err != nil {
			return nil, fmt.Errorf("%w: duplicate index path %q", ErrCorruptData, rec.path)
		}

		offset = end
	}

	if lazy {
		a.files = append(a.files, shared)
	} else {
		for _, e := range a.entries {
			if err := e.LoadIntoMemory(); err != nil {
				return nil, err
			}
		}

		if err := shared.Close(); err != nil {
			return nil, fmt.Errorf("close after eager read: %w", err)
		}
	}

	a.extractNotesEntry()

	return a, nil
}

// extractNotesEntry moves the reserved notes entry content into Notes.
func (a *Archive) extractNotesEntry() {
	e, ok := a.Lookup(reservedNotesPath)
	if !ok {
		return
	}

	if data, err := e.ReadDecoded(); err == nil {
		a.Notes = string(data)
	}

	a.Remove(reservedNotesPath)
}

// entryRecord is one parsed index record before body offsets are assigned.
type entryRecord struct {
	path       string
	timestamp  int64
	size       uint32
	compressed bool
	encrypted  bool
}

// parseDependencyIndex reads count NUL-terminated dependency archive names.
func parseDependencyIndex(block []byte, count uint32) ([]string, error) {
	if count == 0 {
		if len(block) != 0 {
			return nil, fmt.Errorf("%w: dependency index has trailing bytes", ErrCorruptData)
		}

		return nil, nil
	}

	deps := make([]string, 0, count)
	rest := block
	for i := uint32(0); i < count; i++ {
		name, tail, err := cutNullTerminated(rest)
		if err != nil {
			return nil, fmt.Errorf("%w: dependency index record %d", ErrCorruptData, i)
		}

		deps = append(deps, name)
		rest = tail
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: dependency index has trailing bytes", ErrCorruptData)
	}

	return deps, nil
}

// parseEntryIndex reads entryCount index records using the revision's
// conventions: optional i64 timestamp, size field with marker bits, and
// either NUL-terminated or length-prefixed path.
func parseEntryIndex(block []byte, count uint32, version FormatVersion, hasTimestamps bool) ([]entryRecord, error) {
	ft := formatTable[version]
	records := make([]entryRecord, 0, count)
	rest := block

	for i := uint32(0); i < count; i++ {
		var rec entryRecord

		if hasTimestamps {
			if len(rest) < 8 {
				return nil, fmt.Errorf("%w: index record %d timestamp", ErrCorruptData, i)
			}

			rec.timestamp = int64(binary.LittleEndian.Uint64(rest)) //nolint:gosec // raw i64 bits
			rest = rest[8:]
		}

		if len(rest) < 4 {
			return nil, fmt.Errorf("%w: index record %d size field", ErrCorruptData, i)
		}

		sizeField := binary.LittleEndian.Uint32(rest)
		rest = rest[4:]

		rec.size = sizeField & sizeFieldMask
		rec.encrypted = ft.entryEncryptedBit && sizeField&sizeFieldEncrypted != 0
		rec.compressed = ft.entryCompressedBit && sizeField&sizeFieldCompressed != 0

		rawPath, tail, err := cutIndexPath(rest, ft.lengthPrefixedPaths)
		if err != nil {
			return nil, fmt.Errorf("%w: index record %d path", ErrCorruptData, i)
		}

		rest = tail
		rec.path, err = normalizeEntryPath(rawPath)
		if err != nil {
			return nil, fmt.Errorf("index record %d: %w", i, err)
		}

		records = append(records, rec)
	}

	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: entry index has trailing bytes", ErrCorruptData)
	}

	return records, nil
}

// cutIndexPath splits one index path off the front of block, honoring the
// revision's path encoding.
func cutIndexPath(block []byte, lengthPrefixed bool) (string, []byte, error) {
	if !lengthPrefixed {
		return cutNullTerminated(block)
	}

	if len(block) < 2 {
		return "", nil, io.ErrUnexpectedEOF
	}

	n := int(binary.LittleEndian.Uint16(block))
	if n > maxEntryPathLen || len(block)-2 < n {
		return "", nil, io.ErrUnexpectedEOF
	}

	return string(block[2 : 2+n]), block[2+n:], nil
}

// cutNullTerminated splits one NUL-terminated string off the front of block.
func cutNullTerminated(block []byte) (string, []byte, error) {
	i := bytes.IndexByte(block, 0)
	if i < 0 || i > maxEntryPathLen {
		return "", nil, io.ErrUnexpectedEOF
	}

	return string(block[:i]), block[i+1:], nil
}

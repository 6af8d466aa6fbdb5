// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import "errors"

// Sentinel errors for Pack operations. Use errors.Is in callers.
var (
	// ErrBadMagic means the file does not start with a known format magic.
	ErrBadMagic = errors.New("invalid Pack file: unknown format magic")
	// ErrCorruptData means the archive, index, or a compression frame is malformed.
	ErrCorruptData = errors.New("corrupt data")
	// ErrTruncated means the data ended in the middle of a record.
	ErrTruncated = errors.New("truncated data")
	// ErrInvalidField means a field length points past the end of the buffer.
	ErrInvalidField = errors.New("invalid field")
	// ErrEntryNotFound means the entry path is not present in the archive.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryExists means an entry with the same path is already present.
	ErrEntryExists = errors.New("entry already exists")
	// ErrPathConflict means a rename target path is already taken.
	ErrPathConflict = errors.New("entry path conflict")
	// ErrInvalidEntryPath means the entry path is empty or invalid after normalization.
	ErrInvalidEntryPath = errors.New("invalid entry path")
	// ErrEntryPathTooLong means the entry path exceeds the maximum index length.
	ErrEntryPathTooLong = errors.New("entry path exceeds maximum length")
	// ErrSizeOverflow means a size exceeds the 30-bit entry or 4 GiB archive limit.
	ErrSizeOverflow = errors.New("size exceeds entry or archive limit")
	// ErrUnsupportedFlag means the flag is not legal for the archive format version.
	ErrUnsupportedFlag = errors.New("flag not supported by format version")
	// ErrUnknownFormatVersion means the format version is not a known revision.
	ErrUnknownFormatVersion = errors.New("unknown format version")
	// ErrSchemaNotFound means no definitions are known for the table name.
	ErrSchemaNotFound = errors.New("schema has no definitions for table")
	// ErrUnknownVersion means no definition matches the table's declared version.
	ErrUnknownVersion = errors.New("no definition for table version")
	// ErrNoArchive means the operation requires an open archive.
	ErrNoArchive = errors.New("no archive is open")
	// ErrNoFilePath means the archive has no file path and needs an explicit one.
	ErrNoFilePath = errors.New("archive has no file path")
	// ErrClosed means the archive's backing file is already closed.
	ErrClosed = errors.New("archive file already closed")
	// ErrInvalidExtractPath means an entry path is invalid as extraction destination.
	ErrInvalidExtractPath = errors.New("invalid extract path")
	// ErrNotATable means the entry path does not address a decodable table.
	ErrNotATable = errors.New("entry path is not a table")
	// ErrInvalidTSV means the text table has a malformed header or cell.
	ErrInvalidTSV = errors.New("invalid tab-separated table")
)

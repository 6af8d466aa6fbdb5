// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"encoding/binary"
	"fmt"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	magicSize        = 4              // format magic at file start
	fixedHeaderSize  = magicSize + 20 // magic + bitmask + four u32 counters
	maxEntryPathLen  = 512            // max entry path length in index
	maxEntryDataSize = 1<<30 - 1      // size field keeps two marker bits
	maxArchiveData   = int64(1) << 32 // max addressable payload
)

// Default save tuning values.
const (
	DefaultWriteBuffer     = 16 * 1024 * 1024
	DefaultMinCompressSize = 64
)

// Size field marker bits. The low 30 bits carry the on-wire entry size.
const (
	sizeFieldEncrypted  = uint32(1) << 31
	sizeFieldCompressed = uint32(1) << 30
	sizeFieldMask       = uint32(1)<<30 - 1
)

// FormatVersion identifies one Pack header revision, ordered oldest to newest.
type FormatVersion uint8

// Known Pack format revisions.
const (
	// PFH0 is the oldest revision: length-prefixed index paths, no flags.
	PFH0 FormatVersion = iota
	// PFH2 introduces NUL-terminated index paths and the extended header bit.
	PFH2
	// PFH3 adds the creation timestamp and data encryption.
	PFH3
	// PFH4 adds per-entry index timestamps and moves the flag bit layout.
	PFH4
	// PFH5 is the newest revision and adds default data compression.
	PFH5
)

// String returns the four-character magic for the version.
func (v FormatVersion) String() string {
	ft, ok := formatTable[v]
	if !ok {
		return fmt.Sprintf("PFH?(%d)", uint8(v))
	}

	return string(ft.magic[:])
}

// Valid reports whether the version is a known revision.
func (v FormatVersion) Valid() bool {
	_, ok := formatTable[v]
	return ok
}

// Flags is the archive header bitmask. Bit positions are version-dependent;
// use the Archive accessors instead of testing bits directly.
type Flags uint32

// flagBits maps logical flags to their bit positions for one revision.
// A zero position means the revision does not carry that flag.
type flagBits struct {
	extendedHeader  Flags
	indexTimestamps Flags
	dataCompressed  Flags
	indexEncrypted  Flags
	dataEncrypted   Flags
}

// legal returns the mask of all bit positions valid for this revision.
func (b flagBits) legal() Flags {
	return b.extendedHeader | b.indexTimestamps | b.dataCompressed | b.indexEncrypted | b.dataEncrypted
}

// formatFeatures describes the table-driven layout of one header revision.
type formatFeatures struct {
	magic [4]byte
	bits  flagBits
	// hasCreationTime gates the i64 timestamp after the fixed header.
	hasCreationTime bool
	// lengthPrefixedPaths selects u16-length index paths instead of NUL-terminated.
	lengthPrefixedPaths bool
	// entryEncryptedBit allows the size field top bit as per-entry encryption marker.
	entryEncryptedBit bool
	// entryCompressedBit allows size field bit 30 as per-entry compression marker.
	entryCompressedBit bool
	// cipherKey and cipherMul parameterize the obfuscation key schedule.
	cipherKey [32]byte
	cipherMul byte
}

// formatTable drives header parsing and writing per revision. Bit positions
// intentionally differ between old and new revisions; never hardcode them.
var formatTable = map[FormatVersion]formatFeatures{
	PFH0: {
		magic:               [4]byte{'P', 'F', 'H', '0'},
		lengthPrefixedPaths: true,
		cipherKey:           keySchedulePFH0,
		cipherMul:           0x4f,
	},
	PFH2: {
		magic: [4]byte{'P', 'F', 'H', '2'},
		bits: flagBits{
			extendedHeader: 0x01,
			indexEncrypted: 0x02,
		},
		cipherKey: keySchedulePFH2,
		cipherMul: 0x79,
	},
	PFH3: {
		magic: [4]byte{'P', 'F', 'H', '3'},
		bits: flagBits{
			extendedHeader: 0x01,
			indexEncrypted: 0x02,
			dataEncrypted:  0x04,
		},
		hasCreationTime:   true,
		entryEncryptedBit: true,
		cipherKey:         keySchedulePFH3,
		cipherMul:         0xa3,
	},
	PFH4: {
		magic: [4]byte{'P', 'F', 'H', '4'},
		bits: flagBits{
			extendedHeader:  0x100,
			indexTimestamps: 0x40,
			indexEncrypted:  0x80,
			dataEncrypted:   0x10,
		},
		hasCreationTime:   true,
		entryEncryptedBit: true,
		cipherKey:         keySchedulePFH4,
		cipherMul:         0xc1,
	},
	PFH5: {
		magic: [4]byte{'P', 'F', 'H', '5'},
		bits: flagBits{
			extendedHeader:  0x100,
			indexTimestamps: 0x40,
			dataCompressed:  0x20,
			indexEncrypted:  0x80,
			dataEncrypted:   0x10,
		},
		hasCreationTime:    true,
		entryEncryptedBit:  true,
		entryCompressedBit: true,
		cipherKey:          keySchedulePFH5,
		cipherMul:          0xe7,
	},
}

// parseFormatMagic resolves a header magic to its revision.
func parseFormatMagic(magic []byte) (FormatVersion, error) {
	if len(magic) < magicSize {
		return 0, fmt.Errorf("%w: short magic", ErrBadMagic)
	}

	m := binary.LittleEndian.Uint32(magic)
	for v, ft := range formatTable {
		if binary.LittleEndian.Uint32(ft.magic[:]) == m {
			return v, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrBadMagic, magic[:magicSize])
}

// EntrySummary describes one entry from a metadata-only scan.
type EntrySummary struct {
	// Path is the canonical entry path inside the archive.
	Path string `json:"path" yaml:"path"`
	// Size is the on-wire payload size in bytes.
	Size uint32 `json:"size" yaml:"size"`
	// Timestamp is the entry last-modified time; zero when the index carries none.
	Timestamp int64 `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	// Compressed reports whether the stored payload is compressed.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
	// Encrypted reports whether the stored payload is obfuscated.
	Encrypted bool `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
}

// SaveEntryProgress contains one completed entry write event from save flow.
type SaveEntryProgress struct {
	// Path is the entry path written to the archive.
	Path string `json:"path" yaml:"path"`
	// Size is the on-wire payload size written.
	Size uint32 `json:"size" yaml:"size"`
	// Compressed reports whether the payload was written compressed.
	Compressed bool `json:"compressed,omitempty" yaml:"compressed,omitempty"`
	// Encrypted reports whether the payload was written obfuscated.
	Encrypted bool `json:"encrypted,omitempty" yaml:"encrypted,omitempty"`
	// Reencoded reports whether the entry body had to be re-encoded for save.
	Reencoded bool `json:"reencoded,omitempty" yaml:"reencoded,omitempty"`
}

// SaveOptions configures archive save behavior.
type SaveOptions struct {
	// OnEntryDone is called after one entry payload is fully written.
	OnEntryDone func(entry SaveEntryProgress) `json:"-" yaml:"-"`
	// Compress defines ordered path rules selecting compression candidates.
	// Empty rules compress every eligible entry when the archive compression
	// flag is set.
	Compress []pathrules.Rule `json:"compress,omitempty" yaml:"compress,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// MinCompressSize disables compression for entries smaller than this size.
	MinCompressSize uint32 `json:"min_compress_size,omitempty" yaml:"min_compress_size,omitempty"`
	// BackupKeep controls how many backup generations of the destination are
	// kept after a successful save. 0 means none, 1 keeps only `<archive>.bak`,
	// N keeps `.bak` + `.bak.1..N-1`.
	BackupKeep int `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty"`
}

// SaveResult contains save output statistics.
type SaveResult struct {
	// WrittenEntries is the number of entries written.
	WrittenEntries int `json:"written_entries" yaml:"written_entries"`
	// DataSize is total payload bytes written.
	DataSize int64 `json:"data_size" yaml:"data_size"`
	// IndexSize is total entry index bytes written.
	IndexSize int64 `json:"index_size" yaml:"index_size"`
	// ReencodedEntries is the number of entries re-encoded to match archive flags.
	ReencodedEntries int `json:"reencoded_entries,omitempty" yaml:"reencoded_entries,omitempty"`
}

// ExtractOptions configures Extract behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(path string, written int64, outputPath string) `json:"-" yaml:"-"`
	// Paths limits extraction to the listed entry paths; nil means all.
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	// MaxWorkers is the number of extraction workers (zero means GOMAXPROCS).
	MaxWorkers int `json:"max_workers,omitempty" yaml:"max_workers,omitempty"`
}

// applyDefaults fills zero-valued save options with defaults.
func (opts *SaveOptions) applyDefaults() {
	if opts.MinCompressSize == 0 {
		opts.MinCompressSize = DefaultMinCompressSize
	}

	if opts.BackupKeep < 0 {
		opts.BackupKeep = 0
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionInclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionInclude
	}
}

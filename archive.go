// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"fmt"
)

// reservedNotesPath carries the archive free-text note between saves.
// It is stripped from the visible entry list on open.
const reservedNotesPath = ".pack-notes"

// Archive is a named, versioned Pack container holding an ordered
// collection of entries keyed by slash-delimited path.
//
// An Archive is owned by a single worker; mutation is not synchronized.
// Bulk read-only fan-out over materialized entries is safe because the only
// shared resource, the backing file handle, is guarded internally.
type Archive struct {
	// Version is the declared header revision. It constrains which bitmask
	// bits are legal.
	Version FormatVersion
	// FilePath is the on-disk location; empty for new or merged archives.
	FilePath string
	// Timestamp is the archive creation/modification time, written for
	// revisions that carry one.
	Timestamp int64
	// Dependencies are the declared dependency archive names, in order.
	Dependencies []string
	// Notes is the archive free-text note, persisted in a reserved entry.
	Notes string

	flags   Flags
	entries []*Entry
	index   map[string]int
	files   []*sharedFile
}

// New creates an empty, unsaved archive of the given revision.
func New(version FormatVersion) (*Archive, error) {
	if !version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormatVersion, version)
	}

	return &Archive{
		Version: version,
		index:   make(map[string]int),
	}, nil
}

// Close releases the backing file handles of a lazily opened archive.
// Entries not yet materialized become unreadable.
func (a *Archive) Close() error {
	var first error
	for _, f := range a.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}

	a.files = nil
	return first
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entries returns summaries of all entries in index order.
func (a *Archive) Entries() []EntrySummary {
	out := make([]EntrySummary, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.summary()
	}

	return out
}

// Paths returns all entry paths in index order.
func (a *Archive) Paths() []string {
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.Path
	}

	return out
}

// Lookup resolves one entry by path.
func (a *Archive) Lookup(path string) (*Entry, bool) {
	i, ok := a.index[NormalizePath(path)]
	if !ok {
		return nil, false
	}

	return a.entries[i], true
}

// HasEntry reports whether an entry exists at path.
func (a *Archive) HasEntry(path string) bool {
	_, ok := a.index[NormalizePath(path)]
	return ok
}

// HasFolder reports whether any entry lives under the folder path.
func (a *Archive) HasFolder(path string) bool {
	prefix := NormalizePath(path)
	if prefix == "" {
		return len(a.entries) > 0
	}

	for _, e := range a.entries {
		if hasDirPrefix(e.Path, prefix) && e.Path != prefix {
			return true
		}
	}

	return false
}

// Add inserts an entry. With overwrite false it fails when the path is
// already present; with overwrite true it replaces the existing entry in place.
func (a *Archive) Add(e *Entry, overwrite bool) error {
	canonical, err := normalizeEntryPath(e.Path)
	if err != nil {
		return err
	}

	e.Path = canonical
	if i, exists := a.index[canonical]; exists {
		if !overwrite {
			return fmt.Errorf("%w: %q", ErrEntryExists, canonical)
		}

		a.entries[i] = e
		return nil
	}

	a.index[canonical] = len(a.entries)
	a.entries = append(a.entries, e)

	return nil
}

// Remove deletes the entry at path and returns it.
func (a *Archive) Remove(path string) (*Entry, bool) {
	canonical := NormalizePath(path)
	i, ok := a.index[canonical]
	if !ok {
		return nil, false
	}

	removed := a.entries[i]
	a.entries = append(a.entries[:i], a.entries[i+1:]...)
	delete(a.index, canonical)
	for j := i; j < len(a.entries); j++ {
		a.index[a.entries[j].Path] = j
	}

	return removed, true
}

// Rename moves the entry at old to new. It fails with ErrPathConflict when
// the target path is already taken.
func (a *Archive) Rename(old, new string) error {
	oldPath := NormalizePath(old)
	i, ok := a.index[oldPath]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEntryNotFound, old)
	}

	newPath, err := normalizeEntryPath(new)
	if err != nil {
		return err
	}

	if newPath == oldPath {
		return nil
	}

	if _, exists := a.index[newPath]; exists {
		return fmt.Errorf("%w: %q", ErrPathConflict, newPath)
	}

	delete(a.index, oldPath)
	a.entries[i].Path = newPath
	a.index[newPath] = i

	return nil
}

// Flags returns the raw header bitmask.
func (a *Archive) Flags() Flags {
	return a.flags
}

// HasIndexTimestamps reports whether the index carries per-entry timestamps.
func (a *Archive) HasIndexTimestamps() bool {
	return a.flags&formatTable[a.Version].bits.indexTimestamps != 0
}

// HasDataCompressed reports whether entry data is compressed by default.
func (a *Archive) HasDataCompressed() bool {
	return a.flags&formatTable[a.Version].bits.dataCompressed != 0
}

// HasIndexEncrypted reports whether the entry index is obfuscated.
func (a *Archive) HasIndexEncrypted() bool {
	return a.flags&formatTable[a.Version].bits.indexEncrypted != 0
}

// HasDataEncrypted reports whether entry data is obfuscated.
func (a *Archive) HasDataEncrypted() bool {
	return a.flags&formatTable[a.Version].bits.dataEncrypted != 0
}

// HasExtendedHeader reports whether the extended header bit is set.
func (a *Archive) HasExtendedHeader() bool {
	return a.flags&formatTable[a.Version].bits.extendedHeader != 0
}

// setFlagBit sets or clears one version-positioned flag bit.
func (a *Archive) setFlagBit(bit Flags, name string, on bool) error {
	if bit == 0 {
		return fmt.Errorf("%w: %s under %s", ErrUnsupportedFlag, name, a.Version)
	}

	if on {
		a.flags |= bit
	} else {
		a.flags &^= bit
	}

	return nil
}

// SetIndexTimestamps toggles per-entry index timestamps for future saves.
func (a *Archive) SetIndexTimestamps(on bool) error {
	return a.setFlagBit(formatTable[a.Version].bits.indexTimestamps, "index timestamps", on)
}

// ToggleCompression flips the archive-level compression default. Future
// saves re-encode entries accordingly; existing entries are not touched
// until then.
func (a *Archive) ToggleCompression(on bool) error {
	return a.setFlagBit(formatTable[a.Version].bits.dataCompressed, "data compression", on)
}

// SetIndexEncrypted toggles index obfuscation for future saves.
func (a *Archive) SetIndexEncrypted(on bool) error {
	return a.setFlagBit(formatTable[a.Version].bits.indexEncrypted, "index encryption", on)
}

// SetDataEncrypted toggles entry data obfuscation for future saves.
func (a *Archive) SetDataEncrypted(on bool) error {
	return a.setFlagBit(formatTable[a.Version].bits.dataEncrypted, "data encryption", on)
}

// SetFormatVersion changes the declared header revision. It is a pure
// metadata update: logical flags are remapped to the new revision's bit
// positions (dropping flags the revision cannot carry) and entries are not
// re-encoded — stored bodies stay valid under assumptions the caller must
// enforce before saving.
func (a *Archive) SetFormatVersion(v FormatVersion) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownFormatVersion, v)
	}

	if v == a.Version {
		return nil
	}

	old := formatTable[a.Version].bits
	next := formatTable[v].bits

	var remapped Flags
	if a.flags&old.extendedHeader != 0 {
		remapped |= next.extendedHeader
	}
	if a.flags&old.indexTimestamps != 0 {
		remapped |= next.indexTimestamps
	}
	if a.flags&old.dataCompressed != 0 {
		remapped |= next.dataCompressed
	}
	if a.flags&old.indexEncrypted != 0 {
		remapped |= next.indexEncrypted
	}
	if a.flags&old.dataEncrypted != 0 {
		remapped |= next.dataEncrypted
	}

	a.Version = v
	a.flags = remapped

	return nil
}

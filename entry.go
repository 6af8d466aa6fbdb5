// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// sharedFile is the backing file of one opened archive. Many lazy entries
// read from it by offset, so every access is a seek+read critical section.
type sharedFile struct {
	mu     sync.Mutex
	f      *os.File
	closed bool
}

// readAt reads exactly size bytes starting at offset. The seek and read are
// atomic with respect to other entries sharing this handle.
func (s *sharedFile) readAt(offset int64, size uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek entry data: %w", err)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(s.f, data); err != nil {
		return nil, fmt.Errorf("read entry data: %w", err)
	}

	return data, nil
}

// copyTo streams exactly size bytes starting at offset into w. The handle
// is locked for the whole copy so concurrent entry reads stay consistent.
func (s *sharedFile) copyTo(w io.Writer, offset int64, size uint32, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if _, err := s.f.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek entry data: %w", err)
	}

	if len(buf) == 0 {
		buf = make([]byte, 32*1024)
	}

	remaining := int64(size)
	for remaining > 0 {
		chunk := int64(len(buf))
		if chunk > remaining {
			chunk = remaining
		}

		n, err := io.ReadFull(s.f, buf[:chunk])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}

			remaining -= int64(n)
		}

		if err != nil {
			return fmt.Errorf("read entry data: %w", err)
		}
	}

	return nil
}

// Close closes the shared handle. Entries still on disk become unreadable.
func (s *sharedFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.f.Close()
}

// Entry is one logical file inside an archive.
//
// The body is in one of two states: in memory, or on disk behind the
// archive's shared file handle. On-disk bodies hold the bytes exactly as
// stored (possibly compressed and/or obfuscated); the recorded transforms
// are undone on first decoded read and the plain bytes are cached.
type Entry struct {
	// Path is the canonical slash-separated entry path.
	Path string
	// Timestamp is the last-modified time; meaningful only when the owning
	// archive carries index timestamps.
	Timestamp int64
	// Compressed reports whether the stored payload is compressed.
	Compressed bool
	// Encrypted reports whether the stored payload is obfuscated.
	Encrypted bool
	// SourceVersion is the format version of the archive the entry was read
	// from; it selects the de-obfuscation variant for encrypted bodies.
	SourceVersion FormatVersion

	// mu guards the body state below. Materializing and untransforming is a
	// one-way transition; the lock keeps it idempotent when several decoded
	// reads of the same entry race.
	mu sync.Mutex

	// In-memory body state. data holds the bytes; the still* flags track
	// which stored transforms have not been undone yet.
	data            []byte
	stillCompressed bool
	stillEncrypted  bool

	// On-disk body state.
	src    *sharedFile
	offset int64
	size   uint32

	inMemory bool
}

// NewEntry creates an in-memory entry holding plain (untransformed) bytes.
func NewEntry(path string, data []byte) (*Entry, error) {
	canonical, err := normalizeEntryPath(path)
	if err != nil {
		return nil, err
	}

	return &Entry{
		Path:     canonical,
		data:     data,
		inMemory: true,
	}, nil
}

// newDiskEntry creates a lazy entry pointing into an archive file.
func newDiskEntry(path string, timestamp int64, compressed, encrypted bool, version FormatVersion, src *sharedFile, offset int64, size uint32) *Entry {
	return &Entry{
		Path:          path,
		Timestamp:     timestamp,
		Compressed:    compressed,
		Encrypted:     encrypted,
		SourceVersion: version,
		src:           src,
		offset:        offset,
		size:          size,
	}
}

// InMemory reports whether the entry body is materialized.
func (e *Entry) InMemory() bool {
	return e.inMemory
}

// Size returns the on-wire size for on-disk entries and the current logical
// size for in-memory entries. The two differ when compression applies.
func (e *Entry) Size() uint32 {
	if e.inMemory {
		return uint32(len(e.data)) //nolint:gosec // bodies are bounded by maxEntryDataSize on write
	}

	return e.size
}

// LoadIntoMemory materializes the body from disk without undoing transforms.
// It is a no-op when the body is already in memory.
func (e *Entry) LoadIntoMemory() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.loadLocked()
}

func (e *Entry) loadLocked() error {
	if e.inMemory {
		return nil
	}

	data, err := e.src.readAt(e.offset, e.size)
	if err != nil {
		return fmt.Errorf("load %s: %w", e.Path, err)
	}

	e.data = data
	e.stillCompressed = e.Compressed
	e.stillEncrypted = e.Encrypted
	e.inMemory = true
	e.src = nil

	return nil
}

// ReadDecoded returns the plain entry bytes, materializing and undoing the
// recorded transforms on first call. Decoding order is fixed: de-obfuscate,
// then decompress, symmetric to how the packer applied them. The decoded
// bytes are cached, so repeated calls are cheap; the returned slice is
// shared with that cache — use Replace to change entry content. Safe to call
// from several goroutines: the transforms are undone exactly once.
func (e *Entry) ReadDecoded() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.loadLocked(); err != nil {
		return nil, err
	}

	if e.stillEncrypted {
		e.data = deobfuscateData(e.data, e.SourceVersion)
		e.stillEncrypted = false
	}

	if e.stillCompressed {
		plain, err := decompressData(e.data)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", e.Path, err)
		}

		e.data = plain
		e.stillCompressed = false
	}

	return e.data, nil
}

// Replace discards the current body and transform flags and stores raw bytes
// as the new canonical content. The next save re-applies the archive's
// compression and encryption policy from scratch.
func (e *Entry) Replace(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.data = data
	e.inMemory = true
	e.stillCompressed = false
	e.stillEncrypted = false
	e.Compressed = false
	e.Encrypted = false
	e.src = nil
}

// wireState reports the transforms currently applied to the stored bytes.
func (e *Entry) wireState() (compressed, encrypted bool) {
	if e.inMemory {
		return e.stillCompressed, e.stillEncrypted
	}

	return e.Compressed, e.Encrypted
}

// wireBytes returns the stored bytes in their current transform state
// without caching disk reads.
func (e *Entry) wireBytes() ([]byte, error) {
	if e.inMemory {
		return e.data, nil
	}

	data, err := e.src.readAt(e.offset, e.size)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Path, err)
	}

	return data, nil
}

// summary returns entry metadata for listing workflows.
func (e *Entry) summary() EntrySummary {
	compressed, encrypted := e.wireState()
	return EntrySummary{
		Path:       e.Path,
		Size:       e.Size(),
		Timestamp:  e.Timestamp,
		Compressed: compressed,
		Encrypted:  encrypted,
	}
}

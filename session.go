// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Session is one editing workflow over a Pack archive: it owns the open
// archive, the schema used for table decoding, and the dependency stack
// used for reference checks. A Session is not safe for concurrent use.
type Session struct {
	// Schema resolves table definitions; nil means table decoding is
	// unavailable but plain entry editing still works.
	Schema *Schema

	archive *Archive
	deps    *DependencySet
	depArcs []*Archive
}

// NewSession creates a session without an open archive.
func NewSession(schema *Schema) *Session {
	return &Session{Schema: schema}
}

// Archive returns the open archive, or nil.
func (s *Session) Archive() *Archive {
	return s.archive
}

// NewArchive replaces the open archive with a fresh empty one.
func (s *Session) NewArchive(version FormatVersion) error {
	a, err := New(version)
	if err != nil {
		return err
	}

	s.closeArchive()
	s.archive = a
	s.rebuildDeps()

	return nil
}

// OpenArchive opens one or more Pack files as the session's archive,
// replacing and closing any previous one.
func (s *Session) OpenArchive(paths []string, lazy bool) error {
	a, err := Open(paths, lazy)
	if err != nil {
		return err
	}

	s.closeArchive()
	s.archive = a
	s.rebuildDeps()

	return nil
}

// LoadDependencies opens the archives named in the open archive's dependency
// index, looked up under dir, and stacks them beneath it for reference
// resolution. Dependency names that do not exist on disk are skipped.
func (s *Session) LoadDependencies(dir string, lazy bool) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	s.closeDependencies()
	for _, name := range s.archive.Dependencies {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if _, err := os.Stat(path); err != nil {
			continue
		}

		dep, err := openSingle(path, lazy)
		if err != nil {
			s.closeDependencies()
			return fmt.Errorf("dependency %s: %w", name, err)
		}

		s.depArcs = append(s.depArcs, dep)
	}

	s.rebuildDeps()
	return nil
}

// Dependencies returns the current resolution stack.
func (s *Session) Dependencies() *DependencySet {
	return s.deps
}

// Close releases the open archive and every loaded dependency.
func (s *Session) Close() error {
	err := s.closeArchive()
	s.closeDependencies()
	s.deps = nil

	return err
}

// Save writes the archive back to its own path.
func (s *Session) Save() (*SaveResult, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}

	return s.archive.Save("")
}

// SaveAs writes the archive to a new path, which becomes its path.
func (s *Session) SaveAs(path string) (*SaveResult, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}

	return s.archive.Save(path)
}

// AddFile reads a file from disk and adds it under entryPath.
func (s *Session) AddFile(diskPath, entryPath string, overwrite bool) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	data, err := os.ReadFile(diskPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", diskPath, err)
	}

	return s.AddData(entryPath, data, overwrite)
}

// AddData adds raw bytes under entryPath.
func (s *Session) AddData(entryPath string, data []byte, overwrite bool) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	e, err := NewEntry(entryPath, data)
	if err != nil {
		return err
	}

	if err := s.archive.Add(e, overwrite); err != nil {
		return err
	}

	s.invalidateDeps()
	return nil
}

// Delete removes the entry at path.
func (s *Session) Delete(path string) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	if _, ok := s.archive.Remove(path); !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}

	s.invalidateDeps()
	return nil
}

// Rename moves the entry at old to new.
func (s *Session) Rename(old, new string) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	if err := s.archive.Rename(old, new); err != nil {
		return err
	}

	s.invalidateDeps()
	return nil
}

// EntryExists reports whether an entry exists at path.
func (s *Session) EntryExists(path string) bool {
	return s.archive != nil && s.archive.HasEntry(path)
}

// FolderExists reports whether any entry sits under the folder path.
func (s *Session) FolderExists(path string) bool {
	return s.archive != nil && s.archive.HasFolder(path)
}

// Notes returns the archive's free-form notes.
func (s *Session) Notes() (string, error) {
	if s.archive == nil {
		return "", ErrNoArchive
	}

	return s.archive.Notes, nil
}

// SetNotes replaces the archive's free-form notes.
func (s *Session) SetNotes(text string) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	s.archive.Notes = text
	return nil
}

// SetFormatVersion retargets the archive to another format revision.
func (s *Session) SetFormatVersion(v FormatVersion) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	return s.archive.SetFormatVersion(v)
}

// ToggleCompression flips the archive-level compression default.
func (s *Session) ToggleCompression(on bool) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	return s.archive.ToggleCompression(on)
}

// ToggleIndexTimestamps flips per-entry index timestamps for future saves.
func (s *Session) ToggleIndexTimestamps(on bool) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	return s.archive.SetIndexTimestamps(on)
}

// TableVersion reports which definition version of the named table the
// dependency stack currently resolves to, falling back to the newest known
// schema version when no stacked archive carries the table.
func (s *Session) TableVersion(ctx context.Context, table string) (int32, error) {
	if s.deps != nil {
		tables, err := s.deps.Tables(ctx, table)
		if err != nil {
			return 0, err
		}

		if len(tables) != 0 {
			return tables[len(tables)-1].Definition.Version, nil
		}
	}

	if s.Schema == nil {
		return 0, fmt.Errorf("%w: %s", ErrSchemaNotFound, table)
	}

	def, err := s.Schema.LatestDefinition(table)
	if err != nil {
		return 0, err
	}

	return def.Version, nil
}

// Table decodes the entry at path as a tabular record: a versioned table
// when the path sits under a db table folder, a localisation table when it
// carries the localisation suffix. Anything else is ErrNotATable.
func (s *Session) Table(path string) (*Table, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}

	e, ok := s.archive.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, path)
	}

	data, err := e.ReadDecoded()
	if err != nil {
		return nil, err
	}

	if isLocPath(e.Path) {
		return DecodeLoc(data)
	}

	if name, ok := tableNameFromPath(e.Path); ok {
		if s.Schema == nil {
			return nil, fmt.Errorf("%w: no schema loaded", ErrSchemaNotFound)
		}

		return DecodeTable(data, name, s.Schema)
	}

	return nil, fmt.Errorf("%w: %s", ErrNotATable, path)
}

// WriteTable encodes a table and stores it at path, replacing the entry
// body in place or adding a new entry.
func (s *Session) WriteTable(path string, t *Table) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	var data []byte
	var err error
	if isLocPath(path) {
		data, err = EncodeLoc(t)
	} else {
		data, err = t.Encode()
	}
	if err != nil {
		return err
	}

	if e, ok := s.archive.Lookup(path); ok {
		e.Replace(data)
	} else if err := s.AddData(path, data, false); err != nil {
		return err
	}

	s.invalidateDeps()
	return nil
}

// TableList returns the db table names present in the archive, sorted.
func (s *Session) TableList() []string {
	if s.archive == nil {
		return nil
	}

	seen := make(map[string]struct{})
	for _, e := range s.archive.entries {
		if name, ok := tableNameFromPath(e.Path); ok {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// CheckTables decodes every db table in the archive and validates all
// foreign-key cells against the dependency stack. Entries that fail to
// decode are reported as problems rather than aborting the sweep.
func (s *Session) CheckTables(ctx context.Context) ([]ReferenceProblem, error) {
	if s.archive == nil {
		return nil, ErrNoArchive
	}

	var tableEntries []*Entry
	for _, e := range s.archive.entries {
		if _, ok := tableNameFromPath(e.Path); ok {
			tableEntries = append(tableEntries, e)
		}
	}

	var mu sync.Mutex
	var problems []ReferenceProblem

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, e := range tableEntries {
		g.Go(func() error {
			t, err := s.Table(e.Path)
			if err != nil {
				name, _ := tableNameFromPath(e.Path)
				mu.Lock()
				problems = append(problems, ReferenceProblem{
					Table: name,
					Row:   -1,
					Value: err.Error(),
				})
				mu.Unlock()

				return nil
			}

			found, err := s.deps.CheckTable(ctx, t)
			if err != nil {
				return err
			}

			mu.Lock()
			problems = append(problems, found...)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(problems, func(i, j int) bool {
		if problems[i].Table != problems[j].Table {
			return problems[i].Table < problems[j].Table
		}

		return problems[i].Row < problems[j].Row
	})

	return problems, nil
}

// ExportTSV writes the table entry at path as tab-separated text.
func (s *Session) ExportTSV(path string, w io.Writer) error {
	t, err := s.Table(path)
	if err != nil {
		return err
	}

	return ExportTSV(t, w)
}

// ImportTSV reads tab-separated text and stores the table at entryPath.
func (s *Session) ImportTSV(entryPath string, r io.Reader) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	t, err := ImportTSV(r, s.Schema)
	if err != nil {
		return err
	}

	return s.WriteTable(entryPath, t)
}

// MassExportTSV exports every table and localisation entry under dstDir as
// .tsv files mirroring entry paths, through a bounded worker pool.
func (s *Session) MassExportTSV(ctx context.Context, dstDir string) error {
	if s.archive == nil {
		return ErrNoArchive
	}

	var paths []string
	for _, e := range s.archive.entries {
		_, isTable := tableNameFromPath(e.Path)
		if isLocPath(e.Path) || isTable {
			paths = append(paths, e.Path)
		}
	}

	if err := os.MkdirAll(dstDir, 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			outputPath, err := extractOutputPath(dstDir, path+".tsv")
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
				return fmt.Errorf("create dir for %s: %w", path, err)
			}

			var sb strings.Builder
			if err := s.ExportTSV(path, &sb); err != nil {
				return err
			}

			if err := os.WriteFile(outputPath, []byte(sb.String()), 0o600); err != nil {
				return fmt.Errorf("write %s: %w", outputPath, err)
			}

			return nil
		})
	}

	return g.Wait()
}

// closeArchive closes and clears the open archive.
func (s *Session) closeArchive() error {
	if s.archive == nil {
		return nil
	}

	err := s.archive.Close()
	s.archive = nil

	return err
}

// closeDependencies closes and clears the loaded dependency archives.
func (s *Session) closeDependencies() {
	for _, a := range s.depArcs {
		_ = a.Close()
	}

	s.depArcs = nil
}

// rebuildDeps rebuilds the resolution stack: dependencies weakest first,
// the open archive strongest.
func (s *Session) rebuildDeps() {
	stack := make([]*Archive, 0, len(s.depArcs)+1)
	stack = append(stack, s.depArcs...)
	if s.archive != nil {
		stack = append(stack, s.archive)
	}

	s.deps = NewDependencySet(s.Schema, stack...)
}

// invalidateDeps drops cached dependency decodes after an edit.
func (s *Session) invalidateDeps() {
	if s.deps != nil {
		s.deps.Invalidate()
	}
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DependencySet is an ordered stack of archives that table references resolve
// against. Later archives override earlier ones: an entry at the same path
// shadows its predecessor, and a record with the same key shadows the earlier
// record when value sets are built.
type DependencySet struct {
	schema   *Schema
	archives []*Archive
	// fallback serves tables for names no stacked archive provides, for
	// games whose base data ships outside Pack files.
	fallback map[string][]*Table

	mu    sync.Mutex
	cache map[string][]*Table
}

// ReferenceProblem is one foreign-key value with no match in the resolved
// value set.
type ReferenceProblem struct {
	// Table is the table the offending record lives in.
	Table string
	// Row is the record index.
	Row int
	// Field is the foreign-key column name.
	Field string
	// Value is the unmatched value.
	Value string
	// Reference is where the value was looked up.
	Reference FieldReference
}

// NewDependencySet creates a resolution stack over the given archives, in
// override order from weakest to strongest.
func NewDependencySet(schema *Schema, archives ...*Archive) *DependencySet {
	return &DependencySet{
		schema:   schema,
		archives: archives,
		fallback: make(map[string][]*Table),
		cache:    make(map[string][]*Table),
	}
}

// AddFallback registers a pre-decoded table used when no stacked archive
// carries any entry for its name. Fallback tables never shadow archive data.
func (d *DependencySet) AddFallback(t *Table) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fallback[t.Name] = append(d.fallback[t.Name], t)
	delete(d.cache, t.Name)
}

// Push appends an archive as the new strongest layer and drops cached
// decodes, since any table may now be shadowed.
func (d *DependencySet) Push(a *Archive) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.archives = append(d.archives, a)
	d.cache = make(map[string][]*Table)
}

// Invalidate drops all cached table decodes. Call after editing entries in
// any stacked archive.
func (d *DependencySet) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cache = make(map[string][]*Table)
}

// Tables decodes every record of the named table visible through the stack,
// weakest layer first. Entries shadowed at the same path never surface;
// entries that fail to decode (missing definition, corrupt payload) are
// skipped rather than failing the whole resolution, matching how a partial
// dependency load is still useful.
func (d *DependencySet) Tables(ctx context.Context, name string) ([]*Table, error) {
	d.mu.Lock()
	if cached, ok := d.cache[name]; ok {
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	entries := d.visibleTableEntries(name)

	tables := make([]*Table, len(entries))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, e := range entries {
		g.Go(func() error {
			// Unreadable or undecodable layers are skipped, not fatal: a
			// partial dependency load is still useful.
			data, err := e.ReadDecoded()
			if err != nil {
				return nil
			}

			t, err := DecodeTable(data, name, d.schema)
			if err != nil {
				return nil
			}

			tables[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	decoded := make([]*Table, 0, len(tables))
	for _, t := range tables {
		if t != nil {
			decoded = append(decoded, t)
		}
	}

	d.mu.Lock()
	if len(decoded) == 0 {
		decoded = append(decoded, d.fallback[name]...)
	}
	d.cache[name] = decoded
	d.mu.Unlock()

	return decoded, nil
}

// visibleTableEntries collects the table's entries across the stack with
// path shadowing applied, ordered weakest layer first and by path within a
// layer.
func (d *DependencySet) visibleTableEntries(name string) []*Entry {
	type layered struct {
		entry *Entry
		layer int
	}

	byPath := make(map[string]layered)
	for layer, a := range d.archives {
		for _, e := range a.entries {
			if n, ok := tableNameFromPath(e.Path); ok && n == name {
				byPath[e.Path] = layered{entry: e, layer: layer}
			}
		}
	}

	entries := make([]*Entry, 0, len(byPath))
	for _, l := range byPath {
		entries = append(entries, l.entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		li, lj := byPath[entries[i].Path], byPath[entries[j].Path]
		if li.layer != lj.layer {
			return li.layer < lj.layer
		}

		return entries[i].Path < entries[j].Path
	})

	return entries
}

// ReferenceData resolves the referenced column across the stack and returns
// it keyed by row identity: later layers' records replace earlier records
// that share a row key, so each key maps to exactly the value the strongest
// layer supplies.
func (d *DependencySet) ReferenceData(ctx context.Context, ref FieldReference) (map[string]string, error) {
	tables, err := d.Tables(ctx, ref.Table)
	if err != nil {
		return nil, err
	}

	data := make(map[string]string)
	for _, t := range tables {
		col, ok := t.Definition.columnIndex(ref.Column)
		if !ok {
			continue
		}

		for _, row := range t.Rows {
			data[rowKey(&t.Definition, row)] = CellString(row[col])
		}
	}

	return data, nil
}

// ResolveReference builds the set of values a foreign key may legally take.
func (d *DependencySet) ResolveReference(ctx context.Context, ref FieldReference) (map[string]struct{}, error) {
	data, err := d.ReferenceData(ctx, ref)
	if err != nil {
		return nil, err
	}

	values := make(map[string]struct{}, len(data))
	for _, v := range data {
		values[v] = struct{}{}
	}

	return values, nil
}

// ResolvedValues returns the legal foreign-key values sorted, for display.
func (d *DependencySet) ResolvedValues(ctx context.Context, ref FieldReference) ([]string, error) {
	set, err := d.ResolveReference(ctx, ref)
	if err != nil {
		return nil, err
	}

	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}

	sort.Strings(values)
	return values, nil
}

// CheckTable validates every foreign-key cell of the table against the
// stack. Empty values are treated as intentionally unset and pass.
func (d *DependencySet) CheckTable(ctx context.Context, t *Table) ([]ReferenceProblem, error) {
	var problems []ReferenceProblem

	for col := range t.Definition.Fields {
		f := &t.Definition.Fields[col]
		if f.Reference == nil {
			continue
		}

		valid, err := d.ResolveReference(ctx, *f.Reference)
		if err != nil {
			return nil, err
		}

		for i, row := range t.Rows {
			v := CellString(row[col])
			if v == "" {
				continue
			}

			if _, ok := valid[v]; !ok {
				problems = append(problems, ReferenceProblem{
					Table:     t.Name,
					Row:       i,
					Field:     f.Name,
					Value:     v,
					Reference: *f.Reference,
				})
			}
		}
	}

	return problems, nil
}

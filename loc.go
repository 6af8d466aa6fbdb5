// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bytes"
	"fmt"
)

// Localisation record preamble: UTF-16 byte-order mark, a fixed type tag,
// and the only supported format version.
var locPreamble = []byte{0xff, 0xfe, 'L', 'O', 'C', 0}

const locFormatVersion = uint32(1)

// DecodeLoc decodes a localisation record. The layout is fixed and
// schema-independent: key, text, tooltip flag per row.
func DecodeLoc(data []byte) (*Table, error) {
	r := byteReader{buf: data}

	preamble, err := r.take(len(locPreamble))
	if err != nil {
		return nil, fmt.Errorf("%w: short localisation preamble", ErrCorruptData)
	}

	if !bytes.Equal(preamble, locPreamble) {
		return nil, fmt.Errorf("%w: bad localisation preamble", ErrBadMagic)
	}

	version, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("localisation version: %w", err)
	}

	if version != locFormatVersion {
		return nil, fmt.Errorf("%w: localisation version %d", ErrUnknownVersion, version)
	}

	count, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("localisation entry count: %w", err)
	}

	rows, err := decodeRows(&r, locDefinition.Fields, count)
	if err != nil {
		return nil, fmt.Errorf("localisation: %w", err)
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: localisation record has %d trailing bytes", ErrCorruptData, r.remaining())
	}

	return &Table{
		Name:       "loc",
		Definition: locDefinition,
		Rows:       rows,
	}, nil
}

// EncodeLoc serializes a localisation table back to its record form.
func EncodeLoc(t *Table) ([]byte, error) {
	if len(t.Definition.Fields) != len(locDefinition.Fields) {
		return nil, fmt.Errorf("%w: not a localisation table", ErrNotATable)
	}

	var w bytes.Buffer
	w.Write(locPreamble)
	writeU32(&w, locFormatVersion)
	writeU32(&w, uint32(len(t.Rows))) //nolint:gosec // row counts are bounded by entry size limits

	if err := encodeRows(&w, locDefinition.Fields, t.Rows); err != nil {
		return nil, fmt.Errorf("localisation: %w", err)
	}

	return w.Bytes(), nil
}

// NewLocTable creates an empty localisation table.
func NewLocTable() *Table {
	return &Table{Name: "loc", Definition: locDefinition}
}

// LocRow builds one localisation record.
func LocRow(key, text string, tooltip bool) []Cell {
	return []Cell{
		StringCell(TypeStringU16, key),
		StringCell(TypeStringU16, text),
		BoolCell(tooltip),
	}
}

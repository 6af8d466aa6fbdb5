// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Table record header markers. A table with no version marker decodes
// against definition version 0.
const (
	tableGUIDMarker    = uint32(0xfdfefcff)
	tableVersionMarker = uint32(0xfcfdfeff)
)

// Cell is one decoded field value. Type selects which union member is
// meaningful; Present is meaningful only for optional string types.
type Cell struct {
	// Rows holds nested rows for TypeList cells.
	Rows [][]Cell
	// Str holds string values.
	Str string
	// Int holds all integer widths.
	Int int64
	// Float holds TypeF32 values.
	Float float32
	// Type is the declared field type this cell was decoded as.
	Type FieldType
	// Bool holds TypeBool values.
	Bool bool
	// Present reports whether an optional string carries a value.
	Present bool
}

// BoolCell creates a boolean cell.
func BoolCell(v bool) Cell {
	return Cell{Type: TypeBool, Bool: v}
}

// FloatCell creates a float cell.
func FloatCell(v float32) Cell {
	return Cell{Type: TypeF32, Float: v}
}

// IntCell creates an integer cell of the given width type.
func IntCell(t FieldType, v int64) Cell {
	return Cell{Type: t, Int: v}
}

// StringCell creates a string cell; optional types are marked present.
func StringCell(t FieldType, s string) Cell {
	return Cell{Type: t, Str: s, Present: t == TypeOptStringU8 || t == TypeOptStringU16}
}

// AbsentStringCell creates an optional string cell with no value.
func AbsentStringCell(t FieldType) Cell {
	return Cell{Type: t}
}

// ListCell creates a nested row list cell.
func ListCell(rows [][]Cell) Cell {
	return Cell{Type: TypeList, Rows: rows}
}

// Table is one decoded tabular record set.
type Table struct {
	// Name is the table name the definition was resolved under.
	Name string
	// GUID is the optional build marker from the record header.
	GUID string
	// Definition is the resolved field layout; field order is wire order.
	Definition Definition
	// Rows are the decoded records, one cell per definition field.
	Rows [][]Cell
}

// NewTable creates an empty table under the given definition.
func NewTable(name string, def Definition) *Table {
	return &Table{Name: name, Definition: def}
}

// DecodeTable decodes a raw table record against the schema. The record's
// declared version selects the exact definition; decoding fails with
// ErrUnknownVersion when none matches, ErrTruncated when bytes run out
// mid-record, and ErrInvalidField when a length points past the buffer end.
func DecodeTable(data []byte, name string, schema *Schema) (*Table, error) {
	r := byteReader{buf: data}

	var guid string
	if r.peekU32() == tableGUIDMarker {
		r.skip(4)
		g, err := r.stringU16()
		if err != nil {
			return nil, fmt.Errorf("table %s guid: %w", name, err)
		}

		guid = g
	}

	var version int32
	if r.peekU32() == tableVersionMarker {
		r.skip(4)
		v, err := r.i32()
		if err != nil {
			return nil, fmt.Errorf("table %s version: %w", name, err)
		}

		version = v
	}

	def, err := schema.Definition(name, version)
	if err != nil {
		return nil, err
	}

	count, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("table %s entry count: %w", name, err)
	}

	rows, err := decodeRows(&r, def.Fields, count)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", name, err)
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: table %s has %d trailing bytes", ErrCorruptData, name, r.remaining())
	}

	return &Table{
		Name:       name,
		GUID:       guid,
		Definition: *def,
		Rows:       rows,
	}, nil
}

// Encode serializes the table: header markers, entry count, then records in
// definition field order. Fields are never reordered or dropped; optional
// strings always write their presence marker.
func (t *Table) Encode() ([]byte, error) {
	var w bytes.Buffer

	if t.GUID != "" {
		writeU32(&w, tableGUIDMarker)
		if err := writeStringU16(&w, t.GUID); err != nil {
			return nil, fmt.Errorf("table %s guid: %w", t.Name, err)
		}
	}

	if t.Definition.Version != 0 {
		writeU32(&w, tableVersionMarker)
		writeU32(&w, uint32(t.Definition.Version)) //nolint:gosec // raw i32 bits
	}

	writeU32(&w, uint32(len(t.Rows))) //nolint:gosec // row counts are bounded by entry size limits

	if err := encodeRows(&w, t.Definition.Fields, t.Rows); err != nil {
		return nil, fmt.Errorf("table %s: %w", t.Name, err)
	}

	return w.Bytes(), nil
}

// decodeRows decodes count records laid out by fields.
func decodeRows(r *byteReader, fields []Field, count uint32) ([][]Cell, error) {
	// A record needs at least one byte per field; anything larger than the
	// remaining buffer is a corrupt count, not a huge table.
	if int64(count)*int64(len(fields)) > int64(r.remaining()) {
		return nil, fmt.Errorf("%w: entry count %d exceeds data", ErrInvalidField, count)
	}

	rows := make([][]Cell, 0, count)
	for i := uint32(0); i < count; i++ {
		row, err := decodeRow(r, fields)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		rows = append(rows, row)
	}

	return rows, nil
}

// decodeRow decodes one record, dispatching on each field's declared type.
func decodeRow(r *byteReader, fields []Field) ([]Cell, error) {
	row := make([]Cell, len(fields))
	for i := range fields {
		cell, err := decodeCell(r, &fields[i])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", fields[i].Name, err)
		}

		row[i] = cell
	}

	return row, nil
}

// decodeCell decodes one field value.
func decodeCell(r *byteReader, f *Field) (Cell, error) {
	switch f.Type {
	case TypeBool:
		b, err := r.boolByte()
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeBool, Bool: b}, nil
	case TypeF32:
		v, err := r.u32()
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeF32, Float: math.Float32frombits(v)}, nil
	case TypeI16:
		v, err := r.u16()
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeI16, Int: int64(int16(v))}, nil
	case TypeI32:
		v, err := r.i32()
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeI32, Int: int64(v)}, nil
	case TypeI64:
		v, err := r.i64()
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeI64, Int: v}, nil
	case TypeStringU8:
		s, err := r.stringU8()
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeStringU8, Str: s}, nil
	case TypeStringU16:
		s, err := r.stringU16()
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeStringU16, Str: s}, nil
	case TypeOptStringU8, TypeOptStringU16:
		return decodeOptString(r, f.Type)
	case TypeList:
		count, err := r.u32()
		if err != nil {
			return Cell{}, err
		}

		rows, err := decodeRows(r, f.Fields, count)
		if err != nil {
			return Cell{}, err
		}

		return Cell{Type: TypeList, Rows: rows}, nil
	default:
		return Cell{}, fmt.Errorf("%w: unknown type %d", ErrInvalidField, uint8(f.Type))
	}
}

// decodeOptString decodes a presence marker and, when set, the string body.
func decodeOptString(r *byteReader, t FieldType) (Cell, error) {
	present, err := r.boolByte()
	if err != nil {
		return Cell{}, err
	}

	if !present {
		return Cell{Type: t}, nil
	}

	var s string
	if t == TypeOptStringU8 {
		s, err = r.stringU8()
	} else {
		s, err = r.stringU16()
	}
	if err != nil {
		return Cell{}, err
	}

	return Cell{Type: t, Str: s, Present: true}, nil
}

// encodeRows serializes records laid out by fields.
func encodeRows(w *bytes.Buffer, fields []Field, rows [][]Cell) error {
	for i, row := range rows {
		if len(row) != len(fields) {
			return fmt.Errorf("%w: record %d has %d cells, definition has %d fields", ErrInvalidField, i, len(row), len(fields))
		}

		for j := range fields {
			if err := encodeCell(w, &fields[j], &row[j]); err != nil {
				return fmt.Errorf("record %d field %s: %w", i, fields[j].Name, err)
			}
		}
	}

	return nil
}

// encodeCell serializes one field value.
func encodeCell(w *bytes.Buffer, f *Field, c *Cell) error {
	if c.Type != f.Type {
		return fmt.Errorf("%w: cell type %s, field type %s", ErrInvalidField, c.Type, f.Type)
	}

	switch f.Type {
	case TypeBool:
		writeBoolByte(w, c.Bool)
	case TypeF32:
		writeU32(w, math.Float32bits(c.Float))
	case TypeI16:
		if c.Int < math.MinInt16 || c.Int > math.MaxInt16 {
			return fmt.Errorf("%w: %d out of i16 range", ErrInvalidField, c.Int)
		}

		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(int16(c.Int))) //nolint:gosec // range checked above
		w.Write(b[:])
	case TypeI32:
		if c.Int < math.MinInt32 || c.Int > math.MaxInt32 {
			return fmt.Errorf("%w: %d out of i32 range", ErrInvalidField, c.Int)
		}

		writeU32(w, uint32(int32(c.Int))) //nolint:gosec // range checked above
	case TypeI64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(c.Int)) //nolint:gosec // raw i64 bits
		w.Write(b[:])
	case TypeStringU8:
		return writeStringU8(w, c.Str)
	case TypeStringU16:
		return writeStringU16(w, c.Str)
	case TypeOptStringU8, TypeOptStringU16:
		writeBoolByte(w, c.Present)
		if !c.Present {
			return nil
		}

		if f.Type == TypeOptStringU8 {
			return writeStringU8(w, c.Str)
		}

		return writeStringU16(w, c.Str)
	case TypeList:
		writeU32(w, uint32(len(c.Rows))) //nolint:gosec // row counts are bounded
		return encodeRows(w, f.Fields, c.Rows)
	default:
		return fmt.Errorf("%w: unknown type %d", ErrInvalidField, uint8(f.Type))
	}

	return nil
}

// CellString formats one cell for text export and reference lookups.
func CellString(c Cell) string {
	switch c.Type {
	case TypeBool:
		return strconv.FormatBool(c.Bool)
	case TypeF32:
		return strconv.FormatFloat(float64(c.Float), 'g', -1, 32)
	case TypeI16, TypeI32, TypeI64:
		return strconv.FormatInt(c.Int, 10)
	case TypeStringU8, TypeStringU16:
		return c.Str
	case TypeOptStringU8, TypeOptStringU16:
		if !c.Present {
			return ""
		}

		return c.Str
	case TypeList:
		return fmt.Sprintf("<%d nested rows>", len(c.Rows))
	default:
		return ""
	}
}

// rowKey joins a record's key-field values into one identity string.
// Without key fields the whole row participates.
func rowKey(def *Definition, row []Cell) string {
	keys := def.keyFields()
	if len(keys) == 0 {
		parts := make([]string, len(row))
		for i := range row {
			parts[i] = CellString(row[i])
		}

		return strings.Join(parts, "\x1f")
	}

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = CellString(row[k])
	}

	return strings.Join(parts, "\x1f")
}

// byteReader is a bounds-checked little-endian cursor over one record blob.
type byteReader struct {
	buf []byte
	off int
}

// remaining returns unread byte count.
func (r *byteReader) remaining() int {
	return len(r.buf) - r.off
}

// skip advances the cursor unconditionally; callers check bounds via peek.
func (r *byteReader) skip(n int) {
	r.off += n
}

// peekU32 returns the next u32 without advancing, or zero near the end.
func (r *byteReader) peekU32() uint32 {
	if r.remaining() < 4 {
		return 0
	}

	return binary.LittleEndian.Uint32(r.buf[r.off:])
}

// take returns the next n bytes or ErrTruncated.
func (r *byteReader) take(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, r.remaining())
	}

	out := r.buf[r.off : r.off+n]
	r.off += n

	return out, nil
}

func (r *byteReader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint16(b), nil
}

func (r *byteReader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}

	return binary.LittleEndian.Uint32(b), nil
}

func (r *byteReader) i32() (int32, error) {
	v, err := r.u32()
	return int32(v), err //nolint:gosec // raw i32 bits
}

func (r *byteReader) i64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}

	return int64(binary.LittleEndian.Uint64(b)), nil //nolint:gosec // raw i64 bits
}

// boolByte reads a strict 0/1 marker byte.
func (r *byteReader) boolByte() (bool, error) {
	b, err := r.take(1)
	if err != nil {
		return false, err
	}

	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: marker byte %#x", ErrInvalidField, b[0])
	}
}

// stringU8 reads a u16 length-prefixed UTF-8 string.
func (r *byteReader) stringU8() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}

	if int(n) > r.remaining() {
		return "", fmt.Errorf("%w: string length %d exceeds data", ErrInvalidField, n)
	}

	b, _ := r.take(int(n))
	return string(b), nil
}

// stringU16 reads a u16 count-prefixed UTF-16LE string.
func (r *byteReader) stringU16() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}

	if int(n)*2 > r.remaining() {
		return "", fmt.Errorf("%w: string length %d exceeds data", ErrInvalidField, n)
	}

	b, _ := r.take(int(n) * 2)
	units := make([]uint16, n)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}

	return string(utf16.Decode(units)), nil
}

func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func writeBoolByte(w *bytes.Buffer, v bool) {
	if v {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

// writeStringU8 writes a u16 length-prefixed UTF-8 string.
func writeStringU8(w *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: string length %d", ErrInvalidField, len(s))
	}

	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(s))) //nolint:gosec // range checked above
	w.Write(b[:])
	w.WriteString(s)

	return nil
}

// writeStringU16 writes a u16 count-prefixed UTF-16LE string.
func writeStringU16(w *bytes.Buffer, s string) error {
	units := utf16.Encode([]rune(s))
	if len(units) > math.MaxUint16 {
		return fmt.Errorf("%w: string length %d", ErrInvalidField, len(units))
	}

	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(len(units))) //nolint:gosec // range checked above
	w.Write(b[:])
	for _, u := range units {
		binary.LittleEndian.PutUint16(b[:], u)
		w.Write(b[:])
	}

	return nil
}

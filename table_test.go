// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func unitsRow(id int64, name string, cost int64, speed float32, recruitable bool, desc string) []Cell {
	row := []Cell{
		IntCell(TypeI32, id),
		StringCell(TypeStringU8, name),
		IntCell(TypeI16, cost),
		FloatCell(speed),
		BoolCell(recruitable),
	}
	if desc == "" {
		return append(row, AbsentStringCell(TypeOptStringU16))
	}

	return append(row, StringCell(TypeOptStringU16, desc))
}

func testUnitsTable(t *testing.T, s *Schema) *Table {
	t.Helper()

	def, err := s.Definition("units", 2)
	if err != nil {
		t.Fatalf("Definition: %v", err)
	}

	tbl := NewTable("units", *def)
	tbl.GUID = "9f2c1e00-build-44"
	tbl.Rows = [][]Cell{
		unitsRow(1, "spearmen", 450, 1.5, true, "Front line unit — лёгкая пехота"),
		unitsRow(2, "archers", 520, 1.25, true, ""),
		unitsRow(3, "general", -1, 2.0, false, "unique"),
	}

	return tbl
}

func TestTableEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	tbl := testUnitsTable(t, s)

	raw, err := tbl.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodeTable(raw, "units", s)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}

	if decoded.GUID != tbl.GUID {
		t.Fatalf("GUID = %q, want %q", decoded.GUID, tbl.GUID)
	}
	if decoded.Definition.Version != 2 {
		t.Fatalf("version = %d, want 2", decoded.Definition.Version)
	}
	if !reflect.DeepEqual(decoded.Rows, tbl.Rows) {
		t.Fatal("rows changed across round trip")
	}

	// Re-encoding the decoded table must reproduce the exact bytes.
	again, err := decoded.Encode()
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(again, raw) {
		t.Fatal("re-encoded bytes differ from original")
	}
}

func TestTableNestedListRoundTrip(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	def, err := s.Definition("squads", 1)
	if err != nil {
		t.Fatalf("Definition: %v", err)
	}

	tbl := NewTable("squads", *def)
	tbl.Rows = [][]Cell{
		{
			StringCell(TypeStringU8, "vanguard"),
			StringCell(TypeStringU8, "spearmen"),
			IntCell(TypeI64, 1<<40),
			ListCell([][]Cell{
				{StringCell(TypeStringU16, "shields"), IntCell(TypeI32, 1)},
				{StringCell(TypeStringU16, "veteran training"), IntCell(TypeI32, 3)},
			}),
		},
		{
			StringCell(TypeStringU8, "reserve"),
			StringCell(TypeStringU8, "archers"),
			IntCell(TypeI64, -9),
			ListCell(nil),
		},
	}

	raw, err := tbl.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodeTable(raw, "squads", s)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}

	if len(decoded.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(decoded.Rows))
	}
	if !reflect.DeepEqual(decoded.Rows[0], tbl.Rows[0]) {
		t.Fatal("nested list row changed across round trip")
	}
	if len(decoded.Rows[1][3].Rows) != 0 {
		t.Fatal("empty nested list not preserved")
	}
}

func TestTableVersionZeroHasNoMarker(t *testing.T) {
	t.Parallel()

	s := NewSchema()
	def := Definition{
		Version: 0,
		Fields:  []Field{{Name: "value", Type: TypeI32, IsKey: true}},
	}
	if err := s.AddDefinition("plain", def); err != nil {
		t.Fatalf("AddDefinition: %v", err)
	}

	tbl := NewTable("plain", def)
	tbl.Rows = [][]Cell{{IntCell(TypeI32, 7)}}

	raw, err := tbl.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// No markers: u32 count + one i32 cell.
	if len(raw) != 8 {
		t.Fatalf("encoded size = %d, want 8", len(raw))
	}

	decoded, err := DecodeTable(raw, "plain", s)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if decoded.Definition.Version != 0 || decoded.Rows[0][0].Int != 7 {
		t.Fatal("marker-less record decoded incorrectly")
	}
}

func TestTableDecodeErrors(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	tbl := testUnitsTable(t, s)
	raw, err := tbl.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	t.Run("unknown table", func(t *testing.T) {
		t.Parallel()

		if _, err := DecodeTable(raw, "missing", s); !errors.Is(err, ErrSchemaNotFound) {
			t.Fatalf("expected ErrSchemaNotFound, got %v", err)
		}
	})

	t.Run("unknown version", func(t *testing.T) {
		t.Parallel()

		// A table name that exists but has no version-2 definition.
		if _, err := DecodeTable(raw, "squads", s); !errors.Is(err, ErrUnknownVersion) {
			t.Fatalf("expected ErrUnknownVersion, got %v", err)
		}
	})

	t.Run("trailing bytes", func(t *testing.T) {
		t.Parallel()

		padded := append(append([]byte(nil), raw...), 0xff)
		if _, err := DecodeTable(padded, "units", s); !errors.Is(err, ErrCorruptData) {
			t.Fatalf("expected ErrCorruptData, got %v", err)
		}
	})

	t.Run("truncated record", func(t *testing.T) {
		t.Parallel()

		def := Definition{Version: 0, Fields: []Field{{Name: "big", Type: TypeI64}}}
		plain := NewSchema()
		if err := plain.AddDefinition("wide", def); err != nil {
			t.Fatalf("AddDefinition: %v", err)
		}

		// One declared record, but only one body byte instead of eight.
		bad := []byte{1, 0, 0, 0, 0xaa}
		if _, err := DecodeTable(bad, "wide", plain); !errors.Is(err, ErrTruncated) {
			t.Fatalf("expected ErrTruncated, got %v", err)
		}
	})

	t.Run("string past buffer end", func(t *testing.T) {
		t.Parallel()

		if _, err := DecodeTable(raw[:len(raw)-3], "units", s); !errors.Is(err, ErrInvalidField) {
			t.Fatalf("expected ErrInvalidField, got %v", err)
		}
	})

	t.Run("bad bool marker", func(t *testing.T) {
		t.Parallel()

		def := Definition{Version: 0, Fields: []Field{{Name: "flag", Type: TypeBool}}}
		plain := NewSchema()
		if err := plain.AddDefinition("flags", def); err != nil {
			t.Fatalf("AddDefinition: %v", err)
		}

		bad := []byte{1, 0, 0, 0, 0x02}
		if _, err := DecodeTable(bad, "flags", plain); !errors.Is(err, ErrInvalidField) {
			t.Fatalf("expected ErrInvalidField, got %v", err)
		}
	})

	t.Run("oversized entry count", func(t *testing.T) {
		t.Parallel()

		def := Definition{Version: 0, Fields: []Field{{Name: "flag", Type: TypeBool}}}
		plain := NewSchema()
		if err := plain.AddDefinition("flags", def); err != nil {
			t.Fatalf("AddDefinition: %v", err)
		}

		bad := []byte{0xff, 0xff, 0xff, 0x7f, 0x01}
		if _, err := DecodeTable(bad, "flags", plain); !errors.Is(err, ErrInvalidField) {
			t.Fatalf("expected ErrInvalidField, got %v", err)
		}
	})
}

func TestTableEncodeRangeChecks(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	def, err := s.Definition("units", 2)
	if err != nil {
		t.Fatalf("Definition: %v", err)
	}

	tbl := NewTable("units", *def)
	tbl.Rows = [][]Cell{unitsRow(1, "x", 1<<20, 0, false, "")}

	if _, err := tbl.Encode(); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for i16 overflow, got %v", err)
	}

	tbl.Rows = [][]Cell{{IntCell(TypeI32, 1)}}
	if _, err := tbl.Encode(); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField for short row, got %v", err)
	}
}

func TestCellString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		cell Cell
		want string
	}{
		{cell: BoolCell(true), want: "true"},
		{cell: FloatCell(1.5), want: "1.5"},
		{cell: IntCell(TypeI32, -42), want: "-42"},
		{cell: StringCell(TypeStringU16, "héllo"), want: "héllo"},
		{cell: AbsentStringCell(TypeOptStringU8), want: ""},
		{cell: StringCell(TypeOptStringU8, "set"), want: "set"},
	}

	for _, tc := range testCases {
		if got := CellString(tc.cell); got != tc.want {
			t.Errorf("CellString(%+v) = %q, want %q", tc.cell, got, tc.want)
		}
	}
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ExportTSV writes a table as tab-separated text: a metadata row with the
// table name and definition version, a header row with column names, then
// one row per record. Tables with nested list fields have no flat text form
// and fail with ErrInvalidTSV.
func ExportTSV(t *Table, w io.Writer) error {
	for i := range t.Definition.Fields {
		if t.Definition.Fields[i].Type == TypeList {
			return fmt.Errorf("%w: list field %s has no flat form", ErrInvalidTSV, t.Definition.Fields[i].Name)
		}
	}

	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	meta := []string{t.Name, strconv.FormatInt(int64(t.Definition.Version), 10)}
	if err := cw.Write(meta); err != nil {
		return fmt.Errorf("write tsv metadata: %w", err)
	}

	header := make([]string, len(t.Definition.Fields))
	for i := range t.Definition.Fields {
		header[i] = t.Definition.Fields[i].Name
	}

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write tsv header: %w", err)
	}

	record := make([]string, len(header))
	for i, row := range t.Rows {
		for j := range row {
			record[j] = CellString(row[j])
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write tsv record %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ImportTSV reads tab-separated text produced by ExportTSV back into a
// table, resolving the definition through the schema from the metadata row.
func ImportTSV(r io.Reader, schema *Schema) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	meta, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing metadata row", ErrInvalidTSV)
	}

	if len(meta) != 2 {
		return nil, fmt.Errorf("%w: metadata row has %d fields, want 2", ErrInvalidTSV, len(meta))
	}

	version, err := strconv.ParseInt(meta[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q", ErrInvalidTSV, meta[1])
	}

	name := meta[0]

	var def *Definition
	if name == "loc" {
		def = &locDefinition
		if int32(version) != locDefinition.Version {
			return nil, fmt.Errorf("%w: loc version %d", ErrUnknownVersion, version)
		}
	} else {
		def, err = schema.Definition(name, int32(version))
		if err != nil {
			return nil, err
		}
	}

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header row", ErrInvalidTSV)
	}

	if len(header) != len(def.Fields) {
		return nil, fmt.Errorf("%w: header has %d columns, definition has %d", ErrInvalidTSV, len(header), len(def.Fields))
	}

	for i := range def.Fields {
		if header[i] != def.Fields[i].Name {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrInvalidTSV, i, header[i], def.Fields[i].Name)
		}
	}

	t := &Table{Name: name, Definition: *def}
	for line := 3; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidTSV, line, err)
		}

		if len(record) != len(def.Fields) {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d", ErrInvalidTSV, line, len(record), len(def.Fields))
		}

		row := make([]Cell, len(record))
		for i, raw := range record {
			cell, err := cellFromString(def.Fields[i].Type, raw)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, def.Fields[i].Name, err)
			}

			row[i] = cell
		}

		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// cellFromString parses one text value back into a typed cell. Empty text
// for an optional string means absent.
func cellFromString(t FieldType, s string) (Cell, error) {
	switch t {
	case TypeBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Cell{}, fmt.Errorf("%w: bool %q", ErrInvalidTSV, s)
		}

		return BoolCell(v), nil
	case TypeF32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return Cell{}, fmt.Errorf("%w: float %q", ErrInvalidTSV, s)
		}

		return FloatCell(float32(v)), nil
	case TypeI16:
		v, err := strconv.ParseInt(s, 10, 16)
		if err != nil {
			return Cell{}, fmt.Errorf("%w: i16 %q", ErrInvalidTSV, s)
		}

		return IntCell(TypeI16, v), nil
	case TypeI32:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return Cell{}, fmt.Errorf("%w: i32 %q", ErrInvalidTSV, s)
		}

		return IntCell(TypeI32, v), nil
	case TypeI64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Cell{}, fmt.Errorf("%w: i64 %q", ErrInvalidTSV, s)
		}

		return IntCell(TypeI64, v), nil
	case TypeStringU8, TypeStringU16:
		return StringCell(t, s), nil
	case TypeOptStringU8, TypeOptStringU16:
		if s == "" {
			return AbsentStringCell(t), nil
		}

		return StringCell(t, s), nil
	case TypeList:
		return Cell{}, fmt.Errorf("%w: list fields have no flat form", ErrInvalidTSV)
	default:
		return Cell{}, fmt.Errorf("%w: unknown type %d", ErrInvalidField, uint8(t))
	}
}

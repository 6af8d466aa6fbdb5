// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// FieldType identifies the wire encoding of one table field.
type FieldType uint8

// Supported field types. The set is closed: the table codec dispatches
// exhaustively on it.
const (
	// TypeBool is a single byte, zero or one.
	TypeBool FieldType = iota + 1
	// TypeF32 is a little-endian IEEE 754 float.
	TypeF32
	// TypeI16 is a little-endian signed 16-bit integer.
	TypeI16
	// TypeI32 is a little-endian signed 32-bit integer.
	TypeI32
	// TypeI64 is a little-endian signed 64-bit integer.
	TypeI64
	// TypeStringU8 is a u16 length followed by UTF-8 bytes.
	TypeStringU8
	// TypeStringU16 is a u16 code-unit count followed by UTF-16LE units.
	TypeStringU16
	// TypeOptStringU8 is a one-byte presence marker, then TypeStringU8 when set.
	TypeOptStringU8
	// TypeOptStringU16 is a one-byte presence marker, then TypeStringU16 when set.
	TypeOptStringU16
	// TypeList is a u32 repetition count followed by nested rows.
	TypeList
)

// fieldTypeNames maps field types to their schema-file spelling.
var fieldTypeNames = map[FieldType]string{
	TypeBool:         "bool",
	TypeF32:          "f32",
	TypeI16:          "i16",
	TypeI32:          "i32",
	TypeI64:          "i64",
	TypeStringU8:     "string_u8",
	TypeStringU16:    "string_u16",
	TypeOptStringU8:  "opt_string_u8",
	TypeOptStringU16: "opt_string_u16",
	TypeList:         "list",
}

// fieldTypesByName is the inverse of fieldTypeNames.
var fieldTypesByName = func() map[string]FieldType {
	m := make(map[string]FieldType, len(fieldTypeNames))
	for t, name := range fieldTypeNames {
		m[name] = t
	}

	return m
}()

// String returns the schema-file spelling of the type.
func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("type(%d)", uint8(t))
}

// MarshalJSON writes the type as its schema-file name.
func (t FieldType) MarshalJSON() ([]byte, error) {
	name, ok := fieldTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("%w: field type %d", ErrInvalidField, uint8(t))
	}

	return json.Marshal(name)
}

// UnmarshalJSON reads the type from its schema-file name.
func (t *FieldType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, ok := fieldTypesByName[name]
	if !ok {
		return fmt.Errorf("%w: field type %q", ErrInvalidField, name)
	}

	*t = parsed
	return nil
}

// FieldReference points a foreign-key field at a column of another table.
type FieldReference struct {
	// Table is the referenced table name.
	Table string `json:"table"`
	// Column is the referenced column name.
	Column string `json:"column"`
}

// Field is one column spec of a table definition.
type Field struct {
	// Name is the column name.
	Name string `json:"name"`
	// Type selects the wire encoding.
	Type FieldType `json:"type"`
	// IsKey marks fields that participate in row identity.
	IsKey bool `json:"is_key,omitempty"`
	// Reference is set for foreign-key fields.
	Reference *FieldReference `json:"reference,omitempty"`
	// Fields is the nested row layout for TypeList fields.
	Fields []Field `json:"fields,omitempty"`
}

// Definition is one versioned field layout of a named table. Field order is
// the wire order.
type Definition struct {
	// Version is the table format version this layout decodes.
	Version int32 `json:"version"`
	// Fields are the column specs in wire order.
	Fields []Field `json:"fields"`
}

// keyFields returns the indices of fields flagged as key.
func (d *Definition) keyFields() []int {
	keys := make([]int, 0, 2)
	for i := range d.Fields {
		if d.Fields[i].IsKey {
			keys = append(keys, i)
		}
	}

	return keys
}

// columnIndex resolves a column name to its field position.
func (d *Definition) columnIndex(name string) (int, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return i, true
		}
	}

	return 0, false
}

// Schema maps table names to their known definitions, one per table format
// version. It is loaded once per game configuration and read-mostly;
// AddDefinition is an explicit administrative operation.
type Schema struct {
	tables map[string][]Definition
}

// schemaFile is the on-disk JSON shape of a schema.
type schemaFile struct {
	Tables map[string][]Definition `json:"tables"`
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{tables: make(map[string][]Definition)}
}

// LoadSchema reads a schema from a JSON file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	var file schemaFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	s := NewSchema()
	for table, defs := range file.Tables {
		for _, def := range defs {
			if err := s.AddDefinition(table, def); err != nil {
				return nil, fmt.Errorf("schema table %s: %w", table, err)
			}
		}
	}

	return s, nil
}

// Save writes the schema to a JSON file.
func (s *Schema) Save(path string) error {
	data, err := json.MarshalIndent(schemaFile{Tables: s.tables}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}

	return nil
}

// Tables returns all table names in sorted order.
func (s *Schema) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Definition returns the exact-version layout for a table.
func (s *Schema) Definition(table string, version int32) (*Definition, error) {
	defs, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, table)
	}

	for i := range defs {
		if defs[i].Version == version {
			return &defs[i], nil
		}
	}

	return nil, fmt.Errorf("%w: %s version %d", ErrUnknownVersion, table, version)
}

// LatestDefinition returns the layout with the highest version for a table,
// used when creating new records from scratch.
func (s *Schema) LatestDefinition(table string) (*Definition, error) {
	defs, ok := s.tables[table]
	if !ok || len(defs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, table)
	}

	return &defs[len(defs)-1], nil
}

// AddDefinition registers or upgrades one versioned layout for a table.
// Definitions are kept ordered by version; an equal version is replaced.
func (s *Schema) AddDefinition(table string, def Definition) error {
	if table == "" {
		return fmt.Errorf("%w: empty table name", ErrSchemaNotFound)
	}

	if err := validateFields(def.Fields); err != nil {
		return fmt.Errorf("table %s version %d: %w", table, def.Version, err)
	}

	defs := s.tables[table]
	for i := range defs {
		if defs[i].Version == def.Version {
			defs[i] = def
			return nil
		}
	}

	defs = append(defs, def)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Version < defs[j].Version })
	s.tables[table] = defs

	return nil
}

// validateFields checks one field layout for structural soundness.
func validateFields(fields []Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: definition has no fields", ErrInvalidField)
	}

	for i := range fields {
		f := &fields[i]
		if f.Name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidField, i)
		}

		if _, ok := fieldTypeNames[f.Type]; !ok {
			return fmt.Errorf("%w: field %s has unknown type", ErrInvalidField, f.Name)
		}

		if f.Type == TypeList {
			if err := validateFields(f.Fields); err != nil {
				return fmt.Errorf("list field %s: %w", f.Name, err)
			}
		} else if len(f.Fields) != 0 {
			return fmt.Errorf("%w: field %s carries nested fields", ErrInvalidField, f.Name)
		}
	}

	return nil
}

// locDefinition is the builtin layout of localisation tables.
var locDefinition = Definition{
	Version: 1,
	Fields: []Field{
		{Name: "key", Type: TypeStringU16, IsKey: true},
		{Name: "text", Type: TypeStringU16},
		{Name: "tooltip", Type: TypeBool},
	},
}

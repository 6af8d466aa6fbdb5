// SPDX-License-Identifier: MIT
// Copyright (c) 2026 AmonKing
// Source: github.com/AmonKing/rpfm

package rpfm

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

// testSchema builds the schema used across table and session tests:
// "units" is a referenced key table, "squads" points one field at it.
func testSchema(t *testing.T) *Schema {
	t.Helper()

	s := NewSchema()

	units := Definition{
		Version: 2,
		Fields: []Field{
			{Name: "id", Type: TypeI32, IsKey: true},
			{Name: "name", Type: TypeStringU8},
			{Name: "cost", Type: TypeI16},
			{Name: "speed", Type: TypeF32},
			{Name: "recruitable", Type: TypeBool},
			{Name: "description", Type: TypeOptStringU16},
		},
	}
	if err := s.AddDefinition("units", units); err != nil {
		t.Fatalf("AddDefinition units: %v", err)
	}

	squads := Definition{
		Version: 1,
		Fields: []Field{
			{Name: "squad", Type: TypeStringU8, IsKey: true},
			{Name: "unit", Type: TypeStringU8, Reference: &FieldReference{Table: "units", Column: "name"}},
			{Name: "slots", Type: TypeI64},
			{
				Name: "upgrades",
				Type: TypeList,
				Fields: []Field{
					{Name: "upgrade", Type: TypeStringU16},
					{Name: "tier", Type: TypeI32},
				},
			},
		},
	}
	if err := s.AddDefinition("squads", squads); err != nil {
		t.Fatalf("AddDefinition squads: %v", err)
	}

	return s
}

func TestSchemaDefinitionLookup(t *testing.T) {
	t.Parallel()

	s := testSchema(t)

	if _, err := s.Definition("units", 2); err != nil {
		t.Fatalf("Definition: %v", err)
	}
	if _, err := s.Definition("units", 7); !errors.Is(err, ErrUnknownVersion) {
		t.Fatalf("expected ErrUnknownVersion, got %v", err)
	}
	if _, err := s.Definition("missing", 0); !errors.Is(err, ErrSchemaNotFound) {
		t.Fatalf("expected ErrSchemaNotFound, got %v", err)
	}

	got := s.Tables()
	want := []string{"squads", "units"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Tables = %v, want %v", got, want)
	}
}

func TestSchemaLatestDefinition(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	older := Definition{
		Version: 1,
		Fields:  []Field{{Name: "id", Type: TypeI32, IsKey: true}},
	}
	if err := s.AddDefinition("units", older); err != nil {
		t.Fatalf("AddDefinition: %v", err)
	}

	latest, err := s.LatestDefinition("units")
	if err != nil {
		t.Fatalf("LatestDefinition: %v", err)
	}
	if latest.Version != 2 {
		t.Fatalf("latest version = %d, want 2", latest.Version)
	}
}

func TestSchemaAddDefinitionValidation(t *testing.T) {
	t.Parallel()

	s := NewSchema()

	testCases := []struct {
		name string
		def  Definition
	}{
		{name: "no fields", def: Definition{Version: 1}},
		{name: "unnamed field", def: Definition{Version: 1, Fields: []Field{{Type: TypeBool}}}},
		{name: "unknown type", def: Definition{Version: 1, Fields: []Field{{Name: "x", Type: FieldType(99)}}}},
		{name: "empty list", def: Definition{Version: 1, Fields: []Field{{Name: "x", Type: TypeList}}}},
		{
			name: "nested on scalar",
			def: Definition{Version: 1, Fields: []Field{
				{Name: "x", Type: TypeBool, Fields: []Field{{Name: "y", Type: TypeBool}}},
			}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if err := s.AddDefinition("broken", tc.def); !errors.Is(err, ErrInvalidField) {
				t.Fatalf("expected ErrInvalidField, got %v", err)
			}
		})
	}
}

func TestSchemaSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	s := testSchema(t)
	path := filepath.Join(t.TempDir(), "schema.json")

	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadSchema(path)
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}

	for _, table := range s.Tables() {
		for _, version := range []int32{1, 2} {
			orig, origErr := s.Definition(table, version)
			got, gotErr := loaded.Definition(table, version)
			if (origErr == nil) != (gotErr == nil) {
				t.Fatalf("table %s v%d: lookup mismatch after reload", table, version)
			}
			if origErr == nil && !reflect.DeepEqual(orig, got) {
				t.Fatalf("table %s v%d: definition changed after reload", table, version)
			}
		}
	}
}

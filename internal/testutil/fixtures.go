package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
)

// Schema fixture IDs.
const (
	TableDT1    int64 = 1
	FieldF1     int64 = 11
	FieldF2     int64 = 12
	TableDT2    int64 = 3
	FieldG1     int64 = 31
	DerivedDD1  int64 = 2
	FunctionFn1 int64 = 21
	FunctionFn2 int64 = 22
	DerivedDD2  int64 = 4
	FunctionH1  int64 = 41
)

// SchemaYAML is a small schema with two source tables and two derived
// tables. DD2 is computed from DD1.
const SchemaYAML = `version: test-1
database_tables:
  - id: 1
    name: DT1
    fields:
      - id: 11
        name: F1
      - id: 12
        name: F2
  - id: 3
    name: DT2
    fields:
      - id: 31
        name: G1
derived_tables:
  - id: 2
    name: DD1
    table_creation_function_id: 21
    functions:
      - id: 21
        name: fn1
        text: "F1 * 2"
        language: python
      - id: 22
        name: fn2
        text: "F2 || '-x'"
        language: sql
  - id: 4
    name: DD2
    functions:
      - id: 41
        name: h1
        text: "fn1 + G1"
        language: python
`

// NewSchema returns the fixture schema as a snapshot.
func NewSchema(t testing.TB) *schema.Snapshot {
	t.Helper()
	snap, err := schema.Parse([]byte(SchemaYAML))
	if err != nil {
		t.Fatalf("failed to parse schema fixture: %v", err)
	}
	return snap
}

// WriteSchemaFile writes the fixture schema into dir and returns its path.
func WriteSchemaFile(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "schema.yaml")
	if err := os.WriteFile(path, []byte(SchemaYAML), 0o600); err != nil {
		t.Fatalf("failed to write schema fixture: %v", err)
	}
	return path
}

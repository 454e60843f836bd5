// Package schema holds the static table definitions lineage is recorded
// against: source database tables with their fields, and derived tables
// with the functions that populate them. A Snapshot is immutable; the
// Registry swaps snapshots atomically on reload.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DatabaseField is a column of a source table.
type DatabaseField struct {
	ID      int64  `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	TableID int64  `yaml:"-" json:"table_id"`
}

// DatabaseTable is the static schema of a source table.
type DatabaseTable struct {
	ID     int64           `yaml:"id" json:"id"`
	Name   string          `yaml:"name" json:"name"`
	Fields []DatabaseField `yaml:"fields" json:"fields"`
}

// DerivedFunctionDef is the definition of one computed column. Text and
// Language are opaque to the lineage core.
type DerivedFunctionDef struct {
	ID       int64  `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Text     string `yaml:"text" json:"text"`
	Language string `yaml:"language" json:"language"`
	TableID  int64  `yaml:"-" json:"-"`
}

// DerivedTable is the static schema of a computed table.
type DerivedTable struct {
	ID                      int64                `yaml:"id" json:"id"`
	Name                    string               `yaml:"name" json:"name"`
	TableCreationFunctionID *int64               `yaml:"table_creation_function_id" json:"table_creation_function_id"`
	Functions               []DerivedFunctionDef `yaml:"functions" json:"functions"`
}

// Definition is the serialized form of a schema.
type Definition struct {
	Version        string          `yaml:"version"`
	DatabaseTables []DatabaseTable `yaml:"database_tables"`
	DerivedTables  []DerivedTable  `yaml:"derived_tables"`
}

// Snapshot is a validated, read-only view of a Definition with O(1) lookup
// by ID.
type Snapshot struct {
	version  string
	loadedAt time.Time

	databaseTables []DatabaseTable
	derivedTables  []DerivedTable

	tableByID        map[int64]*DatabaseTable
	fieldByID        map[int64]*DatabaseField
	derivedTableByID map[int64]*DerivedTable
	functionByID     map[int64]*DerivedFunctionDef
}

// Source yields the schema snapshot currently in effect.
type Source interface {
	Current() *Snapshot
}

// NewSnapshot validates def and indexes it. IDs must be positive and unique
// per entity kind, and names must be non-empty.
func NewSnapshot(def Definition) (*Snapshot, error) {
	s := &Snapshot{
		version:          def.Version,
		loadedAt:         time.Now().UTC(),
		tableByID:        make(map[int64]*DatabaseTable, len(def.DatabaseTables)),
		fieldByID:        make(map[int64]*DatabaseField),
		derivedTableByID: make(map[int64]*DerivedTable, len(def.DerivedTables)),
		functionByID:     make(map[int64]*DerivedFunctionDef),
	}

	s.databaseTables = make([]DatabaseTable, len(def.DatabaseTables))
	copy(s.databaseTables, def.DatabaseTables)
	sort.SliceStable(s.databaseTables, func(i, j int) bool { return s.databaseTables[i].ID < s.databaseTables[j].ID })

	for i := range s.databaseTables {
		t := &s.databaseTables[i]
		if err := checkEntry("database table", t.ID, t.Name); err != nil {
			return nil, err
		}
		if _, dup := s.tableByID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate database table id %d", t.ID)
		}
		s.tableByID[t.ID] = t

		t.Fields = append([]DatabaseField(nil), t.Fields...)
		names := make(map[string]bool, len(t.Fields))
		for j := range t.Fields {
			f := &t.Fields[j]
			if err := checkEntry("database field", f.ID, f.Name); err != nil {
				return nil, fmt.Errorf("table %s: %w", t.Name, err)
			}
			if _, dup := s.fieldByID[f.ID]; dup {
				return nil, fmt.Errorf("duplicate database field id %d", f.ID)
			}
			key := strings.ToUpper(f.Name)
			if names[key] {
				return nil, fmt.Errorf("table %s: duplicate field name %q", t.Name, f.Name)
			}
			names[key] = true
			f.TableID = t.ID
			s.fieldByID[f.ID] = f
		}
	}

	s.derivedTables = make([]DerivedTable, len(def.DerivedTables))
	copy(s.derivedTables, def.DerivedTables)
	sort.SliceStable(s.derivedTables, func(i, j int) bool { return s.derivedTables[i].ID < s.derivedTables[j].ID })

	for i := range s.derivedTables {
		t := &s.derivedTables[i]
		if err := checkEntry("derived table", t.ID, t.Name); err != nil {
			return nil, err
		}
		if _, dup := s.derivedTableByID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate derived table id %d", t.ID)
		}
		s.derivedTableByID[t.ID] = t

		t.Functions = append([]DerivedFunctionDef(nil), t.Functions...)
		for j := range t.Functions {
			fn := &t.Functions[j]
			if err := checkEntry("derived function", fn.ID, fn.Name); err != nil {
				return nil, fmt.Errorf("derived table %s: %w", t.Name, err)
			}
			if _, dup := s.functionByID[fn.ID]; dup {
				return nil, fmt.Errorf("duplicate derived function id %d", fn.ID)
			}
			fn.TableID = t.ID
			s.functionByID[fn.ID] = fn
		}
	}

	return s, nil
}

func checkEntry(kind string, id int64, name string) error {
	if id <= 0 {
		return fmt.Errorf("%s %q: id must be positive, got %d", kind, name, id)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s %d: name is required", kind, id)
	}
	return nil
}

// Current returns s, so a fixed snapshot can serve as a Source.
func (s *Snapshot) Current() *Snapshot { return s }

// Version identifies the definition the snapshot was built from.
func (s *Snapshot) Version() string { return s.version }

// LoadedAt is when the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// DatabaseTable looks up a source table.
func (s *Snapshot) DatabaseTable(id int64) (*DatabaseTable, bool) {
	t, ok := s.tableByID[id]
	return t, ok
}

// DatabaseField looks up a source field.
func (s *Snapshot) DatabaseField(id int64) (*DatabaseField, bool) {
	f, ok := s.fieldByID[id]
	return f, ok
}

// DerivedTable looks up a derived table.
func (s *Snapshot) DerivedTable(id int64) (*DerivedTable, bool) {
	t, ok := s.derivedTableByID[id]
	return t, ok
}

// Function looks up a derived function definition.
func (s *Snapshot) Function(id int64) (*DerivedFunctionDef, bool) {
	f, ok := s.functionByID[id]
	return f, ok
}

// DatabaseTables returns all source tables ordered by ID. The slice must
// not be modified.
func (s *Snapshot) DatabaseTables() []DatabaseTable { return s.databaseTables }

// DerivedTables returns all derived tables ordered by ID. The slice must not
// be modified.
func (s *Snapshot) DerivedTables() []DerivedTable { return s.derivedTables }

// FieldCount returns the number of source fields.
func (s *Snapshot) FieldCount() int { return len(s.fieldByID) }

// FunctionCount returns the number of derived function definitions.
func (s *Snapshot) FunctionCount() int { return len(s.functionByID) }

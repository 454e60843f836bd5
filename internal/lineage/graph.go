package lineage

import (
	"time"

	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// Graph is the assembled provenance graph of one trail. Its JSON encoding is
// the wire format consumed by viewers and export tooling; field names must
// not change.
type Graph struct {
	Trail                   core.Trail             `json:"trail"`
	DatabaseTables          []schema.DatabaseTable `json:"database_tables"`
	DerivedTables           []schema.DerivedTable  `json:"derived_tables"`
	PopulatedDatabaseTables []PopulatedTableView   `json:"populated_database_tables"`
	EvaluatedDerivedTables  []EvaluatedTableView   `json:"evaluated_derived_tables"`
	LineageRelationships    Relationships          `json:"lineage_relationships"`
	Metadata                Metadata               `json:"metadata"`
}

// PopulatedTableView is a populated table with its rows.
type PopulatedTableView struct {
	ID        int64             `json:"id"`
	TableID   int64             `json:"table_id"`
	TableName string            `json:"table_name"`
	TrailID   int64             `json:"trail_id"`
	Rows      []DatabaseRowView `json:"rows"`
}

// DatabaseRowView is a database row with its values.
type DatabaseRowView struct {
	ID               int64       `json:"id"`
	RowIdentifier    string      `json:"row_identifier"`
	PopulatedTableID int64       `json:"populated_table_id"`
	Values           []ValueView `json:"values"`
}

// ValueView is a column value. Both payload keys are always present; the
// unset one is null.
type ValueView struct {
	ID          int64    `json:"id"`
	Value       *float64 `json:"value"`
	StringValue *string  `json:"string_value"`
	ColumnID    int64    `json:"column_id"`
	ColumnName  string   `json:"column_name"`
	RowID       int64    `json:"row_id"`
}

// EvaluatedTableView is an evaluated derived table with its rows.
type EvaluatedTableView struct {
	ID        int64            `json:"id"`
	TableID   int64            `json:"table_id"`
	TableName string           `json:"table_name"`
	TrailID   int64            `json:"trail_id"`
	Rows      []DerivedRowView `json:"rows"`
}

// DerivedRowView is a derived row with its evaluated functions.
type DerivedRowView struct {
	ID                 int64                   `json:"id"`
	RowIdentifier      string                  `json:"row_identifier"`
	PopulatedTableID   int64                   `json:"populated_table_id"`
	EvaluatedFunctions []EvaluatedFunctionView `json:"evaluated_functions"`
}

// EvaluatedFunctionView is one evaluated function result.
type EvaluatedFunctionView struct {
	ID           int64    `json:"id"`
	Value        *float64 `json:"value"`
	StringValue  *string  `json:"string_value"`
	FunctionID   int64    `json:"function_id"`
	FunctionName string   `json:"function_name"`
	RowID        int64    `json:"row_id"`
}

// Relationships groups the five edge lists.
type Relationships struct {
	FunctionColumnReferences      []FunctionColumnReference      `json:"function_column_references"`
	DerivedRowSourceReferences    []DerivedRowSourceReference    `json:"derived_row_source_references"`
	EvaluatedFunctionSourceValues []EvaluatedFunctionSourceValue `json:"evaluated_function_source_values"`
	TableCreationSourceTables     []TableCreationSourceTable     `json:"table_creation_source_tables"`
	TableCreationFunctionColumns  []TableCreationFunctionColumn  `json:"table_creation_function_columns"`
}

// FunctionColumnReference links a function definition to a field it reads.
type FunctionColumnReference struct {
	ID               int64           `json:"id"`
	FunctionID       int64           `json:"function_id"`
	FunctionName     string          `json:"function_name"`
	TargetObjectType core.ObjectType `json:"target_object_type"`
	TargetObjectID   int64           `json:"target_object_id"`
}

// DerivedRowSourceReference links a derived row to a row it was computed from.
type DerivedRowSourceReference struct {
	ID               int64           `json:"id"`
	DerivedRowID     int64           `json:"derived_row_id"`
	RowIdentifier    string          `json:"row_identifier"`
	TargetObjectType core.ObjectType `json:"target_object_type"`
	TargetObjectID   int64           `json:"target_object_id"`
}

// EvaluatedFunctionSourceValue links an evaluated function to a value it
// consumed.
type EvaluatedFunctionSourceValue struct {
	ID                  int64           `json:"id"`
	EvaluatedFunctionID int64           `json:"evaluated_function_id"`
	FunctionName        string          `json:"function_name"`
	TargetObjectType    core.ObjectType `json:"target_object_type"`
	TargetObjectID      int64           `json:"target_object_id"`
}

// TableCreationSourceTable links a derived table to a whole table its
// creation function consumed.
type TableCreationSourceTable struct {
	ID               int64           `json:"id"`
	DerivedTableID   int64           `json:"derived_table_id"`
	TableName        string          `json:"table_name"`
	TargetObjectType core.ObjectType `json:"target_object_type"`
	TargetObjectID   int64           `json:"target_object_id"`
}

// TableCreationFunctionColumn links a derived table to a field its creation
// function references.
type TableCreationFunctionColumn struct {
	ID               int64           `json:"id"`
	DerivedTableID   int64           `json:"derived_table_id"`
	TableName        string          `json:"table_name"`
	TargetObjectType core.ObjectType `json:"target_object_type"`
	TargetObjectID   int64           `json:"target_object_id"`
	ReferenceText    string          `json:"reference_text"`
}

// Metadata describes how the graph was produced.
type Metadata struct {
	GeneratedAt   time.Time         `json:"generated_at"`
	SchemaVersion string            `json:"schema_version"`
	TotalCounts   core.TrailSummary `json:"total_counts"`
	Warnings      []Warning         `json:"warnings"`
}

// Warning kinds.
const (
	// WarningDanglingReference marks an edge whose endpoint does not resolve
	// within the response. The edge is still returned.
	WarningDanglingReference = "dangling_reference"
	// WarningCycle marks a loop among row or value edges.
	WarningCycle = "cycle"
)

// Warning is a non-fatal anomaly found during assembly.
type Warning struct {
	Kind             string          `json:"kind"`
	Message          string          `json:"message"`
	ReferenceKind    core.RefKind    `json:"reference_kind,omitempty"`
	EdgeID           int64           `json:"edge_id,omitempty"`
	TargetObjectType core.ObjectType `json:"target_object_type,omitempty"`
	TargetObjectID   int64           `json:"target_object_id,omitempty"`
	Path             []string        `json:"path,omitempty"`
}

// ObjectRef names one artifact in a trace. Direct marks artifacts one edge
// away from the traced object.
type ObjectRef struct {
	Type   core.ObjectType `json:"object_type"`
	ID     int64           `json:"object_id"`
	Label  string          `json:"label"`
	Direct bool            `json:"direct,omitempty"`
}

// Trace is the set of artifacts one row or value was transitively derived
// from (Upstream) and the artifacts derived from it (Downstream). Lists are
// sorted by node key; a direction that was not walked is null.
type Trace struct {
	TrailID    int64       `json:"trail_id"`
	Object     ObjectRef   `json:"object"`
	Upstream   []ObjectRef `json:"upstream"`
	Downstream []ObjectRef `json:"downstream"`
	Warnings   []Warning   `json:"warnings"`
}

package lineage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// Recorder is the capture side of the lineage core. It resolves table,
// field and function definitions against the schema before anything is
// written, so the store only ever holds records that name known entities.
type Recorder struct {
	store       core.Store
	schema      schema.Source
	uniqueNames bool
	logger      *slog.Logger
}

// RecorderConfig holds recorder dependencies.
type RecorderConfig struct {
	Store  core.Store
	Schema schema.Source
	// UniqueNames rejects trails whose name is already taken.
	UniqueNames bool
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("lineage recorder requires a store")
	}
	if cfg.Schema == nil || cfg.Schema.Current() == nil {
		return nil, fmt.Errorf("lineage recorder requires a schema")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		store:       cfg.Store,
		schema:      cfg.Schema,
		uniqueNames: cfg.UniqueNames,
		logger:      logger,
	}, nil
}

// CreateTrail starts a new trail. An empty name is replaced with a
// generated one.
func (r *Recorder) CreateTrail(ctx context.Context, name string, execCtx map[string]any) (*core.Trail, error) {
	trail, err := r.store.CreateTrail(ctx, core.NewTrail{
		Name:             name,
		ExecutionContext: execCtx,
		UniqueName:       r.uniqueNames,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("trail created", slog.Int64("trail_id", trail.ID), slog.String("name", trail.Name))
	return trail, nil
}

// RecordPopulatedTable records that a database table was materialized in a
// trail and returns the populated table ID.
func (r *Recorder) RecordPopulatedTable(ctx context.Context, trailID, tableID int64) (int64, error) {
	table, ok := r.schema.Current().DatabaseTable(tableID)
	if !ok {
		return 0, &core.UnknownTableError{Type: core.ObjectDatabaseTable, ID: tableID}
	}
	return r.store.RecordPopulatedTable(ctx, core.PopulatedTable{
		TableID:   table.ID,
		TableName: table.Name,
		TrailID:   trailID,
	})
}

// RecordEvaluatedTable records that a derived table was evaluated in a
// trail and returns the evaluated table ID.
func (r *Recorder) RecordEvaluatedTable(ctx context.Context, trailID, tableID int64) (int64, error) {
	table, ok := r.schema.Current().DerivedTable(tableID)
	if !ok {
		return 0, &core.UnknownTableError{Type: core.ObjectDerivedTable, ID: tableID}
	}
	return r.store.RecordEvaluatedTable(ctx, core.EvaluatedTable{
		TableID:   table.ID,
		TableName: table.Name,
		TrailID:   trailID,
	})
}

// RecordRow records a row of a populated table.
func (r *Recorder) RecordRow(ctx context.Context, populatedTableID int64, rowIdentifier string) (int64, error) {
	return r.store.RecordDatabaseRow(ctx, core.DatabaseRow{
		RowIdentifier:    rowIdentifier,
		PopulatedTableID: populatedTableID,
	})
}

// RecordDerivedRow records a row of an evaluated table.
func (r *Recorder) RecordDerivedRow(ctx context.Context, evaluatedTableID int64, rowIdentifier string) (int64, error) {
	return r.store.RecordDerivedRow(ctx, core.DerivedRow{
		RowIdentifier:    rowIdentifier,
		PopulatedTableID: evaluatedTableID,
	})
}

// RecordColumnValue records the value of a field in a database row. The
// field must belong to the table the row was populated from.
func (r *Recorder) RecordColumnValue(ctx context.Context, rowID, columnID int64, p core.Payload) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	table, err := r.store.DatabaseRowTable(ctx, rowID)
	if err != nil {
		return 0, err
	}
	field, ok := r.schema.Current().DatabaseField(columnID)
	if !ok || field.TableID != table.TableID {
		return 0, &core.UnknownColumnError{ColumnID: columnID, TableID: table.TableID}
	}

	return r.store.RecordColumnValue(ctx, core.ColumnValue{
		Payload:    p,
		ColumnID:   field.ID,
		ColumnName: field.Name,
		RowID:      rowID,
	})
}

// RecordEvaluatedFunction records the result of a derived function in a
// derived row. The function must belong to the row's derived table.
func (r *Recorder) RecordEvaluatedFunction(ctx context.Context, rowID, functionID int64, p core.Payload) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	table, err := r.store.DerivedRowTable(ctx, rowID)
	if err != nil {
		return 0, err
	}
	fn, ok := r.schema.Current().Function(functionID)
	if !ok || fn.TableID != table.TableID {
		return 0, &core.UnknownFunctionError{FunctionID: functionID, TableID: table.TableID}
	}

	return r.store.RecordEvaluatedFunction(ctx, core.EvaluatedFunction{
		Payload:      p,
		FunctionID:   fn.ID,
		FunctionName: fn.Name,
		RowID:        rowID,
	})
}

// RecordFunctionColumnRef records that a function definition reads a field.
func (r *Recorder) RecordFunctionColumnRef(ctx context.Context, functionID int64, targetType core.ObjectType, targetID int64) (int64, error) {
	return r.RecordReference(ctx, core.ReferenceEdge{
		Kind: core.RefFunctionColumn, SourceID: functionID, TargetType: targetType, TargetID: targetID,
	})
}

// RecordRowSourceRef records that a derived row was computed from a row.
func (r *Recorder) RecordRowSourceRef(ctx context.Context, derivedRowID int64, targetType core.ObjectType, targetID int64) (int64, error) {
	return r.RecordReference(ctx, core.ReferenceEdge{
		Kind: core.RefRowSource, SourceID: derivedRowID, TargetType: targetType, TargetID: targetID,
	})
}

// RecordValueSourceRef records that an evaluated function consumed a value.
func (r *Recorder) RecordValueSourceRef(ctx context.Context, evaluatedFunctionID int64, targetType core.ObjectType, targetID int64) (int64, error) {
	return r.RecordReference(ctx, core.ReferenceEdge{
		Kind: core.RefValueSource, SourceID: evaluatedFunctionID, TargetType: targetType, TargetID: targetID,
	})
}

// RecordTableSourceRef records that a derived table's creation consumed a
// whole table.
func (r *Recorder) RecordTableSourceRef(ctx context.Context, derivedTableID int64, targetType core.ObjectType, targetID int64) (int64, error) {
	return r.RecordReference(ctx, core.ReferenceEdge{
		Kind: core.RefTableSource, SourceID: derivedTableID, TargetType: targetType, TargetID: targetID,
	})
}

// RecordTableCreationColumnRef records that a derived table's creation
// function references a field. text is the reference as written in the
// function, or empty.
func (r *Recorder) RecordTableCreationColumnRef(ctx context.Context, derivedTableID int64, targetType core.ObjectType, targetID int64, text string) (int64, error) {
	return r.RecordReference(ctx, core.ReferenceEdge{
		Kind: core.RefTableCreationColumn, SourceID: derivedTableID, TargetType: targetType, TargetID: targetID,
		ReferenceText: text,
	})
}

// RecordReference appends an edge of any kind. Schema-level endpoints are
// checked against the schema; instance-level endpoints are checked by the
// store.
func (r *Recorder) RecordReference(ctx context.Context, e core.ReferenceEdge) (int64, error) {
	if !e.Kind.Valid() {
		return 0, &core.InvalidReferenceTypeError{Kind: e.Kind, Type: string(e.TargetType)}
	}
	targetType, err := core.ParseObjectType(string(e.TargetType))
	if err != nil {
		return 0, err
	}
	if err := e.Kind.CheckTarget(targetType); err != nil {
		return 0, err
	}
	e.TargetType = targetType

	if !e.Kind.InstanceLevel() {
		if err := r.checkSchemaEdge(e); err != nil {
			return 0, err
		}
	}
	return r.store.RecordReference(ctx, e)
}

func (r *Recorder) checkSchemaEdge(e core.ReferenceEdge) error {
	reg := r.schema.Current()

	switch e.Kind {
	case core.RefFunctionColumn:
		if _, ok := reg.Function(e.SourceID); !ok {
			return &core.UnknownFunctionError{FunctionID: e.SourceID}
		}
	default:
		if _, ok := reg.DerivedTable(e.SourceID); !ok {
			return &core.UnknownTableError{Type: core.ObjectDerivedTable, ID: e.SourceID}
		}
	}

	switch e.TargetType {
	case core.ObjectDatabaseField:
		if _, ok := reg.DatabaseField(e.TargetID); !ok {
			return &core.UnknownColumnError{ColumnID: e.TargetID}
		}
	case core.ObjectDatabaseTable:
		if _, ok := reg.DatabaseTable(e.TargetID); !ok {
			return &core.UnknownTableError{Type: core.ObjectDatabaseTable, ID: e.TargetID}
		}
	case core.ObjectDerivedTable:
		if _, ok := reg.DerivedTable(e.TargetID); !ok {
			return &core.UnknownTableError{Type: core.ObjectDerivedTable, ID: e.TargetID}
		}
	}
	return nil
}

package lineage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eclipse-efbt/efbt-sub000/internal/dag"
	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// Engine answers lineage queries.
type Engine struct {
	store  core.Store
	schema schema.Source
	logger *slog.Logger
	now    func() time.Time
}

// EngineConfig holds engine dependencies.
type EngineConfig struct {
	Store core.Store
	// Schema supplies table and function definitions. A *schema.Snapshot or a
	// *schema.Registry both satisfy it.
	Schema schema.Source
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("lineage engine requires a store")
	}
	if cfg.Schema == nil || cfg.Schema.Current() == nil {
		return nil, fmt.Errorf("lineage engine requires a schema")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		store:  cfg.Store,
		schema: cfg.Schema,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Summarize returns the counts of a trail without loading its records.
func (e *Engine) Summarize(ctx context.Context, trailID int64) (*core.TrailSummary, error) {
	return e.store.Summarize(ctx, trailID)
}

// AssembleCompleteLineage builds the full provenance graph of a trail from
// one store snapshot. An unknown trail is a NotFoundError; every other
// anomaly becomes a warning on the result.
func (e *Engine) AssembleCompleteLineage(ctx context.Context, trailID int64) (*Graph, error) {
	a, err := e.assemble(ctx, trailID)
	if err != nil {
		return nil, err
	}
	return a.graph, nil
}

// TraceOptions selects the directions Trace walks.
type TraceOptions struct {
	// Upstream lists what the object was transitively computed from.
	Upstream bool
	// Downstream lists what was transitively computed from the object.
	Downstream bool
}

// Trace walks row and value source edges from one row or value of the
// trail. Both directions are answered from a single assembly; a direction
// that was not requested is left nil.
func (e *Engine) Trace(ctx context.Context, trailID int64, objectType core.ObjectType, objectID int64, opts TraceOptions) (*Trace, error) {
	if !objectType.InstanceLevel() {
		return nil, &core.InvalidReferenceTypeError{Type: string(objectType)}
	}

	a, err := e.assemble(ctx, trailID)
	if err != nil {
		return nil, err
	}

	start := nodeKey(objectType, objectID)
	if !a.dag.HasNode(start) {
		return nil, &core.NotFoundError{Kind: string(objectType), ID: objectID, TrailID: trailID}
	}

	trace := &Trace{
		TrailID:  trailID,
		Object:   a.ref(start),
		Warnings: []Warning{},
	}
	if opts.Upstream {
		trace.Upstream = a.refs(a.dag.GetUpstreamNodes(start), a.dag.GetParents(start))
	}
	if opts.Downstream {
		trace.Downstream = a.refs(a.dag.GetDownstreamNodes(start), a.dag.GetChildren(start))
	}
	for _, w := range a.graph.Metadata.Warnings {
		if w.Kind == WarningCycle {
			trace.Warnings = append(trace.Warnings, w)
		}
	}
	return trace, nil
}

// assembly holds the in-memory indexes built while assembling one trail.
type assembly struct {
	graph *Graph
	dag   *dag.Graph

	databaseRows map[int64]core.DatabaseRow
	columnValues map[int64]core.ColumnValue
	derivedRows  map[int64]core.DerivedRow
	functions    map[int64]core.EvaluatedFunction
}

func (e *Engine) assemble(ctx context.Context, trailID int64) (*assembly, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = snap.Close() }()

	trail, err := snap.Trail(ctx, trailID)
	if err != nil {
		return nil, err
	}

	populated, err := snap.PopulatedTables(ctx, trailID)
	if err != nil {
		return nil, err
	}
	dbRows, err := snap.DatabaseRows(ctx, trailID)
	if err != nil {
		return nil, err
	}
	values, err := snap.ColumnValues(ctx, trailID)
	if err != nil {
		return nil, err
	}
	evaluated, err := snap.EvaluatedTables(ctx, trailID)
	if err != nil {
		return nil, err
	}
	derivedRows, err := snap.DerivedRows(ctx, trailID)
	if err != nil {
		return nil, err
	}
	functions, err := snap.EvaluatedFunctions(ctx, trailID)
	if err != nil {
		return nil, err
	}

	reg := e.schema.Current()

	// schema-level edges are keyed by definition IDs; scope them to the
	// definitions this trail instantiated
	derivedTableIDs := make([]int64, 0, len(evaluated))
	functionIDSet := make(map[int64]bool)
	for _, t := range evaluated {
		derivedTableIDs = append(derivedTableIDs, t.TableID)
		if dt, ok := reg.DerivedTable(t.TableID); ok {
			for _, fn := range dt.Functions {
				functionIDSet[fn.ID] = true
			}
		}
	}
	for _, f := range functions {
		functionIDSet[f.FunctionID] = true
	}
	functionIDs := sortedIDs(functionIDSet)

	edges := make(map[core.RefKind][]core.ReferenceEdge, len(core.RefKinds))
	for _, kind := range core.RefKinds {
		var sourceIDs []int64
		switch kind {
		case core.RefFunctionColumn:
			sourceIDs = functionIDs
		case core.RefTableSource, core.RefTableCreationColumn:
			sourceIDs = derivedTableIDs
		}
		loaded, err := snap.References(ctx, kind, trailID, sourceIDs)
		if err != nil {
			return nil, err
		}
		edges[kind] = loaded
	}

	// the snapshot is no longer needed; the rest is in memory
	_ = snap.Close()

	a := &assembly{
		dag:          dag.NewGraph(),
		databaseRows: make(map[int64]core.DatabaseRow, len(dbRows)),
		columnValues: make(map[int64]core.ColumnValue, len(values)),
		derivedRows:  make(map[int64]core.DerivedRow, len(derivedRows)),
		functions:    make(map[int64]core.EvaluatedFunction, len(functions)),
	}
	g := &Graph{
		Trail:                   *trail,
		DatabaseTables:          []schema.DatabaseTable{},
		DerivedTables:           []schema.DerivedTable{},
		PopulatedDatabaseTables: make([]PopulatedTableView, 0, len(populated)),
		EvaluatedDerivedTables:  make([]EvaluatedTableView, 0, len(evaluated)),
		LineageRelationships: Relationships{
			FunctionColumnReferences:      []FunctionColumnReference{},
			DerivedRowSourceReferences:    []DerivedRowSourceReference{},
			EvaluatedFunctionSourceValues: []EvaluatedFunctionSourceValue{},
			TableCreationSourceTables:     []TableCreationSourceTable{},
			TableCreationFunctionColumns:  []TableCreationFunctionColumn{},
		},
		Metadata: Metadata{
			GeneratedAt:   e.now().UTC(),
			SchemaVersion: reg.Version(),
			Warnings:      []Warning{},
		},
	}
	a.graph = g

	// database side, joined bottom-up
	valuesByRow := make(map[int64][]ValueView)
	for _, v := range values {
		a.columnValues[v.ID] = v
		a.dag.AddNode(nodeKey(core.ObjectDatabaseColumnValue, v.ID))
		valuesByRow[v.RowID] = append(valuesByRow[v.RowID], ValueView{
			ID:          v.ID,
			Value:       v.Payload.Number,
			StringValue: v.Payload.Text,
			ColumnID:    v.ColumnID,
			ColumnName:  v.ColumnName,
			RowID:       v.RowID,
		})
	}
	rowsByTable := make(map[int64][]DatabaseRowView)
	for _, r := range dbRows {
		a.databaseRows[r.ID] = r
		a.dag.AddNode(nodeKey(core.ObjectDatabaseRow, r.ID))
		vals := valuesByRow[r.ID]
		if vals == nil {
			vals = []ValueView{}
		}
		rowsByTable[r.PopulatedTableID] = append(rowsByTable[r.PopulatedTableID], DatabaseRowView{
			ID:               r.ID,
			RowIdentifier:    r.RowIdentifier,
			PopulatedTableID: r.PopulatedTableID,
			Values:           vals,
		})
	}
	for _, t := range populated {
		rows := rowsByTable[t.ID]
		if rows == nil {
			rows = []DatabaseRowView{}
		}
		g.PopulatedDatabaseTables = append(g.PopulatedDatabaseTables, PopulatedTableView{
			ID:        t.ID,
			TableID:   t.TableID,
			TableName: t.TableName,
			TrailID:   t.TrailID,
			Rows:      rows,
		})
	}

	// derived side
	functionsByRow := make(map[int64][]EvaluatedFunctionView)
	for _, f := range functions {
		a.functions[f.ID] = f
		a.dag.AddNode(nodeKey(core.ObjectEvaluatedFunction, f.ID))
		functionsByRow[f.RowID] = append(functionsByRow[f.RowID], EvaluatedFunctionView{
			ID:           f.ID,
			Value:        f.Payload.Number,
			StringValue:  f.Payload.Text,
			FunctionID:   f.FunctionID,
			FunctionName: f.FunctionName,
			RowID:        f.RowID,
		})
	}
	derivedByTable := make(map[int64][]DerivedRowView)
	for _, r := range derivedRows {
		a.derivedRows[r.ID] = r
		a.dag.AddNode(nodeKey(core.ObjectDerivedRow, r.ID))
		fns := functionsByRow[r.ID]
		if fns == nil {
			fns = []EvaluatedFunctionView{}
		}
		derivedByTable[r.PopulatedTableID] = append(derivedByTable[r.PopulatedTableID], DerivedRowView{
			ID:                 r.ID,
			RowIdentifier:      r.RowIdentifier,
			PopulatedTableID:   r.PopulatedTableID,
			EvaluatedFunctions: fns,
		})
	}
	for _, t := range evaluated {
		rows := derivedByTable[t.ID]
		if rows == nil {
			rows = []DerivedRowView{}
		}
		g.EvaluatedDerivedTables = append(g.EvaluatedDerivedTables, EvaluatedTableView{
			ID:        t.ID,
			TableID:   t.TableID,
			TableName: t.TableName,
			TrailID:   t.TrailID,
			Rows:      rows,
		})
	}

	// schema entries: everything the trail instantiated plus everything its
	// schema-level edges point at
	dbTableIDs := make(map[int64]bool)
	dtTableIDs := make(map[int64]bool)
	for _, t := range populated {
		dbTableIDs[t.TableID] = true
	}
	for _, t := range evaluated {
		dtTableIDs[t.TableID] = true
	}

	a.resolveEdges(reg, edges, dbTableIDs, dtTableIDs)

	for _, id := range sortedIDs(dbTableIDs) {
		if t, ok := reg.DatabaseTable(id); ok {
			g.DatabaseTables = append(g.DatabaseTables, copyDatabaseTable(t))
		}
	}
	for _, id := range sortedIDs(dtTableIDs) {
		if t, ok := reg.DerivedTable(id); ok {
			g.DerivedTables = append(g.DerivedTables, copyDerivedTable(t))
		}
	}

	if hasCycle, path := a.dag.HasCycle(); hasCycle {
		a.warn(Warning{
			Kind:    WarningCycle,
			Message: "reference cycle: " + strings.Join(path, " -> "),
			Path:    path,
		})
	}

	sum := core.TrailSummary{
		DatabaseTables:     len(populated),
		DerivedTables:      len(evaluated),
		DatabaseRows:       len(dbRows),
		DerivedRows:        len(derivedRows),
		ColumnValues:       len(values),
		EvaluatedFunctions: len(functions),
	}
	g.Metadata.TotalCounts = sum.Finalize()

	if n := len(g.Metadata.Warnings); n > 0 {
		e.logger.Warn("lineage assembled with warnings",
			slog.Int64("trail_id", trailID), slog.Int("warnings", n))
	}
	e.logger.Debug("lineage assembled",
		slog.Int64("trail_id", trailID),
		slog.Int("nodes", a.dag.NodeCount()),
		slog.Int("edges", a.dag.EdgeCount()))
	return a, nil
}

// resolveEdges denormalizes labels onto the edge lists, flags targets that
// do not resolve, and feeds row and value edges into the cycle graph.
// Schema tables referenced by resolved targets are added to the given sets.
func (a *assembly) resolveEdges(reg *schema.Snapshot, edges map[core.RefKind][]core.ReferenceEdge, dbTables, dtTables map[int64]bool) {
	rel := &a.graph.LineageRelationships

	for _, ref := range edges[core.RefFunctionColumn] {
		var name string
		if fn, ok := reg.Function(ref.SourceID); ok {
			name = fn.Name
		}
		if field, ok := reg.DatabaseField(ref.TargetID); ok && ref.TargetType == core.ObjectDatabaseField {
			dbTables[field.TableID] = true
		} else {
			a.dangling(ref)
		}
		rel.FunctionColumnReferences = append(rel.FunctionColumnReferences, FunctionColumnReference{
			ID:               ref.ID,
			FunctionID:       ref.SourceID,
			FunctionName:     name,
			TargetObjectType: ref.TargetType,
			TargetObjectID:   ref.TargetID,
		})
	}

	for _, ref := range edges[core.RefRowSource] {
		source := a.derivedRows[ref.SourceID]
		a.linkInstances(ref)
		rel.DerivedRowSourceReferences = append(rel.DerivedRowSourceReferences, DerivedRowSourceReference{
			ID:               ref.ID,
			DerivedRowID:     ref.SourceID,
			RowIdentifier:    source.RowIdentifier,
			TargetObjectType: ref.TargetType,
			TargetObjectID:   ref.TargetID,
		})
	}

	for _, ref := range edges[core.RefValueSource] {
		source := a.functions[ref.SourceID]
		a.linkInstances(ref)
		rel.EvaluatedFunctionSourceValues = append(rel.EvaluatedFunctionSourceValues, EvaluatedFunctionSourceValue{
			ID:                  ref.ID,
			EvaluatedFunctionID: ref.SourceID,
			FunctionName:        source.FunctionName,
			TargetObjectType:    ref.TargetType,
			TargetObjectID:      ref.TargetID,
		})
	}

	for _, ref := range edges[core.RefTableSource] {
		var name string
		if dt, ok := reg.DerivedTable(ref.SourceID); ok {
			name = dt.Name
		}
		switch _, dbOK := reg.DatabaseTable(ref.TargetID); {
		case ref.TargetType == core.ObjectDatabaseTable && dbOK:
			dbTables[ref.TargetID] = true
		case ref.TargetType == core.ObjectDerivedTable && hasDerivedTable(reg, ref.TargetID):
			dtTables[ref.TargetID] = true
		default:
			a.dangling(ref)
		}
		rel.TableCreationSourceTables = append(rel.TableCreationSourceTables, TableCreationSourceTable{
			ID:               ref.ID,
			DerivedTableID:   ref.SourceID,
			TableName:        name,
			TargetObjectType: ref.TargetType,
			TargetObjectID:   ref.TargetID,
		})
	}

	for _, ref := range edges[core.RefTableCreationColumn] {
		var name string
		if dt, ok := reg.DerivedTable(ref.SourceID); ok {
			name = dt.Name
		}
		if field, ok := reg.DatabaseField(ref.TargetID); ok && ref.TargetType == core.ObjectDatabaseField {
			dbTables[field.TableID] = true
		} else {
			a.dangling(ref)
		}
		rel.TableCreationFunctionColumns = append(rel.TableCreationFunctionColumns, TableCreationFunctionColumn{
			ID:               ref.ID,
			DerivedTableID:   ref.SourceID,
			TableName:        name,
			TargetObjectType: ref.TargetType,
			TargetObjectID:   ref.TargetID,
			ReferenceText:    ref.ReferenceText,
		})
	}
}

// linkInstances adds a resolved row or value edge to the cycle graph, or
// flags it as dangling.
func (a *assembly) linkInstances(ref core.ReferenceEdge) {
	target := nodeKey(ref.TargetType, ref.TargetID)
	if !a.dag.HasNode(target) {
		a.dangling(ref)
		return
	}
	source := nodeKey(ref.Kind.SourceType(), ref.SourceID)
	if err := a.dag.AddEdge(target, source); err != nil {
		if errors.Is(err, dag.ErrSelfLoop) {
			a.warn(Warning{
				Kind:          WarningCycle,
				Message:       fmt.Sprintf("%s reference %d points at its own source", ref.Kind, ref.ID),
				ReferenceKind: ref.Kind,
				EdgeID:        ref.ID,
				Path:          []string{source, source},
			})
			return
		}
		a.dangling(ref)
	}
}

func (a *assembly) dangling(ref core.ReferenceEdge) {
	a.warn(Warning{
		Kind: WarningDanglingReference,
		Message: fmt.Sprintf("%s reference %d: target %s %d is not part of this trail's lineage",
			ref.Kind, ref.ID, ref.TargetType, ref.TargetID),
		ReferenceKind:    ref.Kind,
		EdgeID:           ref.ID,
		TargetObjectType: ref.TargetType,
		TargetObjectID:   ref.TargetID,
	})
}

func (a *assembly) warn(w Warning) {
	a.graph.Metadata.Warnings = append(a.graph.Metadata.Warnings, w)
}

// ref turns a node key back into a labelled object reference.
func (a *assembly) ref(key string) ObjectRef {
	objectType, id := parseNodeKey(key)
	r := ObjectRef{Type: objectType, ID: id}
	switch objectType {
	case core.ObjectDatabaseRow:
		r.Label = a.databaseRows[id].RowIdentifier
	case core.ObjectDerivedRow:
		r.Label = a.derivedRows[id].RowIdentifier
	case core.ObjectDatabaseColumnValue:
		r.Label = a.columnValues[id].ColumnName
	case core.ObjectEvaluatedFunction:
		r.Label = a.functions[id].FunctionName
	}
	return r
}

// refs labels the keys of a walk, marking the immediate neighbours.
func (a *assembly) refs(keys, direct []string) []ObjectRef {
	out := make([]ObjectRef, 0, len(keys))
	for _, key := range keys {
		r := a.ref(key)
		r.Direct = slices.Contains(direct, key)
		out = append(out, r)
	}
	return out
}

func nodeKey(t core.ObjectType, id int64) string {
	return string(t) + ":" + strconv.FormatInt(id, 10)
}

func parseNodeKey(key string) (core.ObjectType, int64) {
	t, raw, _ := strings.Cut(key, ":")
	id, _ := strconv.ParseInt(raw, 10, 64)
	return core.ObjectType(t), id
}

func hasDerivedTable(reg *schema.Snapshot, id int64) bool {
	_, ok := reg.DerivedTable(id)
	return ok
}

func sortedIDs(set map[int64]bool) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func copyDatabaseTable(t *schema.DatabaseTable) schema.DatabaseTable {
	c := *t
	c.Fields = append([]schema.DatabaseField{}, t.Fields...)
	return c
}

func copyDerivedTable(t *schema.DerivedTable) schema.DerivedTable {
	c := *t
	c.Functions = append([]schema.DerivedFunctionDef{}, t.Functions...)
	return c
}

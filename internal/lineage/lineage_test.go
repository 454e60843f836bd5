package lineage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-efbt/efbt-sub000/internal/state"
	"github.com/eclipse-efbt/efbt-sub000/internal/testutil"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

type fixture struct {
	store    *state.Store
	recorder *Recorder
	engine   *Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := state.Open(ctx, state.Config{
		Driver: "sqlite",
		DSN:    state.SQLiteDSN(filepath.Join(t.TempDir(), "trails.db")),
		Logger: testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	return newFixture(t, store)
}

func newFixture(t *testing.T, store core.Store) *fixture {
	t.Helper()
	snap := testutil.NewSchema(t)

	rec, err := NewRecorder(RecorderConfig{Store: store, Schema: snap, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	eng, err := NewEngine(EngineConfig{Store: store, Schema: snap, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	eng.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	f := &fixture{recorder: rec, engine: eng}
	if s, ok := store.(*state.Store); ok {
		f.store = s
	}
	return f
}

type scenario struct {
	trail    *core.Trail
	table    int64
	row      int64
	value    int64
	evalTab  int64
	drow     int64
	function int64
}

// record captures a trail with one source row (F1 = 10) and one derived row
// (fn1 = 20) plus all five kinds of edge.
func (f *fixture) record(t *testing.T, name string) scenario {
	t.Helper()
	ctx := context.Background()
	r := f.recorder

	var s scenario
	var err error
	s.trail, err = r.CreateTrail(ctx, name, map[string]any{"run": "nightly"})
	require.NoError(t, err)

	s.table, err = r.RecordPopulatedTable(ctx, s.trail.ID, testutil.TableDT1)
	require.NoError(t, err)
	s.row, err = r.RecordRow(ctx, s.table, "1")
	require.NoError(t, err)
	s.value, err = r.RecordColumnValue(ctx, s.row, testutil.FieldF1, core.NumberPayload(10))
	require.NoError(t, err)

	s.evalTab, err = r.RecordEvaluatedTable(ctx, s.trail.ID, testutil.DerivedDD1)
	require.NoError(t, err)
	s.drow, err = r.RecordDerivedRow(ctx, s.evalTab, "1")
	require.NoError(t, err)
	s.function, err = r.RecordEvaluatedFunction(ctx, s.drow, testutil.FunctionFn1, core.NumberPayload(20))
	require.NoError(t, err)

	_, err = r.RecordFunctionColumnRef(ctx, testutil.FunctionFn1, core.ObjectDatabaseField, testutil.FieldF1)
	require.NoError(t, err)
	_, err = r.RecordRowSourceRef(ctx, s.drow, core.ObjectDatabaseRow, s.row)
	require.NoError(t, err)
	_, err = r.RecordValueSourceRef(ctx, s.function, core.ObjectDatabaseColumnValue, s.value)
	require.NoError(t, err)
	_, err = r.RecordTableSourceRef(ctx, testutil.DerivedDD1, core.ObjectDatabaseTable, testutil.TableDT1)
	require.NoError(t, err)
	_, err = r.RecordTableCreationColumnRef(ctx, testutil.DerivedDD1, core.ObjectDatabaseField, testutil.FieldF1, "F1")
	require.NoError(t, err)
	return s
}

func TestAssembleCompleteLineage(t *testing.T) {
	f := setup(t)
	s := f.record(t, "T1")

	g, err := f.engine.AssembleCompleteLineage(context.Background(), s.trail.ID)
	require.NoError(t, err)

	assert.Equal(t, "T1", g.Trail.Name)
	assert.Equal(t, "nightly", g.Trail.ExecutionContext["run"])

	require.Len(t, g.PopulatedDatabaseTables, 1)
	pt := g.PopulatedDatabaseTables[0]
	assert.Equal(t, "DT1", pt.TableName)
	require.Len(t, pt.Rows, 1)
	require.Len(t, pt.Rows[0].Values, 1)
	v := pt.Rows[0].Values[0]
	require.NotNil(t, v.Value)
	assert.Equal(t, 10.0, *v.Value)
	assert.Nil(t, v.StringValue)
	assert.Equal(t, "F1", v.ColumnName)

	require.Len(t, g.EvaluatedDerivedTables, 1)
	et := g.EvaluatedDerivedTables[0]
	assert.Equal(t, "DD1", et.TableName)
	require.Len(t, et.Rows, 1)
	assert.Equal(t, s.evalTab, et.Rows[0].PopulatedTableID)
	require.Len(t, et.Rows[0].EvaluatedFunctions, 1)
	assert.Equal(t, "fn1", et.Rows[0].EvaluatedFunctions[0].FunctionName)
	assert.Equal(t, 20.0, *et.Rows[0].EvaluatedFunctions[0].Value)

	require.Len(t, g.DatabaseTables, 1)
	assert.Equal(t, "DT1", g.DatabaseTables[0].Name)
	assert.Len(t, g.DatabaseTables[0].Fields, 2)
	require.Len(t, g.DerivedTables, 1)
	assert.Equal(t, "DD1", g.DerivedTables[0].Name)

	rel := g.LineageRelationships
	require.Len(t, rel.FunctionColumnReferences, 1)
	assert.Equal(t, "fn1", rel.FunctionColumnReferences[0].FunctionName)
	require.Len(t, rel.DerivedRowSourceReferences, 1)
	assert.Equal(t, "1", rel.DerivedRowSourceReferences[0].RowIdentifier)
	assert.Equal(t, s.row, rel.DerivedRowSourceReferences[0].TargetObjectID)
	require.Len(t, rel.EvaluatedFunctionSourceValues, 1)
	assert.Equal(t, s.value, rel.EvaluatedFunctionSourceValues[0].TargetObjectID)
	require.Len(t, rel.TableCreationSourceTables, 1)
	assert.Equal(t, "DD1", rel.TableCreationSourceTables[0].TableName)
	require.Len(t, rel.TableCreationFunctionColumns, 1)
	assert.Equal(t, "F1", rel.TableCreationFunctionColumns[0].ReferenceText)

	assert.Equal(t, core.TrailSummary{
		DatabaseTables:     1,
		DerivedTables:      1,
		TotalRows:          2,
		DatabaseRows:       1,
		DerivedRows:        1,
		ColumnValues:       1,
		EvaluatedFunctions: 1,
		HasLineageData:     true,
	}, g.Metadata.TotalCounts)
	assert.Equal(t, "test-1", g.Metadata.SchemaVersion)
	assert.Empty(t, g.Metadata.Warnings)

	sum, err := f.engine.Summarize(context.Background(), s.trail.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Metadata.TotalCounts, *sum)
}

func TestAssembleCompleteLineage_WireFormat(t *testing.T) {
	f := setup(t)
	s := f.record(t, "T1")

	g, err := f.engine.AssembleCompleteLineage(context.Background(), s.trail.ID)
	require.NoError(t, err)

	data, err := json.Marshal(g)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{
		"trail", "database_tables", "derived_tables", "populated_database_tables",
		"evaluated_derived_tables", "lineage_relationships", "metadata",
	} {
		assert.Contains(t, doc, key)
	}

	value := doc["populated_database_tables"].([]any)[0].(map[string]any)["rows"].([]any)[0].(map[string]any)["values"].([]any)[0].(map[string]any)
	assert.Contains(t, value, "string_value")
	assert.Nil(t, value["string_value"])
	assert.Equal(t, 10.0, value["value"])

	derivedRow := doc["evaluated_derived_tables"].([]any)[0].(map[string]any)["rows"].([]any)[0].(map[string]any)
	assert.Contains(t, derivedRow, "populated_table_id")

	field := doc["database_tables"].([]any)[0].(map[string]any)["fields"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(testutil.TableDT1), field["table_id"])
}

func TestAssembleCompleteLineage_EmptyTrail(t *testing.T) {
	f := setup(t)
	trail, err := f.recorder.CreateTrail(context.Background(), "empty", nil)
	require.NoError(t, err)

	g, err := f.engine.AssembleCompleteLineage(context.Background(), trail.ID)
	require.NoError(t, err)

	assert.NotNil(t, g.PopulatedDatabaseTables)
	assert.NotNil(t, g.LineageRelationships.DerivedRowSourceReferences)
	assert.NotNil(t, g.Metadata.Warnings)
	assert.False(t, g.Metadata.TotalCounts.HasLineageData)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"populated_database_tables":[]`)
}

func TestAssembleCompleteLineage_UnknownTrail(t *testing.T) {
	f := setup(t)

	_, err := f.engine.AssembleCompleteLineage(context.Background(), 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAssembleCompleteLineage_TrailsAreIsolated(t *testing.T) {
	f := setup(t)
	a := f.record(t, "A")
	b := f.record(t, "B")

	g, err := f.engine.AssembleCompleteLineage(context.Background(), a.trail.ID)
	require.NoError(t, err)

	require.Len(t, g.PopulatedDatabaseTables, 1)
	assert.Equal(t, a.table, g.PopulatedDatabaseTables[0].ID)
	require.Len(t, g.LineageRelationships.EvaluatedFunctionSourceValues, 1)
	assert.NotEqual(t, b.value, g.LineageRelationships.EvaluatedFunctionSourceValues[0].TargetObjectID)
	assert.Empty(t, g.Metadata.Warnings)
}

func TestAssembleCompleteLineage_DanglingReference(t *testing.T) {
	base := setup(t)
	a := base.record(t, "A")
	b := base.record(t, "B")
	ctx := context.Background()

	// a derived row of A citing a row recorded under B
	_, err := base.recorder.RecordRowSourceRef(ctx, a.drow, core.ObjectDatabaseRow, b.row)
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, a.trail.ID, nf.TrailID)

	// the store refuses the edge, so splice it in at read time
	f := newFixture(t, spyStore{
		Store: base.store,
		calls: &atomic.Int64{},
		extra: map[core.RefKind][]core.ReferenceEdge{
			core.RefRowSource: {{
				ID: 9000, Kind: core.RefRowSource, SourceID: a.drow,
				TargetType: core.ObjectDatabaseRow, TargetID: b.row,
			}},
		},
	})

	g, err := f.engine.AssembleCompleteLineage(ctx, a.trail.ID)
	require.NoError(t, err)

	assert.Len(t, g.LineageRelationships.DerivedRowSourceReferences, 2)
	require.Len(t, g.Metadata.Warnings, 1)
	w := g.Metadata.Warnings[0]
	assert.Equal(t, WarningDanglingReference, w.Kind)
	assert.Equal(t, core.RefRowSource, w.ReferenceKind)
	assert.Equal(t, b.row, w.TargetObjectID)
}

func TestAssembleCompleteLineage_EdgeTargetTablesIncluded(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	trail, err := f.recorder.CreateTrail(ctx, "dd2", nil)
	require.NoError(t, err)
	_, err = f.recorder.RecordEvaluatedTable(ctx, trail.ID, testutil.DerivedDD2)
	require.NoError(t, err)
	_, err = f.recorder.RecordTableSourceRef(ctx, testutil.DerivedDD2, core.ObjectDerivedTable, testutil.DerivedDD1)
	require.NoError(t, err)
	_, err = f.recorder.RecordFunctionColumnRef(ctx, testutil.FunctionH1, core.ObjectDatabaseField, testutil.FieldG1)
	require.NoError(t, err)

	g, err := f.engine.AssembleCompleteLineage(ctx, trail.ID)
	require.NoError(t, err)

	require.Len(t, g.DerivedTables, 2)
	assert.Equal(t, "DD1", g.DerivedTables[0].Name)
	assert.Equal(t, "DD2", g.DerivedTables[1].Name)
	require.Len(t, g.DatabaseTables, 1)
	assert.Equal(t, "DT2", g.DatabaseTables[0].Name)
	assert.Empty(t, g.Metadata.Warnings)
}

// spyStore counts snapshot queries and can splice extra edges into the
// loaded reference lists.
type spyStore struct {
	core.Store
	calls *atomic.Int64
	extra map[core.RefKind][]core.ReferenceEdge
}

func (s spyStore) Snapshot(ctx context.Context) (core.Snapshot, error) {
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &spySnapshot{Snapshot: snap, store: s}, nil
}

type spySnapshot struct {
	core.Snapshot
	store spyStore
}

func (s *spySnapshot) Trail(ctx context.Context, id int64) (*core.Trail, error) {
	s.store.calls.Add(1)
	return s.Snapshot.Trail(ctx, id)
}

func (s *spySnapshot) PopulatedTables(ctx context.Context, id int64) ([]core.PopulatedTable, error) {
	s.store.calls.Add(1)
	return s.Snapshot.PopulatedTables(ctx, id)
}

func (s *spySnapshot) DatabaseRows(ctx context.Context, id int64) ([]core.DatabaseRow, error) {
	s.store.calls.Add(1)
	return s.Snapshot.DatabaseRows(ctx, id)
}

func (s *spySnapshot) ColumnValues(ctx context.Context, id int64) ([]core.ColumnValue, error) {
	s.store.calls.Add(1)
	return s.Snapshot.ColumnValues(ctx, id)
}

func (s *spySnapshot) EvaluatedTables(ctx context.Context, id int64) ([]core.EvaluatedTable, error) {
	s.store.calls.Add(1)
	return s.Snapshot.EvaluatedTables(ctx, id)
}

func (s *spySnapshot) DerivedRows(ctx context.Context, id int64) ([]core.DerivedRow, error) {
	s.store.calls.Add(1)
	return s.Snapshot.DerivedRows(ctx, id)
}

func (s *spySnapshot) EvaluatedFunctions(ctx context.Context, id int64) ([]core.EvaluatedFunction, error) {
	s.store.calls.Add(1)
	return s.Snapshot.EvaluatedFunctions(ctx, id)
}

func (s *spySnapshot) References(ctx context.Context, kind core.RefKind, trailID int64, sourceIDs []int64) ([]core.ReferenceEdge, error) {
	s.store.calls.Add(1)
	edges, err := s.Snapshot.References(ctx, kind, trailID, sourceIDs)
	if err != nil {
		return nil, err
	}
	return append(edges, s.store.extra[kind]...), nil
}

func TestAssembleCompleteLineage_QueryCountIndependentOfSize(t *testing.T) {
	base := setup(t)
	calls := &atomic.Int64{}
	f := newFixture(t, spyStore{Store: base.store, calls: calls})
	ctx := context.Background()

	small := f.record(t, "small")

	large := f.record(t, "large")
	for i := 2; i <= 25; i++ {
		row, err := f.recorder.RecordRow(ctx, large.table, fmt.Sprint(i))
		require.NoError(t, err)
		_, err = f.recorder.RecordColumnValue(ctx, row, testutil.FieldF1, core.NumberPayload(float64(i)))
		require.NoError(t, err)
		_, err = f.recorder.RecordColumnValue(ctx, row, testutil.FieldF2, core.TextPayload("x"))
		require.NoError(t, err)
	}

	_, err := f.engine.AssembleCompleteLineage(ctx, small.trail.ID)
	require.NoError(t, err)
	smallCalls := calls.Swap(0)

	g, err := f.engine.AssembleCompleteLineage(ctx, large.trail.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, g.Metadata.TotalCounts.DatabaseRows)

	assert.Equal(t, int64(12), smallCalls)
	assert.Equal(t, smallCalls, calls.Load())
}

func TestAssembleCompleteLineage_ReportsInjectedCycle(t *testing.T) {
	base := setup(t)
	s := base.record(t, "T1")
	ctx := context.Background()

	other, err := base.recorder.RecordDerivedRow(ctx, s.evalTab, "2")
	require.NoError(t, err)
	_, err = base.recorder.RecordRowSourceRef(ctx, other, core.ObjectDerivedRow, s.drow)
	require.NoError(t, err)

	// the store refuses to close the loop, so splice it in at read time
	f := newFixture(t, spyStore{
		Store: base.store,
		calls: &atomic.Int64{},
		extra: map[core.RefKind][]core.ReferenceEdge{
			core.RefRowSource: {{
				ID: 9000, Kind: core.RefRowSource, SourceID: s.drow,
				TargetType: core.ObjectDerivedRow, TargetID: other,
			}},
		},
	})

	g, err := f.engine.AssembleCompleteLineage(ctx, s.trail.ID)
	require.NoError(t, err)

	var cycles []Warning
	for _, w := range g.Metadata.Warnings {
		if w.Kind == WarningCycle {
			cycles = append(cycles, w)
		}
	}
	require.Len(t, cycles, 1)
	assert.Len(t, cycles[0].Path, 3)

	trace, err := f.engine.Trace(ctx, s.trail.ID, core.ObjectDerivedRow, s.drow, TraceOptions{Upstream: true, Downstream: true})
	require.NoError(t, err)
	assert.Len(t, trace.Warnings, 1)
}

func TestTrace(t *testing.T) {
	f := setup(t)
	s := f.record(t, "T1")
	ctx := context.Background()

	// DD2.h1 computed from DD1.fn1
	dd2, err := f.recorder.RecordEvaluatedTable(ctx, s.trail.ID, testutil.DerivedDD2)
	require.NoError(t, err)
	drow2, err := f.recorder.RecordDerivedRow(ctx, dd2, "1")
	require.NoError(t, err)
	h1, err := f.recorder.RecordEvaluatedFunction(ctx, drow2, testutil.FunctionH1, core.NumberPayload(21))
	require.NoError(t, err)
	_, err = f.recorder.RecordValueSourceRef(ctx, h1, core.ObjectEvaluatedFunction, s.function)
	require.NoError(t, err)

	t.Run("upstream", func(t *testing.T) {
		trace, err := f.engine.Trace(ctx, s.trail.ID, core.ObjectEvaluatedFunction, h1, TraceOptions{Upstream: true})
		require.NoError(t, err)
		assert.Equal(t, "h1", trace.Object.Label)
		assert.Equal(t, []ObjectRef{
			{Type: core.ObjectDatabaseColumnValue, ID: s.value, Label: "F1"},
			{Type: core.ObjectEvaluatedFunction, ID: s.function, Label: "fn1", Direct: true},
		}, trace.Upstream)
		assert.Nil(t, trace.Downstream)
	})

	t.Run("downstream", func(t *testing.T) {
		trace, err := f.engine.Trace(ctx, s.trail.ID, core.ObjectDatabaseColumnValue, s.value, TraceOptions{Downstream: true})
		require.NoError(t, err)
		assert.Equal(t, "F1", trace.Object.Label)
		assert.Equal(t, []ObjectRef{
			{Type: core.ObjectEvaluatedFunction, ID: s.function, Label: "fn1", Direct: true},
			{Type: core.ObjectEvaluatedFunction, ID: h1, Label: "h1"},
		}, trace.Downstream)
		assert.Nil(t, trace.Upstream)
	})

	t.Run("both directions", func(t *testing.T) {
		trace, err := f.engine.Trace(ctx, s.trail.ID, core.ObjectEvaluatedFunction, s.function, TraceOptions{Upstream: true, Downstream: true})
		require.NoError(t, err)
		assert.Equal(t, []ObjectRef{{Type: core.ObjectDatabaseColumnValue, ID: s.value, Label: "F1", Direct: true}}, trace.Upstream)
		assert.Equal(t, []ObjectRef{{Type: core.ObjectEvaluatedFunction, ID: h1, Label: "h1", Direct: true}}, trace.Downstream)
	})

	t.Run("leaf has empty lists", func(t *testing.T) {
		trace, err := f.engine.Trace(ctx, s.trail.ID, core.ObjectEvaluatedFunction, h1, TraceOptions{Downstream: true})
		require.NoError(t, err)
		assert.NotNil(t, trace.Downstream)
		assert.Empty(t, trace.Downstream)
	})

	_, err = f.engine.Trace(ctx, s.trail.ID, core.ObjectDatabaseField, testutil.FieldF1, TraceOptions{Upstream: true})
	assert.ErrorIs(t, err, core.ErrInvalidReferenceType)

	_, err = f.engine.Trace(ctx, s.trail.ID, core.ObjectDerivedRow, 4242, TraceOptions{Upstream: true})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestRecorder_Idempotent(t *testing.T) {
	f := setup(t)
	s := f.record(t, "T1")
	ctx := context.Background()

	table, err := f.recorder.RecordPopulatedTable(ctx, s.trail.ID, testutil.TableDT1)
	require.NoError(t, err)
	assert.Equal(t, s.table, table)

	row, err := f.recorder.RecordRow(ctx, s.table, "1")
	require.NoError(t, err)
	assert.Equal(t, s.row, row)

	value, err := f.recorder.RecordColumnValue(ctx, s.row, testutil.FieldF1, core.NumberPayload(10))
	require.NoError(t, err)
	assert.Equal(t, s.value, value)

	_, err = f.recorder.RecordColumnValue(ctx, s.row, testutil.FieldF1, core.NumberPayload(11))
	assert.ErrorIs(t, err, core.ErrConflict)

	sum, err := f.engine.Summarize(ctx, s.trail.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ColumnValues)
}

func TestRecorder_Validation(t *testing.T) {
	f := setup(t)
	s := f.record(t, "T1")
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "unknown database table",
			call: func() error {
				_, err := f.recorder.RecordPopulatedTable(ctx, s.trail.ID, 99)
				return err
			},
			want: core.ErrUnknownTable,
		},
		{
			name: "derived id used as database table",
			call: func() error {
				_, err := f.recorder.RecordPopulatedTable(ctx, s.trail.ID, testutil.DerivedDD1)
				return err
			},
			want: core.ErrUnknownTable,
		},
		{
			name: "unknown derived table",
			call: func() error {
				_, err := f.recorder.RecordEvaluatedTable(ctx, s.trail.ID, testutil.TableDT1)
				return err
			},
			want: core.ErrUnknownTable,
		},
		{
			name: "populated table for unknown trail",
			call: func() error {
				_, err := f.recorder.RecordPopulatedTable(ctx, 999, testutil.TableDT1)
				return err
			},
			want: core.ErrNotFound,
		},
		{
			name: "field of another table",
			call: func() error {
				_, err := f.recorder.RecordColumnValue(ctx, s.row, testutil.FieldG1, core.NumberPayload(1))
				return err
			},
			want: core.ErrUnknownColumn,
		},
		{
			name: "both payload fields",
			call: func() error {
				p := core.NumberPayload(1)
				p.Text = core.TextPayload("x").Text
				_, err := f.recorder.RecordColumnValue(ctx, s.row, testutil.FieldF2, p)
				return err
			},
			want: core.ErrInvalidValue,
		},
		{
			name: "no payload",
			call: func() error {
				_, err := f.recorder.RecordEvaluatedFunction(ctx, s.drow, testutil.FunctionFn2, core.Payload{})
				return err
			},
			want: core.ErrInvalidValue,
		},
		{
			name: "function of another derived table",
			call: func() error {
				_, err := f.recorder.RecordEvaluatedFunction(ctx, s.drow, testutil.FunctionH1, core.NumberPayload(1))
				return err
			},
			want: core.ErrUnknownFunction,
		},
		{
			name: "value for unknown row",
			call: func() error {
				_, err := f.recorder.RecordColumnValue(ctx, 4242, testutil.FieldF1, core.NumberPayload(1))
				return err
			},
			want: core.ErrNotFound,
		},
		{
			name: "row edge to a field",
			call: func() error {
				_, err := f.recorder.RecordRowSourceRef(ctx, s.drow, core.ObjectDatabaseField, testutil.FieldF1)
				return err
			},
			want: core.ErrInvalidReferenceType,
		},
		{
			name: "unknown target tag",
			call: func() error {
				_, err := f.recorder.RecordValueSourceRef(ctx, s.function, "spreadsheet", 1)
				return err
			},
			want: core.ErrInvalidReferenceType,
		},
		{
			name: "function column edge from unknown function",
			call: func() error {
				_, err := f.recorder.RecordFunctionColumnRef(ctx, 99, core.ObjectDatabaseField, testutil.FieldF1)
				return err
			},
			want: core.ErrUnknownFunction,
		},
		{
			name: "table source edge to unknown table",
			call: func() error {
				_, err := f.recorder.RecordTableSourceRef(ctx, testutil.DerivedDD1, core.ObjectDatabaseTable, 99)
				return err
			},
			want: core.ErrUnknownTable,
		},
		{
			name: "self reference",
			call: func() error {
				_, err := f.recorder.RecordRowSourceRef(ctx, s.drow, core.ObjectDerivedRow, s.drow)
				return err
			},
			want: core.ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRecorder_TargetTagIsCaseInsensitive(t *testing.T) {
	f := setup(t)
	s := f.record(t, "T1")

	_, err := f.recorder.RecordValueSourceRef(context.Background(), s.function, "DatabaseColumnValue", s.value)
	require.NoError(t, err)
}

func TestRecorder_UniqueNames(t *testing.T) {
	f := setup(t)
	rec, err := NewRecorder(RecorderConfig{Store: f.store, Schema: testutil.NewSchema(t), UniqueNames: true})
	require.NoError(t, err)

	_, err = rec.CreateTrail(context.Background(), "nightly", nil)
	require.NoError(t, err)
	_, err = rec.CreateTrail(context.Background(), "nightly", nil)
	assert.ErrorIs(t, err, core.ErrDuplicateName)
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	assert.Error(t, err)

	_, err = NewRecorder(RecorderConfig{})
	assert.Error(t, err)
}

// Package lineage records and assembles trail lineage.
//
// A Recorder is the producer side: a pipeline executor calls it once per
// step to record populated tables, rows, values and the reference edges
// between derived artifacts and their sources. Every call is validated
// against the schema registry before it reaches the store.
//
// An Engine is the query side. It assembles the complete provenance graph
// of one trail from a consistent store snapshot, traces one row or value
// upstream to its sources or downstream to its dependents, or summarizes a
// trail with count-only queries.
//
// # Assembly
//
// AssembleCompleteLineage loads each level of the graph with a single batch
// query (tables, rows and values on both the database and the derived side,
// then one query per reference kind) and joins them in memory. The number of
// storage calls is fixed and does not grow with the size of the trail.
//
// Edges keep their polymorphic target verbatim. Targets that cannot be
// resolved within the response are reported as dangling_reference warnings
// in the result metadata rather than failing the assembly, and cycles among
// row or value edges are reported as cycle warnings.
//
// # Basic Usage
//
//	rec, _ := lineage.NewRecorder(lineage.RecorderConfig{Store: store, Schema: registry})
//	trail, _ := rec.CreateTrail(ctx, "nightly", nil)
//	table, _ := rec.RecordPopulatedTable(ctx, trail.ID, 1)
//	row, _ := rec.RecordRow(ctx, table, "1")
//	_, _ = rec.RecordColumnValue(ctx, row, 11, core.NumberPayload(42))
//
//	eng, _ := lineage.NewEngine(lineage.EngineConfig{Store: store, Schema: registry})
//	graph, err := eng.AssembleCompleteLineage(ctx, trail.ID)
package lineage

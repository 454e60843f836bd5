package core

import "context"

// TrailStore persists trails.
type TrailStore interface {
	CreateTrail(ctx context.Context, t NewTrail) (*Trail, error)
	GetTrail(ctx context.Context, id int64) (*Trail, error)
	ListTrails(ctx context.Context, page Page) ([]Trail, error)
	// DeleteTrail removes the trail and cascades to everything recorded
	// under it, including reference edges that touch its instances.
	DeleteTrail(ctx context.Context, id int64) error
}

// InstanceStore is the write side for materialized tables, rows and
// values. Every Record call is idempotent on its natural key and returns
// the ID of the stored record.
type InstanceStore interface {
	RecordPopulatedTable(ctx context.Context, t PopulatedTable) (int64, error)
	RecordDatabaseRow(ctx context.Context, r DatabaseRow) (int64, error)
	RecordColumnValue(ctx context.Context, v ColumnValue) (int64, error)
	RecordEvaluatedTable(ctx context.Context, t EvaluatedTable) (int64, error)
	RecordDerivedRow(ctx context.Context, r DerivedRow) (int64, error)
	RecordEvaluatedFunction(ctx context.Context, f EvaluatedFunction) (int64, error)

	// DatabaseRowTable returns the populated table owning a row.
	DatabaseRowTable(ctx context.Context, rowID int64) (*PopulatedTable, error)
	// DerivedRowTable returns the evaluated table owning a derived row.
	DerivedRowTable(ctx context.Context, rowID int64) (*EvaluatedTable, error)
}

// ReferenceLedger is the append-only edge store.
type ReferenceLedger interface {
	// RecordReference appends an edge. For instance-level kinds the store
	// checks that both endpoints exist and that the edge does not close a
	// cycle.
	RecordReference(ctx context.Context, e ReferenceEdge) (int64, error)
}

// Snapshot is a consistent read view used by the assembly engine. Each
// method is a single batch query covering one level of the graph.
type Snapshot interface {
	Trail(ctx context.Context, id int64) (*Trail, error)
	PopulatedTables(ctx context.Context, trailID int64) ([]PopulatedTable, error)
	DatabaseRows(ctx context.Context, trailID int64) ([]DatabaseRow, error)
	ColumnValues(ctx context.Context, trailID int64) ([]ColumnValue, error)
	EvaluatedTables(ctx context.Context, trailID int64) ([]EvaluatedTable, error)
	DerivedRows(ctx context.Context, trailID int64) ([]DerivedRow, error)
	EvaluatedFunctions(ctx context.Context, trailID int64) ([]EvaluatedFunction, error)
	// References loads edges of one kind. Instance-level kinds are scoped
	// by trail; schema-level kinds by the given source IDs.
	References(ctx context.Context, kind RefKind, trailID int64, sourceIDs []int64) ([]ReferenceEdge, error)
	Close() error
}

// Store is the full persistence surface of the lineage core.
type Store interface {
	TrailStore
	InstanceStore
	ReferenceLedger

	// Summarize computes trail counts with count-only queries.
	Summarize(ctx context.Context, trailID int64) (*TrailSummary, error)
	// Snapshot opens a read view.
	Snapshot(ctx context.Context) (Snapshot, error)
	Close() error
}

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// refTable maps an edge kind to its storage table.
type refTable struct {
	name         string
	sourceColumn string
	hasText      bool
}

var refTables = map[core.RefKind]refTable{
	core.RefFunctionColumn:      {name: "function_column_refs", sourceColumn: "function_id"},
	core.RefRowSource:           {name: "row_source_refs", sourceColumn: "derived_row_id"},
	core.RefValueSource:         {name: "value_source_refs", sourceColumn: "evaluated_function_id"},
	core.RefTableSource:         {name: "table_source_refs", sourceColumn: "derived_table_id"},
	core.RefTableCreationColumn: {name: "table_creation_column_refs", sourceColumn: "derived_table_id", hasText: true},
}

// ownerQueries resolve the trail owning an instance-level record.
var ownerQueries = map[core.ObjectType]string{
	core.ObjectDatabaseRow: `SELECT p.trail_id FROM database_rows r
		JOIN populated_tables p ON p.id = r.populated_table_id
		WHERE r.id = ?`,
	core.ObjectDerivedRow: `SELECT e.trail_id FROM derived_rows r
		JOIN evaluated_tables e ON e.id = r.evaluated_table_id
		WHERE r.id = ?`,
	core.ObjectDatabaseColumnValue: `SELECT p.trail_id FROM column_values v
		JOIN database_rows r ON r.id = v.row_id
		JOIN populated_tables p ON p.id = r.populated_table_id
		WHERE v.id = ?`,
	core.ObjectEvaluatedFunction: `SELECT e.trail_id FROM evaluated_functions f
		JOIN derived_rows r ON r.id = f.row_id
		JOIN evaluated_tables e ON e.id = r.evaluated_table_id
		WHERE f.id = ?`,
}

// reachable walks source edges upward from a start node and reports whether
// the goal node is among the transitive sources. UNION keeps the walk finite
// even if the stored graph already contains a cycle.
const reachableQuery = `
	WITH RECURSIVE upstream (object_type, object_id) AS (
		SELECT CAST(? AS TEXT), CAST(? AS BIGINT)
		UNION
		SELECT r.target_object_type, r.target_object_id
		FROM %[1]s r
		JOIN upstream u ON u.object_type = '%[3]s' AND r.%[2]s = u.object_id
	)
	SELECT 1 FROM upstream WHERE object_type = ? AND object_id = ? LIMIT 1`

// RecordReference appends an edge to the ledger. Duplicates are kept.
//
// For row and value edges both endpoints must exist in the same trail, and
// the edge must not make the source one of its own transitive sources; the
// checks and the insert share a transaction. Schema-level edges are stored
// as given.
func (s *Store) RecordReference(ctx context.Context, e core.ReferenceEdge) (int64, error) {
	rt, ok := refTables[e.Kind]
	if !ok {
		return 0, &core.InvalidReferenceTypeError{Kind: e.Kind, Type: string(e.TargetType)}
	}
	if err := e.Kind.CheckTarget(e.TargetType); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if e.Kind.InstanceLevel() {
		if err := s.checkInstanceEdge(ctx, tx, rt, e); err != nil {
			return 0, err
		}
	}

	columns := rt.sourceColumn + ", target_object_type, target_object_id"
	values := "?, ?, ?"
	args := []any{e.SourceID, string(e.TargetType), e.TargetID}
	if rt.hasText {
		columns += ", reference_text"
		values += ", ?"
		args = append(args, e.ReferenceText)
	}

	var id int64
	err = tx.QueryRowContext(ctx, s.q(
		"INSERT INTO "+rt.name+" ("+columns+") VALUES ("+values+") RETURNING id"),
		args...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to record %s reference: %w", e.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s reference: %w", e.Kind, err)
	}

	s.logger.Debug("reference recorded",
		slog.String("kind", string(e.Kind)),
		slog.Int64("id", id),
		slog.Int64("source_id", e.SourceID),
		slog.String("target_type", string(e.TargetType)),
		slog.Int64("target_id", e.TargetID))
	return id, nil
}

func (s *Store) checkInstanceEdge(ctx context.Context, tx *sql.Tx, rt refTable, e core.ReferenceEdge) error {
	sourceType := e.Kind.SourceType()
	sourceTrail, err := s.owningTrail(ctx, tx, sourceType, e.SourceID)
	if err != nil {
		return err
	}
	targetTrail, err := s.owningTrail(ctx, tx, e.TargetType, e.TargetID)
	if err != nil {
		return err
	}
	if sourceTrail != targetTrail {
		return &core.NotFoundError{Kind: string(e.TargetType), ID: e.TargetID, TrailID: sourceTrail}
	}

	if sourceType == e.TargetType && e.SourceID == e.TargetID {
		return &core.CycleError{Kind: e.Kind, SourceID: e.SourceID, TargetID: e.TargetID}
	}
	if e.TargetType != sourceType {
		// database rows and values have no sources of their own
		return nil
	}

	query := fmt.Sprintf(reachableQuery, rt.name, rt.sourceColumn, sourceType)
	var one int
	err = tx.QueryRowContext(ctx, s.q(query),
		string(e.TargetType), e.TargetID, string(sourceType), e.SourceID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check %s reference for cycles: %w", e.Kind, err)
	default:
		return &core.CycleError{Kind: e.Kind, SourceID: e.SourceID, TargetID: e.TargetID}
	}
}

func (s *Store) owningTrail(ctx context.Context, tx *sql.Tx, objectType core.ObjectType, id int64) (int64, error) {
	var trailID int64
	err := tx.QueryRowContext(ctx, s.q(ownerQueries[objectType]), id).Scan(&trailID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, &core.NotFoundError{Kind: string(objectType), ID: id}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve trail of %s %d: %w", objectType, id, err)
	}
	return trailID, nil
}

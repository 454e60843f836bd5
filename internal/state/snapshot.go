package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// Snapshot opens a read transaction. On PostgreSQL it is a repeatable-read,
// read-only transaction; on SQLite in WAL mode a deferred transaction sees
// the database as of its first read. Every loader below is one statement.
func (s *Store) Snapshot(ctx context.Context) (core.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.SnapshotOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	return &snapshot{store: s, tx: tx}, nil
}

type snapshot struct {
	store *Store
	tx    *sql.Tx
}

var _ core.Snapshot = (*snapshot)(nil)

func (sn *snapshot) Close() error {
	if err := sn.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (sn *snapshot) query(ctx context.Context, what, query string, args []any, scan func(*sql.Rows) error) error {
	rows, err := sn.tx.QueryContext(ctx, sn.store.q(query), args...)
	if err != nil {
		return fmt.Errorf("failed to batch get %s: %w", what, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan %s: %w", what, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to batch get %s: %w", what, err)
	}
	return nil
}

func (sn *snapshot) Trail(ctx context.Context, id int64) (*core.Trail, error) {
	return sn.store.getTrail(ctx, sn.tx, id)
}

func (sn *snapshot) PopulatedTables(ctx context.Context, trailID int64) ([]core.PopulatedTable, error) {
	var result []core.PopulatedTable
	err := sn.query(ctx, "populated tables",
		`SELECT id, table_id, table_name, trail_id FROM populated_tables WHERE trail_id = ? ORDER BY id`,
		[]any{trailID},
		func(rows *sql.Rows) error {
			var t core.PopulatedTable
			if err := rows.Scan(&t.ID, &t.TableID, &t.TableName, &t.TrailID); err != nil {
				return err
			}
			result = append(result, t)
			return nil
		})
	return result, err
}

func (sn *snapshot) DatabaseRows(ctx context.Context, trailID int64) ([]core.DatabaseRow, error) {
	var result []core.DatabaseRow
	err := sn.query(ctx, "database rows",
		`SELECT id, row_identifier, populated_table_id FROM database_rows
		 WHERE populated_table_id IN (`+populatedTableIDs+`) ORDER BY id`,
		[]any{trailID},
		func(rows *sql.Rows) error {
			var r core.DatabaseRow
			if err := rows.Scan(&r.ID, &r.RowIdentifier, &r.PopulatedTableID); err != nil {
				return err
			}
			result = append(result, r)
			return nil
		})
	return result, err
}

func (sn *snapshot) ColumnValues(ctx context.Context, trailID int64) ([]core.ColumnValue, error) {
	var result []core.ColumnValue
	err := sn.query(ctx, "column values",
		`SELECT id, value, string_value, column_id, column_name, row_id FROM column_values
		 WHERE row_id IN (`+databaseRowIDs+`) ORDER BY id`,
		[]any{trailID},
		func(rows *sql.Rows) error {
			var (
				v    core.ColumnValue
				num  sql.NullFloat64
				text sql.NullString
			)
			if err := rows.Scan(&v.ID, &num, &text, &v.ColumnID, &v.ColumnName, &v.RowID); err != nil {
				return err
			}
			v.Payload = scanPayload(num, text)
			result = append(result, v)
			return nil
		})
	return result, err
}

func (sn *snapshot) EvaluatedTables(ctx context.Context, trailID int64) ([]core.EvaluatedTable, error) {
	var result []core.EvaluatedTable
	err := sn.query(ctx, "evaluated tables",
		`SELECT id, table_id, table_name, trail_id FROM evaluated_tables WHERE trail_id = ? ORDER BY id`,
		[]any{trailID},
		func(rows *sql.Rows) error {
			var t core.EvaluatedTable
			if err := rows.Scan(&t.ID, &t.TableID, &t.TableName, &t.TrailID); err != nil {
				return err
			}
			result = append(result, t)
			return nil
		})
	return result, err
}

func (sn *snapshot) DerivedRows(ctx context.Context, trailID int64) ([]core.DerivedRow, error) {
	var result []core.DerivedRow
	err := sn.query(ctx, "derived rows",
		`SELECT id, row_identifier, evaluated_table_id FROM derived_rows
		 WHERE evaluated_table_id IN (`+evaluatedTableIDs+`) ORDER BY id`,
		[]any{trailID},
		func(rows *sql.Rows) error {
			var r core.DerivedRow
			if err := rows.Scan(&r.ID, &r.RowIdentifier, &r.PopulatedTableID); err != nil {
				return err
			}
			result = append(result, r)
			return nil
		})
	return result, err
}

func (sn *snapshot) EvaluatedFunctions(ctx context.Context, trailID int64) ([]core.EvaluatedFunction, error) {
	var result []core.EvaluatedFunction
	err := sn.query(ctx, "evaluated functions",
		`SELECT id, value, string_value, function_id, function_name, row_id FROM evaluated_functions
		 WHERE row_id IN (`+derivedRowIDs+`) ORDER BY id`,
		[]any{trailID},
		func(rows *sql.Rows) error {
			var (
				f    core.EvaluatedFunction
				num  sql.NullFloat64
				text sql.NullString
			)
			if err := rows.Scan(&f.ID, &num, &text, &f.FunctionID, &f.FunctionName, &f.RowID); err != nil {
				return err
			}
			f.Payload = scanPayload(num, text)
			result = append(result, f)
			return nil
		})
	return result, err
}

// References loads the edges of one kind. Row and value edges are scoped to
// sources recorded in the trail; schema-level edges to the given source IDs.
func (sn *snapshot) References(ctx context.Context, kind core.RefKind, trailID int64, sourceIDs []int64) ([]core.ReferenceEdge, error) {
	rt, ok := refTables[kind]
	if !ok {
		return nil, &core.InvalidReferenceTypeError{Kind: kind}
	}

	var (
		filter string
		args   []any
	)
	switch kind {
	case core.RefRowSource:
		filter = derivedRowIDs
		args = []any{trailID}
	case core.RefValueSource:
		filter = evaluatedFunctionIDs
		args = []any{trailID}
	default:
		if len(sourceIDs) == 0 {
			return nil, nil
		}
		filter = strings.TrimSuffix(strings.Repeat("?, ", len(sourceIDs)), ", ")
		args = make([]any, len(sourceIDs))
		for i, id := range sourceIDs {
			args[i] = id
		}
	}

	text := "''"
	if rt.hasText {
		text = "reference_text"
	}
	query := "SELECT id, " + rt.sourceColumn + ", target_object_type, target_object_id, " + text +
		" FROM " + rt.name + " WHERE " + rt.sourceColumn + " IN (" + filter + ") ORDER BY id"

	var result []core.ReferenceEdge
	err := sn.query(ctx, string(kind)+" references", query, args, func(rows *sql.Rows) error {
		e := core.ReferenceEdge{Kind: kind}
		var targetType string
		if err := rows.Scan(&e.ID, &e.SourceID, &targetType, &e.TargetID, &e.ReferenceText); err != nil {
			return err
		}
		e.TargetType = core.ObjectType(targetType)
		result = append(result, e)
		return nil
	})
	return result, err
}

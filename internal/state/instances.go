package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// insertOrLookup runs an INSERT ... ON CONFLICT DO NOTHING RETURNING id. When
// the natural key already exists the insert returns no row, and lookup is
// run to fetch the stored record instead. created reports which path won.
func (s *Store) insertOrLookup(ctx context.Context, insert string, insertArgs []any, lookup func() error) (id int64, created bool, err error) {
	err = s.db.QueryRowContext(ctx, s.q(insert), insertArgs...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}
	if err := lookup(); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

// RecordPopulatedTable records that a database table was populated in a
// trail. Repeated calls return the same ID.
func (s *Store) RecordPopulatedTable(ctx context.Context, t core.PopulatedTable) (int64, error) {
	if err := s.require(ctx, s.db, "trails", "trail", t.TrailID); err != nil {
		return 0, err
	}

	var existing int64
	id, created, err := s.insertOrLookup(ctx,
		`INSERT INTO populated_tables (trail_id, table_id, table_name) VALUES (?, ?, ?)
		 ON CONFLICT (trail_id, table_id) DO NOTHING RETURNING id`,
		[]any{t.TrailID, t.TableID, t.TableName},
		func() error {
			return s.db.QueryRowContext(ctx, s.q(
				`SELECT id FROM populated_tables WHERE trail_id = ? AND table_id = ?`),
				t.TrailID, t.TableID).Scan(&existing)
		})
	if err != nil {
		return 0, fmt.Errorf("failed to record populated table: %w", err)
	}
	if !created {
		return existing, nil
	}
	return id, nil
}

// RecordEvaluatedTable records that a derived table was evaluated in a
// trail. Repeated calls return the same ID.
func (s *Store) RecordEvaluatedTable(ctx context.Context, t core.EvaluatedTable) (int64, error) {
	if err := s.require(ctx, s.db, "trails", "trail", t.TrailID); err != nil {
		return 0, err
	}

	var existing int64
	id, created, err := s.insertOrLookup(ctx,
		`INSERT INTO evaluated_tables (trail_id, table_id, table_name) VALUES (?, ?, ?)
		 ON CONFLICT (trail_id, table_id) DO NOTHING RETURNING id`,
		[]any{t.TrailID, t.TableID, t.TableName},
		func() error {
			return s.db.QueryRowContext(ctx, s.q(
				`SELECT id FROM evaluated_tables WHERE trail_id = ? AND table_id = ?`),
				t.TrailID, t.TableID).Scan(&existing)
		})
	if err != nil {
		return 0, fmt.Errorf("failed to record evaluated table: %w", err)
	}
	if !created {
		return existing, nil
	}
	return id, nil
}

// RecordDatabaseRow records a row of a populated table, keyed by its row
// identifier.
func (s *Store) RecordDatabaseRow(ctx context.Context, r core.DatabaseRow) (int64, error) {
	if err := s.require(ctx, s.db, "populated_tables", "populated table", r.PopulatedTableID); err != nil {
		return 0, err
	}

	var existing int64
	id, created, err := s.insertOrLookup(ctx,
		`INSERT INTO database_rows (populated_table_id, row_identifier) VALUES (?, ?)
		 ON CONFLICT (populated_table_id, row_identifier) DO NOTHING RETURNING id`,
		[]any{r.PopulatedTableID, r.RowIdentifier},
		func() error {
			return s.db.QueryRowContext(ctx, s.q(
				`SELECT id FROM database_rows WHERE populated_table_id = ? AND row_identifier = ?`),
				r.PopulatedTableID, r.RowIdentifier).Scan(&existing)
		})
	if err != nil {
		return 0, fmt.Errorf("failed to record database row: %w", err)
	}
	if !created {
		return existing, nil
	}
	return id, nil
}

// RecordDerivedRow records a row of an evaluated table.
func (s *Store) RecordDerivedRow(ctx context.Context, r core.DerivedRow) (int64, error) {
	if err := s.require(ctx, s.db, "evaluated_tables", "evaluated table", r.PopulatedTableID); err != nil {
		return 0, err
	}

	var existing int64
	id, created, err := s.insertOrLookup(ctx,
		`INSERT INTO derived_rows (evaluated_table_id, row_identifier) VALUES (?, ?)
		 ON CONFLICT (evaluated_table_id, row_identifier) DO NOTHING RETURNING id`,
		[]any{r.PopulatedTableID, r.RowIdentifier},
		func() error {
			return s.db.QueryRowContext(ctx, s.q(
				`SELECT id FROM derived_rows WHERE evaluated_table_id = ? AND row_identifier = ?`),
				r.PopulatedTableID, r.RowIdentifier).Scan(&existing)
		})
	if err != nil {
		return 0, fmt.Errorf("failed to record derived row: %w", err)
	}
	if !created {
		return existing, nil
	}
	return id, nil
}

// RecordColumnValue records the value of one field in a row. Re-recording
// the same field with an equal payload returns the existing ID; a different
// payload is a ConflictError.
func (s *Store) RecordColumnValue(ctx context.Context, v core.ColumnValue) (int64, error) {
	if err := v.Payload.Validate(); err != nil {
		return 0, err
	}
	if err := s.require(ctx, s.db, "database_rows", "database row", v.RowID); err != nil {
		return 0, err
	}

	num, text := payloadArgs(v.Payload)
	var (
		existing     int64
		existingNum  sql.NullFloat64
		existingText sql.NullString
	)
	id, created, err := s.insertOrLookup(ctx,
		`INSERT INTO column_values (row_id, column_id, column_name, value, string_value) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (row_id, column_id) DO NOTHING RETURNING id`,
		[]any{v.RowID, v.ColumnID, v.ColumnName, num, text},
		func() error {
			return s.db.QueryRowContext(ctx, s.q(
				`SELECT id, value, string_value FROM column_values WHERE row_id = ? AND column_id = ?`),
				v.RowID, v.ColumnID).Scan(&existing, &existingNum, &existingText)
		})
	if err != nil {
		return 0, fmt.Errorf("failed to record column value: %w", err)
	}
	if created {
		return id, nil
	}

	if !scanPayload(existingNum, existingText).Equal(v.Payload) {
		return 0, &core.ConflictError{
			Kind:       "column value",
			ExistingID: existing,
			Key:        "(row " + strconv.FormatInt(v.RowID, 10) + ", column " + strconv.FormatInt(v.ColumnID, 10) + ")",
		}
	}
	return existing, nil
}

// RecordEvaluatedFunction records the result of a derived function in a
// derived row, with the same idempotency rules as RecordColumnValue.
func (s *Store) RecordEvaluatedFunction(ctx context.Context, f core.EvaluatedFunction) (int64, error) {
	if err := f.Payload.Validate(); err != nil {
		return 0, err
	}
	if err := s.require(ctx, s.db, "derived_rows", "derived row", f.RowID); err != nil {
		return 0, err
	}

	num, text := payloadArgs(f.Payload)
	var (
		existing     int64
		existingNum  sql.NullFloat64
		existingText sql.NullString
	)
	id, created, err := s.insertOrLookup(ctx,
		`INSERT INTO evaluated_functions (row_id, function_id, function_name, value, string_value) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (row_id, function_id) DO NOTHING RETURNING id`,
		[]any{f.RowID, f.FunctionID, f.FunctionName, num, text},
		func() error {
			return s.db.QueryRowContext(ctx, s.q(
				`SELECT id, value, string_value FROM evaluated_functions WHERE row_id = ? AND function_id = ?`),
				f.RowID, f.FunctionID).Scan(&existing, &existingNum, &existingText)
		})
	if err != nil {
		return 0, fmt.Errorf("failed to record evaluated function: %w", err)
	}
	if created {
		return id, nil
	}

	if !scanPayload(existingNum, existingText).Equal(f.Payload) {
		return 0, &core.ConflictError{
			Kind:       "evaluated function",
			ExistingID: existing,
			Key:        "(row " + strconv.FormatInt(f.RowID, 10) + ", function " + strconv.FormatInt(f.FunctionID, 10) + ")",
		}
	}
	return existing, nil
}

// DatabaseRowTable returns the populated table that owns a row.
func (s *Store) DatabaseRowTable(ctx context.Context, rowID int64) (*core.PopulatedTable, error) {
	var t core.PopulatedTable
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT p.id, p.table_id, p.table_name, p.trail_id
		FROM database_rows r JOIN populated_tables p ON p.id = r.populated_table_id
		WHERE r.id = ?`), rowID).Scan(&t.ID, &t.TableID, &t.TableName, &t.TrailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "database row", ID: rowID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table of database row: %w", err)
	}
	return &t, nil
}

// DerivedRowTable returns the evaluated table that owns a derived row.
func (s *Store) DerivedRowTable(ctx context.Context, rowID int64) (*core.EvaluatedTable, error) {
	var t core.EvaluatedTable
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT e.id, e.table_id, e.table_name, e.trail_id
		FROM derived_rows r JOIN evaluated_tables e ON e.id = r.evaluated_table_id
		WHERE r.id = ?`), rowID).Scan(&t.ID, &t.TableID, &t.TableName, &t.TrailID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "derived row", ID: rowID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table of derived row: %w", err)
	}
	return &t, nil
}

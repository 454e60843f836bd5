package state

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewWithDB(db, driver, nil)
	require.NoError(t, err)
	return store, mock
}

func TestDialect_Rebind(t *testing.T) {
	pg, ok := GetDialect("postgres")
	require.True(t, ok)
	lite, ok := GetDialect("sqlite")
	require.True(t, ok)

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "no placeholders",
			query: "SELECT 1",
			want:  "SELECT 1",
		},
		{
			name:  "numbered in order",
			query: "SELECT id FROM trails WHERE id = ? AND name = ?",
			want:  "SELECT id FROM trails WHERE id = $1 AND name = $2",
		},
		{
			name:  "quoted question mark untouched",
			query: "SELECT '?' FROM t WHERE a = ?",
			want:  "SELECT '?' FROM t WHERE a = $1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pg.Rebind(tt.query))
			assert.Equal(t, tt.query, lite.Rebind(tt.query))
		})
	}
}

func TestPostgresConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   PostgresConfig
		expected string
	}{
		{
			name:     "basic connection",
			config:   PostgresConfig{Host: "localhost", Port: 5432, Database: "lineage", User: "user", Password: "pass"},
			expected: "host=localhost port=5432 dbname=lineage sslmode=disable user=user password=pass",
		},
		{
			name:     "with custom sslmode",
			config:   PostgresConfig{Host: "prod.example.com", Database: "lineage", User: "admin", SSLMode: "require"},
			expected: "host=prod.example.com port=5432 dbname=lineage sslmode=require user=admin",
		},
		{
			name:     "defaults",
			config:   PostgresConfig{Database: "lineage"},
			expected: "host=localhost port=5432 dbname=lineage sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:?_pragma=foreign_keys(1)", SQLiteDSN(":memory:"))
	assert.Contains(t, SQLiteDSN("/tmp/x.db"), "_pragma=journal_mode(WAL)")
	assert.Contains(t, SQLiteDSN("/tmp/x.db"), "_txlock=immediate")
}

func TestCreateTrail_PostgresLocksName(t *testing.T) {
	store, mock := newMockStore(t, "postgres")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("nightly").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE NOT EXISTS (SELECT 1 FROM trails WHERE name = $4)")).
		WithArgs("nightly", sqlmock.AnyArg(), "{}", "nightly").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.CreateTrail(ctx, core.NewTrail{Name: "nightly", UniqueName: true})
	var dup *core.DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "nightly", dup.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Every snapshot loader must be a single statement keyed by the trail, no
// matter how many tables or rows the trail holds.
func TestSnapshot_OneStatementPerLevel(t *testing.T) {
	store, mock := newMockStore(t, "postgres")
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM populated_tables WHERE trail_id = $1 ORDER BY id")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "table_id", "table_name", "trail_id"}).
			AddRow(1, 1, "DT1", 7).
			AddRow(2, 3, "DT2", 7))
	mock.ExpectQuery(regexp.QuoteMeta("FROM database_rows")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "row_identifier", "populated_table_id"}).
			AddRow(10, "1", 1).
			AddRow(11, "2", 1).
			AddRow(12, "1", 2))
	mock.ExpectQuery(regexp.QuoteMeta("FROM column_values")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "value", "string_value", "column_id", "column_name", "row_id"}).
			AddRow(100, 42.0, nil, 11, "F1", 10).
			AddRow(101, nil, "x", 12, "F2", 10))
	mock.ExpectQuery(regexp.QuoteMeta("FROM function_column_refs WHERE function_id IN ($1, $2, $3)")).
		WithArgs(int64(21), int64(22), int64(41)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "function_id", "target_object_type", "target_object_id", "''"}).
			AddRow(1, 21, "databasefield", 11, ""))
	mock.ExpectRollback()

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	tables, err := snap.PopulatedTables(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, tables, 2)

	rows, err := snap.DatabaseRows(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	values, err := snap.ColumnValues(ctx, 7)
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.NoError(t, values[0].Payload.Validate())
	assert.NoError(t, values[1].Payload.Validate())
	assert.Equal(t, "x", *values[1].Payload.Text)

	edges, err := snap.References(ctx, core.RefFunctionColumn, 7, []int64{21, 22, 41})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, core.ObjectDatabaseField, edges[0].TargetType)

	require.NoError(t, snap.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Summarize_SingleStatement(t *testing.T) {
	store, mock := newMockStore(t, "postgres")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM trails WHERE id = $1")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("(SELECT COUNT(*) FROM populated_tables WHERE trail_id = $1)")).
		WithArgs(int64(3), int64(3), int64(3), int64(3), int64(3), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"a", "b", "c", "d", "e", "f"}).AddRow(2, 1, 5, 3, 10, 6))

	sum, err := store.Summarize(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 8, sum.TotalRows)
	assert.True(t, sum.HasLineageData)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ErrorsAreWrapped(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, created_at, execution_context FROM trails")).
		WillReturnError(sql.ErrConnDone)

	_, err := store.GetTrail(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Contains(t, err.Error(), "failed to get trail")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM trails WHERE id = ?")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	_, err = store.Summarize(context.Background(), 5)
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "trail", nf.Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Package state persists trails, their recorded instances and the reference
// ledger in a SQL database. SQLite (modernc) and PostgreSQL (pgx) are
// supported through database/sql; the schema is managed with goose.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// timeLayout stores timestamps as sortable UTC text in every dialect.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Config selects the backend for Open.
type Config struct {
	Driver string
	DSN    string
	Logger *slog.Logger
}

// Store implements core.Store on top of database/sql.
type Store struct {
	db      *sql.DB
	dialect *Dialect
	logger  *slog.Logger
}

var _ core.Store = (*Store)(nil)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the configured database and verifies the connection.
// Migrations are not applied; call Migrate.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("store driver not specified")
	}
	d, ok := GetDialect(cfg.Driver)
	if !ok {
		return nil, &UnknownDriverError{Driver: cfg.Driver, Available: ListDrivers()}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger.Debug("opening store", slog.String("driver", d.Name))

	db, err := sql.Open(d.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}
	if d.Configure != nil {
		d.Configure(db, cfg.DSN)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.Name, err)
	}

	return &Store{db: db, dialect: d, logger: logger}, nil
}

// NewWithDB wraps an existing connection. Useful for tests or when the
// connection is managed elsewhere.
func NewWithDB(db *sql.DB, driver string, logger *slog.Logger) (*Store, error) {
	d, ok := GetDialect(driver)
	if !ok {
		return nil, &UnknownDriverError{Driver: driver, Available: ListDrivers()}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, dialect: d, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Dialect returns the active dialect.
func (s *Store) Dialect() *Dialect {
	return s.dialect
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// exists looks up a row by primary key.
func (s *Store) exists(ctx context.Context, db querier, table string, id int64) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, s.q("SELECT 1 FROM "+table+" WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", table, err)
	}
	return true, nil
}

// require returns a NotFoundError when the row is absent.
func (s *Store) require(ctx context.Context, db querier, table, kind string, id int64) error {
	ok, err := s.exists(ctx, db, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return &core.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func scanPayload(num sql.NullFloat64, text sql.NullString) core.Payload {
	var p core.Payload
	if num.Valid {
		v := num.Float64
		p.Number = &v
	}
	if text.Valid {
		v := text.String
		p.Text = &v
	}
	return p
}

func payloadArgs(p core.Payload) (any, any) {
	var num, text any
	if p.Number != nil {
		num = *p.Number
	}
	if p.Text != nil {
		text = *p.Text
	}
	return num, text
}

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// generateTrailName returns the name given to trails created without one.
func generateTrailName() string {
	return "trail-" + uuid.New().String()
}

// CreateTrail inserts a new trail. An empty name is replaced with a
// generated one. With UniqueName set, the insert is skipped when the name
// is taken and a DuplicateNameError is returned; concurrent creates of one
// name are serialized, so exactly one of them succeeds.
func (s *Store) CreateTrail(ctx context.Context, nt core.NewTrail) (*core.Trail, error) {
	trail := &core.Trail{
		Name:             nt.Name,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
		ExecutionContext: nt.ExecutionContext,
	}
	if trail.Name == "" {
		trail.Name = generateTrailName()
	}
	if trail.ExecutionContext == nil {
		trail.ExecutionContext = map[string]any{}
	}

	execCtx, err := json.Marshal(trail.ExecutionContext)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution context: %w", err)
	}

	if nt.UniqueName {
		err = s.createUniqueTrail(ctx, trail, string(execCtx))
		var dup *core.DuplicateNameError
		if errors.As(err, &dup) {
			return nil, err
		}
	} else {
		err = s.db.QueryRowContext(ctx, s.q(`
			INSERT INTO trails (name, created_at, execution_context)
			VALUES (?, ?, ?)
			RETURNING id`),
			trail.Name, formatTime(trail.CreatedAt), string(execCtx),
		).Scan(&trail.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trail: %w", err)
	}

	s.logger.Debug("trail created", slog.Int64("trail_id", trail.ID), slog.String("name", trail.Name))
	return trail, nil
}

// createUniqueTrail checks and claims the name in one write transaction.
// On sqlite the transaction holds the database write lock from its first
// statement; other dialects take NameLock first.
func (s *Store) createUniqueTrail(ctx context.Context, trail *core.Trail, execCtx string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.dialect.NameLock != "" {
		if _, err := tx.ExecContext(ctx, s.q(s.dialect.NameLock), trail.Name); err != nil {
			return fmt.Errorf("failed to lock trail name: %w", err)
		}
	}

	err = tx.QueryRowContext(ctx, s.q(`
		INSERT INTO trails (name, created_at, execution_context)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM trails WHERE name = ?)
		RETURNING id`),
		trail.Name, formatTime(trail.CreatedAt), execCtx, trail.Name,
	).Scan(&trail.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return &core.DuplicateNameError{Name: trail.Name}
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetTrail retrieves a trail by ID.
func (s *Store) GetTrail(ctx context.Context, id int64) (*core.Trail, error) {
	return s.getTrail(ctx, s.db, id)
}

func (s *Store) getTrail(ctx context.Context, db querier, id int64) (*core.Trail, error) {
	row := db.QueryRowContext(ctx, s.q(
		`SELECT id, name, created_at, execution_context FROM trails WHERE id = ?`), id)

	trail, err := scanTrail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.NotFoundError{Kind: "trail", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trail: %w", err)
	}
	return trail, nil
}

// ListTrails returns trails newest first.
func (s *Store) ListTrails(ctx context.Context, page core.Page) ([]core.Trail, error) {
	page = page.Normalize()

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, name, created_at, execution_context
		FROM trails
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`), page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list trails: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var trails []core.Trail
	for rows.Next() {
		trail, err := scanTrail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trail: %w", err)
		}
		trails = append(trails, *trail)
	}
	return trails, rows.Err()
}

// DeleteTrail removes a trail with everything recorded under it. Row and
// value edges never cross trails, so only the trail's own lineage changes.
// Edges are removed by target as well as by source, since the polymorphic
// target column carries no foreign key.
func (s *Store) DeleteTrail(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.require(ctx, tx, "trails", "trail", id); err != nil {
		return err
	}

	targets := []struct {
		table      string
		objectType core.ObjectType
		ids        string
	}{
		{"row_source_refs", core.ObjectDatabaseRow, databaseRowIDs},
		{"row_source_refs", core.ObjectDerivedRow, derivedRowIDs},
		{"value_source_refs", core.ObjectDatabaseColumnValue, columnValueIDs},
		{"value_source_refs", core.ObjectEvaluatedFunction, evaluatedFunctionIDs},
	}
	for _, t := range targets {
		query := "DELETE FROM " + t.table + " WHERE target_object_type = ? AND target_object_id IN (" + t.ids + ")"
		if _, err := tx.ExecContext(ctx, s.q(query), string(t.objectType), id); err != nil {
			return fmt.Errorf("failed to delete %s edges: %w", t.objectType, err)
		}
	}

	// tables, rows, values and the edges they own cascade
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM trails WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete trail: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trail deletion: %w", err)
	}

	s.logger.Debug("trail deleted", slog.Int64("trail_id", id))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrail(row rowScanner) (*core.Trail, error) {
	var (
		trail     core.Trail
		createdAt string
		execCtx   string
	)
	if err := row.Scan(&trail.ID, &trail.Name, &createdAt, &execCtx); err != nil {
		return nil, err
	}

	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	trail.CreatedAt = t

	trail.ExecutionContext = map[string]any{}
	if execCtx != "" {
		if err := json.Unmarshal([]byte(execCtx), &trail.ExecutionContext); err != nil {
			return nil, fmt.Errorf("invalid execution context: %w", err)
		}
	}
	return &trail, nil
}

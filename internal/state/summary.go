package state

import (
	"context"
	"fmt"

	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// Summarize counts a trail's instances without materializing them. Each
// level is one scalar subquery of a single statement.
func (s *Store) Summarize(ctx context.Context, trailID int64) (*core.TrailSummary, error) {
	if err := s.require(ctx, s.db, "trails", "trail", trailID); err != nil {
		return nil, err
	}

	var sum core.TrailSummary
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT
			(SELECT COUNT(*) FROM populated_tables WHERE trail_id = ?),
			(SELECT COUNT(*) FROM evaluated_tables WHERE trail_id = ?),
			(SELECT COUNT(*) FROM (`+databaseRowIDs+`) dr),
			(SELECT COUNT(*) FROM (`+derivedRowIDs+`) vr),
			(SELECT COUNT(*) FROM (`+columnValueIDs+`) cv),
			(SELECT COUNT(*) FROM (`+evaluatedFunctionIDs+`) ef)`),
		trailID, trailID, trailID, trailID, trailID, trailID,
	).Scan(&sum.DatabaseTables, &sum.DerivedTables, &sum.DatabaseRows, &sum.DerivedRows,
		&sum.ColumnValues, &sum.EvaluatedFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize trail %d: %w", trailID, err)
	}

	sum = sum.Finalize()
	return &sum, nil
}

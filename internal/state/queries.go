package state

// Subqueries selecting the IDs of a trail's instances. Each takes the trail
// ID as its only parameter and is used inside IN (...) filters, so every
// level of a trail is loaded or counted with one statement.
const (
	populatedTableIDs = `SELECT id FROM populated_tables WHERE trail_id = ?`

	evaluatedTableIDs = `SELECT id FROM evaluated_tables WHERE trail_id = ?`

	databaseRowIDs = `SELECT r.id FROM database_rows r
		JOIN populated_tables p ON p.id = r.populated_table_id
		WHERE p.trail_id = ?`

	derivedRowIDs = `SELECT r.id FROM derived_rows r
		JOIN evaluated_tables e ON e.id = r.evaluated_table_id
		WHERE e.trail_id = ?`

	columnValueIDs = `SELECT v.id FROM column_values v
		JOIN database_rows r ON r.id = v.row_id
		JOIN populated_tables p ON p.id = r.populated_table_id
		WHERE p.trail_id = ?`

	evaluatedFunctionIDs = `SELECT f.id FROM evaluated_functions f
		JOIN derived_rows r ON r.id = f.row_id
		JOIN evaluated_tables e ON e.id = r.evaluated_table_id
		WHERE e.trail_id = ?`
)

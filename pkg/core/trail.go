package core

import "time"

// Trail is one recorded execution of a pipeline and the root of a lineage
// snapshot. It is immutable after creation; children are appended to it.
type Trail struct {
	ID               int64          `json:"id"`
	Name             string         `json:"name"`
	CreatedAt        time.Time      `json:"created_at"`
	ExecutionContext map[string]any `json:"execution_context"`
}

// NewTrail holds the producer-supplied fields of a trail.
type NewTrail struct {
	Name             string
	ExecutionContext map[string]any
	// UniqueName rejects the insert with DuplicateNameError when another
	// trail already carries Name.
	UniqueName bool
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

// Page limits.
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 1000
)

// Normalize clamps the page to the supported range.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// TrailSummary holds the aggregate counts of one trail.
type TrailSummary struct {
	DatabaseTables     int  `json:"database_tables"`
	DerivedTables      int  `json:"derived_tables"`
	TotalRows          int  `json:"total_rows"`
	DatabaseRows       int  `json:"database_rows"`
	DerivedRows        int  `json:"derived_rows"`
	ColumnValues       int  `json:"column_values"`
	EvaluatedFunctions int  `json:"evaluated_functions"`
	HasLineageData     bool `json:"has_lineage_data"`
}

// Finalize derives TotalRows and HasLineageData from the raw counts.
func (s TrailSummary) Finalize() TrailSummary {
	s.TotalRows = s.DatabaseRows + s.DerivedRows
	s.HasLineageData = s.DatabaseTables > 0 || s.DerivedTables > 0
	return s
}

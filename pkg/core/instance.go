package core

import (
	"fmt"
	"math"
)

// PopulatedTable is one instantiation of a database table within a trail.
type PopulatedTable struct {
	ID        int64
	TableID   int64
	TableName string
	TrailID   int64
}

// DatabaseRow is a row of a populated table, keyed by its natural identifier.
type DatabaseRow struct {
	ID               int64
	RowIdentifier    string
	PopulatedTableID int64
}

// ColumnValue is the value of one database field in one row.
type ColumnValue struct {
	ID         int64
	Payload    Payload
	ColumnID   int64
	ColumnName string
	RowID      int64
}

// EvaluatedTable is one instantiation of a derived table within a trail.
type EvaluatedTable struct {
	ID        int64
	TableID   int64
	TableName string
	TrailID   int64
}

// DerivedRow is a row of an evaluated table. PopulatedTableID names the
// owning evaluated table; the field name follows the wire format.
type DerivedRow struct {
	ID               int64
	RowIdentifier    string
	PopulatedTableID int64
}

// EvaluatedFunction is the result of one derived function in one row.
type EvaluatedFunction struct {
	ID           int64
	Payload      Payload
	FunctionID   int64
	FunctionName string
	RowID        int64
}

// Payload carries either a numeric or a text value, never both and never
// neither.
type Payload struct {
	Number *float64
	Text   *string
}

// NumberPayload returns a numeric payload.
func NumberPayload(v float64) Payload {
	return Payload{Number: &v}
}

// TextPayload returns a text payload.
func TextPayload(s string) Payload {
	return Payload{Text: &s}
}

// Validate reports an InvalidValueError unless exactly one field is set.
// Numbers must be finite: NaN and infinities have no JSON encoding.
func (p Payload) Validate() error {
	switch {
	case p.Number != nil && p.Text != nil:
		return &InvalidValueError{Reason: "both value and string_value supplied"}
	case p.Number == nil && p.Text == nil:
		return &InvalidValueError{Reason: "neither value nor string_value supplied"}
	case p.Number != nil && (math.IsNaN(*p.Number) || math.IsInf(*p.Number, 0)):
		return &InvalidValueError{Reason: fmt.Sprintf("value %v is not a finite number", *p.Number)}
	}
	return nil
}

// Equal reports whether both payloads hold the same value.
func (p Payload) Equal(o Payload) bool {
	if (p.Number == nil) != (o.Number == nil) || (p.Text == nil) != (o.Text == nil) {
		return false
	}
	if p.Number != nil && *p.Number != *o.Number {
		return false
	}
	if p.Text != nil && *p.Text != *o.Text {
		return false
	}
	return true
}

package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflicting payload for existing record")
	ErrInvalidValue         = errors.New("invalid value")
	ErrUnknownTable         = errors.New("unknown table")
	ErrUnknownColumn        = errors.New("unknown column")
	ErrUnknownFunction      = errors.New("unknown function")
	ErrInvalidReferenceType = errors.New("invalid reference type")
	ErrCycle                = errors.New("reference would create a cycle")
	ErrDuplicateName        = errors.New("duplicate trail name")
)

// NotFoundError is returned when a trail or entity does not exist.
type NotFoundError struct {
	Kind string
	ID   int64
	// TrailID scopes the lookup when the record exists under another trail.
	TrailID int64
}

func (e *NotFoundError) Error() string {
	if e.TrailID != 0 {
		return fmt.Sprintf("%s %d not found in trail %d", e.Kind, e.ID, e.TrailID)
	}
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError is returned when a record is re-submitted under the same
// natural key with a different payload.
type ConflictError struct {
	Kind       string
	ExistingID int64
	Key        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s already recorded as %d with a different payload", e.Kind, e.Key, e.ExistingID)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidValueError is returned for a malformed value payload.
type InvalidValueError struct {
	Reason string
}

func (e *InvalidValueError) Error() string {
	return "invalid value: " + e.Reason
}

// Is matches ErrInvalidValue.
func (e *InvalidValueError) Is(target error) bool { return target == ErrInvalidValue }

// UnknownTableError is returned when a table ID is absent from the schema.
type UnknownTableError struct {
	Type ObjectType
	ID   int64
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown %s %d", e.Type, e.ID)
}

// Is matches ErrUnknownTable.
func (e *UnknownTableError) Is(target error) bool { return target == ErrUnknownTable }

// UnknownColumnError is returned when a database field is absent from the
// schema or does not belong to the expected table.
type UnknownColumnError struct {
	ColumnID int64
	TableID  int64
}

func (e *UnknownColumnError) Error() string {
	if e.TableID != 0 {
		return fmt.Sprintf("unknown column %d for table %d", e.ColumnID, e.TableID)
	}
	return fmt.Sprintf("unknown column %d", e.ColumnID)
}

// Is matches ErrUnknownColumn.
func (e *UnknownColumnError) Is(target error) bool { return target == ErrUnknownColumn }

// UnknownFunctionError is returned when a derived function definition is
// absent from the schema or does not belong to the expected derived table.
type UnknownFunctionError struct {
	FunctionID int64
	TableID    int64
}

func (e *UnknownFunctionError) Error() string {
	if e.TableID != 0 {
		return fmt.Sprintf("unknown function %d for derived table %d", e.FunctionID, e.TableID)
	}
	return fmt.Sprintf("unknown function %d", e.FunctionID)
}

// Is matches ErrUnknownFunction.
func (e *UnknownFunctionError) Is(target error) bool { return target == ErrUnknownFunction }

// InvalidReferenceTypeError is returned for a target tag outside the closed
// set, or outside the subset a reference kind accepts.
type InvalidReferenceTypeError struct {
	Kind RefKind
	Type string
}

func (e *InvalidReferenceTypeError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("invalid reference type %q for %s reference", e.Type, e.Kind)
	}
	return fmt.Sprintf("invalid reference type %q", e.Type)
}

// Is matches ErrInvalidReferenceType.
func (e *InvalidReferenceTypeError) Is(target error) bool { return target == ErrInvalidReferenceType }

// CycleError is returned when a row or value reference would make an
// artifact its own source.
type CycleError struct {
	Kind     RefKind
	SourceID int64
	TargetID int64
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s reference %d -> %d would create a cycle", e.Kind, e.SourceID, e.TargetID)
}

// Is matches ErrCycle.
func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// DuplicateNameError is returned when unique trail names are enforced.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("trail name %q already in use", e.Name)
}

// Is matches ErrDuplicateName.
func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

package core

import "strings"

// ObjectType tags the entity kind a reference edge points at.
type ObjectType string

// The closed set of reference target tags.
const (
	ObjectDatabaseTable       ObjectType = "databasetable"
	ObjectDerivedTable        ObjectType = "derivedtable"
	ObjectDatabaseRow         ObjectType = "databaserow"
	ObjectDerivedRow          ObjectType = "derivedrow"
	ObjectDatabaseField       ObjectType = "databasefield"
	ObjectDatabaseColumnValue ObjectType = "databasecolumnvalue"
	ObjectEvaluatedFunction   ObjectType = "evaluatedfunction"
)

// ObjectTypes lists every valid tag.
var ObjectTypes = []ObjectType{
	ObjectDatabaseTable,
	ObjectDerivedTable,
	ObjectDatabaseRow,
	ObjectDerivedRow,
	ObjectDatabaseField,
	ObjectDatabaseColumnValue,
	ObjectEvaluatedFunction,
}

// ParseObjectType validates a tag. Matching is case-insensitive.
func ParseObjectType(s string) (ObjectType, error) {
	t := ObjectType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ObjectTypes {
		if t == known {
			return t, nil
		}
	}
	return "", &InvalidReferenceTypeError{Type: s}
}

// InstanceLevel reports whether the tag names a per-trail entity rather
// than a schema definition.
func (t ObjectType) InstanceLevel() bool {
	switch t {
	case ObjectDatabaseRow, ObjectDerivedRow, ObjectDatabaseColumnValue, ObjectEvaluatedFunction:
		return true
	}
	return false
}

// RefKind identifies one of the five reference relations.
type RefKind string

// Reference kinds.
const (
	RefFunctionColumn      RefKind = "function_column"
	RefRowSource           RefKind = "row_source"
	RefValueSource         RefKind = "value_source"
	RefTableSource         RefKind = "table_source"
	RefTableCreationColumn RefKind = "table_creation_column"
)

// RefKinds lists the kinds in wire order.
var RefKinds = []RefKind{
	RefFunctionColumn,
	RefRowSource,
	RefValueSource,
	RefTableSource,
	RefTableCreationColumn,
}

var refTargets = map[RefKind][]ObjectType{
	RefFunctionColumn:      {ObjectDatabaseField},
	RefRowSource:           {ObjectDatabaseRow, ObjectDerivedRow},
	RefValueSource:         {ObjectDatabaseColumnValue, ObjectEvaluatedFunction},
	RefTableSource:         {ObjectDatabaseTable, ObjectDerivedTable},
	RefTableCreationColumn: {ObjectDatabaseField},
}

// Valid reports whether k is one of the five kinds.
func (k RefKind) Valid() bool {
	_, ok := refTargets[k]
	return ok
}

// InstanceLevel reports whether the edge's source side is a per-trail
// entity (rows and values) rather than a schema definition.
func (k RefKind) InstanceLevel() bool {
	return k == RefRowSource || k == RefValueSource
}

// SourceType returns the tag of the source side of the edge.
func (k RefKind) SourceType() ObjectType {
	switch k {
	case RefRowSource:
		return ObjectDerivedRow
	case RefValueSource:
		return ObjectEvaluatedFunction
	case RefTableSource, RefTableCreationColumn:
		return ObjectDerivedTable
	}
	return ""
}

// CheckTarget validates a target tag for this kind.
func (k RefKind) CheckTarget(t ObjectType) error {
	for _, allowed := range refTargets[k] {
		if t == allowed {
			return nil
		}
	}
	return &InvalidReferenceTypeError{Kind: k, Type: string(t)}
}

// ReferenceEdge links a derived artifact (SourceID, interpreted by Kind) to
// the artifact it was computed from.
type ReferenceEdge struct {
	ID            int64
	Kind          RefKind
	SourceID      int64
	TargetType    ObjectType
	TargetID      int64
	ReferenceText string
}

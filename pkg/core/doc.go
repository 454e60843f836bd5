// Package core defines the lineage domain shared by the store, the assembly
// engine and the outer surfaces: trails, materialized instances, the
// polymorphic reference edges between them, the error taxonomy and the
// storage interfaces.
package core

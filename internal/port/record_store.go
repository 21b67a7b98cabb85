package port

import (
	"context"
	"time"
)

// Record is one row of a store table: an opaque store-generated id plus a
// loosely typed field map keyed by the table's wire field names.
type Record struct {
	ID          string
	Fields      map[string]any
	CreatedTime time.Time
}

// RecordPatch is a partial update of one record. Only the keys present in
// Fields are written; absent keys are left untouched.
type RecordPatch struct {
	ID     string
	Fields map[string]any
}

// Op is a structured query operator. Backends compile ops to their own
// query language (Airtable filterByFormula, Postgres jsonb SQL).
type Op string

const (
	OpEqual    Op = "eq"
	OpNotEqual Op = "neq"
	OpIsTrue   Op = "is_true"
	OpNotTrue  Op = "not_true"
	OpIsAfter  Op = "is_after"
	OpIsBefore Op = "is_before"
	OpContains Op = "contains"
	OpIsEmpty  Op = "is_empty"
)

// Condition is one predicate over a record field. Conditions in a Query
// are ANDed together.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Sort orders a listing by one field.
type Sort struct {
	Field string
	Desc  bool
}

// Query selects records from a table. Zero value lists everything.
type Query struct {
	Conditions []Condition
	Sort       []Sort
	Fields     []string
	MaxRecords int
}

// RecordStore is the persistence port for the tabular record base.
// Implementations return domain.ErrNotFound (wrapped) when a record id
// does not exist.
type RecordStore interface {
	Get(ctx context.Context, table, id string) (*Record, error)
	List(ctx context.Context, table string, q Query) ([]Record, error)
	Create(ctx context.Context, table string, fields []map[string]any) ([]Record, error)
	Update(ctx context.Context, table string, patches []RecordPatch) ([]Record, error)
}

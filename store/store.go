// Package store defines the entity-store adapter contract the background-
// task connector uses for persistence: a key-addressable store supporting
// get/set/remove and a condition-based query with sort order and cursor
// pagination. The connector never talks to a concrete database directly —
// only to this interface — so store/memstore and store/pg are
// interchangeable collaborators.
package store

import (
	"context"

	"github.com/taskengine/backgroundtask/task"
)

// Op is a condition operator.
type Op string

const (
	OpEq  Op = "eq"
	OpLt  Op = "lt"
	OpGt  Op = "gt"
	OpAnd Op = "and"
	OpOr  Op = "or"
)

// Condition is a node in the query condition tree. Leaf nodes (Eq/Lt/Gt)
// compare Field against Value; composite nodes (And/Or) combine Children.
type Condition struct {
	Op       Op
	Field    string
	Value    any
	Children []Condition
}

// Eq builds an equality leaf condition.
func Eq(field string, value any) Condition { return Condition{Op: OpEq, Field: field, Value: value} }

// Lt builds a less-than leaf condition.
func Lt(field string, value any) Condition { return Condition{Op: OpLt, Field: field, Value: value} }

// Gt builds a greater-than leaf condition.
func Gt(field string, value any) Condition { return Condition{Op: OpGt, Field: field, Value: value} }

// And composes conditions with logical AND.
func And(children ...Condition) Condition { return Condition{Op: OpAnd, Children: children} }

// Or composes conditions with logical OR.
func Or(children ...Condition) Condition { return Condition{Op: OpOr, Children: children} }

// SortDirection is the direction of a sort key.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// Sort describes the ordering applied to a query's results. A secondary
// ascending sort on "id" is always applied beneath the caller's requested
// key by every adapter, so that ties on the primary key (e.g. equal
// dateNextProcess values) resolve to a stable, insertion-independent order —
// this is what makes scenario #5 in SPEC_FULL.md §8 deterministic.
type Sort struct {
	Field     string
	Direction SortDirection
}

// Cursor opaquely identifies a position in a paginated query result. The
// zero value means "start from the beginning."
type Cursor string

// Query describes a single store.Query call.
type Query struct {
	Condition Condition
	Sort      Sort
	Cursor    Cursor
	PageSize  int
}

// EntityStore is the persistence primitive the connector depends on. It is
// an external collaborator per SPEC_FULL.md §2 — the connector only ever
// calls this interface.
type EntityStore interface {
	// Get returns the task with the given id, or (nil, nil) if absent.
	Get(ctx context.Context, id string) (*task.Task, error)
	// Set creates or overwrites the task record.
	Set(ctx context.Context, t *task.Task) error
	// Remove deletes the task record. It is not an error to remove an
	// absent id.
	Remove(ctx context.Context, id string) error
	// Query returns entities matching q, plus a cursor for the next page
	// (empty when no further results remain).
	Query(ctx context.Context, q Query) ([]*task.Task, Cursor, error)
}

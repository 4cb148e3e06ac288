// Package store is the backend-neutral record store every ledger component
// persists through.
//
// A Backend exposes named tables of records keyed by a snowflake id. Field
// names used in conditions, sorts and updates are the snake_case column (or
// document key) names declared on the record types.
package store

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/errs"
)

var (
	ErrNotFound           = errs.New(errs.KindNotFound, "record_not_found", "record not found")
	ErrDuplicate          = errs.New(errs.KindConflict, "duplicate_key", "record violates a unique key")
	ErrPreconditionFailed = errs.New(errs.KindConflict, "precondition_failed", "record did not satisfy the update guard")
	ErrTimeout            = errs.New(errs.KindStoreTimeout, "store_timeout", "store operation timed out")
	ErrUnavailable        = errs.New(errs.KindStoreUnavailable, "store_unavailable", "store unavailable")
)

type Op string

const (
	OpEq      Op = "eq"
	OpNe      Op = "ne"
	OpGt      Op = "gt"
	OpGte     Op = "gte"
	OpLt      Op = "lt"
	OpLte     Op = "lte"
	OpIn      Op = "in"
	OpIsNull  Op = "is_null"
	OpNotNull Op = "not_null"
	OpOr      Op = "or"
)

// Condition restricts a query or guards an update.
type Condition struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Condition  { return Condition{Field: field, Op: OpEq, Value: value} }
func Ne(field string, value any) Condition  { return Condition{Field: field, Op: OpNe, Value: value} }
func Gt(field string, value any) Condition  { return Condition{Field: field, Op: OpGt, Value: value} }
func Gte(field string, value any) Condition { return Condition{Field: field, Op: OpGte, Value: value} }
func Lt(field string, value any) Condition  { return Condition{Field: field, Op: OpLt, Value: value} }
func Lte(field string, value any) Condition { return Condition{Field: field, Op: OpLte, Value: value} }
func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}
func IsNull(field string) Condition  { return Condition{Field: field, Op: OpIsNull} }
func NotNull(field string) Condition { return Condition{Field: field, Op: OpNotNull} }

// Or matches when every condition of at least one group matches.
func Or(groups ...[]Condition) Condition {
	return Condition{Op: OpOr, Value: groups}
}

// After resumes a listing ordered by (field, id) past the row at (at, id).
func After(field string, desc bool, at time.Time, id snowflake.ID) Condition {
	if desc {
		return Or(
			[]Condition{Lt(field, at)},
			[]Condition{Lte(field, at), Lt("id", id)},
		)
	}
	return Or(
		[]Condition{Gt(field, at)},
		[]Condition{Gte(field, at), Gt("id", id)},
	)
}

type Sort struct {
	Field string
	Desc  bool
}

func Asc(field string) Sort  { return Sort{Field: field} }
func Desc(field string) Sort { return Sort{Field: field, Desc: true} }

type Query struct {
	Where []Condition
	Sort  []Sort
	Limit int
}

// Update is a partial update. Set assigns values (nil clears the field) and
// Inc adds to numeric fields atomically on the backend.
type Update struct {
	Set map[string]any
	Inc map[string]any
}

func (u Update) IsEmpty() bool {
	return len(u.Set) == 0 && len(u.Inc) == 0
}

// Index describes a secondary index. Sparse indexes ignore records where the
// first field is unset.
type Index struct {
	Name   string
	Fields []string
	Unique bool
	Sparse bool
}

// Schema declares a table and the indexes the ledger relies on.
type Schema struct {
	Table   string
	Model   any
	Indexes []Index
}

// Table is the untyped per-table surface a backend implements. Destinations
// are pointers to a record (or to a slice of records for Find).
type Table interface {
	Insert(ctx context.Context, record any) error
	Get(ctx context.Context, id snowflake.ID, dest any) error
	Update(ctx context.Context, id snowflake.ID, upd Update, guards []Condition, dest any) error
	Find(ctx context.Context, q Query, dest any) error
	Delete(ctx context.Context, id snowflake.ID) error
}

// Backend is a connected store.
type Backend interface {
	Name() string
	Table(name string) Table
	EnsureSchema(ctx context.Context, schemas ...Schema) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Repository is the typed record contract the domain services consume.
type Repository[T any] interface {
	Create(ctx context.Context, record *T) error
	GetByID(ctx context.Context, id snowflake.ID) (*T, error)
	UpdateByID(ctx context.Context, id snowflake.ID, upd Update, guards ...Condition) (*T, error)
	Find(ctx context.Context, q Query) ([]T, error)
	DeleteByID(ctx context.Context, id snowflake.ID) error
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

const DefaultTimeout = 5 * time.Second

// Collection adapts a backend Table to Repository[T]. Every call runs under
// the caller's deadline, or under the collection timeout when there is none.
type Collection[T any] struct {
	name    string
	table   Table
	timeout time.Duration
}

func NewCollection[T any](backend Backend, name string, timeout time.Duration) *Collection[T] {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Collection[T]{
		name:    name,
		table:   backend.Table(name),
		timeout: timeout,
	}
}

func (c *Collection[T]) Name() string { return c.name }

func (c *Collection[T]) Create(ctx context.Context, record *T) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()
	return classify(ctx, c.table.Insert(ctx, record))
}

func (c *Collection[T]) GetByID(ctx context.Context, id snowflake.ID) (*T, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var out T
	if err := c.table.Get(ctx, id, &out); err != nil {
		return nil, classify(ctx, err)
	}
	return &out, nil
}

func (c *Collection[T]) UpdateByID(ctx context.Context, id snowflake.ID, upd Update, guards ...Condition) (*T, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	var out T
	if err := c.table.Update(ctx, id, upd, guards, &out); err != nil {
		return nil, classify(ctx, err)
	}
	return &out, nil
}

func (c *Collection[T]) Find(ctx context.Context, q Query) ([]T, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	out := make([]T, 0)
	if err := c.table.Find(ctx, q, &out); err != nil {
		return nil, classify(ctx, err)
	}
	return out, nil
}

func (c *Collection[T]) DeleteByID(ctx context.Context, id snowflake.ID) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()
	return classify(ctx, c.table.Delete(ctx, id))
}

func (c *Collection[T]) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify maps context expiry to ErrTimeout. Backends classify their own
// driver errors before returning.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrPreconditionFailed) || errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout.Wrap(err)
	}
	return err
}

var _ Repository[struct{}] = (*Collection[struct{}])(nil)

// Package gormstore implements store.Backend on a relational database via gorm.
package gormstore

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fuelledger/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Backend struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

func (b *Backend) Name() string { return "gorm:" + b.db.Dialector.Name() }

func (b *Backend) DB() *gorm.DB { return b.db }

func (b *Backend) Table(name string) store.Table {
	return &table{db: b.db, name: name}
}

func (b *Backend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return classify(sqlDB.PingContext(ctx))
}

func (b *Backend) Close(ctx context.Context) error {
	_ = ctx
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureSchema auto-migrates each table and creates missing indexes.
func (b *Backend) EnsureSchema(ctx context.Context, schemas ...store.Schema) error {
	db := b.db.WithContext(ctx)
	for _, schema := range schemas {
		if schema.Model == nil || schema.Table == "" {
			return fmt.Errorf("gormstore: schema requires table and model")
		}
		if err := db.Table(schema.Table).AutoMigrate(schema.Model); err != nil {
			return fmt.Errorf("gormstore: migrate %s: %w", schema.Table, err)
		}
		for _, idx := range schema.Indexes {
			if db.Migrator().HasIndex(schema.Table, idx.Name) {
				continue
			}
			stmt := "CREATE INDEX"
			if idx.Unique {
				stmt = "CREATE UNIQUE INDEX"
			}
			sql := fmt.Sprintf("%s %s ON %s (%s)", stmt, idx.Name, schema.Table, strings.Join(idx.Fields, ", "))
			if err := db.Exec(sql).Error; err != nil {
				return fmt.Errorf("gormstore: create index %s: %w", idx.Name, err)
			}
		}
	}
	return nil
}

type table struct {
	db   *gorm.DB
	name string
}

func (t *table) Insert(ctx context.Context, record any) error {
	return classify(t.db.WithContext(ctx).Table(t.name).Create(record).Error)
}

func (t *table) Get(ctx context.Context, id snowflake.ID, dest any) error {
	err := t.db.WithContext(ctx).Table(t.name).Where("id = ?", id).Take(dest).Error
	return classify(err)
}

func (t *table) Update(ctx context.Context, id snowflake.ID, upd store.Update, guards []store.Condition, dest any) error {
	if upd.IsEmpty() {
		return t.Get(ctx, id, dest)
	}

	values := make(map[string]any, len(upd.Set)+len(upd.Inc))
	for field, value := range upd.Set {
		values[field] = value
	}
	for field, delta := range upd.Inc {
		values[field] = gorm.Expr(field+" + ?", delta)
	}

	stmt := t.db.WithContext(ctx).Table(t.name).Where("id = ?", id)
	stmt, err := applyConditions(stmt, guards)
	if err != nil {
		return err
	}
	result := stmt.Updates(values)
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		// Either the record is gone or the guard rejected it.
		if err := t.Get(ctx, id, dest); err != nil {
			return err
		}
		if len(guards) > 0 {
			return store.ErrPreconditionFailed
		}
		return nil
	}
	return t.Get(ctx, id, dest)
}

func (t *table) Find(ctx context.Context, q store.Query, dest any) error {
	stmt := t.db.WithContext(ctx).Table(t.name)
	stmt, err := applyConditions(stmt, q.Where)
	if err != nil {
		return err
	}
	for _, s := range q.Sort {
		stmt = stmt.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Field}, Desc: s.Desc})
	}
	if q.Limit > 0 {
		stmt = stmt.Limit(q.Limit)
	}
	return classify(stmt.Find(dest).Error)
}

func (t *table) Delete(ctx context.Context, id snowflake.ID) error {
	result := t.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.name), id)
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func applyConditions(stmt *gorm.DB, conds []store.Condition) (*gorm.DB, error) {
	for _, c := range conds {
		expr, err := conditionExpr(c)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where(expr)
	}
	return stmt, nil
}

func conditionExpr(c store.Condition) (clause.Expression, error) {
	col := clause.Column{Name: c.Field}
	switch c.Op {
	case store.OpEq:
		return clause.Eq{Column: col, Value: c.Value}, nil
	case store.OpNe:
		return clause.Neq{Column: col, Value: c.Value}, nil
	case store.OpGt:
		return clause.Gt{Column: col, Value: c.Value}, nil
	case store.OpGte:
		return clause.Gte{Column: col, Value: c.Value}, nil
	case store.OpLt:
		return clause.Lt{Column: col, Value: c.Value}, nil
	case store.OpLte:
		return clause.Lte{Column: col, Value: c.Value}, nil
	case store.OpIn:
		return clause.IN{Column: col, Values: toSlice(c.Value)}, nil
	case store.OpIsNull:
		return clause.Eq{Column: col, Value: nil}, nil
	case store.OpNotNull:
		return clause.Neq{Column: col, Value: nil}, nil
	case store.OpOr:
		groups, ok := c.Value.([][]store.Condition)
		if !ok {
			return nil, fmt.Errorf("gormstore: or condition holds %T", c.Value)
		}
		branches := make([]clause.Expression, 0, len(groups))
		for _, group := range groups {
			exprs := make([]clause.Expression, 0, len(group))
			for _, inner := range group {
				expr, err := conditionExpr(inner)
				if err != nil {
					return nil, err
				}
				exprs = append(exprs, expr)
			}
			branches = append(branches, clause.And(exprs...))
		}
		return clause.Or(branches...), nil
	default:
		return nil, fmt.Errorf("gormstore: unsupported operator %q", c.Op)
	}
}

func toSlice(value any) []any {
	if values, ok := value.([]any); ok {
		return values
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return []any{value}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

var _ store.Backend = (*Backend)(nil)

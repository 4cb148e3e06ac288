// Package storetest provides in-memory store backends and fault injection for
// package tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/internal/store/gormstore"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewSQLite opens a private in-memory SQLite database and ensures schemas on it.
func NewSQLite(t testing.TB, schemas ...store.Schema) *gormstore.Backend {
	t.Helper()

	dsn := fmt.Sprintf("file:storetest_%d?mode=memory&cache=shared", dbSeq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	backend := gormstore.New(conn)
	if err := backend.EnsureSchema(context.Background(), schemas...); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return backend
}

type Operation string

const (
	OpInsert Operation = "insert"
	OpGet    Operation = "get"
	OpUpdate Operation = "update"
	OpFind   Operation = "find"
	OpDelete Operation = "delete"
)

// FaultBackend wraps a Backend and fails selected table operations.
type FaultBackend struct {
	store.Backend

	mu     sync.Mutex
	faults map[string]error
	calls  map[string]int
}

func Wrap(backend store.Backend) *FaultBackend {
	return &FaultBackend{
		Backend: backend,
		faults:  map[string]error{},
		calls:   map[string]int{},
	}
}

// Fail makes every op on table return err until Clear is called.
func (f *FaultBackend) Fail(table string, op Operation, err error) {
	f.mu.Lock()
	f.faults[faultKey(table, op)] = err
	f.mu.Unlock()
}

func (f *FaultBackend) Clear() {
	f.mu.Lock()
	f.faults = map[string]error{}
	f.mu.Unlock()
}

// Calls reports how many times op ran against table, failed or not.
func (f *FaultBackend) Calls(table string, op Operation) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[faultKey(table, op)]
}

func (f *FaultBackend) Table(name string) store.Table {
	return &faultTable{inner: f.Backend.Table(name), name: name, parent: f}
}

func (f *FaultBackend) check(table string, op Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := faultKey(table, op)
	f.calls[key]++
	return f.faults[key]
}

func faultKey(table string, op Operation) string {
	return table + "/" + string(op)
}

type faultTable struct {
	inner  store.Table
	name   string
	parent *FaultBackend
}

func (t *faultTable) Insert(ctx context.Context, record any) error {
	if err := t.parent.check(t.name, OpInsert); err != nil {
		return err
	}
	return t.inner.Insert(ctx, record)
}

func (t *faultTable) Get(ctx context.Context, id snowflake.ID, dest any) error {
	if err := t.parent.check(t.name, OpGet); err != nil {
		return err
	}
	return t.inner.Get(ctx, id, dest)
}

func (t *faultTable) Update(ctx context.Context, id snowflake.ID, upd store.Update, guards []store.Condition, dest any) error {
	if err := t.parent.check(t.name, OpUpdate); err != nil {
		return err
	}
	return t.inner.Update(ctx, id, upd, guards, dest)
}

func (t *faultTable) Find(ctx context.Context, q store.Query, dest any) error {
	if err := t.parent.check(t.name, OpFind); err != nil {
		return err
	}
	return t.inner.Find(ctx, q, dest)
}

func (t *faultTable) Delete(ctx context.Context, id snowflake.ID) error {
	if err := t.parent.check(t.name, OpDelete); err != nil {
		return err
	}
	return t.inner.Delete(ctx, id)
}

var _ store.Backend = (*FaultBackend)(nil)

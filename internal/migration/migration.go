package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/fuelledger/internal/store"
	"github.com/smallbiznis/fuelledger/internal/store/gormstore"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// Run brings the store up to date. Postgres gets the versioned SQL
// migrations; every other backend ensures the registered schemas.
func Run(ctx context.Context, backend store.Backend, schemas []store.Schema, log *zap.Logger) error {
	if backend == nil {
		return errors.New("migration store backend is required")
	}

	if gb, ok := backend.(*gormstore.Backend); ok && gb.DB().Dialector.Name() == "postgres" {
		sqlDB, err := gb.DB().DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("sql migrations applied")
		return nil
	}

	if err := backend.EnsureSchema(ctx, schemas...); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	log.Info("store schema ensured", zap.String("backend", backend.Name()), zap.Int("tables", len(schemas)))
	return nil
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Closing the migrator would close the shared *sql.DB.

	return nil
}

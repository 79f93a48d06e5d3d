// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrator is the schema-migration extension. It needs an open DB.
type Migrator struct {
	m      *migrate.Migrate
	src    source.Driver
	logger *slog.Logger
}

// NewMigrator binds the embedded migrations to db.
func NewMigrator(db *DB, logger *slog.Logger) (*Migrator, error) {
	if db == nil || db.DB == nil {
		return nil, errors.New("database: migrator requires an open database")
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("database: migration source: %w", err)
	}
	drv, err := sqlite.WithInstance(db.DB.DB, &sqlite.Config{})
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("database: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("database: migrate: %w", err)
	}
	return &Migrator{m: m, src: src, logger: logger}, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (mg *Migrator) Up() error {
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("database: migrate up: %w", err)
	}
	v, dirty, _ := mg.Version()
	mg.logger.Info("migrations_applied", "version", v, "dirty", dirty)
	return nil
}

// Down rolls back every migration.
func (mg *Migrator) Down() error {
	if err := mg.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("database: migrate down: %w", err)
	}
	return nil
}

// Version reports the current schema version; 0 when nothing is applied.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the migration source. The database handle stays open;
// migrate.Migrate.Close would close it too.
func (mg *Migrator) Close() error {
	return mg.src.Close()
}

// Migrate applies all pending migrations to db.
func Migrate(db *DB, logger *slog.Logger) error {
	mg, err := NewMigrator(db, logger)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}

// Package database owns the persistence handle (sqlx over pure-Go SQLite) and
// the schema migrations applied to it.
//
// SPDX-License-Identifier: AGPL-3.0-or-later
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/jsdraven/catalog-api/internal/config"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// DB is the persistence extension bound to one application instance.
type DB struct {
	*sqlx.DB
	dsn string
}

// Open connects to the database named by cfg.DatabaseURL. MemoryDatabase gets a
// uniquely named in-memory database so separate instances never share data.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*DB, error) {
	dsn := resolveDSN(cfg.DatabaseURL)

	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps an in-memory
	// database alive for the life of the pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(pingCtx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("database: %s: %w", pragma, err)
		}
	}

	logger.Debug("database_opened", "dsn", redactDSN(dsn))
	return &DB{DB: db, dsn: dsn}, nil
}

// DSN returns the resolved data source name.
func (d *DB) DSN() string { return d.dsn }

func resolveDSN(url string) string {
	if url == config.MemoryDatabase {
		return "file:catalog-" + uuid.NewString() + "?mode=memory&cache=shared"
	}
	return url
}

// redactDSN drops query parameters, which may carry credentials.
func redactDSN(dsn string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i]
	}
	return dsn
}

// Package sqlstore persists saved analyses to a relational database: a data
// relation of field rows with their variation, the assay layout, and an
// audit trail of saves.
package sqlstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"imvqa/internal/config"
	"imvqa/internal/errors"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"   // register postgres driver
	_ "modernc.org/sqlite" // pure go sqlite driver
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// Open connects to the configured database and verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.URL); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, errors.DatabaseError("failed to create database directory", err)
			}
		}
	case config.DriverPostgres, config.DriverPgx:
	default:
		return nil, errors.ConfigInvalid(fmt.Sprintf("unsupported database driver %q", cfg.Driver))
	}

	db, err := sqlx.Open(cfg.Driver, cfg.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to open database", err)
	}

	if cfg.Driver == config.DriverSQLite {
		// a single writer avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	return db, nil
}

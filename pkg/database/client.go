// Package database provides the PostgreSQL/SQLite client, embedded schema
// migrations and backend-specific error classification.
package database

import (
	"context"
	stdsql "database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql
)

// Client owns the shared connection pool and knows which backend it talks to.
type Client struct {
	db     *stdsql.DB
	driver string
}

// DB returns the underlying database connection for health checks and direct queries
func (c *Client) DB() *stdsql.DB {
	return c.db
}

// Driver returns DriverPostgres or DriverSQLite.
func (c *Client) Driver() string {
	return c.driver
}

// Dialect returns the ent dialect name used to build SQL for this backend.
func (c *Client) Dialect() string {
	return DialectFor(c.driver)
}

// Builder returns an ent SQL builder for this backend.
func (c *Client) Builder() *entsql.DialectBuilder {
	return entsql.Dialect(c.Dialect())
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}

// DialectFor maps a driver name to its ent dialect.
func DialectFor(driver string) string {
	if driver == DriverSQLite {
		return dialect.SQLite
	}
	return dialect.Postgres
}

// NewClientFromDB wraps an existing, already migrated connection (useful for testing)
func NewClientFromDB(db *stdsql.DB, driver string) *Client {
	return &Client{db: db, driver: driver}
}

// NewClient opens the configured backend, verifies connectivity and applies
// pending migrations.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sqlDriver := "pgx"
	if cfg.Driver == DriverSQLite {
		sqlDriver = "sqlite3"
	}

	db, err := stdsql.Open(sqlDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite allows one writer; a single connection serializes writes
		// in-process instead of surfacing SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(db, cfg.Driver, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Client{db: db, driver: cfg.Driver}, nil
}

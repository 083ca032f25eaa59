// Package database provides ready-to-use database clients for tests.
package database

import (
	"testing"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/test/util"
)

// NewTestClient creates a PostgreSQL test client.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// Cleanup (schema drop and connection close) is handled by util.SetupTestDatabase.
func NewTestClient(t *testing.T) *database.Client {
	return database.NewClientFromDB(util.SetupTestDatabase(t), database.DriverPostgres)
}

// NewSQLiteTestClient creates a client over a fresh, migrated SQLite file.
func NewSQLiteTestClient(t *testing.T) *database.Client {
	return database.NewClientFromDB(util.SetupSQLiteDatabase(t), database.DriverSQLite)
}

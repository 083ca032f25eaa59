package database

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// postgresRetryableSQLStates lists SQLSTATE codes worth retrying.
var postgresRetryableSQLStates = map[string]string{
	"40001": "serialization_failure",
	"40P01": "deadlock_detected",
	"55P03": "lock_not_available",
	"53300": "too_many_connections",
	"57014": "query_canceled",
}

// postgresRetryableSQLStateClasses lists SQLSTATE classes retried as a whole.
var postgresRetryableSQLStateClasses = []string{
	"08", // connection_exception
}

// postgresRetryableMessages is the fallback when no SQLSTATE is available.
var postgresRetryableMessages = []string{
	"deadlock detected",
	"could not serialize access",
	"could not connect",
	"could not obtain lock",
	"too many connections",
	"canceling statement due to",
	"terminating connection",
	"the database system is starting up",
	"the database system is shutting down",
}

// sqliteRetryableMessages are matched against lower-cased SQLite errors.
var sqliteRetryableMessages = []string{
	"database is locked",
	"database table is locked",
	"database disk image is malformed",
	"disk i/o error",
	"busy",
}

// sqliteRetryableCodes are primary result codes reported by mattn/go-sqlite3.
var sqliteRetryableCodes = map[sqlite3.ErrNo]string{
	sqlite3.ErrBusy:    "SQLITE_BUSY",
	sqlite3.ErrLocked:  "SQLITE_LOCKED",
	sqlite3.ErrIoErr:   "SQLITE_IOERR",
	sqlite3.ErrCorrupt: "SQLITE_CORRUPT",
}

// connectionRetryableMessages apply to every backend.
var connectionRetryableMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"server closed the connection",
	"bad connection",
	"i/o timeout",
	"unexpected eof",
}

// IsRetryable reports whether err is a transient failure for the given
// backend. Context cancellation is never retryable.
func IsRetryable(driver string, err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())
	if containsAny(msg, connectionRetryableMessages) {
		return true
	}

	switch driver {
	case DriverPostgres:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return isRetryableSQLState(pgErr.Code)
		}
		return containsAny(msg, postgresRetryableMessages)
	case DriverSQLite:
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) {
			if _, ok := sqliteRetryableCodes[sqliteErr.Code]; ok {
				return true
			}
		}
		return containsAny(msg, sqliteRetryableMessages)
	}
	return false
}

// IsUniqueViolation reports whether err is a primary-key or unique
// constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isRetryableSQLState(code string) bool {
	if _, ok := postgresRetryableSQLStates[code]; ok {
		return true
	}
	for _, class := range postgresRetryableSQLStateClasses {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	return false
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

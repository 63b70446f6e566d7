package storage

import (
	"errors"
	"strings"

	"github.com/ignatij/goclassify/pkg/storage"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type dialect string

const (
	postgresDialect dialect = "postgres"
	sqliteDialect   dialect = "sqlite"
)

func init() {
	sqlx.BindDriver(string(sqliteDialect), sqlx.QUESTION)
}

// dialectOf picks the database for a connection string: PostgreSQL URLs select
// postgres, anything else is treated as a SQLite file path.
func dialectOf(dsn string) dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgresDialect
	}
	return sqliteDialect
}

// translate maps constraint violations onto the storage sentinels.
func (d dialect) translate(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return errors.Join(storage.ErrDuplicate, err)
		case "23503": // foreign_key_violation
			return errors.Join(storage.ErrNotFound, err)
		}
		return err
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errors.Join(storage.ErrDuplicate, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return errors.Join(storage.ErrNotFound, err)
		case sqlite3.SQLITE_CONSTRAINT:
			msg := liteErr.Error()
			if strings.Contains(msg, "UNIQUE") {
				return errors.Join(storage.ErrDuplicate, err)
			}
			if strings.Contains(msg, "FOREIGN KEY") {
				return errors.Join(storage.ErrNotFound, err)
			}
		}
	}
	return err
}

// sqliteDSN turns a file path into a modernc DSN with the pragmas the store relies on.
func sqliteDSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + strings.TrimPrefix(path, "file:") + sep +
		"_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_time_format=sqlite"
}

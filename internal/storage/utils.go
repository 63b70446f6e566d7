package storage

import (
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// InitStore migrates the database behind dsn and opens a store on it. A
// postgres:// URL selects PostgreSQL; anything else is a SQLite file path.
func InitStore(dsn string) (*SQLStore, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	return Open(dsn)
}

// Open connects to an already migrated database.
func Open(dsn string) (*SQLStore, error) {
	d := dialectOf(dsn)
	connStr := dsn
	if d == sqliteDialect {
		connStr = sqliteDSN(dsn)
	}
	db, err := sqlx.Open(string(d), connStr)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", d)
	}
	if d == sqliteDialect {
		// One writer at a time; busy_timeout covers readers racing the writer.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "connect to %s store", d)
	}
	return &SQLStore{db: db, dialect: d}, nil
}

// redact hides the password of a connection URL for logging.
func redact(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return dsn[:scheme+3] + creds + dsn[at:]
}

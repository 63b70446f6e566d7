package storage

import (
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/ignatij/goclassify/internal/log"
	"github.com/ignatij/goclassify/migrations"
	"github.com/pkg/errors"
)

func newMigrator(dsn string) (*migrate.Migrate, error) {
	d := dialectOf(dsn)
	src, err := iofs.New(migrations.FS, string(d))
	if err != nil {
		return nil, errors.Wrap(err, "load embedded migrations")
	}
	dbURL := dsn
	if d == sqliteDialect {
		dbURL = "sqlite://" + strings.TrimPrefix(strings.TrimPrefix(dsn, "sqlite://"), "file:")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return nil, errors.Wrapf(err, "initialize migrations for %s", redact(dsn))
	}
	return m, nil
}

// Migrate applies every pending migration. An up-to-date database is not an error.
func Migrate(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	log.GetLogger().Debugf("Applying migrations to %s", redact(dsn))
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

// MigrateDown reverts the last applied migration.
func MigrateDown(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Steps(-1); err != nil {
		return errors.Wrap(err, "revert migration")
	}
	return nil
}

// MigrationVersion returns the applied schema version and whether the last
// migration left the database dirty.
func MigrationVersion(dsn string) (uint, bool, error) {
	m, err := newMigrator(dsn)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()
	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}

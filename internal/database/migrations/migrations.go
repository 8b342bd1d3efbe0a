// Package migrations manages the run-history schema with embedded SQL files.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var files embed.FS

// ErrNoSchema is returned by CheckStatus for a database that was never migrated.
var ErrNoSchema = errors.New("database has no schema version (needs migration)")

// CheckStatus returns nil when db is at the latest embedded schema version.
func CheckStatus(db *sql.DB) error {
	current, dirty, err := Version(db)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d (a migration failed previously)", current)
	}

	latest, err := Latest()
	if err != nil {
		return err
	}
	switch {
	case current < latest:
		return fmt.Errorf("database is at version %d but latest is %d", current, latest)
	case current > latest:
		return fmt.Errorf("database version %d is newer than this binary (%d)", current, latest)
	}
	return nil
}

// Version reports the schema version recorded in db.
func Version(db *sql.DB) (uint, bool, error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, false, err
	}
	// m is not closed: closing it would close db, which the caller owns.
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, ErrNoSchema
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading schema version: %w", err)
	}
	return v, dirty, nil
}

// Up applies every pending migration. An up-to-date database is not an error.
func Up(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

// Latest returns the highest version among the embedded migrations.
func Latest() (uint, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "files")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating sqlite3 migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations found: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// Next reports os.ErrNotExist past the last migration.
			return v, nil
		}
		v = next
	}
}

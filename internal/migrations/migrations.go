// Package migrations embeds the schema and applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var files embed.FS

// open builds a migrator with its own connection, so closing it never
// touches the application's pool.
func open(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("open: source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return m, nil
}

func closeMigrate(m *migrate.Migrate, err *error) {
	srcErr, dbErr := m.Close()
	if *err == nil {
		*err = errors.Join(srcErr, dbErr)
	}
}

// Up applies every pending migration. It reports applied=false when the
// schema was already current.
func Up(databaseURL string) (applied bool, err error) {
	m, err := open(databaseURL)
	if err != nil {
		return false, fmt.Errorf("Up: %w", err)
	}
	defer closeMigrate(m, &err)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return false, fmt.Errorf("Up: dirty database version %d", dirty.Version)
		}
		return false, fmt.Errorf("Up: %w", err)
	}
	return true, nil
}

// Down rolls back every applied migration.
func Down(databaseURL string) (err error) {
	m, err := open(databaseURL)
	if err != nil {
		return fmt.Errorf("Down: %w", err)
	}
	defer closeMigrate(m, &err)

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("Down: %w", err)
	}
	return nil
}

// Version returns the current schema version and whether it is dirty. A
// database with no migrations applied reports version 0.
func Version(databaseURL string) (version uint, dirty bool, err error) {
	m, err := open(databaseURL)
	if err != nil {
		return 0, false, fmt.Errorf("Version: %w", err)
	}
	defer closeMigrate(m, &err)

	version, dirty, err = m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("Version: %w", err)
	}
	return version, dirty, nil
}

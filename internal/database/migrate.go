package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	// Register the postgres database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/GyroZepelix/cornerstone/migrations"
)

// RunMigrations applies all pending UP migrations embedded in the binary and
// reports the resulting schema version.
func RunMigrations(databaseURL string) (version uint, retErr error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return 0, fmt.Errorf("creating migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if retErr == nil {
			if sourceErr != nil {
				retErr = fmt.Errorf("closing migration source: %w", sourceErr)
			} else if dbErr != nil {
				retErr = fmt.Errorf("closing migration database: %w", dbErr)
			}
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("reading migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("migration version %d is dirty", version)
	}
	return version, nil
}

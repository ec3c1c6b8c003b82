// Package migrate applies the SQL migrations under migrations/.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/OFFIS-RIT/leech/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const MigrationsTable = "leech_schema_migrations"

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

var ErrUnknownDirection = errors.New("unknown migration direction")

// Run migrates the database at databaseURL. steps > 0 limits how many
// migrations are applied or rolled back.
func Run(databaseURL, migrationsPath string, dir Direction, steps int) error {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("init migrate driver: %w", err)
	}

	abs, err := filepath.Abs(migrationsPath)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+filepath.ToSlash(abs), "postgres", driver)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	switch {
	case steps > 0 && dir == Up:
		err = m.Steps(steps)
	case steps > 0 && dir == Down:
		err = m.Steps(-steps)
	case dir == Up:
		err = m.Up()
	case dir == Down:
		err = m.Down()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDirection, dir)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("[Migrate] No change")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}
	logger.Info("[Migrate] Done", "direction", dir, "version", version, "dirty", dirty)
	return nil
}

package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/edgelink/shortener/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("create pgx migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

// Migrate applies (Up) or rolls back all (Down) embedded migrations.
// Running with nothing to do is not an error.
func Migrate(db *sql.DB, dir Direction, log logger.Logger) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	switch dir {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("invalid migration direction %q", dir)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Info("No migrations to apply", logger.String("direction", string(dir)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations %s: %w", dir, err)
	}

	version, dirty, vErr := m.Version()
	if vErr != nil && !errors.Is(vErr, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", vErr)
	}
	log.Info("Migrations applied",
		logger.String("direction", string(dir)),
		logger.Int("version", int(version)),
		logger.Bool("dirty", dirty),
	)
	return nil
}

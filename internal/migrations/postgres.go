// Package migrations owns the schema of the postgres account registry.
package migrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/storage"
)

// Table records the applied version, apart from any other golang-migrate
// user of the same database.
const Table = "sessionkeeper_schema_migrations"

// migrator opens a connection of its own: closing the migrator closes the
// database handle it was given.
func migrator(ctx context.Context, dsn string) (*migrate.Migrate, error) {
	db, err := storage.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: Table})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres driver: %w", err)
	}
	source, err := iofs.New(sqlMigrations, "sql")
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	return m, nil
}

func closeMigrator(m *migrate.Migrate) {
	srcErr, dbErr := m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		log.WithError(err).Debug("close migrator")
	}
}

// Up applies all pending migrations.
func Up(ctx context.Context, dsn string) error {
	m, err := migrator(ctx, dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	err = m.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		return nil
	case err != nil:
		return fmt.Errorf("migrations up: %w", err)
	}
	if v, _, verr := m.Version(); verr == nil {
		log.WithField("version", v).Info("account schema migrated")
	}
	return nil
}

// Down rolls back steps migrations, one when steps <= 0.
func Down(ctx context.Context, dsn string, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	m, err := migrator(ctx, dsn)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrations down: %w", err)
	}
	return nil
}

// Version returns the applied version; 0 means none.
func Version(ctx context.Context, dsn string) (uint, bool, error) {
	m, err := migrator(ctx, dsn)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrator(m)

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, dirty, fmt.Errorf("migrations version: %w", err)
	}
	return version, dirty, nil
}

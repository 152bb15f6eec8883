package internal

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockID is a fixed postgres advisory lock key so that the server
// and worker cannot both run migrations at the same time on startup.
const migrationLockID = 5123094186

func acquireMigrationLock(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID)
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return nil
}

func releaseMigrationLock(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID)
	if err != nil {
		return fmt.Errorf("failed to release migration lock: %w", err)
	}
	return nil
}

func newMigrator(pool *pgxpool.Pool) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source driver: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, "pgx5://"+pool.Config().ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies River's queue schema followed by the application
// migrations. Both binaries call this on startup; the advisory lock keeps
// concurrent runs from stepping on each other.
func MigrateUp(ctx context.Context, pool *pgxpool.Pool) error {
	if err := acquireMigrationLock(ctx, pool); err != nil {
		return err
	}
	defer releaseMigrationLock(ctx, pool)

	riverMigrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create river migrator: %w", err)
	}
	if _, err := riverMigrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("failed to run river migrations up: %w", err)
	}

	m, err := newMigrator(pool)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run application migrations up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the application migrations, then River's.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	if err := acquireMigrationLock(ctx, pool); err != nil {
		return err
	}
	defer releaseMigrationLock(ctx, pool)

	m, err := newMigrator(pool)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run application migrations down: %w", err)
	}

	riverMigrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("failed to create river migrator: %w", err)
	}
	if _, err := riverMigrator.Migrate(ctx, rivermigrate.DirectionDown, nil); err != nil {
		return fmt.Errorf("failed to run river migrations down: %w", err)
	}
	return nil
}

// Package postgres opens the alternate persistence backend selected by
// configuration: a Postgres connection via lib/pq, with golang-migrate
// applying the embedded schema on startup. Grounded on
// `pkg/database/client.go` in codeready-toolchain-tarsy, adapted off
// Ent's generated driver wiring onto plain database/sql.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/agoraflow/agora/store"
)

// Config is the minimal connection configuration the run controller's
// environment-driven setup needs (spec.md §6's configuration section).
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to Postgres, applies any pending golang-migrate
// migrations from the embedded schema, and returns a ready *store.DB.
func Open(ctx context.Context, cfg Config) (*store.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store/postgres: ping: %w", err)
	}

	if err := runMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return store.New(sqlDB, store.DialectPostgres), nil
}

func runMigrations(sqlDB *sql.DB) error {
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store/postgres: migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(store.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("store/postgres: migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "agora", driver)
	if err != nil {
		return fmt.Errorf("store/postgres: migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store/postgres: apply migrations: %w", err)
	}
	return nil
}

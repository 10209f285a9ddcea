// Package store is the Postgres persistence layer (§4.4, §4.5),
// grounded on the teacher's core/store package: one file per entity,
// an interface per store, a shared *pgxpool.Pool handed to each
// constructor — generalized from the teacher's sqlite/database-sql
// shape to pgx/v5 and goose-embedded migrations.
package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"incidentpulse/config"
	"incidentpulse/core/logging"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open connects to Postgres via pgx and applies pending goose
// migrations, matching the teacher's "apply migrations at startup"
// convention (core/store/migrations.go's ApplyMigrations).
func Open(ctx context.Context, cfg *config.AppConfig, logger *logging.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyMigrations(cfg.DBURL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	if logger != nil {
		logger.Printf("store: connected and migrated %s", logging.Field("db", redactDSN(cfg.DBURL)))
	}
	return pool, nil
}

func applyMigrations(dsn string) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return goose.Up(db, "migrations")
}

func redactDSN(dsn string) string {
	return "<redacted>"
}

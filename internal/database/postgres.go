package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver

	"github.com/isfo/attestation-service/internal/config"
	"github.com/isfo/attestation-service/internal/database/migrate"
)

// NewClient opens PostgreSQL through pgx and wraps it in an ent SQL driver.
func NewClient(ctx context.Context, cfg config.DatabaseConfig) (*entsql.Driver, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return entsql.OpenDB(dialect.Postgres, db), nil
}

// RunMigrations creates or alters tables to match the declared schema.
// Columns and indexes are never dropped.
func RunMigrations(ctx context.Context, drv dialect.Driver) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, migrate.Tables...); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Package store holds the Postgres repositories. Connections are opened
// through the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var schema = []string{
	`create table if not exists advisory_cache (
  prompt_hash   text        not null,
  engine        text        not null,
  model         text        not null,
  advisory_json jsonb       not null,
  created_at    timestamptz not null default now(),
  primary key (prompt_hash, engine, model)
)`,
	`create table if not exists product_scans (
  id            uuid        primary key,
  user_key      text        not null,
  barcode       text        not null,
  product_name  text,
  advisability  text,
  analysis_json jsonb,
  created_at    timestamptz not null default now()
)`,
	`create index if not exists product_scans_user_created on product_scans (user_key, created_at desc)`,
	`create table if not exists user_profiles (
  user_key     text        primary key,
  profile_json jsonb       not null,
  updated_at   timestamptz not null default now()
)`,
}

// Open connects with the "pgx" driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Migrate creates missing tables. Safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

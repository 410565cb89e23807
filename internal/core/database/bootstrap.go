package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"
)

// schemaVersion is the version row scripts/initdb.sql inserts.
const schemaVersion = 1

//go:embed scripts/initdb.sql
var schemaFS embed.FS

// EnsureBootstrapped applies the embedded schema unless vectorsync_meta
// already records schemaVersion. Concurrent starts serialize on a
// transaction scoped advisory lock.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	current, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		slog.Debug("schema up to date", "version", current)
		return nil
	}

	script, err := schemaFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey("schema")); err != nil {
		return fmt.Errorf("schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("apply schema v%d: %w", schemaVersion, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	slog.Info("schema applied", "from", current, "to", schemaVersion)
	return nil
}

// appliedVersion returns 0 on a fresh database.
func appliedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var hasMeta bool
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('vectorsync_meta') IS NOT NULL`).Scan(&hasMeta); err != nil {
		return 0, fmt.Errorf("check meta table: %w", err)
	}
	if !hasMeta {
		return 0, nil
	}

	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT max(version) FROM vectorsync_meta`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

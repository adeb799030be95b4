package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DataHookFunc rewrites existing rows after the SQL migration it belongs to.
// It runs inside the transaction that records it as applied.
type DataHookFunc func(ctx context.Context, tx *sql.Tx) error

type dataHook struct {
	version uint
	name    string
	fn      DataHookFunc
}

// Registry is an ordered set of data hooks. A hook becomes eligible once the
// database schema reaches its version. Hooks only target the managed
// Postgres database; the standalone SQLite store is created at its final
// schema.
type Registry struct {
	hooks []dataHook
}

var defaultRegistry Registry

// Register adds a hook. Names must be unique; hooks run in registration order.
func (r *Registry) Register(schemaVersion uint, name string, fn DataHookFunc) {
	r.hooks = append(r.hooks, dataHook{version: schemaVersion, name: name, fn: fn})
}

// Names lists registered hooks in run order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.hooks))
	for i, h := range r.hooks {
		names[i] = h.name
	}
	return names
}

// RegisterDataHook registers a hook on the default registry.
func RegisterDataHook(schemaVersion uint, name string, fn DataHookFunc) {
	defaultRegistry.Register(schemaVersion, name, fn)
}

// PendingHooks lists the default registry's eligible, unapplied hooks.
func PendingHooks(ctx context.Context, db *sql.DB) ([]string, error) {
	return defaultRegistry.Pending(ctx, db)
}

// RunPendingHooks runs the default registry.
func RunPendingHooks(ctx context.Context, db *sql.DB) (int, error) {
	return defaultRegistry.Run(ctx, db)
}

// Pending returns the names of eligible hooks not yet applied.
func (r *Registry) Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	hooks, err := r.pending(ctx, db)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(hooks))
	for i, h := range hooks {
		names[i] = h.name
	}
	return names, nil
}

// Run applies eligible hooks in order and stops at the first failure. Each
// hook and its data_migrations row commit together.
func (r *Registry) Run(ctx context.Context, db *sql.DB) (int, error) {
	hooks, err := r.pending(ctx, db)
	if err != nil {
		return 0, err
	}

	for i, h := range hooks {
		start := time.Now()
		slog.Info("running data hook", "name", h.name, "schema_version", h.version)
		if err := runHook(ctx, db, h); err != nil {
			return i, err
		}
		slog.Info("data hook applied", "name", h.name, "duration", time.Since(start))
	}
	return len(hooks), nil
}

func runHook(ctx context.Context, db *sql.DB, h dataHook) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("data hook %q: begin: %w", h.name, err)
	}
	defer tx.Rollback()

	if err := h.fn(ctx, tx); err != nil {
		return fmt.Errorf("data hook %q: %w", h.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO data_migrations (name, version, applied_at) VALUES ($1, $2, CURRENT_TIMESTAMP)`,
		h.name, h.version,
	); err != nil {
		return fmt.Errorf("data hook %q: record: %w", h.name, err)
	}
	return tx.Commit()
}

// pending filters the registry down to hooks whose schema version is
// applied and whose name is not yet recorded.
func (r *Registry) pending(ctx context.Context, db *sql.DB) ([]dataHook, error) {
	if err := ensureDataMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("ensure data_migrations table: %w", err)
	}
	status, err := CheckSchema(ctx, db)
	if err != nil {
		return nil, err
	}
	if status.Dirty {
		return nil, ErrSchemaDirty
	}
	applied, err := loadApplied(ctx, db)
	if err != nil {
		return nil, err
	}

	var out []dataHook
	for _, h := range r.hooks {
		if h.version <= status.CurrentVersion && !applied[h.name] {
			out = append(out, h)
		}
	}
	return out, nil
}

func ensureDataMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS data_migrations (
			name       VARCHAR(255) PRIMARY KEY,
			version    INT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func loadApplied(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM data_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query data_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

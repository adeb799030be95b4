package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wamenu/internal/config"
	"github.com/nextlevelbuilder/wamenu/internal/upgrade"
)

func upgradeCmd() *cobra.Command {
	var dryRun bool
	var status bool

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the user database schema and run data migrations",
		Long:  "Applies pending SQL migrations and data hooks to the managed Postgres database. Safe to run multiple times.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status {
				return runUpgradeStatus(cmd.Context())
			}
			return runUpgrade(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without applying changes")
	cmd.Flags().BoolVar(&status, "status", false, "show current upgrade status")

	return cmd
}

// openManagedDB loads config and checks the schema. The returned db is nil
// in standalone mode.
func openManagedDB(ctx context.Context) (*config.Config, *sql.DB, *upgrade.SchemaStatus, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if !cfg.IsManagedMode() {
		return cfg, nil, nil, nil
	}
	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("check schema: %w", err)
	}
	return cfg, db, s, nil
}

func schemaState(s *upgrade.SchemaStatus) string {
	switch {
	case s.Dirty:
		return "DIRTY (failed migration)"
	case s.Compatible:
		return "UP TO DATE"
	case s.CurrentVersion > s.RequiredVersion:
		return "BINARY TOO OLD"
	}
	return fmt.Sprintf("UPGRADE NEEDED (%d -> %d)", s.CurrentVersion, s.RequiredVersion)
}

// printPlan lists what an upgrade would do: SQL migrations and data hooks.
func printPlan(ctx context.Context, db *sql.DB, s *upgrade.SchemaStatus) {
	if s.NeedsMigration {
		fmt.Printf("  SQL migrations:  v%d -> v%d\n", s.CurrentVersion, s.RequiredVersion)
	} else {
		fmt.Println("  SQL migrations:  none")
	}
	pending, err := upgrade.PendingHooks(ctx, db)
	if err != nil {
		slog.Debug("could not check pending data hooks", "error", err)
		return
	}
	fmt.Printf("  Data hooks:      %d pending\n", len(pending))
	for _, name := range pending {
		fmt.Printf("    - %s\n", name)
	}
}

func runUpgradeStatus(ctx context.Context) error {
	cfg, db, s, err := openManagedDB(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  App version:     %s\n", Version)
	if db == nil {
		fmt.Printf("  Mode:            standalone (sqlite %s)\n", cfg.SQLitePath())
		fmt.Println("  Status:          N/A (schema is created on open)")
		return nil
	}
	defer db.Close()

	fmt.Printf("  Schema:          current %d, required %d\n", s.CurrentVersion, s.RequiredVersion)
	fmt.Printf("  Status:          %s\n", schemaState(s))
	if s.Dirty {
		fmt.Println()
		fmt.Print(upgrade.FormatError(s))
		return nil
	}
	printPlan(ctx, db, s)
	if s.NeedsMigration {
		fmt.Println()
		fmt.Println("  Run 'wamenu upgrade' to apply all pending changes.")
	}
	return nil
}

func runUpgrade(ctx context.Context, dryRun bool) error {
	cfg, db, s, err := openManagedDB(ctx)
	if err != nil {
		return err
	}
	if db == nil {
		fmt.Println("Standalone mode: no database migrations needed.")
		return nil
	}
	defer db.Close()

	fmt.Printf("  App version:     %s\n", Version)
	fmt.Printf("  Schema:          current %d, required %d\n", s.CurrentVersion, s.RequiredVersion)
	if s.Dirty || s.CurrentVersion > s.RequiredVersion {
		fmt.Println()
		fmt.Print(upgrade.FormatError(s))
		return ErrUpgradeFailed
	}
	if dryRun {
		printPlan(ctx, db, s)
		return nil
	}

	if err := applyMigrations(ctx, cfg, db, s); err != nil {
		return err
	}
	fmt.Println("  Upgrade complete.")
	return nil
}

// applyMigrations runs SQL migrations (when needed) followed by data hooks.
func applyMigrations(ctx context.Context, cfg *config.Config, db *sql.DB, s *upgrade.SchemaStatus) error {
	if s.NeedsMigration {
		m, err := newMigrator(cfg)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		v, _, _ := m.Version()
		slog.Info("SQL migrations applied", "from", s.CurrentVersion, "to", v)
	}

	count, err := upgrade.RunPendingHooks(ctx, db)
	if err != nil {
		return fmt.Errorf("data hooks: %w", err)
	}
	if count > 0 {
		slog.Info("data hooks applied", "count", count)
	}
	return nil
}

// ErrUpgradeFailed is returned when upgrade cannot proceed.
var ErrUpgradeFailed = fmt.Errorf("upgrade cannot proceed")

// checkSchemaOrAutoUpgrade gates managed-mode startup on schema
// compatibility. With WAMENU_AUTO_MIGRATE=true an outdated schema is
// upgraded inline.
func checkSchemaOrAutoUpgrade(ctx context.Context, cfg *config.Config, db *sql.DB) error {
	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}

	if s.Compatible {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}

	if s.NeedsMigration && !s.Dirty && os.Getenv("WAMENU_AUTO_MIGRATE") == "true" {
		slog.Info("auto-migrate: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
		if err := applyMigrations(ctx, cfg, db, s); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		return nil
	}

	slog.Error("schema check failed", "detail", upgrade.FormatError(s))
	return s.Err()
}

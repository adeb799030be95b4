package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/wamenu/internal/config"
	"github.com/nextlevelbuilder/wamenu/internal/upgrade"
)

var migrationsDir string

func resolveMigrationsDir(cfg *config.Config) string {
	if migrationsDir != "" {
		return migrationsDir
	}
	// config.Load already applied WAMENU_MIGRATIONS_DIR.
	if cfg != nil && cfg.Database.MigrationsDir != "" {
		return config.ExpandHome(cfg.Database.MigrationsDir)
	}
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func newMigrator(cfg *config.Config) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+resolveMigrationsDir(cfg), cfg.Database.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// loadManagedConfig loads the config and requires a Postgres DSN, which
// only ever comes from the environment.
func loadManagedConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.PostgresDSN == "" {
		return nil, errors.New("WAMENU_POSTGRES_DSN environment variable is not set")
	}
	return cfg, nil
}

// withMigrator runs fn against a migrator for the managed database and
// closes it afterwards. ErrNoChange is not an error.
func withMigrator(fn func(cfg *config.Config, m *migrate.Migrate) error) error {
	cfg, err := loadManagedConfig()
	if err != nil {
		return err
	}
	m, err := newMigrator(cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := fn(cfg, m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func logVersion(m *migrate.Migrate, msg string) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		slog.Info(msg, "version", "none")
		return
	}
	slog.Info(msg, "version", v, "dirty", dirty)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the managed-mode Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: database.migrations_dir or ./migrations)")

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(_ *config.Config, m *migrate.Migrate) error {
				if err := m.Steps(-max(steps, 1)); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				logVersion(m, "rollback complete")
				return nil
			})
		},
	}
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations and data hooks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(cfg *config.Config, m *migrate.Migrate) error {
					if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
						return fmt.Errorf("migrate up: %w", err)
					}
					logVersion(m, "migration complete")

					db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
					if err != nil {
						return fmt.Errorf("connect for data hooks: %w", err)
					}
					defer db.Close()

					n, err := upgrade.RunPendingHooks(cmd.Context(), db)
					if err != nil {
						return fmt.Errorf("data hooks: %w", err)
					}
					if n > 0 {
						slog.Info("data hooks applied", "count", n)
					}
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Show current migration version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(_ *config.Config, m *migrate.Migrate) error {
					v, dirty, err := m.Version()
					if errors.Is(err, migrate.ErrNilVersion) {
						fmt.Println("version: none (no migrations applied)")
						return nil
					}
					if err != nil {
						return fmt.Errorf("get version: %w", err)
					}
					fmt.Printf("version: %d, dirty: %v\n", v, dirty)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Set the recorded version without running migrations (clears dirty)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid version: %w", err)
				}
				return withMigrator(func(_ *config.Config, m *migrate.Migrate) error {
					if err := m.Force(version); err != nil {
						return fmt.Errorf("force version: %w", err)
					}
					slog.Info("forced version", "version", version)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "goto <version>",
			Short: "Migrate up or down to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid version: %w", err)
				}
				return withMigrator(func(_ *config.Config, m *migrate.Migrate) error {
					if err := m.Migrate(uint(version)); err != nil {
						return fmt.Errorf("migrate goto: %w", err)
					}
					logVersion(m, "migrated")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "drop",
			Short: "Drop all tables (DANGEROUS)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(func(_ *config.Config, m *migrate.Migrate) error {
					if err := m.Drop(); err != nil {
						return fmt.Errorf("drop: %w", err)
					}
					slog.Warn("all tables dropped")
					return nil
				})
			},
		},
	)
	return cmd
}

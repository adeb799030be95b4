package upgrade

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// SchemaStatus is where the user database stands relative to this binary.
type SchemaStatus struct {
	CurrentVersion  uint
	RequiredVersion uint
	Dirty           bool
	Compatible      bool
	NeedsMigration  bool
}

var (
	ErrSchemaOutdated = errors.New("user database schema is outdated")
	ErrSchemaDirty    = errors.New("database schema is dirty (failed migration)")
	ErrSchemaAhead    = errors.New("database schema is newer than this binary")
)

// CheckSchema reads golang-migrate's schema_migrations row and compares it
// with RequiredSchemaVersion. A missing table or row counts as version 0.
func CheckSchema(ctx context.Context, db *sql.DB) (*SchemaStatus, error) {
	s := &SchemaStatus{RequiredVersion: RequiredSchemaVersion}

	row := db.QueryRowContext(ctx, "SELECT version, dirty FROM schema_migrations LIMIT 1")
	if err := row.Scan(&s.CurrentVersion, &s.Dirty); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Debug("schema_migrations not readable", "error", err)
		}
		s.CurrentVersion, s.Dirty = 0, false
	}
	s.classify()
	return s, nil
}

func (s *SchemaStatus) classify() {
	if s.Dirty {
		return
	}
	s.Compatible = s.CurrentVersion == s.RequiredVersion
	s.NeedsMigration = s.CurrentVersion < s.RequiredVersion
}

// FormatError renders operator instructions for an incompatible status.
func FormatError(s *SchemaStatus) string {
	switch {
	case s.Dirty:
		return fmt.Sprintf("Schema v%d is marked dirty: a migration stopped halfway.\n\n"+
			"  Fix:  wamenu migrate force %d\n"+
			"  Then: wamenu migrate up\n",
			s.CurrentVersion, s.CurrentVersion-1)
	case s.CurrentVersion > s.RequiredVersion:
		return fmt.Sprintf("Schema v%d is newer than this binary (built for v%d).\n\n"+
			"  Fix: deploy the wamenu release that shipped migration %d.\n",
			s.CurrentVersion, s.RequiredVersion, s.CurrentVersion)
	default:
		return fmt.Sprintf("Schema v%d is behind the required v%d.\n\n"+
			"  Run:  wamenu migrate up   (applies SQL and the social-account backfill)\n"+
			"  Or set WAMENU_AUTO_MIGRATE=true to migrate on startup.\n",
			s.CurrentVersion, s.RequiredVersion)
	}
}

// Err maps a status to one of the sentinel errors, or nil when compatible.
func (s *SchemaStatus) Err() error {
	switch {
	case s.Dirty:
		return ErrSchemaDirty
	case s.Compatible:
		return nil
	case s.NeedsMigration:
		return ErrSchemaOutdated
	default:
		return ErrSchemaAhead
	}
}

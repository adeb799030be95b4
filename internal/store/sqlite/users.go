// Package sqlite is the standalone user store: the same contract as the
// Postgres store on a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/wamenu/internal/store"
)

const selectUser = `SELECT u.user_id, u.nama, u.title, u.divisi, u.jabatan, u.desa,
	u.insta, u.insta_2, u.tiktok, u.tiktok_2, u.whatsapp,
	COALESCE(u.client_id, ''), COALESCE(c.nama, ''), u.status, u.ditbinmas
	FROM users u LEFT JOIN clients c ON c.client_id = u.client_id`

// Store implements store.UserStore on SQLite in WAL mode.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// NewStores wraps New into the shared container.
func NewStores(cfg store.StoreConfig) (*store.Stores, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "wamenu.db"
	}
	s, err := New(path)
	if err != nil {
		return nil, err
	}
	return &store.Stores{Users: s, DB: s.db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		client_id TEXT PRIMARY KEY,
		nama      TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id    TEXT PRIMARY KEY,
		nama       TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		divisi     TEXT NOT NULL DEFAULT '',
		jabatan    TEXT NOT NULL DEFAULT '',
		desa       TEXT NOT NULL DEFAULT '',
		insta      TEXT NOT NULL DEFAULT '',
		insta_2    TEXT NOT NULL DEFAULT '',
		tiktok     TEXT NOT NULL DEFAULT '',
		tiktok_2   TEXT NOT NULL DEFAULT '',
		whatsapp   TEXT NOT NULL DEFAULT '',
		client_id  TEXT REFERENCES clients(client_id),
		status     INTEGER NOT NULL DEFAULT 1,
		ditbinmas  INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL DEFAULT ''
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_users_whatsapp ON users(whatsapp) WHERE whatsapp <> '';
	CREATE INDEX IF NOT EXISTS idx_users_client ON users(client_id);

	CREATE TABLE IF NOT EXISTS titles (
		name       TEXT PRIMARY KEY,
		rank_order INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	err := row.Scan(&u.UserID, &u.Nama, &u.Title, &u.Divisi, &u.Jabatan, &u.Desa,
		&u.Insta, &u.Insta2, &u.Tiktok, &u.Tiktok2, &u.WhatsApp,
		&u.ClientID, &u.ClientName, &u.Status, &u.Ditbinmas)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func (s *Store) FindUserByChannelAddress(ctx context.Context, addr string) (*store.User, error) {
	candidates := store.AddressCandidates(addr)
	if len(candidates) == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		selectUser+` WHERE u.whatsapp IN (`+placeholders(len(candidates))+`) LIMIT 1`,
		toArgs(candidates)...)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("find user by whatsapp: %w", err)
	}
	return u, nil
}

func (s *Store) FindRegistrationProfileByID(ctx context.Context, userID string) (*store.User, error) {
	var u store.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, nama, whatsapp, status FROM users WHERE user_id = ?`, userID,
	).Scan(&u.UserID, &u.Nama, &u.WhatsApp, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find registration profile: %w", err)
	}
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (*store.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE u.user_id = ?`, userID))
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return u, nil
}

func (s *Store) UpdateUserField(ctx context.Context, userID, field, value string) error {
	if !store.IsUpdatableField(field) {
		return fmt.Errorf("%w: %s", store.ErrUnknownField, field)
	}

	if field == store.FieldWhatsApp && value != "" {
		candidates := store.AddressCandidates(value)
		var owner string
		err := s.db.QueryRowContext(ctx,
			`SELECT user_id FROM users WHERE whatsapp IN (`+placeholders(len(candidates))+`) AND user_id <> ? LIMIT 1`,
			append(toArgs(candidates), userID)...,
		).Scan(&owner)
		if err == nil {
			return &store.DuplicateError{Field: field, Value: value}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check whatsapp owner: %w", err)
		}
	}

	var affected int64
	err := retryOnContention(func() error {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE users SET %s = ?, updated_at = ? WHERE user_id = ?`, field),
			value, time.Now().UTC().Format(time.RFC3339), userID,
		)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	if isUniqueErr(err) {
		return &store.DuplicateError{Field: field, Value: value}
	}
	if err != nil {
		return fmt.Errorf("update user %s: %w", field, err)
	}
	if affected == 0 {
		return fmt.Errorf("update user %s: user %s not found", field, userID)
	}
	return nil
}

func (s *Store) FindUserBySocialHandle(ctx context.Context, field, handle string) (*store.User, error) {
	if store.SocialColumns(field) == nil {
		return nil, fmt.Errorf("%w: %s is not a social column", store.ErrUnknownField, field)
	}
	candidates := store.HandleCandidates(handle)
	if len(candidates) == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		selectUser+fmt.Sprintf(` WHERE lower(u.%s) IN (%s) LIMIT 1`, field, placeholders(len(candidates))),
		toArgs(candidates)...)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", field, err)
	}
	return u, nil
}

func (s *Store) GetAvailableTitles(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT name FROM titles ORDER BY rank_order, name`)
}

func (s *Store) GetAvailableSatfung(ctx context.Context, clientID string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT DISTINCT divisi FROM users WHERE client_id = ? AND divisi <> '' ORDER BY divisi`, clientID)
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

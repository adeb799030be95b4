package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/nextlevelbuilder/wamenu/internal/store"
)

// SQLSTATE unique_violation
const uniqueViolation = "23505"

const titlesCacheTTL = 10 * time.Minute

const selectUser = `SELECT u.user_id, u.nama, u.title, u.divisi, u.jabatan, u.desa,
	u.insta, u.insta_2, u.tiktok, u.tiktok_2, u.whatsapp,
	COALESCE(u.client_id, ''), COALESCE(c.nama, ''), u.status, u.ditbinmas
	FROM users u LEFT JOIN clients c ON c.client_id = u.client_id`

// PGUserStore implements store.UserStore backed by Postgres.
type PGUserStore struct {
	db *sql.DB

	mu       sync.Mutex
	titles   []string
	titlesAt time.Time
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
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

func (s *PGUserStore) FindUserByChannelAddress(ctx context.Context, addr string) (*store.User, error) {
	candidates := store.AddressCandidates(addr)
	if len(candidates) == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, selectUser+` WHERE u.whatsapp = ANY($1::varchar[]) LIMIT 1`, pq.Array(candidates))
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("find user by whatsapp: %w", err)
	}
	return u, nil
}

func (s *PGUserStore) FindRegistrationProfileByID(ctx context.Context, userID string) (*store.User, error) {
	var u store.User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, nama, whatsapp, status FROM users WHERE user_id = $1`, userID,
	).Scan(&u.UserID, &u.Nama, &u.WhatsApp, &u.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find registration profile: %w", err)
	}
	return &u, nil
}

func (s *PGUserStore) FindUserByID(ctx context.Context, userID string) (*store.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE u.user_id = $1`, userID))
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", userID, err)
	}
	return u, nil
}

func (s *PGUserStore) UpdateUserField(ctx context.Context, userID, field, value string) error {
	if !store.IsUpdatableField(field) {
		return fmt.Errorf("%w: %s", store.ErrUnknownField, field)
	}

	if field == store.FieldWhatsApp && value != "" {
		var owner string
		err := s.db.QueryRowContext(ctx,
			`SELECT user_id FROM users WHERE whatsapp = ANY($1::varchar[]) AND user_id <> $2 LIMIT 1`,
			pq.Array(store.AddressCandidates(value)), userID,
		).Scan(&owner)
		if err == nil {
			return &store.DuplicateError{Field: field, Value: value}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check whatsapp owner: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback()

	// field is whitelisted above
	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE users SET %s = $1, updated_at = NOW() WHERE user_id = $2`, field),
		value, userID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return &store.DuplicateError{Field: field, Value: value}
		}
		return fmt.Errorf("update user %s: %w", field, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update user %s: user %s not found", field, userID)
	}

	if err := mirrorSocialAccount(ctx, tx, userID, field, value); err != nil {
		return err
	}
	return tx.Commit()
}

// mirrorSocialAccount keeps user_social_accounts in step with the users
// columns. Non-social fields are a no-op.
func mirrorSocialAccount(ctx context.Context, tx *sql.Tx, userID, field, value string) error {
	platform, slot, ok := store.SocialAccountSlot(field)
	if !ok {
		return nil
	}
	handle := store.NormalizeSocialUsername(value)
	var err error
	if handle == "" {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM user_social_accounts WHERE user_id = $1 AND platform = $2 AND slot = $3`,
			userID, platform, slot)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_social_accounts (user_id, platform, slot, username)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, platform, slot)
			 DO UPDATE SET username = EXCLUDED.username, updated_at = NOW()`,
			userID, platform, slot, handle)
	}
	if err != nil {
		return fmt.Errorf("sync social account %s/%s: %w", platform, slot, err)
	}
	return nil
}

func (s *PGUserStore) FindUserBySocialHandle(ctx context.Context, field, handle string) (*store.User, error) {
	if store.SocialColumns(field) == nil {
		return nil, fmt.Errorf("%w: %s is not a social column", store.ErrUnknownField, field)
	}
	candidates := store.HandleCandidates(handle)
	if len(candidates) == 0 {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		selectUser+fmt.Sprintf(` WHERE lower(u.%s) = ANY($1::text[]) LIMIT 1`, field),
		pq.Array(candidates),
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", field, err)
	}
	return u, nil
}

// GetAvailableTitles returns the rank table, cached for a few minutes.
func (s *PGUserStore) GetAvailableTitles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.titles != nil && time.Since(s.titlesAt) < titlesCacheTTL {
		out := append([]string(nil), s.titles...)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	titles, err := queryStrings(ctx, s.db, `SELECT name FROM titles ORDER BY rank_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}

	s.mu.Lock()
	s.titles = titles
	s.titlesAt = time.Now()
	s.mu.Unlock()
	return append([]string(nil), titles...), nil
}

func (s *PGUserStore) GetAvailableSatfung(ctx context.Context, clientID string) ([]string, error) {
	divs, err := queryStrings(ctx, s.db,
		`SELECT DISTINCT divisi FROM users WHERE client_id = $1 AND divisi <> '' ORDER BY divisi`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list satfung for %s: %w", clientID, err)
	}
	return divs, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
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

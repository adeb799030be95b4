package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/wamenu/internal/store"
)

// PutClient inserts or renames a client.
func (s *Store) PutClient(ctx context.Context, clientID, nama string) error {
	return retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO clients (client_id, nama) VALUES (?, ?)
			 ON CONFLICT(client_id) DO UPDATE SET nama = excluded.nama`, clientID, nama)
		return err
	})
}

// PutUser inserts or replaces a user record.
func (s *Store) PutUser(ctx context.Context, u store.User) error {
	var clientID any
	if u.ClientID != "" {
		clientID = u.ClientID
	}
	err := retryOnContention(func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO users (user_id, nama, title, divisi, jabatan, desa, insta, insta_2, tiktok, tiktok_2,
				whatsapp, client_id, status, ditbinmas, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET
				nama = excluded.nama, title = excluded.title, divisi = excluded.divisi,
				jabatan = excluded.jabatan, desa = excluded.desa,
				insta = excluded.insta, insta_2 = excluded.insta_2,
				tiktok = excluded.tiktok, tiktok_2 = excluded.tiktok_2,
				whatsapp = excluded.whatsapp, client_id = excluded.client_id,
				status = excluded.status, ditbinmas = excluded.ditbinmas,
				updated_at = excluded.updated_at`,
			u.UserID, u.Nama, u.Title, u.Divisi, u.Jabatan, u.Desa, u.Insta, u.Insta2, u.Tiktok, u.Tiktok2,
			u.WhatsApp, clientID, u.Status, u.Ditbinmas, time.Now().UTC().Format(time.RFC3339),
		)
		return err
	})
	if isUniqueErr(err) {
		return &store.DuplicateError{Field: store.FieldWhatsApp, Value: u.WhatsApp}
	}
	if err != nil {
		return fmt.Errorf("put user %s: %w", u.UserID, err)
	}
	return nil
}

// PutTitles replaces the rank table; order is the rank order.
func (s *Store) PutTitles(ctx context.Context, titles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM titles`); err != nil {
		return err
	}
	for i, t := range titles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO titles (name, rank_order) VALUES (?, ?)`, t, i); err != nil {
			return fmt.Errorf("insert title %s: %w", t, err)
		}
	}
	return tx.Commit()
}

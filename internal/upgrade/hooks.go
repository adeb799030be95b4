package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

func init() {
	RegisterDataHook(2, "002_backfill_user_social_accounts", backfillSocialAccounts)
}

// backfillSocialAccounts copies the legacy per-column handles into
// user_social_accounts, normalized (trimmed, no leading '@', lowercase).
func backfillSocialAccounts(ctx context.Context, tx *sql.Tx) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO user_social_accounts (user_id, platform, slot, username)
		SELECT user_id, platform, slot, lower(ltrim(btrim(handle), '@'))
		FROM (
			SELECT user_id, 'instagram' AS platform, 'primary' AS slot, insta AS handle FROM users
			UNION ALL SELECT user_id, 'instagram', 'secondary', insta_2 FROM users
			UNION ALL SELECT user_id, 'tiktok', 'primary', tiktok FROM users
			UNION ALL SELECT user_id, 'tiktok', 'secondary', tiktok_2 FROM users
		) h
		WHERE ltrim(btrim(coalesce(handle, '')), '@') <> ''
		ON CONFLICT (user_id, platform, slot)
		DO UPDATE SET username = EXCLUDED.username, updated_at = NOW()
	`)
	if err != nil {
		return fmt.Errorf("backfill user_social_accounts: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		slog.Info("social accounts backfilled", "rows", n)
	}
	return nil
}

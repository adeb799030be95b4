package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/wamenu/internal/config"
	"github.com/nextlevelbuilder/wamenu/internal/store"
	"github.com/nextlevelbuilder/wamenu/internal/store/sqlite"
)

// seedFile is the JSON5 layout accepted by `wamenu seed`.
type seedFile struct {
	Clients []struct {
		ClientID string `json:"client_id"`
		Nama     string `json:"nama"`
	} `json:"clients"`
	Titles []string   `json:"titles"`
	Users  []seedUser `json:"users"`
}

type seedUser struct {
	UserID    string `json:"user_id"`
	Nama      string `json:"nama"`
	Title     string `json:"title"`
	Divisi    string `json:"divisi"`
	Jabatan   string `json:"jabatan"`
	Desa      string `json:"desa"`
	Insta     string `json:"insta"`
	Insta2    string `json:"insta_2"`
	Tiktok    string `json:"tiktok"`
	Tiktok2   string `json:"tiktok_2"`
	WhatsApp  string `json:"whatsapp"`
	ClientID  string `json:"client_id"`
	Status    *bool  `json:"status"`
	Ditbinmas bool   `json:"ditbinmas"`
}

func (u seedUser) toUser() store.User {
	return store.User{
		UserID:    u.UserID,
		Nama:      u.Nama,
		Title:     u.Title,
		Divisi:    u.Divisi,
		Jabatan:   u.Jabatan,
		Desa:      u.Desa,
		Insta:     u.Insta,
		Insta2:    u.Insta2,
		Tiktok:    u.Tiktok,
		Tiktok2:   u.Tiktok2,
		WhatsApp:  u.WhatsApp,
		ClientID:  u.ClientID,
		Status:    u.Status == nil || *u.Status,
		Ditbinmas: u.Ditbinmas,
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.json5>",
		Short: "Load clients, ranks and users into the standalone SQLite store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.IsManagedMode() {
				return fmt.Errorf("seed only targets the standalone store; managed data is loaded with SQL migrations")
			}
			return runSeed(cmd.Context(), cfg.SQLitePath(), args[0])
		},
	}
}

func runSeed(ctx context.Context, dbPath, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json5.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	s, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, c := range seed.Clients {
		if err := s.PutClient(ctx, c.ClientID, c.Nama); err != nil {
			return fmt.Errorf("client %s: %w", c.ClientID, err)
		}
	}
	if len(seed.Titles) > 0 {
		if err := s.PutTitles(ctx, seed.Titles); err != nil {
			return fmt.Errorf("titles: %w", err)
		}
	}
	for _, u := range seed.Users {
		if err := s.PutUser(ctx, u.toUser()); err != nil {
			return err
		}
	}

	slog.Info("seed applied", "db", dbPath,
		"clients", len(seed.Clients), "titles", len(seed.Titles), "users", len(seed.Users))
	return nil
}

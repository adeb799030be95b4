package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/nextlevelbuilder/wamenu/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	if err := s.PutClient(ctx, "polres_a", "POLRES A"); err != nil {
		t.Fatalf("PutClient: %v", err)
	}
	users := []store.User{
		{UserID: "75020201", Nama: "Budi", Title: "BRIPKA", Divisi: "SAT BINMAS", Insta: "budi.ig", Tiktok: "@budi_tt", WhatsApp: "628111", ClientID: "polres_a", Status: true},
		{UserID: "75020202", Nama: "Sari", Title: "AKP", Divisi: "BAG OPS", Insta2: "sari", WhatsApp: "628222@c.us", ClientID: "polres_a", Status: true},
	}
	for _, u := range users {
		if err := s.PutUser(ctx, u); err != nil {
			t.Fatalf("PutUser(%s): %v", u.UserID, err)
		}
	}
	return s
}

func TestFindUserByChannelAddress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		addr string
		want string
	}{
		{"628111", "75020201"},
		{"628111@s.whatsapp.net", "75020201"},
		{"628222", "75020202"},
		{"628999", ""},
	}
	for _, tt := range tests {
		u, err := s.FindUserByChannelAddress(ctx, tt.addr)
		if err != nil {
			t.Fatalf("FindUserByChannelAddress(%q): %v", tt.addr, err)
		}
		got := ""
		if u != nil {
			got = u.UserID
		}
		if got != tt.want {
			t.Errorf("FindUserByChannelAddress(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestFindUserByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.FindUserByID(ctx, "75020201")
	if err != nil || u == nil {
		t.Fatalf("FindUserByID = %v, %v", u, err)
	}
	if u.ClientName != "POLRES A" || u.Title != "BRIPKA" {
		t.Errorf("FindUserByID = %+v", u)
	}

	missing, err := s.FindUserByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("FindUserByID(nope) = %v, %v, want nil, nil", missing, err)
	}

	reg, err := s.FindRegistrationProfileByID(ctx, "75020202")
	if err != nil || reg == nil || reg.WhatsApp != "628222@c.us" {
		t.Errorf("FindRegistrationProfileByID = %+v, %v", reg, err)
	}
}

func TestUpdateUserField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateUserField(ctx, "75020201", store.FieldJabatan, "KANIT"); err != nil {
		t.Fatalf("UpdateUserField: %v", err)
	}
	u, _ := s.FindUserByID(ctx, "75020201")
	if u.Jabatan != "KANIT" {
		t.Errorf("jabatan = %q, want KANIT", u.Jabatan)
	}

	err := s.UpdateUserField(ctx, "75020201", store.FieldWhatsApp, "628222")
	var dup *store.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("UpdateUserField(whatsapp taken) = %v, want DuplicateError", err)
	}

	if err := s.UpdateUserField(ctx, "75020201", "password", "x"); !errors.Is(err, store.ErrUnknownField) {
		t.Errorf("UpdateUserField(password) = %v, want ErrUnknownField", err)
	}

	if err := s.UpdateUserField(ctx, "missing", store.FieldNama, "x"); err == nil {
		t.Error("UpdateUserField on missing user should fail")
	}
}

func TestFindUserBySocialHandle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.FindUserBySocialHandle(ctx, store.FieldTiktok, "budi_tt")
	if err != nil || u == nil || u.UserID != "75020201" {
		t.Errorf("FindUserBySocialHandle(tiktok) = %+v, %v", u, err)
	}
	u, err = s.FindUserBySocialHandle(ctx, store.FieldInsta, "BUDI.IG")
	if err != nil || u == nil {
		t.Errorf("FindUserBySocialHandle(insta, upper) = %+v, %v", u, err)
	}
	if _, err := s.FindUserBySocialHandle(ctx, store.FieldNama, "budi"); err == nil {
		t.Error("FindUserBySocialHandle(nama) should reject non-social column")
	}
}

func TestTitlesAndSatfung(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutTitles(ctx, []string{"AKP", "IPTU", "BRIPKA"}); err != nil {
		t.Fatalf("PutTitles: %v", err)
	}
	titles, err := s.GetAvailableTitles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"AKP", "IPTU", "BRIPKA"}; !reflect.DeepEqual(titles, want) {
		t.Errorf("GetAvailableTitles = %v, want %v", titles, want)
	}

	satfung, err := s.GetAvailableSatfung(ctx, "polres_a")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"BAG OPS", "SAT BINMAS"}; !reflect.DeepEqual(satfung, want) {
		t.Errorf("GetAvailableSatfung = %v, want %v", satfung, want)
	}
}

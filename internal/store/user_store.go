package store

import (
	"context"
	"errors"
	"fmt"
)

// User is a personnel record as seen by the user menu.
type User struct {
	UserID     string
	Nama       string
	Title      string // pangkat
	Divisi     string // satfung
	Jabatan    string
	Desa       string
	Insta      string
	Insta2     string
	Tiktok     string
	Tiktok2    string
	WhatsApp   string
	ClientID   string
	ClientName string
	Status     bool
	Ditbinmas  bool
}

// Updatable column names accepted by UpdateUserField.
const (
	FieldNama     = "nama"
	FieldTitle    = "title"
	FieldDivisi   = "divisi"
	FieldJabatan  = "jabatan"
	FieldDesa     = "desa"
	FieldInsta    = "insta"
	FieldInsta2   = "insta_2"
	FieldTiktok   = "tiktok"
	FieldTiktok2  = "tiktok_2"
	FieldWhatsApp = "whatsapp"
)

var updatableFields = map[string]bool{
	FieldNama: true, FieldTitle: true, FieldDivisi: true, FieldJabatan: true, FieldDesa: true,
	FieldInsta: true, FieldInsta2: true, FieldTiktok: true, FieldTiktok2: true, FieldWhatsApp: true,
}

// IsUpdatableField reports whether field may be written through UpdateUserField.
func IsUpdatableField(field string) bool { return updatableFields[field] }

// ErrUnknownField is returned for a column outside the updatable set.
var ErrUnknownField = errors.New("field cannot be updated")

// UserStore is the personnel data capability consumed by the user menu.
// Lookups return (nil, nil) when nothing matches.
type UserStore interface {
	// FindUserByChannelAddress looks up a user by normalized WhatsApp number.
	FindUserByChannelAddress(ctx context.Context, addr string) (*User, error)
	// FindRegistrationProfileByID returns the minimal profile used before binding.
	FindRegistrationProfileByID(ctx context.Context, userID string) (*User, error)
	FindUserByID(ctx context.Context, userID string) (*User, error)
	// UpdateUserField writes one column. It returns *DuplicateError when the
	// value is already owned by another user.
	UpdateUserField(ctx context.Context, userID, field, value string) error
	// FindUserBySocialHandle matches a handle against one social column.
	FindUserBySocialHandle(ctx context.Context, field, handle string) (*User, error)
	GetAvailableTitles(ctx context.Context) ([]string, error)
	GetAvailableSatfung(ctx context.Context, clientID string) ([]string, error)
}

// DuplicateError reports a uniqueness conflict on a user column.
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s sudah terdaftar pada akun lain", fieldNoun(e.Field))
}

func fieldNoun(field string) string {
	switch field {
	case FieldWhatsApp:
		return "Nomor WhatsApp"
	case FieldInsta, FieldInsta2:
		return "Akun Instagram"
	case FieldTiktok, FieldTiktok2:
		return "Akun TikTok"
	}
	return "Data"
}

// SocialColumns returns the primary and secondary columns sharing a
// platform with field, or nil for non-social fields.
func SocialColumns(field string) []string {
	switch field {
	case FieldInsta, FieldInsta2:
		return []string{FieldInsta, FieldInsta2}
	case FieldTiktok, FieldTiktok2:
		return []string{FieldTiktok, FieldTiktok2}
	}
	return nil
}

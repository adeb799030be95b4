package menu

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/nextlevelbuilder/wamenu/internal/store"
)

// SessionClosedMessage is sent when the user ends the menu.
var SessionClosedMessage = strings.Join([]string{
	"Terima kasih. Sesi ditutup. Ketik *userrequest* untuk memulai lagi.",
	"",
	"Update data user/personil selain via WA bot juga bisa melalui:",
	"• Web: https://papiqo.com/claim",
	"• Bot Telegram Cicero_Update: https://t.me/cicero_update_bot (ketik */menu* lalu ikuti petunjuk)",
}, "\n")

const separator = "━━━━━━━━━━━━━━━━━"

type reportLine struct {
	label string
	value string
}

// SocialDisplay renders a stored handle with a single leading '@' added when
// missing, or "-" when empty.
func SocialDisplay(handle string) string {
	h := strings.TrimSpace(handle)
	if h == "" {
		return "-"
	}
	if strings.HasPrefix(h, "@") {
		return h
	}
	return "@" + h
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

// FormatUserReport renders a user record with labels aligned on the colon.
func FormatUserReport(u *store.User) string {
	if u == nil {
		return "-"
	}
	status := "🔴 NONAKTIF"
	if u.Status {
		status = "🟢 AKTIF"
	}
	lines := []reportLine{
		{"Polres", orDash(u.ClientName)},
		{"Nama", orDash(u.Nama)},
		{"Pangkat", orDash(u.Title)},
		{"NRP/NIP", orDash(u.UserID)},
		{"Satfung", orDash(u.Divisi)},
		{"Jabatan", orDash(u.Jabatan)},
	}
	if u.Ditbinmas {
		lines = append(lines, reportLine{"Desa", orDash(u.Desa)})
	}
	lines = append(lines,
		reportLine{"Instagram", SocialDisplay(u.Insta)},
		reportLine{"TikTok", SocialDisplay(u.Tiktok)},
		reportLine{"Status", status},
	)

	width := 0
	for _, l := range lines {
		if w := runewidth.StringWidth(l.label); w > width {
			width = w
		}
	}

	var sb strings.Builder
	sb.WriteString("📋 *Data Anda*\n")
	for _, l := range lines {
		pad := strings.Repeat(" ", width-runewidth.StringWidth(l.label))
		fmt.Fprintf(&sb, "\n*%s*%s: %s", l.label, pad, l.value)
	}
	return sb.String()
}

// fieldOption is one entry in the field-selection list.
type fieldOption struct {
	key   string
	label string
}

// Field keys as offered in the selection list. pangkat and satfung map to
// the title and divisi columns.
const (
	fieldPangkat = "pangkat"
	fieldSatfung = "satfung"
)

var baseFields = []fieldOption{
	{store.FieldNama, "Nama"},
	{fieldPangkat, "Pangkat"},
	{fieldSatfung, "Satfung"},
	{store.FieldJabatan, "Jabatan"},
	{store.FieldInsta, "Instagram"},
	{store.FieldTiktok, "TikTok"},
}

// allowedFields lists the editable fields; Ditbinmas users also get desa.
func allowedFields(isDitbinmas bool) []fieldOption {
	fields := append([]fieldOption(nil), baseFields...)
	if isDitbinmas {
		fields = append(fields, fieldOption{store.FieldDesa, "Desa Binaan"})
	}
	return fields
}

// dbField maps a selection key to its column.
func dbField(key string) string {
	switch key {
	case fieldPangkat:
		return store.FieldTitle
	case fieldSatfung:
		return store.FieldDivisi
	}
	return key
}

// FormatFieldList renders the numbered field menu.
func FormatFieldList(isDitbinmas bool) string {
	var sb strings.Builder
	sb.WriteString("📝 *Pilih Field yang Ingin Diupdate*\n")
	for i, f := range allowedFields(isDitbinmas) {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, f.label)
	}
	sb.WriteString("\n\nBalas dengan *satu angka* sesuai field (mis. *1*).")
	sb.WriteString("\n⏹️ Ketik *batal* untuk keluar.")
	return sb.String()
}

// FieldInfo is the current value of a field as shown in the update prompt.
type FieldInfo struct {
	DisplayName string
	Value       string
}

// GetFieldInfo returns the label and display value of field for u.
func GetFieldInfo(field string, u *store.User) FieldInfo {
	var v string
	info := FieldInfo{}
	switch field {
	case store.FieldNama:
		info.DisplayName = "Nama"
		if u != nil {
			v = u.Nama
		}
	case fieldPangkat, store.FieldTitle:
		info.DisplayName = "Pangkat"
		if u != nil {
			v = u.Title
		}
	case fieldSatfung, store.FieldDivisi:
		info.DisplayName = "Satfung"
		if u != nil {
			v = u.Divisi
		}
	case store.FieldJabatan:
		info.DisplayName = "Jabatan"
		if u != nil {
			v = u.Jabatan
		}
	case store.FieldDesa:
		info.DisplayName = "Desa Binaan"
		if u != nil {
			v = u.Desa
		}
	case store.FieldInsta, store.FieldInsta2:
		info.DisplayName = "Instagram"
		if u != nil {
			v = u.Insta
			if field == store.FieldInsta2 {
				v = u.Insta2
			}
		}
		info.Value = SocialDisplay(v)
		return info
	case store.FieldTiktok, store.FieldTiktok2:
		info.DisplayName = "TikTok"
		if u != nil {
			v = u.Tiktok
			if field == store.FieldTiktok2 {
				v = u.Tiktok2
			}
		}
		info.Value = SocialDisplay(v)
		return info
	case store.FieldWhatsApp:
		info.DisplayName = "WhatsApp"
		if u != nil {
			v = u.WhatsApp
		}
	default:
		info.DisplayName = field
	}
	info.Value = orDash(v)
	return info
}

// FieldDisplayName names a column in success messages.
func FieldDisplayName(column string) string {
	switch column {
	case store.FieldNama:
		return "Nama"
	case store.FieldTitle:
		return "Pangkat"
	case store.FieldDivisi:
		return "Satfung"
	case store.FieldJabatan:
		return "Jabatan"
	case store.FieldDesa:
		return "Desa Binaan"
	case store.FieldInsta:
		return "Instagram Utama"
	case store.FieldInsta2:
		return "Instagram Kedua"
	case store.FieldTiktok:
		return "TikTok Utama"
	case store.FieldTiktok2:
		return "TikTok Kedua"
	case store.FieldWhatsApp:
		return "WhatsApp"
	}
	return column
}

func fieldInstruction(field string) string {
	switch field {
	case fieldPangkat, fieldSatfung:
		return "Balas dengan *angka* atau *nama* dari daftar di atas."
	case store.FieldInsta, store.FieldInsta2:
		return "Kirim username atau link profil Instagram (mis. *@username*)."
	case store.FieldTiktok, store.FieldTiktok2:
		return "Kirim username atau link profil TikTok (mis. *@username*)."
	case store.FieldWhatsApp:
		return "Kirim nomor WhatsApp (mis. *628123456789*)."
	}
	return "Ketik nilai baru (2-100 karakter)."
}

// FormatFieldUpdatePrompt asks for the new value of field.
func FormatFieldUpdatePrompt(field, label, current string) string {
	return strings.Join([]string{
		fmt.Sprintf("✏️ *Update %s*", label),
		"",
		fmt.Sprintf("Nilai saat ini: *%s*", orDash(current)),
		"",
		fieldInstruction(field),
		"",
		"↩️ Ketik *menu* untuk kembali ke daftar field",
		"⏹️ Ketik *batal* untuk membatalkan",
	}, "\n")
}

// FormatUpdateSuccess confirms a committed value. displayValue is shown as given.
func FormatUpdateSuccess(fieldName, displayValue, userID string) string {
	return fmt.Sprintf("✅ Data *%s* untuk NRP/NIP *%s* berhasil diupdate menjadi *%s*.", fieldName, userID, displayValue)
}

// FormatOptionsList renders a numbered option list under title.
func FormatOptionsList(options []string, title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 *%s*:\n", title)
	for i, o := range options {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, o)
	}
	return sb.String()
}

// Greeting returns the Indonesian salutation for t's hour.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 4 && h < 11:
		return "Selamat pagi"
	case h >= 11 && h < 15:
		return "Selamat siang"
	case h >= 15 && h < 18:
		return "Selamat sore"
	}
	return "Selamat malam"
}

func menuRetryFallbackMessage(maxOption int) string {
	return strings.Join([]string{
		"⚠️ Input belum sesuai.",
		"Silakan balas satu angka sesuai field yang ingin diubah.",
		fmt.Sprintf("Contoh: *1..%d*", maxOption),
		"💡 Jika bingung, ketik *menu* untuk ulang dari daftar field.",
	}, "\n")
}

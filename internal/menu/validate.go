package menu

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation is the outcome of checking one user-supplied value. Value holds
// the normalized accepted form; Error is the user-facing reason otherwise.
type Validation struct {
	Valid bool
	Value string
	Error string
}

func invalid(msg string) Validation { return Validation{Error: msg} }

func valid(v string) Validation { return Validation{Valid: true, Value: v} }

// Zero code points of the decimal digit blocks folded to ASCII.
var digitZeros = []rune{
	0x0660, 0x06F0, 0x07C0, 0x0966, 0x09E6, 0x0A66, 0x0AE6, 0x0B66, 0x0BE6,
	0x0C66, 0x0CE6, 0x0D66, 0x0DE6, 0x0E50, 0x0ED0, 0x0F20, 0x1040, 0x1090,
	0x17E0, 0x1810, 0x1946, 0x19D0, 0xA8D0, 0xA900, 0xFF10,
}

// FoldDigits rewrites decimal digits from other scripts as ASCII digits.
func FoldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x80 {
			return r
		}
		for _, z := range digitZeros {
			if r >= z && r <= z+9 {
				return '0' + (r - z)
			}
		}
		return r
	}, s)
}

const (
	nrpMinLen = 6
	nrpMaxLen = 18
)

var (
	separatedDigits = regexp.MustCompile(`^[0-9][0-9 .\-]*$`)
	digitGroups     = regexp.MustCompile(`[0-9]+`)
)

// ValidateNRP accepts an NRP/NIP: digits only once separators are removed,
// 6 to 18 long. Text carrying several numeric groups is rejected so that a
// pagination marker is never mistaken for the code.
func ValidateNRP(text string) Validation {
	s := strings.TrimSpace(FoldDigits(text))
	if s == "" {
		return invalid("❌ NRP/NIP tidak boleh kosong. Ketik NRP/NIP Anda (hanya angka).")
	}

	var digits string
	if separatedDigits.MatchString(s) {
		digits = strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s)
	} else {
		groups := digitGroups.FindAllString(s, -1)
		switch len(groups) {
		case 0:
			return invalid("❌ NRP/NIP harus berupa angka.\nContoh: 87020990")
		case 1:
			digits = groups[0]
		default:
			return invalid(strings.Join([]string{
				"❌ Terdeteksi lebih dari satu kelompok angka.",
				"Kirim *NRP/NIP saja* dalam satu balasan, tanpa teks lain.",
				"Contoh: 87020990",
			}, "\n"))
		}
	}

	if len(digits) < nrpMinLen || len(digits) > nrpMaxLen {
		return invalid(fmt.Sprintf("❌ NRP/NIP harus terdiri dari %d-%d digit angka.\nContoh: 87020990", nrpMinLen, nrpMaxLen))
	}
	return valid(digits)
}

const (
	textMinLen = 2
	textMaxLen = 100
)

var textFieldChars = regexp.MustCompile(`^[\p{L}\p{N} .,'/()\-]+$`)

// ValidateTextField checks a free-text column (nama, jabatan, desa) and
// returns it uppercased with inner whitespace collapsed.
func ValidateTextField(field, value string) Validation {
	label := GetFieldInfo(field, nil).DisplayName
	v := strings.Join(strings.Fields(value), " ")
	n := utf8.RuneCountInString(v)
	switch {
	case n < textMinLen:
		return invalid(fmt.Sprintf("❌ %s minimal %d karakter.", label, textMinLen))
	case n > textMaxLen:
		return invalid(fmt.Sprintf("❌ %s maksimal %d karakter.", label, textMaxLen))
	case !textFieldChars.MatchString(v):
		return invalid(fmt.Sprintf("❌ %s hanya boleh berisi huruf, angka, spasi dan tanda baca . , ' / ( ) -", label))
	}
	return valid(strings.ToUpper(v))
}

var (
	instagramHandle = regexp.MustCompile(`^[a-z0-9._]{1,30}$`)
	tiktokHandle    = regexp.MustCompile(`^[a-z0-9._]{2,24}$`)
)

// handleFromInput extracts a username from a bare handle, "@handle" or a
// profile URL on host.
func handleFromInput(input, host string) string {
	s := strings.TrimSpace(input)
	lower := strings.ToLower(s)
	if strings.Contains(lower, host) {
		raw := s
		if !strings.Contains(lower, "://") {
			raw = "https://" + s
		}
		if u, err := url.Parse(raw); err == nil {
			for _, seg := range strings.Split(u.Path, "/") {
				if seg != "" {
					s = seg
					break
				}
			}
		}
	}
	s = strings.TrimRight(s, "/")
	s = strings.TrimLeft(s, "@")
	return strings.ToLower(s)
}

// ValidateInstagram normalizes an Instagram username or profile URL.
func ValidateInstagram(input string) Validation {
	h := handleFromInput(input, "instagram.com")
	if !instagramHandle.MatchString(h) {
		return invalid(strings.Join([]string{
			"❌ Username Instagram tidak valid.",
			"Contoh: *@username* atau *https://instagram.com/username*",
		}, "\n"))
	}
	return valid(h)
}

// ValidateTikTok normalizes a TikTok username or profile URL.
func ValidateTikTok(input string) Validation {
	h := handleFromInput(input, "tiktok.com")
	if !tiktokHandle.MatchString(h) {
		return invalid(strings.Join([]string{
			"❌ Username TikTok tidak valid.",
			"Contoh: *@username* atau *https://www.tiktok.com/@username*",
		}, "\n"))
	}
	return valid(h)
}

// ValidateListSelection accepts a 1-based index into options or an option
// name, case-insensitively. The canonical option is returned.
func ValidateListSelection(value string, options []string) Validation {
	if len(options) == 0 {
		return invalid("❌ Daftar pilihan tidak tersedia. Ketik *menu* untuk kembali ke daftar field.")
	}
	v := strings.TrimSpace(FoldDigits(value))
	if n, err := strconv.Atoi(v); err == nil {
		if n >= 1 && n <= len(options) {
			return valid(options[n-1])
		}
	} else {
		for _, o := range options {
			if strings.EqualFold(strings.TrimSpace(o), v) {
				return valid(o)
			}
		}
	}
	return invalid(fmt.Sprintf("❌ Pilihan tidak valid. Balas dengan angka 1-%d atau nama yang ada di daftar.", len(options)))
}

// NormalizeWhatsAppNumber reduces a chat id or phone number to bare digits
// with the 62 country prefix.
func NormalizeWhatsAppNumber(addr string) string {
	s := addr
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	// multi-device ids carry a ":device" suffix
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < 0x80 {
			return r
		}
		return -1
	}, FoldDigits(s))
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	return digits
}

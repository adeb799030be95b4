package store

import "strings"

// NormalizeSocialUsername trims, strips a leading '@' and lowercases.
func NormalizeSocialUsername(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimLeft(h, "@")
	return strings.ToLower(h)
}

// HandleCandidates lists the stored spellings a handle may have: the
// normalized form and the legacy "@"-prefixed form.
func HandleCandidates(handle string) []string {
	h := NormalizeSocialUsername(handle)
	if h == "" {
		return nil
	}
	return []string{h, "@" + h}
}

// AddressCandidates lists the stored spellings of a WhatsApp number.
func AddressCandidates(number string) []string {
	if number == "" {
		return nil
	}
	return []string{number, number + "@c.us", number + "@s.whatsapp.net"}
}

// SocialAccountSlot maps a social column to its user_social_accounts key.
func SocialAccountSlot(column string) (platform, slot string, ok bool) {
	switch column {
	case FieldInsta:
		return "instagram", "primary", true
	case FieldInsta2:
		return "instagram", "secondary", true
	case FieldTiktok:
		return "tiktok", "primary", true
	case FieldTiktok2:
		return "tiktok", "secondary", true
	}
	return "", "", false
}

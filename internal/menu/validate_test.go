package menu

import (
	"strings"
	"testing"
)

func TestValidateNRP(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantValid bool
		want      string
		errSub    string
	}{
		{"ascii", "69040249", true, "69040249", ""},
		{"arabic indic", "٦٩٠٤٠٢٤٩", true, "69040249", ""},
		{"separators", "6904 0249", true, "69040249", ""},
		{"embedded", "nrp 87020990", true, "87020990", ""},
		{"pagination mixed", "Laporan 1/2 NRP 69040249", false, "", "Kirim *NRP/NIP saja* dalam satu balasan"},
		{"blank", "   ", false, "", "tidak boleh kosong"},
		{"no digits", "halo", false, "", "harus berupa angka"},
		{"too short", "12345", false, "", "6-18"},
		{"too long", "1234567890123456789", false, "", "6-18"},
		{"max length", "123456789012345678", true, "123456789012345678", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateNRP(tt.in)
			if got.Valid != tt.wantValid || got.Value != tt.want {
				t.Errorf("ValidateNRP(%q) = %+v, want valid=%v value=%q", tt.in, got, tt.wantValid, tt.want)
			}
			if tt.errSub != "" && !strings.Contains(got.Error, tt.errSub) {
				t.Errorf("ValidateNRP(%q).Error = %q, want substring %q", tt.in, got.Error, tt.errSub)
			}
		})
	}
}

func TestValidateInstagram(t *testing.T) {
	for _, in := range []string{"https://www.instagram.com/User.Name", "@User.Name", "User.Name", "instagram.com/user.name/"} {
		if got := ValidateInstagram(in); !got.Valid || got.Value != "user.name" {
			t.Errorf("ValidateInstagram(%q) = %+v, want user.name", in, got)
		}
	}
	for _, in := range []string{"bad handle", "", strings.Repeat("a", 31)} {
		if got := ValidateInstagram(in); got.Valid {
			t.Errorf("ValidateInstagram(%q) accepted %q", in, got.Value)
		}
	}
}

func TestValidateTikTok(t *testing.T) {
	for _, in := range []string{"https://www.tiktok.com/@Another.User", "@Another.User", "Another.User"} {
		if got := ValidateTikTok(in); !got.Valid || got.Value != "another.user" {
			t.Errorf("ValidateTikTok(%q) = %+v, want another.user", in, got)
		}
	}
	if got := ValidateTikTok("a"); got.Valid {
		t.Error("ValidateTikTok should reject single-character handles")
	}
}

func TestValidateTextField(t *testing.T) {
	tests := []struct {
		in        string
		wantValid bool
		want      string
	}{
		{"budi  santoso", true, "BUDI SANTOSO"},
		{"Kanit (Reskrim)", true, "KANIT (RESKRIM)"},
		{"a", false, ""},
		{"nama<script>", false, ""},
		{strings.Repeat("x", 101), false, ""},
	}
	for _, tt := range tests {
		got := ValidateTextField("nama", tt.in)
		if got.Valid != tt.wantValid || got.Value != tt.want {
			t.Errorf("ValidateTextField(nama, %q) = %+v, want valid=%v value=%q", tt.in, got, tt.wantValid, tt.want)
		}
	}
}

func TestValidateListSelection(t *testing.T) {
	options := []string{"AKP", "IPTU", "BRIPKA"}
	tests := []struct {
		in        string
		wantValid bool
		want      string
	}{
		{"2", true, "IPTU"},
		{"bripka", true, "BRIPKA"},
		{" akp ", true, "AKP"},
		{"4", false, ""},
		{"kompol", false, ""},
	}
	for _, tt := range tests {
		got := ValidateListSelection(tt.in, options)
		if got.Valid != tt.wantValid || got.Value != tt.want {
			t.Errorf("ValidateListSelection(%q) = %+v, want valid=%v value=%q", tt.in, got, tt.wantValid, tt.want)
		}
	}
	if got := ValidateListSelection("1", nil); got.Valid {
		t.Error("ValidateListSelection with no options should fail")
	}
}

func TestNormalizeWhatsAppNumber(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"6282132963115@c.us", "6282132963115"},
		{"6282132963115@s.whatsapp.net", "6282132963115"},
		{"6282132963115", "6282132963115"},
		{"082132963115", "6282132963115"},
		{"+62 821-3296-3115", "6282132963115"},
		{"6282132963115:12@s.whatsapp.net", "6282132963115"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeWhatsAppNumber(tt.in); got != tt.want {
			t.Errorf("NormalizeWhatsAppNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

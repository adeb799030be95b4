package intent

import (
	"reflect"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "YA", "ya"},
		{"trim", "  Oke  ", "oke"},
		{"zero width", "y\u200ba\ufeff", "ya"},
		{"control chars", "ti\x00dak\x7f", "tidak"},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTextIdempotent(t *testing.T) {
	inputs := []string{"  Halo\u200d Dunia ", "YA!!", "\tmenu\n", "İstanbul", "", "\ufeff\ufeff", "12 3"}
	for _, in := range inputs {
		once := NormalizeText(in)
		if twice := NormalizeText(once); twice != once {
			t.Errorf("NormalizeText not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestParseAffirmativeNegative(t *testing.T) {
	tests := []struct {
		in   string
		want Polarity
	}{
		{"ya", Affirmative},
		{"Iya!", Affirmative},
		{"ok.", Affirmative},
		{"terima kasih ya", Affirmative},
		{"baik ya", Affirmative},
		{"ga dulu", Negative},
		{"tidak", Negative},
		{"gak mau", Negative},
		{"mungkin nanti lagi lagi", Unknown},
		{"ya tidak", Negative},
		{"ya tapi nanti", Affirmative},
		{"ya ga tau", Unknown},
		{"mungkin", Unknown},
		{"", Unknown},
		{"saya rasa belum perlu ya", Affirmative},
		{"ya saya rasa belum perlu", Unknown},
	}
	for _, tt := range tests {
		if got := ParseAffirmativeNegative(tt.in); got != tt.want {
			t.Errorf("ParseAffirmativeNegative(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseNumericSelection(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		max   int
		batch bool
		want  Selection
	}{
		{"empty", "  ", 6, false, Selection{Kind: SelectionEmpty}},
		{"no digits", "abc", 6, false, Selection{Kind: SelectionInvalid}},
		{"single", "6", 6, false, Selection{Kind: SelectionSingle, Value: 6, Values: []int{6}}},
		{"embedded", "angka 6", 6, false, Selection{Kind: SelectionSingle, Value: 6, Values: []int{6}}},
		{"out of range", "angka 9", 6, false, Selection{Kind: SelectionOutOfRange, Values: []int{9}}},
		{"zero", "0", 6, false, Selection{Kind: SelectionOutOfRange, Values: []int{0}}},
		{"mixed range keeps all values", "2 dan 9", 6, false, Selection{Kind: SelectionOutOfRange, Values: []int{2, 9}}},
		{"multi rejected", "pilih 2 dan 5", 6, false, Selection{Kind: SelectionMultiNotSupported, Values: []int{2, 5}}},
		{"multi allowed", "2,5", 6, true, Selection{Kind: SelectionMulti, Values: []int{2, 5}}},
		{"duplicates collapse", "3 3 3", 6, false, Selection{Kind: SelectionSingle, Value: 3, Values: []int{3}}},
		{"huge", "99999999999999999999999", 6, false, Selection{Kind: SelectionOutOfRange, Values: []int{7}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNumericSelection(tt.in, tt.max, tt.batch)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseNumericSelection(%q, %d) = %+v, want %+v", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestParseNumericOption(t *testing.T) {
	if v, ok := ParseNumericOption("pilih 4", 6); !ok || v != 4 {
		t.Errorf("ParseNumericOption(pilih 4) = %d, %v", v, ok)
	}
	if _, ok := ParseNumericOption("1 2", 6); ok {
		t.Error("ParseNumericOption should reject multiple values")
	}
}

func TestHint(t *testing.T) {
	want := "❌ Input tidak sesuai langkah saat ini.\n🧭 Menu aktif saat ini: *Konfirmasi*\n💬 Contoh jawaban: *ya / tidak*"
	if got := Hint("Konfirmasi", "ya / tidak"); got != want {
		t.Errorf("Hint() = %q, want %q", got, want)
	}
}

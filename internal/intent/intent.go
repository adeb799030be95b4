// Package intent classifies short chat replies: yes/no polarity and numeric
// menu selections. All functions are pure.
package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Polarity is the yes/no classification of a reply.
type Polarity string

const (
	Unknown     Polarity = ""
	Affirmative Polarity = "affirmative"
	Negative    Polarity = "negative"
)

var (
	affirmativeWords = map[string]bool{"ya": true, "iya": true, "y": true, "ok": true, "oke": true}
	negativeWords    = map[string]bool{"tidak": true, "ga": true, "gak": true, "n": true}
)

// shortReplyTokens is the longest reply still classified by word presence
// when the last token is not decisive.
const shortReplyTokens = 3

// NormalizeText strips zero-width and control characters, trims and lowercases.
func NormalizeText(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 0x200B && r <= 0x200D, r == 0xFEFF:
			return -1
		case r < 32, r == 127:
			return -1
		}
		return r
	}, text)
	return strings.ToLower(strings.TrimSpace(cleaned))
}

// Tokens splits normalized text on whitespace, drops trailing punctuation and
// any character that is not a letter, digit, '_' or '-'.
func Tokens(text string) []string {
	fields := strings.Fields(NormalizeText(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimRight(f, ".,!?;:")
		f = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' {
				return r
			}
			return -1
		}, f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ParseAffirmativeNegative classifies a reply. The last token decides first;
// otherwise replies of at most three tokens are classified when exactly one
// polarity is present.
func ParseAffirmativeNegative(text string) Polarity {
	toks := Tokens(text)
	if len(toks) == 0 {
		return Unknown
	}
	last := toks[len(toks)-1]
	if affirmativeWords[last] {
		return Affirmative
	}
	if negativeWords[last] {
		return Negative
	}
	if len(toks) > shortReplyTokens {
		return Unknown
	}

	var yes, no bool
	for _, t := range toks {
		yes = yes || affirmativeWords[t]
		no = no || negativeWords[t]
	}
	switch {
	case yes && !no:
		return Affirmative
	case no && !yes:
		return Negative
	}
	return Unknown
}

// IsAffirmative reports whether text reads as a "yes".
func IsAffirmative(text string) bool { return ParseAffirmativeNegative(text) == Affirmative }

// IsNegative reports whether text reads as a "no".
func IsNegative(text string) bool { return ParseAffirmativeNegative(text) == Negative }

// SelectionKind tags the outcome of ParseNumericSelection.
type SelectionKind string

const (
	SelectionEmpty             SelectionKind = "empty"
	SelectionInvalid           SelectionKind = "invalid"
	SelectionOutOfRange        SelectionKind = "out_of_range"
	SelectionMultiNotSupported SelectionKind = "multi_not_supported"
	SelectionMulti             SelectionKind = "multi"
	SelectionSingle            SelectionKind = "single"
)

// Selection is a parsed numeric menu choice. Value is set only for
// SelectionSingle. Values holds every distinct number parsed, in order, for
// all kinds except empty and invalid, including the in-range ones of an
// out_of_range reply.
type Selection struct {
	Kind   SelectionKind
	Value  int
	Values []int
}

var digitRun = regexp.MustCompile(`[0-9]+`)

// ParseNumericSelection extracts 1-based menu choices from text. Duplicate
// numbers are collapsed in order of first appearance.
func ParseNumericSelection(text string, maxOption int, allowBatch bool) Selection {
	normalized := NormalizeText(text)
	if normalized == "" {
		return Selection{Kind: SelectionEmpty}
	}

	runs := digitRun.FindAllString(normalized, -1)
	if len(runs) == 0 {
		return Selection{Kind: SelectionInvalid}
	}

	seen := make(map[int]bool, len(runs))
	values := make([]int, 0, len(runs))
	for _, r := range runs {
		n, err := strconv.Atoi(r)
		if err != nil {
			// too long for int: certainly out of range
			n = maxOption + 1
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		values = append(values, n)
	}

	for _, v := range values {
		if v < 1 || v > maxOption {
			return Selection{Kind: SelectionOutOfRange, Values: values}
		}
	}

	if len(values) > 1 {
		if !allowBatch {
			return Selection{Kind: SelectionMultiNotSupported, Values: values}
		}
		return Selection{Kind: SelectionMulti, Values: values}
	}
	return Selection{Kind: SelectionSingle, Value: values[0], Values: values}
}

// ParseNumericOption returns the chosen option when text holds exactly one
// valid number.
func ParseNumericOption(text string, maxOption int) (int, bool) {
	sel := ParseNumericSelection(text, maxOption, false)
	if sel.Kind != SelectionSingle {
		return 0, false
	}
	return sel.Value, true
}

// Hint builds the standard "wrong input for this step" reply.
func Hint(step, example string) string {
	return fmt.Sprintf("❌ Input tidak sesuai langkah saat ini.\n🧭 Menu aktif saat ini: *%s*\n💬 Contoh jawaban: *%s*", step, example)
}

// JoinValues renders numbers as "2, 5".
func JoinValues(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

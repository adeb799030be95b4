package store

import "strings"

// StaticDivisions are the units every client has regardless of what the
// personnel table currently holds.
var StaticDivisions = []string{
	"BAG OPS",
	"BAG REN",
	"BAG SDM",
	"BAG LOG",
	"SAT BINMAS",
	"SAT INTELKAM",
	"SAT LANTAS",
	"SAT RESKRIM",
	"SAT RESNARKOBA",
	"SAT SAMAPTA",
	"SI HUMAS",
	"SI PROPAM",
	"SPKT",
}

// MergeStaticDivisions returns StaticDivisions followed by the dynamic values
// not already present, compared case-insensitively. Blank values are dropped.
func MergeStaticDivisions(dynamic []string) []string {
	seen := make(map[string]bool, len(StaticDivisions)+len(dynamic))
	out := make([]string, 0, len(StaticDivisions)+len(dynamic))
	add := func(v string) {
		v = strings.TrimSpace(v)
		key := strings.ToUpper(v)
		if v == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, v)
	}
	for _, d := range StaticDivisions {
		add(d)
	}
	for _, d := range dynamic {
		add(d)
	}
	return out
}

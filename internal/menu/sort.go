package menu

import (
	"sort"
	"strings"
)

// defaultRankOrder lists police ranks from highest to lowest. It is used
// when the store does not supply its own ordering.
var defaultRankOrder = []string{
	"KOMJEN", "IRJEN", "BRIGJEN", "KOMBES", "AKBP", "KOMPOL", "AKP", "IPTU", "IPDA",
	"AIPTU", "AIPDA", "BRIPKA", "BRIGADIR", "BRIPTU", "BRIPDA",
	"ABRIP", "ABRIPTU", "ABRIPDA", "BHARAKA", "BHARATU", "BHARADA",
	"PEMBINA", "PENATA TK I", "PENATA", "PENATA MUDA TK I", "PENATA MUDA",
	"PENGATUR TK I", "PENGATUR", "PENGATUR MUDA TK I", "PENGATUR MUDA",
	"JURU TK I", "JURU", "JURU MUDA TK I", "JURU MUDA", "PPPK",
}

// SortTitleKeys orders titles by their position in order (highest rank
// first). Titles absent from order follow, alphabetically. A nil order falls
// back to the built-in rank list.
func SortTitleKeys(titles, order []string) []string {
	if order == nil {
		order = defaultRankOrder
	}
	pos := make(map[string]int, len(order))
	for i, o := range order {
		key := strings.ToUpper(strings.TrimSpace(o))
		if _, ok := pos[key]; !ok {
			pos[key] = i
		}
	}
	rank := func(t string) int {
		if p, ok := pos[strings.ToUpper(strings.TrimSpace(t))]; ok {
			return p
		}
		return len(order)
	}

	out := append([]string(nil), titles...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return strings.ToUpper(out[i]) < strings.ToUpper(out[j])
	})
	return out
}

// Division name prefixes in display order.
var divisionPrefixes = []string{"BAG", "SAT", "SI", "SPKT", "POLSEK"}

func divisionGroup(name string) int {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, p := range divisionPrefixes {
		if upper == p || strings.HasPrefix(upper, p+" ") {
			return i
		}
	}
	return len(divisionPrefixes)
}

// SortDivisionKeys groups divisions by unit type (BAG, SAT, SI, SPKT,
// POLSEK, then others) and sorts alphabetically inside each group.
func SortDivisionKeys(divisions []string) []string {
	out := append([]string(nil), divisions...)
	sort.SliceStable(out, func(i, j int) bool {
		gi, gj := divisionGroup(out[i]), divisionGroup(out[j])
		if gi != gj {
			return gi < gj
		}
		return strings.ToUpper(out[i]) < strings.ToUpper(out[j])
	})
	return out
}

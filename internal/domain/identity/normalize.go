package identity

import (
	"strings"
	"unicode"
)

var nameSuffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}, "v": {},
}

// Team code aliases seen across upstream feeds and fantasy platforms.
var teamAliases = map[string]string{
	"JAC": "JAX",
	"WSH": "WAS",
	"OAK": "LV",
	"LVR": "LV",
	"SD":  "LAC",
	"STL": "LAR",
	"LA":  "LAR",
	"ARZ": "ARI",
	"BLT": "BAL",
	"CLV": "CLE",
	"HST": "HOU",
	"GNB": "GB",
	"KAN": "KC",
	"NWE": "NE",
	"NOR": "NO",
	"SFO": "SF",
	"TAM": "TB",
}

var positionSynonyms = map[string]string{
	"DST":  "DEF",
	"D/ST": "DEF",
	"D":    "DEF",
	"PK":   "K",
}

// NormalizeName lowercases, drops generational suffixes and keeps only
// letters and digits, so "Robert Griffin III" becomes "robertgriffin".
func NormalizeName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})

	var b strings.Builder
	b.Grow(len(name))
	for i, field := range fields {
		token := strings.TrimRight(field, ".")
		if i > 0 {
			if _, ok := nameSuffixes[token]; ok {
				continue
			}
		}
		for _, r := range token {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func NormalizeTeam(team string) string {
	code := strings.ToUpper(strings.TrimSpace(team))
	if alias, ok := teamAliases[code]; ok {
		return alias
	}
	return code
}

func NormalizePosition(position string) string {
	code := strings.ToUpper(strings.TrimSpace(position))
	if canonical, ok := positionSynonyms[code]; ok {
		return canonical
	}
	return code
}

// MakeKey is the canonical mapping key for a (name, team, position) triple.
func MakeKey(name, team, position string) string {
	return NormalizeName(name) + "|" + NormalizeTeam(team) + "|" + NormalizePosition(position)
}

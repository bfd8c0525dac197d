package identity

import (
	"math"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Robert Griffin III": "robertgriffin",
		"Odell Beckham Jr.":  "odellbeckham",
		"D'Andre Swift":      "dandreswift",
		"A.J. Brown":         "ajbrown",
		"Amon-Ra St. Brown":  "amonrastbrown",
		"V":                  "v",
	}
	for in, want := range cases {
		if got := NormalizeName(in); got != want {
			t.Fatalf("NormalizeName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestNormalizeTeamAndPosition(t *testing.T) {
	t.Parallel()

	teams := map[string]string{"JAC": "JAX", "wsh": "WAS", "OAK": "LV", "LVR": "LV", "SD": "LAC", "STL": "LAR", "LA": "LAR", "kc": "KC"}
	for in, want := range teams {
		if got := NormalizeTeam(in); got != want {
			t.Fatalf("NormalizeTeam(%q)=%q want %q", in, got, want)
		}
	}

	positions := map[string]string{"DST": "DEF", "D/ST": "DEF", "d": "DEF", "PK": "K", "wr": "WR"}
	for in, want := range positions {
		if got := NormalizePosition(in); got != want {
			t.Fatalf("NormalizePosition(%q)=%q want %q", in, got, want)
		}
	}
}

func TestSimilarityThresholds(t *testing.T) {
	t.Parallel()

	base := NormalizeName("Robert Griffin")
	nick := Similarity(base, NormalizeName("Rob Griffin"))
	if math.Abs(nick-10.0/13.0) > 1e-9 || nick < AcceptThreshold {
		t.Fatalf("expected nickname to clear accept threshold, got %v", nick)
	}

	other := Similarity(base, NormalizeName("Robert Green"))
	if other >= AcceptThreshold {
		t.Fatalf("expected different player below accept threshold, got %v", other)
	}
	if other < CandidateThreshold {
		t.Fatalf("expected different player to still enter candidate pool, got %v", other)
	}
}

func TestLevenshtein(t *testing.T) {
	t.Parallel()

	if d := Levenshtein("kitten", "sitting"); d != 3 {
		t.Fatalf("Levenshtein=%d want 3", d)
	}
	if d := Levenshtein("", "abc"); d != 3 {
		t.Fatalf("Levenshtein empty=%d want 3", d)
	}
}

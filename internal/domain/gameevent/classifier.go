package gameevent

import (
	"regexp"
	"strconv"
	"strings"
)

// BigPlayYards is the yardage at which a non-scoring play becomes an event.
const BigPlayYards = 20

var (
	yardsPattern      = regexp.MustCompile(`(-?\d{1,3})\s*-?\s*(?:yards?|yds?)\b`)
	tdTokenPattern    = regexp.MustCompile(`\btd\b`)
	fgTokenPattern    = regexp.MustCompile(`\bfg\b`)
	receivingKeywords = []string{"reception", "receiving", "catch", "caught"}
	passingKeywords   = []string{"pass", "throw", "threw"}
	rushingKeywords   = []string{"rush", "run", "scramble"}
	missedKickKeyword = []string{"no good", "missed", "blocked"}
	defensiveReturns  = []string{"interception return", "intercepted", "fumble return", "fumble recovery", "punt return", "kickoff return"}
)

// Classification is the classifier's verdict for one play.
type Classification struct {
	Kind  EventKind
	Stats StatDeltas
}

// Classify maps a play onto at most one EventKind. Rules are evaluated in
// order: touchdown, field goal, interception, fumble, safety, big-play
// yardage. Plays matching none of them yield ok=false.
func Classify(play Play) (Classification, bool) {
	label := strings.ToLower(strings.TrimSpace(play.Type))
	text := strings.ToLower(strings.TrimSpace(play.Description))
	yards := PlayYards(play)

	if isTouchdown(label, text) {
		kind := touchdownKind(label, text)
		stats := StatDeltas{StatTouchdowns: 1, StatYards: float64(yards)}
		if kind == KindReceivingTouchdown {
			stats[StatReceptions] = 1
		}
		return Classification{Kind: kind, Stats: stats}, true
	}

	if isFieldGoal(label, text) {
		if containsAny(label, missedKickKeyword...) || containsAny(text, missedKickKeyword...) {
			return Classification{}, false
		}
		return Classification{
			Kind:  KindFieldGoal,
			Stats: StatDeltas{StatFieldGoals: 1, StatFieldGoalYards: float64(yards)},
		}, true
	}

	if containsAny(label, "interception") || containsAny(text, "intercept") {
		return Classification{Kind: KindInterception, Stats: StatDeltas{StatInterceptions: 1}}, true
	}

	if containsAny(label, "fumble") || containsAny(text, "fumble") {
		return Classification{Kind: KindFumble, Stats: StatDeltas{StatFumblesLost: 1}}, true
	}

	if containsAny(label, "safety") || containsAny(text, "safety") {
		return Classification{Kind: KindSafety, Stats: StatDeltas{StatSafeties: 1}}, true
	}

	if yards >= BigPlayYards {
		kind, ok := yardageKind(label, text)
		if !ok {
			return Classification{}, false
		}
		stats := StatDeltas{StatYards: float64(yards)}
		if kind == KindReceivingYards {
			stats[StatReceptions] = 1
		}
		return Classification{Kind: kind, Stats: stats}, true
	}

	return Classification{}, false
}

// PlayYards prefers the structured yards field and falls back to the first
// "N-yard"/"Nyd" mention in the description.
func PlayYards(play Play) int {
	if play.Yards != 0 {
		return play.Yards
	}
	match := yardsPattern.FindStringSubmatch(strings.ToLower(play.Description))
	if len(match) < 2 {
		return 0
	}
	yards, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return yards
}

func isTouchdown(label, text string) bool {
	if containsAny(text, defensiveReturns...) {
		return false
	}
	if containsAny(label, "touchdown") || tdTokenPattern.MatchString(label) {
		return true
	}
	return containsAny(text, "touchdown") || tdTokenPattern.MatchString(text)
}

func touchdownKind(label, text string) EventKind {
	for _, source := range []string{label, text} {
		switch {
		case containsAny(source, receivingKeywords...):
			return KindReceivingTouchdown
		case containsAny(source, passingKeywords...):
			return KindPassingTouchdown
		case containsAny(source, rushingKeywords...):
			return KindRushingTouchdown
		}
	}
	return KindRushingTouchdown
}

func isFieldGoal(label, text string) bool {
	if containsAny(label, "field goal", "field_goal") || fgTokenPattern.MatchString(label) {
		return true
	}
	return containsAny(text, "field goal") || fgTokenPattern.MatchString(text)
}

func yardageKind(label, text string) (EventKind, bool) {
	for _, source := range []string{label, text} {
		switch {
		case containsAny(source, receivingKeywords...):
			return KindReceivingYards, true
		case containsAny(source, rushingKeywords...):
			return KindRushingYards, true
		case containsAny(source, passingKeywords...):
			return KindPassingYards, true
		}
	}
	return "", false
}

func containsAny(haystack string, needles ...string) bool {
	if haystack == "" {
		return false
	}
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

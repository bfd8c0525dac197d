package fantasy

import (
	"math"

	"github.com/riskibarqy/fantasy-livefeed/internal/domain/gameevent"
	"github.com/riskibarqy/fantasy-livefeed/internal/domain/roster"
)

// PointsFor scores one event under one league's settings. Unknown kinds and
// missing coefficients contribute zero. The result is rounded to two decimals.
func PointsFor(kind gameevent.EventKind, stats gameevent.StatDeltas, settings roster.LeagueScoringSettings) float64 {
	coef := func(key string) float64 {
		v, _ := settings.Coefficient(key)
		return v
	}

	yards := stats.Get(gameevent.StatYards)
	var total float64
	switch kind {
	case gameevent.KindPassingTouchdown:
		total = coef(KeyPassTD)*stats.Get(gameevent.StatTouchdowns) + coef(KeyPassYards)*yards
	case gameevent.KindRushingTouchdown:
		total = coef(KeyRushTD)*stats.Get(gameevent.StatTouchdowns) + coef(KeyRushYards)*yards
	case gameevent.KindReceivingTouchdown:
		total = coef(KeyRecTD)*stats.Get(gameevent.StatTouchdowns) +
			coef(KeyReception)*stats.Get(gameevent.StatReceptions) +
			coef(KeyRecYards)*yards
	case gameevent.KindPassingYards:
		total = coef(KeyPassYards) * yards
	case gameevent.KindRushingYards:
		total = coef(KeyRushYards) * yards
	case gameevent.KindReceivingYards:
		total = coef(KeyReception)*stats.Get(gameevent.StatReceptions) + coef(KeyRecYards)*yards
	case gameevent.KindFieldGoal:
		total = fieldGoalPoints(stats, settings)
	case gameevent.KindSafety:
		total = coef(KeySafety) * stats.Get(gameevent.StatSafeties)
	case gameevent.KindFumble:
		total = coef(KeyFumbleLost) * stats.Get(gameevent.StatFumblesLost)
	case gameevent.KindInterception:
		total = coef(KeyPassInt) * stats.Get(gameevent.StatInterceptions)
	default:
		return 0
	}

	if kind.IsTouchdown() && yards >= LongTouchdownYards {
		if bonus, ok := settings.Custom(RuleTDBonus40p); ok {
			total += bonus
		}
	}

	return Round2(total)
}

func fieldGoalPoints(stats gameevent.StatDeltas, settings roster.LeagueScoringSettings) float64 {
	made := stats.Get(gameevent.StatFieldGoals)
	if made == 0 {
		return 0
	}
	distance := stats.Get(gameevent.StatFieldGoalYards)

	base, ok := settings.Coefficient(fieldGoalBucket(distance))
	if !ok || distance <= 0 {
		base, _ = settings.Coefficient(KeyFGMade)
	}
	total := base * made

	switch {
	case distance >= 50:
		if bonus, ok := settings.Custom(RuleFG50Plus); ok {
			total += bonus
		}
	case distance >= 40:
		if bonus, ok := settings.Custom(RuleFG40to49); ok {
			total += bonus
		}
	}

	perYard, ok := settings.Custom(RuleFGPerYard)
	if !ok {
		perYard, _ = settings.Coefficient(KeyFGYards)
	}
	total += perYard * distance

	return total
}

func fieldGoalBucket(distance float64) string {
	switch {
	case distance >= 50:
		return KeyFGMade50p
	case distance >= 40:
		return KeyFGMade40s
	case distance >= 30:
		return KeyFGMade30s
	case distance >= 20:
		return KeyFGMade20s
	default:
		return KeyFGMade0to19
	}
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

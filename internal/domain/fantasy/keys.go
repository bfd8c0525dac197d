package fantasy

// Canonical scoring coefficient keys. Platform adapters translate their own
// stat identifiers onto these.
const (
	KeyPassTD      = "pass_td"
	KeyPassYards   = "pass_yd"
	KeyPassInt     = "pass_int"
	KeyRushTD      = "rush_td"
	KeyRushYards   = "rush_yd"
	KeyReception   = "rec"
	KeyRecTD       = "rec_td"
	KeyRecYards    = "rec_yd"
	KeyFumbleLost  = "fum_lost"
	KeySafety      = "safe"
	KeyFGMade      = "fgm"
	KeyFGMade0to19 = "fgm_0_19"
	KeyFGMade20s   = "fgm_20_29"
	KeyFGMade30s   = "fgm_30_39"
	KeyFGMade40s   = "fgm_40_49"
	KeyFGMade50p   = "fgm_50p"
	KeyFGYards     = "fgm_yds"
)

// Custom rule keys layered on top of the coefficient table.
const (
	RuleFG50Plus   = "fg_50_plus"
	RuleFG40to49   = "fg_40_49"
	RuleFGPerYard  = "fgm_yds"
	RuleTDBonus40p = "bonus_td_40p"
)

// LongTouchdownYards is the touchdown length that earns RuleTDBonus40p.
const LongTouchdownYards = 40

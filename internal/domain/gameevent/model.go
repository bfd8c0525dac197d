package gameevent

import (
	"fmt"
	"strings"
	"time"
)

// EventKind is the closed set of fantasy-relevant play outcomes.
type EventKind string

const (
	KindPassingTouchdown   EventKind = "passing_td"
	KindRushingTouchdown   EventKind = "rushing_td"
	KindReceivingTouchdown EventKind = "receiving_td"
	KindPassingYards       EventKind = "passing_yards"
	KindRushingYards       EventKind = "rushing_yards"
	KindReceivingYards     EventKind = "receiving_yards"
	KindFieldGoal          EventKind = "field_goal"
	KindSafety             EventKind = "safety"
	KindFumble             EventKind = "fumble"
	KindInterception       EventKind = "interception"
)

var allKinds = []EventKind{
	KindPassingTouchdown,
	KindRushingTouchdown,
	KindReceivingTouchdown,
	KindPassingYards,
	KindRushingYards,
	KindReceivingYards,
	KindFieldGoal,
	KindSafety,
	KindFumble,
	KindInterception,
}

func AllKinds() []EventKind {
	out := make([]EventKind, len(allKinds))
	copy(out, allKinds)
	return out
}

func (k EventKind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k EventKind) IsTouchdown() bool {
	return k == KindPassingTouchdown || k == KindRushingTouchdown || k == KindReceivingTouchdown
}

// Stat delta keys carried by a ScoringEvent.
const (
	StatYards          = "yards"
	StatTouchdowns     = "touchdowns"
	StatReceptions     = "receptions"
	StatFieldGoals     = "field_goals"
	StatFieldGoalYards = "field_goal_yards"
	StatSafeties       = "safeties"
	StatFumblesLost    = "fumbles_lost"
	StatInterceptions  = "interceptions"
)

// StatDeltas holds the numeric stat changes produced by one play.
type StatDeltas map[string]float64

func (s StatDeltas) Get(key string) float64 {
	if s == nil {
		return 0
	}
	return s[key]
}

func (s StatDeltas) Clone() StatDeltas {
	if s == nil {
		return nil
	}
	out := make(StatDeltas, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Game is one upstream game as reported by the live games endpoint.
type Game struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	Quarter   int       `json:"quarter"`
	Clock     string    `json:"clock"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsLive reports whether the game is currently in progress.
func (g Game) IsLive() bool {
	switch strings.ToLower(strings.TrimSpace(g.Status)) {
	case "live", "in_progress", "inprogress", "in progress", "halftime", "overtime", "end_period":
		return true
	default:
		return false
	}
}

// Play is one upstream play-by-play record.
type Play struct {
	ID          string `json:"id"`
	Sequence    int64  `json:"sequence"`
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	Team        string `json:"team"`
	Position    string `json:"position"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Yards       int    `json:"yards"`
	Quarter     int    `json:"quarter"`
	Clock       string `json:"clock"`
	Scoring     bool   `json:"scoring"`
}

// ProviderPlayer is one entry of the upstream player directory.
type ProviderPlayer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Team     string `json:"team"`
	Position string `json:"position"`
}

// PlayerRef identifies the player involved in a play as the upstream sees them.
type PlayerRef struct {
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	Position   string `json:"position"`
	Team       string `json:"team"`
}

// ScoringEvent is an immutable fantasy-relevant occurrence derived from one play.
type ScoringEvent struct {
	ID          string     `json:"id"`
	GameID      string     `json:"game_id"`
	PlayID      string     `json:"play_id"`
	Sequence    int64      `json:"sequence"`
	Player      PlayerRef  `json:"player"`
	Kind        EventKind  `json:"kind"`
	Stats       StatDeltas `json:"stats"`
	Quarter     int        `json:"quarter"`
	Clock       string     `json:"clock"`
	ScoringPlay bool       `json:"scoring_play"`
	Description string     `json:"description"`
	DetectedAt  time.Time  `json:"detected_at"`
}

// EventID derives the stable event id for a play within a game.
func EventID(gameID, playID string) string {
	return gameID + ":" + playID
}

func (e ScoringEvent) ValidateBasic() error {
	if e.GameID == "" {
		return fmt.Errorf("game id is required")
	}
	if e.Player.ProviderID == "" && e.Player.Name == "" {
		return fmt.Errorf("player reference is required")
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return nil
}

// GameState is the per-game cursor used to make detection idempotent.
type GameState struct {
	GameID       string    `json:"game_id"`
	LastPlayID   string    `json:"last_play_id"`
	LastSequence int64     `json:"last_sequence"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}

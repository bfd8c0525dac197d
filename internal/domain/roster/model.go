package roster

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a fantasy league host.
type Platform string

const (
	PlatformSleeper Platform = "sleeper"
	PlatformESPN    Platform = "espn"
	PlatformYahoo   Platform = "yahoo"
)

func ParsePlatform(raw string) (Platform, error) {
	switch p := Platform(strings.ToLower(strings.TrimSpace(raw))); p {
	case PlatformSleeper, PlatformESPN, PlatformYahoo:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported platform %q", raw)
	}
}

// LeagueConfig is one league the service tracks for the operator.
type LeagueConfig struct {
	LeagueID string   `json:"league_id" validate:"required"`
	Platform Platform `json:"platform" validate:"required,oneof=sleeper espn yahoo"`
	TeamID   string   `json:"team_id" validate:"required"`
	Season   int      `json:"season" validate:"omitempty,gte=2000,lte=2100"`
	Name     string   `json:"name"`
}

// Key identifies the league across platforms. League IDs are only unique
// within one platform.
func (c LeagueConfig) Key() string {
	return LeagueKey(c.Platform, c.LeagueID)
}

func LeagueKey(platform Platform, leagueID string) string {
	return string(platform) + ":" + leagueID
}

// FantasyPlayer is one player on a fantasy team roster.
type FantasyPlayer struct {
	PlatformPlayerID string `json:"platform_player_id"`
	Name             string `json:"name"`
	Position         string `json:"position"`
	Team             string `json:"team"`
	IsStarter        bool   `json:"is_starter"`
	IsActive         bool   `json:"is_active"`
}

// FantasyRoster is the operator's team within one league.
type FantasyRoster struct {
	LeagueID string          `json:"league_id"`
	TeamID   string          `json:"team_id"`
	TeamName string          `json:"team_name"`
	Platform Platform        `json:"platform"`
	Players  []FantasyPlayer `json:"players"`
	LoadedAt time.Time       `json:"loaded_at"`
}

func (r FantasyRoster) ValidateBasic() error {
	if r.LeagueID == "" {
		return fmt.Errorf("league id is required")
	}
	if r.TeamID == "" {
		return fmt.Errorf("team id is required")
	}
	if r.Platform == "" {
		return fmt.Errorf("platform is required")
	}
	return nil
}

// LeagueScoringSettings holds per-league point coefficients keyed by the
// canonical stat keys in the fantasy package. CustomRules carries bonuses
// that sit outside the base coefficient table.
type LeagueScoringSettings struct {
	LeagueID     string             `json:"league_id"`
	Platform     Platform           `json:"platform"`
	Coefficients map[string]float64 `json:"coefficients"`
	CustomRules  map[string]float64 `json:"custom_rules,omitempty"`
	LoadedAt     time.Time          `json:"loaded_at"`
}

func (s LeagueScoringSettings) Coefficient(key string) (float64, bool) {
	v, ok := s.Coefficients[key]
	return v, ok
}

func (s LeagueScoringSettings) Custom(key string) (float64, bool) {
	v, ok := s.CustomRules[key]
	return v, ok
}

// OwnedPlayer is a roster player together with the league team that owns it.
type OwnedPlayer struct {
	LeagueID string        `json:"league_id"`
	TeamID   string        `json:"team_id"`
	TeamName string        `json:"team_name"`
	Platform Platform      `json:"platform"`
	Player   FantasyPlayer `json:"player"`
}

// Snapshot is the unit the roster cache replaces atomically.
type Snapshot struct {
	Config   LeagueConfig          `json:"config"`
	Roster   FantasyRoster         `json:"roster"`
	Settings LeagueScoringSettings `json:"settings"`
	LoadedAt time.Time             `json:"loaded_at"`
}

// Owned lists the roster as owned players.
func (s Snapshot) Owned() []OwnedPlayer {
	out := make([]OwnedPlayer, 0, len(s.Roster.Players))
	for _, p := range s.Roster.Players {
		out = append(out, OwnedPlayer{
			LeagueID: s.Roster.LeagueID,
			TeamID:   s.Roster.TeamID,
			TeamName: s.Roster.TeamName,
			Platform: s.Roster.Platform,
			Player:   p,
		})
	}
	return out
}
